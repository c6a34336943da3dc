package chat

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestDecodeEntry_Valid(t *testing.T) {
	m, err := DecodeEntry("k1", []byte(`{"text":"Hello","user":"User","timestamp":1700000000000}`))
	require.NoError(t, err)
	require.Equal(t, Message{ID: "k1", Text: "Hello", Author: AuthorUser, Timestamp: 1700000000000}, m)

	m, err = DecodeEntry("k2", []byte(`{"text":"Hi","user":"Bot","timestamp":{".sv":"timestamp"}}`))
	require.NoError(t, err)
	require.True(t, m.IsBot())
	require.Equal(t, int64(0), m.Timestamp)

	m, err = DecodeEntry("k3", []byte(`{"text":"no ts","user":"User"}`))
	require.NoError(t, err)
	require.Equal(t, int64(0), m.Timestamp)
}

func TestDecodeEntry_Quarantine(t *testing.T) {
	cases := map[string]string{
		"missing text": `{"user":"User"}`,
		"blank text":   `{"text":"  ","user":"User"}`,
		"missing user": `{"text":"x"}`,
		"bad user":     `{"text":"x","user":"Admin"}`,
		"bad json":     `{"text":`,
		"bad ts":       `{"text":"x","user":"Bot","timestamp":"yesterday"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEntry("k", []byte(raw))
			require.Error(t, err)
		})
	}

	_, err := DecodeEntry(" ", []byte(`{"text":"x","user":"User"}`))
	require.Error(t, err)
}

func TestCollection_NewBotMessages(t *testing.T) {
	prev := Collection{Identity: "u", Messages: []Message{
		{ID: "1", Text: "Hello", Author: AuthorUser},
		{ID: "2", Text: "Hi", Author: AuthorBot},
	}}
	next := Collection{Identity: "u", Messages: append(prev.Clone().Messages,
		Message{ID: "3", Text: "again", Author: AuthorUser},
		Message{ID: "4", Text: "sure", Author: AuthorBot},
	)}

	got := next.NewBotMessages(prev)
	require.Len(t, got, 1)
	require.Equal(t, "4", got[0].ID)
	require.Empty(t, prev.NewBotMessages(prev))
}

func TestCollection_CloneIsIndependent(t *testing.T) {
	c := Collection{Identity: "u", Messages: []Message{{ID: "1", Text: "a", Author: AuthorUser}}}
	cp := c.Clone()
	cp.Messages[0].Text = "b"
	require.Equal(t, "a", c.Messages[0].Text)
	require.True(t, Collection{}.IsEmpty())
}

func TestTransitionKinds(t *testing.T) {
	require.True(t, Transition{From: NoIdentity, To: "u"}.IsLogin())
	require.True(t, Transition{From: "u", To: NoIdentity}.IsLogout())
	require.False(t, Transition{From: "u", To: "v"}.IsLogin())
	require.Equal(t, "messages/u", LogPath("u"))
}

func TestAuthErrorReason(t *testing.T) {
	err := errors.Wrap(NewAuthError("signup", AuthDuplicateAccount, nil), "create account")
	require.True(t, IsAuthReason(err, AuthDuplicateAccount))
	require.False(t, IsAuthReason(err, AuthInvalidCredential))
	require.False(t, IsAuthReason(errors.New("plain"), AuthDuplicateAccount))
}
