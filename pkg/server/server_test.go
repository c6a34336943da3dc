package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/go-go-golems/chatsync/pkg/auth"
	"github.com/go-go-golems/chatsync/pkg/chat"
	"github.com/go-go-golems/chatsync/pkg/dispatch"
	"github.com/go-go-golems/chatsync/pkg/store"
)

type testBackend struct {
	srv   *Server
	http  *httptest.Server
	store *store.LogStore
}

func newTestBackend(t *testing.T, settings Settings) *testBackend {
	t.Helper()
	st, err := store.NewLogStore(store.NewInMemoryBackend(0), store.NewInMemoryStreamBackend())
	require.NoError(t, err)
	accs, err := auth.NewAccounts(auth.NewMemoryAccounts(), bcrypt.MinCost)
	require.NoError(t, err)
	srv, err := New(context.Background(), st, accs, settings)
	require.NoError(t, err)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		hs.Close()
		_ = st.Close()
	})
	return &testBackend{srv: srv, http: hs, store: st}
}

func fastSettings() Settings {
	s := DefaultSettings()
	s.ReplyDelay = 0
	s.IdleTimeout = 50 * time.Millisecond
	return s
}

func (b *testBackend) post(t *testing.T, path, token string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, b.http.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := b.http.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (b *testBackend) signUp(t *testing.T, email string) auth.SessionResponse {
	t.Helper()
	resp := b.post(t, "/api/auth/signup", "", auth.Credentials{Email: email, Password: "secret1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sr auth.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sr))
	require.NotEmpty(t, sr.UID)
	require.NotEmpty(t, sr.Token)
	return sr
}

func (b *testBackend) dialWS(t *testing.T, uid, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(b.http.URL, "http") + "/ws/messages/" + uid
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(u, h)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn, uid string) chat.Collection {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	coll, err := store.DecodeSnapshotFrame(chat.Identity(uid), data)
	require.NoError(t, err)
	return coll
}

func TestAuthEndpoints(t *testing.T) {
	b := newTestBackend(t, fastSettings())
	sr := b.signUp(t, "a@example.com")

	resp := b.post(t, "/api/auth/signup", "", auth.Credentials{Email: "a@example.com", Password: "secret1"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var er auth.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&er))
	require.Equal(t, string(chat.AuthDuplicateAccount), er.Reason)

	resp = b.post(t, "/api/auth/signin", "", auth.Credentials{Email: "a@example.com", Password: "wrong-one"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = b.post(t, "/api/auth/signup", "", auth.Credentials{Email: "nope", Password: "secret1"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = b.post(t, "/api/auth/signin", "", auth.Credentials{Email: "a@example.com", Password: "secret1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var again auth.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&again))
	require.Equal(t, sr.UID, again.UID)

	resp = b.post(t, "/api/auth/signout", sr.Token, struct{}{})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = b.post(t, "/api/messages/"+sr.UID, sr.Token, store.PushRequest{Text: "x", User: "User"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPushEndpoint(t *testing.T) {
	b := newTestBackend(t, fastSettings())
	a := b.signUp(t, "a@example.com")
	other := b.signUp(t, "b@example.com")

	resp := b.post(t, "/api/messages/"+a.UID, "", store.PushRequest{Text: "x", User: "User"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = b.post(t, "/api/messages/"+a.UID, other.Token, store.PushRequest{Text: "x", User: "User"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = b.post(t, "/api/messages/"+a.UID, a.Token, store.PushRequest{Text: "x", User: "Bot"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = b.post(t, "/api/messages/"+a.UID, a.Token, store.PushRequest{Text: "  ", User: "User"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = b.post(t, "/api/messages/"+a.UID, a.Token, store.PushRequest{Text: "Hello", User: "User"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pr store.PushResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pr))
	require.NotEmpty(t, pr.Key)

	coll, err := b.store.Load(context.Background(), chat.Identity(a.UID))
	require.NoError(t, err)
	require.Len(t, coll.Messages, 1)
	require.Equal(t, pr.Key, coll.Messages[0].ID)
}

func TestReplyEndpoint(t *testing.T) {
	b := newTestBackend(t, fastSettings())
	a := b.signUp(t, "a@example.com")

	resp := b.post(t, "/api/message", a.Token, dispatch.Request{UserID: a.UID})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = b.post(t, "/api/message", a.Token, dispatch.Request{Text: "Hello", UserID: "someone-else"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = b.post(t, "/api/message", a.Token, dispatch.Request{Text: "Hello", UserID: a.UID})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var acc dispatch.Accepted
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&acc))
	require.Equal(t, "accepted", acc.Status)

	require.Eventually(t, func() bool {
		coll, err := b.store.Load(context.Background(), chat.Identity(a.UID))
		return err == nil && len(coll.Messages) == 1 && coll.Messages[0].IsBot()
	}, 2*time.Second, 10*time.Millisecond)
	coll, _ := b.store.Load(context.Background(), chat.Identity(a.UID))
	require.Equal(t, "Hi, how can I help?", coll.Messages[0].Text)
	require.NotZero(t, coll.Messages[0].Timestamp)
}

func TestWebSocket_RejectsForeignIdentity(t *testing.T) {
	b := newTestBackend(t, fastSettings())
	a := b.signUp(t, "a@example.com")
	other := b.signUp(t, "b@example.com")

	u := "ws" + strings.TrimPrefix(b.http.URL, "http") + "/ws/messages/" + a.UID
	h := http.Header{}
	h.Set("Authorization", "Bearer "+other.Token)
	_, resp, err := websocket.DefaultDialer.Dial(u, h)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHub_SharesSubscriptionAndReplaysLatestSnapshot(t *testing.T) {
	b := newTestBackend(t, fastSettings())
	a := b.signUp(t, "a@example.com")

	c1 := b.dialWS(t, a.UID, a.Token)
	require.True(t, readSnapshot(t, c1, a.UID).IsEmpty())

	resp := b.post(t, "/api/messages/"+a.UID, a.Token, store.PushRequest{Text: "Hello", User: "User"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, readSnapshot(t, c1, a.UID).Messages, 1)

	// a second connection joins the same watchers and starts from the current value
	c2 := b.dialWS(t, a.UID, a.Token)
	coll := readSnapshot(t, c2, a.UID)
	require.Len(t, coll.Messages, 1)
	require.Equal(t, "Hello", coll.Messages[0].Text)
	require.Equal(t, 1, b.srv.Hub().Count())

	_ = c1.Close()
	_ = c2.Close()
	require.Eventually(t, func() bool { return b.srv.Hub().Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestCannedReply(t *testing.T) {
	require.Equal(t, "Hi, how can I help?", CannedReply("Hello"))
	require.Equal(t, "Hi, how can I help?", CannedReply("hi there"))
	require.Equal(t, "You said: where is my order?", CannedReply(" where is my order? "))
}

func TestReplier_BoundedWorkers(t *testing.T) {
	st, err := store.NewLogStore(store.NewInMemoryBackend(0), store.NewInMemoryStreamBackend())
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	ctx, cancel := context.WithCancel(context.Background())
	r := NewReplier(ctx, st, CannedReply, time.Hour, 1)

	require.True(t, r.Enqueue("u", "one"))
	require.False(t, r.Enqueue("u", "two"))
	cancel()
	r.Wait()
	require.True(t, r.Enqueue("u", "three"))
	r.Wait()

	coll, err := st.Load(context.Background(), "u")
	require.NoError(t, err)
	require.Empty(t, coll.Messages)
}
