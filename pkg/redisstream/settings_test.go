package redisstream

import (
	"context"
	"testing"

	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/stretchr/testify/require"
)

func TestSettingsValidate(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())
	require.NoError(t, Settings{Enabled: true, Addr: "localhost:6379"}.Validate())
	require.Error(t, Settings{Enabled: true}.Validate())
}

func TestStreamKey(t *testing.T) {
	require.Equal(t, "chatsync:messages:u1", DefaultSettings().StreamKey("messages:u1"))
	require.Equal(t, "messages:u1", Settings{}.StreamKey("messages:u1"))
}

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(context.Background(), DefaultSettings())
	require.Error(t, err)

	var tr *Transport
	require.Nil(t, tr.Publisher())
	require.NoError(t, tr.Close())
	_, err = tr.BuildFanOutSubscriber()
	require.Error(t, err)
}

func TestParameterLayer_DecodesIntoSettings(t *testing.T) {
	section, err := NewParameterLayer(Settings{Addr: "redis:6379", Prefix: "staging"})
	require.NoError(t, err)
	require.Equal(t, SectionSlug, section.GetSlug())

	sv, err := values.NewSectionValues(section)
	require.NoError(t, err)
	sv.Fields.Update("redis-enabled", &fields.FieldValue{Value: true})
	sv.Fields.Update("redis-addr", &fields.FieldValue{Value: "redis:6379"})
	sv.Fields.Update("redis-prefix", &fields.FieldValue{Value: "staging"})
	parsed := values.New(values.WithSectionValues(SectionSlug, sv))

	s := Settings{}
	require.NoError(t, parsed.DecodeSectionInto(SectionSlug, &s))
	require.Equal(t, Settings{Enabled: true, Addr: "redis:6379", Prefix: "staging"}, s)
	require.Equal(t, "staging:messages:u1", s.StreamKey("messages:u1"))
}
