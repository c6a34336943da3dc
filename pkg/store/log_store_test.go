package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

func newTestLogStore(t *testing.T) *LogStore {
	t.Helper()
	s, err := NewLogStore(NewInMemoryBackend(0), NewInMemoryStreamBackend())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func nextSnapshot(t *testing.T, sub Subscription) chat.Collection {
	t.Helper()
	select {
	case coll, ok := <-sub.Snapshots():
		require.True(t, ok, "snapshot channel closed")
		return coll
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for snapshot")
	}
	return chat.Collection{}
}

// waitForLen drains snapshots until one with n messages arrives.
func waitForLen(t *testing.T, sub Subscription, n int) chat.Collection {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case coll, ok := <-sub.Snapshots():
			require.True(t, ok, "snapshot channel closed")
			if coll.Len() == n {
				return coll
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %d messages", n)
		}
	}
}

func TestLogStore_SubscribeDeliversInitialEmptySnapshot(t *testing.T) {
	s := newTestLogStore(t)
	sub, err := s.Subscribe(context.Background(), "u1")
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	coll := nextSnapshot(t, sub)
	require.Equal(t, chat.Identity("u1"), coll.Identity)
	require.True(t, coll.IsEmpty())
}

func TestLogStore_PushDeliversFullSnapshotsInOrder(t *testing.T) {
	s := newTestLogStore(t)
	ctx := context.Background()
	sub, err := s.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()
	_ = nextSnapshot(t, sub)

	k1, err := s.Push(ctx, "u1", Entry{Text: "Hello", Author: chat.AuthorUser})
	require.NoError(t, err)
	k2, err := s.Push(ctx, "u1", Entry{Text: "Hi, how can I help?", Author: chat.AuthorBot})
	require.NoError(t, err)
	require.Less(t, k1, k2)

	coll := waitForLen(t, sub, 2)
	require.Equal(t, k1, coll.Messages[0].ID)
	require.Equal(t, chat.AuthorUser, coll.Messages[0].Author)
	require.Equal(t, "Hi, how can I help?", coll.Messages[1].Text)
	require.Equal(t, chat.AuthorBot, coll.Messages[1].Author)
	require.NotZero(t, coll.Messages[1].Timestamp)
}

func TestLogStore_IdentitiesAreIsolated(t *testing.T) {
	s := newTestLogStore(t)
	ctx := context.Background()
	subB, err := s.Subscribe(ctx, "b")
	require.NoError(t, err)
	defer func() { _ = subB.Close() }()
	_ = nextSnapshot(t, subB)

	_, err = s.Push(ctx, "a", Entry{Text: "for a", Author: chat.AuthorUser})
	require.NoError(t, err)
	_, err = s.Push(ctx, "b", Entry{Text: "for b", Author: chat.AuthorUser})
	require.NoError(t, err)

	coll := waitForLen(t, subB, 1)
	require.Equal(t, "for b", coll.Messages[0].Text)
}

func TestLogStore_RejectsInvalidWrites(t *testing.T) {
	s := newTestLogStore(t)
	ctx := context.Background()

	_, err := s.Push(ctx, chat.NoIdentity, Entry{Text: "x", Author: chat.AuthorUser})
	require.ErrorIs(t, err, chat.ErrNoSession)
	_, err = s.Push(ctx, "u", Entry{Text: "  ", Author: chat.AuthorUser})
	require.Error(t, err)
	_, err = s.Push(ctx, "u", Entry{Text: "x", Author: "Admin"})
	require.Error(t, err)
	_, err = s.Push(ctx, "a/b", Entry{Text: "x", Author: chat.AuthorUser})
	require.Error(t, err)
	_, err = s.Subscribe(ctx, chat.NoIdentity)
	require.Error(t, err)
}

func TestLogStore_QuarantinesMalformedRecords(t *testing.T) {
	backend := NewInMemoryBackend(0)
	s, err := NewLogStore(backend, NewInMemoryStreamBackend())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	_, err = backend.Append(ctx, "messages/u", Record{Key: "0001", Value: []byte(`{"user":"Bot"}`)})
	require.NoError(t, err)
	_, err = s.Push(ctx, "u", Entry{Text: "ok", Author: chat.AuthorUser})
	require.NoError(t, err)

	coll, err := s.Load(ctx, "u")
	require.NoError(t, err)
	require.Len(t, coll.Messages, 1)
	require.Equal(t, "ok", coll.Messages[0].Text)
}

func TestLogStore_CloseIsIdempotentAndEndsStream(t *testing.T) {
	s := newTestLogStore(t)
	sub, err := s.Subscribe(context.Background(), "u1")
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.Snapshots():
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestInMemoryBackend_TrimsOldest(t *testing.T) {
	b := NewInMemoryBackend(2)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		_, err := b.Append(ctx, "messages/u", Record{Key: k, Value: []byte(`{}`)})
		require.NoError(t, err)
	}
	recs, err := b.Load(ctx, "messages/u")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "b", recs[0].Key)

	_, err = b.Append(ctx, "messages/u", Record{Key: "c", Value: []byte(`{}`)})
	require.Error(t, err)
}
