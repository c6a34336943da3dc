package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

func TestSQLiteBackend_AppendAndLoad(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "log.db")
	dsn, err := SQLiteDSNForFile(dbPath)
	require.NoError(t, err)

	b, err := NewSQLiteBackend(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	ctx := context.Background()
	_, err = b.Append(ctx, "", Record{Key: "k"})
	require.Error(t, err)
	_, err = b.Append(ctx, "messages/u", Record{})
	require.Error(t, err)

	r1, err := b.Append(ctx, "messages/u", Record{Key: "k1", Value: []byte(`{"text":"a","user":"User"}`), CreatedAtMs: 10})
	require.NoError(t, err)
	r2, err := b.Append(ctx, "messages/u", Record{Key: "k2", Value: []byte(`{"text":"b","user":"Bot"}`), CreatedAtMs: 5})
	require.NoError(t, err)
	require.Greater(t, r2.Seq, r1.Seq)
	_, err = b.Append(ctx, "messages/v", Record{Key: "k1", Value: []byte(`{}`)})
	require.NoError(t, err)

	_, err = b.Append(ctx, "messages/u", Record{Key: "k1", Value: []byte(`{}`)})
	require.Error(t, err)

	recs, err := b.Load(ctx, "messages/u")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	// append order, not timestamp order
	require.Equal(t, "k1", recs[0].Key)
	require.Equal(t, "k2", recs[1].Key)
	require.Equal(t, int64(5), recs[1].CreatedAtMs)

	_, err = os.Stat(dbPath)
	require.NoError(t, err)
}

func TestSQLiteBackend_LogStoreRoundTrip(t *testing.T) {
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	b, err := NewSQLiteBackend(dsn)
	require.NoError(t, err)
	s, err := NewLogStore(b, NewInMemoryStreamBackend())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	sub, err := s.Subscribe(ctx, "u")
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()
	require.True(t, nextSnapshot(t, sub).IsEmpty())

	_, err = s.Push(ctx, "u", Entry{Text: "Hello", Author: chat.AuthorUser})
	require.NoError(t, err)
	coll := waitForLen(t, sub, 1)
	require.Equal(t, "Hello", coll.Messages[0].Text)
}

func TestSQLiteDSNForFile(t *testing.T) {
	_, err := SQLiteDSNForFile("")
	require.Error(t, err)
	dsn, err := SQLiteDSNForFile("/tmp/x.db")
	require.NoError(t, err)
	require.Contains(t, dsn, "_journal_mode=WAL")
}
