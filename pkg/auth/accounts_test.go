package auth

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

func accountStores(t *testing.T) map[string]AccountStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", filepath.Join(t.TempDir(), "accounts.db"))
	sqliteStore, err := NewSQLiteAccounts(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })
	return map[string]AccountStore{
		"memory": NewMemoryAccounts(),
		"sqlite": sqliteStore,
	}
}

func TestAccounts_RegisterAndVerify(t *testing.T) {
	for name, st := range accountStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			accs, err := NewAccounts(st, bcrypt.MinCost)
			require.NoError(t, err)

			id, err := accs.Register(ctx, " Alice@Example.com ", "secret1")
			require.NoError(t, err)
			require.False(t, id.IsNone())

			got, err := accs.Verify(ctx, "alice@example.com", "secret1")
			require.NoError(t, err)
			require.Equal(t, id, got)

			_, err = accs.Verify(ctx, "alice@example.com", "wrong-pass")
			require.True(t, chat.IsAuthReason(err, chat.AuthInvalidCredential))

			_, err = accs.Verify(ctx, "nobody@example.com", "secret1")
			require.True(t, chat.IsAuthReason(err, chat.AuthInvalidCredential))

			_, err = accs.Register(ctx, "alice@example.com", "another1")
			require.True(t, chat.IsAuthReason(err, chat.AuthDuplicateAccount))
		})
	}
}

func TestAccounts_RejectsInvalidInput(t *testing.T) {
	accs, err := NewAccounts(NewMemoryAccounts(), bcrypt.MinCost)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = accs.Register(ctx, "", "secret1")
	require.True(t, chat.IsAuthReason(err, chat.AuthInvalidInput))
	_, err = accs.Register(ctx, "not-an-email", "secret1")
	require.True(t, chat.IsAuthReason(err, chat.AuthInvalidInput))
	_, err = accs.Register(ctx, "bob@example.com", "123")
	require.True(t, chat.IsAuthReason(err, chat.AuthInvalidInput))
	_, err = accs.Verify(ctx, "bob@example.com", "")
	require.True(t, chat.IsAuthReason(err, chat.AuthInvalidInput))
}

func TestTokens(t *testing.T) {
	toks := NewTokens()
	tok := toks.Issue("u1")
	id, ok := toks.Resolve(tok)
	require.True(t, ok)
	require.Equal(t, chat.Identity("u1"), id)

	toks.Revoke(tok)
	_, ok = toks.Resolve(tok)
	require.False(t, ok)
	_, ok = toks.Resolve("")
	require.False(t, ok)
}
