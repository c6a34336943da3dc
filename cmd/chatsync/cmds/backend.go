package cmds

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/auth"
	"github.com/go-go-golems/chatsync/pkg/config"
	"github.com/go-go-golems/chatsync/pkg/redisstream"
	"github.com/go-go-golems/chatsync/pkg/store"
)

// backend is everything the server needs to persist and fan out.
type backend struct {
	store    *store.LogStore
	accounts *auth.Accounts
}

func (b *backend) Close() error {
	var firstErr error
	if err := b.store.Close(); err != nil {
		firstErr = err
	}
	if err := b.accounts.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// openBackend picks sqlite or memory persistence by db-path, and redis or in-process
// change notifications by redis-enabled.
func openBackend(ctx context.Context, sc config.ServerConfig) (*backend, error) {
	var (
		records  store.Backend
		accStore auth.AccountStore
	)
	if sc.DBPath != "" {
		dsn, err := store.SQLiteDSNForFile(sc.DBPath)
		if err != nil {
			return nil, err
		}
		sb, err := store.NewSQLiteBackend(dsn)
		if err != nil {
			return nil, err
		}
		sa, err := auth.NewSQLiteAccounts(dsn)
		if err != nil {
			_ = sb.Close()
			return nil, err
		}
		records, accStore = sb, sa
		log.Info().Str("component", "serve").Str("db", sc.DBPath).Msg("using sqlite persistence")
	} else {
		records, accStore = store.NewInMemoryBackend(0), auth.NewMemoryAccounts()
		log.Warn().Str("component", "serve").Msg("no db-path configured, messages and accounts are kept in memory")
	}

	streams, err := openStreams(ctx, sc.Redis)
	if err != nil {
		_ = records.Close()
		_ = accStore.Close()
		return nil, err
	}
	st, err := store.NewLogStore(records, streams)
	if err != nil {
		_ = streams.Close()
		_ = records.Close()
		_ = accStore.Close()
		return nil, err
	}
	accs, err := auth.NewAccounts(accStore, 0)
	if err != nil {
		_ = st.Close()
		_ = accStore.Close()
		return nil, err
	}
	return &backend{store: st, accounts: accs}, nil
}

func openStreams(ctx context.Context, rs redisstream.Settings) (store.StreamBackend, error) {
	if !rs.Enabled {
		return store.NewInMemoryStreamBackend(), nil
	}
	t, err := redisstream.Connect(ctx, rs)
	if err != nil {
		return nil, errors.Wrap(err, "connect change notifications")
	}
	return store.NewRedisStreamBackend(t)
}

func openAccounts(dbPath string) (*auth.Accounts, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.New("db-path is required to manage accounts")
	}
	dsn, err := store.SQLiteDSNForFile(dbPath)
	if err != nil {
		return nil, err
	}
	sa, err := auth.NewSQLiteAccounts(dsn)
	if err != nil {
		return nil, err
	}
	accs, err := auth.NewAccounts(sa, 0)
	if err != nil {
		_ = sa.Close()
		return nil, err
	}
	return accs, nil
}
