package auth

import (
	"context"
	"database/sql"
	"sync"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

type MemoryAccounts struct {
	mu      sync.RWMutex
	byEmail map[string]Account
}

var _ AccountStore = &MemoryAccounts{}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{byEmail: map[string]Account{}}
}

func (m *MemoryAccounts) Create(_ context.Context, acc Account) error {
	if m == nil {
		return errors.New("memory accounts: nil store")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[acc.Email]; ok {
		return ErrAccountExists
	}
	acc.PasswordHash = append([]byte(nil), acc.PasswordHash...)
	m.byEmail[acc.Email] = acc
	return nil
}

func (m *MemoryAccounts) Lookup(_ context.Context, email string) (Account, error) {
	if m == nil {
		return Account{}, errors.New("memory accounts: nil store")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.byEmail[email]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acc, nil
}

func (m *MemoryAccounts) Close() error { return nil }

type SQLiteAccounts struct {
	db *sql.DB
}

var _ AccountStore = &SQLiteAccounts{}

func NewSQLiteAccounts(dsn string) (*SQLiteAccounts, error) {
	if dsn == "" {
		return nil, errors.New("sqlite accounts: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteAccounts{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteAccounts) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteAccounts) Create(ctx context.Context, acc Account) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite accounts: db is nil")
	}
	if acc.Email == "" || acc.UID.IsNone() {
		return errors.New("sqlite accounts: email and uid are required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (uid, email, password_hash, created_at_ms)
		VALUES (?, ?, ?, ?)
	`, string(acc.UID), acc.Email, acc.PasswordHash, acc.CreatedAtMs)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrAccountExists
		}
		return errors.Wrap(err, "sqlite accounts: insert")
	}
	return nil
}

func (s *SQLiteAccounts) Lookup(ctx context.Context, email string) (Account, error) {
	if s == nil || s.db == nil {
		return Account{}, errors.New("sqlite accounts: db is nil")
	}
	var (
		acc Account
		uid string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT uid, email, password_hash, created_at_ms
		FROM accounts
		WHERE email = ?
	`, email).Scan(&uid, &acc.Email, &acc.PasswordHash, &acc.CreatedAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, errors.Wrap(err, "sqlite accounts: lookup")
	}
	acc.UID = chat.Identity(uid)
	return acc, nil
}

func (s *SQLiteAccounts) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
		  uid TEXT PRIMARY KEY,
		  email TEXT NOT NULL UNIQUE,
		  password_hash BLOB NOT NULL,
		  created_at_ms INTEGER NOT NULL
		);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite accounts: migrate")
		}
	}
	return nil
}
