package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteBackend struct {
	db *sql.DB
}

var _ Backend = &SQLiteBackend{}

func NewSQLiteBackend(dsn string) (*SQLiteBackend, error) {
	if dsn == "" {
		return nil, errors.New("sqlite backend: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	b := &SQLiteBackend{db: db}
	if err := b.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// NewSQLiteBackendFromDB reuses an open handle, e.g. one shared with the account store.
func NewSQLiteBackendFromDB(db *sql.DB) (*SQLiteBackend, error) {
	if db == nil {
		return nil, errors.New("sqlite backend: db is nil")
	}
	b := &SQLiteBackend{db: db}
	if err := b.migrate(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *SQLiteBackend) Append(ctx context.Context, path string, rec Record) (Record, error) {
	if b == nil || b.db == nil {
		return Record{}, errors.New("sqlite backend: db is nil")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Record{}, errors.New("sqlite backend: path is empty")
	}
	if rec.Key == "" {
		return Record{}, errors.New("sqlite backend: key is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := b.db.ExecContext(ctx, `
		INSERT INTO log_entries (path, entry_key, created_at_ms, value_json)
		VALUES (?, ?, ?, ?)
	`, path, rec.Key, rec.CreatedAtMs, string(rec.Value))
	if err != nil {
		return Record{}, errors.Wrap(err, "sqlite backend: append")
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Record{}, errors.Wrap(err, "sqlite backend: last insert id")
	}
	rec.Seq = seq
	return rec, nil
}

func (b *SQLiteBackend) Load(ctx context.Context, path string) ([]Record, error) {
	if b == nil || b.db == nil {
		return nil, errors.New("sqlite backend: db is nil")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite backend: path is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT seq, entry_key, created_at_ms, value_json
		FROM log_entries
		WHERE path = ?
		ORDER BY seq ASC
	`, path)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite backend: load")
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var (
			rec   Record
			value string
		)
		if err := rows.Scan(&rec.Seq, &rec.Key, &rec.CreatedAtMs, &value); err != nil {
			return nil, errors.Wrap(err, "sqlite backend: scan")
		}
		rec.Value = []byte(value)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite backend: rows")
	}
	return out, nil
}

func (b *SQLiteBackend) migrate() error {
	if b == nil || b.db == nil {
		return errors.New("sqlite backend: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS log_entries (
		  seq INTEGER PRIMARY KEY AUTOINCREMENT,
		  path TEXT NOT NULL,
		  entry_key TEXT NOT NULL,
		  created_at_ms INTEGER NOT NULL,
		  value_json TEXT NOT NULL,
		  UNIQUE (path, entry_key)
		);`,
		`CREATE INDEX IF NOT EXISTS log_entries_by_path
		  ON log_entries(path, seq);`,
	}
	for _, st := range stmts {
		if _, err := b.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite backend: migrate")
		}
	}
	return nil
}

func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite backend: empty path")
	}
	// WAL for concurrent readers + writer. busy_timeout to avoid transient SQLITE_BUSY.
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}
