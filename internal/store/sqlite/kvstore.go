// Package sqlite provides a kv.Store backed by a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/hay-kot/chatwidget/internal/core/kv"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS widget_kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// KVStore implements kv.Store on a single SQLite table.
type KVStore struct {
	db *sql.DB
}

var _ kv.Store = (*KVStore)(nil)

// NewKVStore opens (or creates) the database at dsn and migrates the schema.
func NewKVStore(dsn string) (*KVStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite kv store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY under concurrent Set.
	db.SetMaxOpenConns(1)

	s := &KVStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *KVStore) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return errors.Wrap(err, "sqlite kv store: init schema")
	}
	return nil
}

// Close releases the database handle.
func (s *KVStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *KVStore) Get(ctx context.Context, key string) (kv.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, value, created_at, updated_at FROM widget_kv WHERE key = ?`, key)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return kv.Entry{}, kv.ErrKeyNotFound
	}
	if err != nil {
		return kv.Entry{}, errors.Wrapf(err, "sqlite kv store: get %q", key)
	}
	return entry, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO widget_kv (key, value, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, now, now)
	if err != nil {
		return errors.Wrapf(err, "sqlite kv store: set %q", key)
	}
	return nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM widget_kv WHERE key = ?`, key)
	if err != nil {
		return errors.Wrapf(err, "sqlite kv store: delete %q", key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sqlite kv store: rows affected")
	}
	if n == 0 {
		return kv.ErrKeyNotFound
	}
	return nil
}

func (s *KVStore) List(ctx context.Context, prefix string) ([]kv.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, created_at, updated_at FROM widget_kv
		WHERE substr(key, 1, ?) = ?
		ORDER BY key
	`, utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite kv store: list")
	}
	defer rows.Close() //nolint:errcheck

	var entries []kv.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "sqlite kv store: scan")
		}
		entries = append(entries, entry)
	}
	return entries, errors.Wrap(rows.Err(), "sqlite kv store: iterate")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (kv.Entry, error) {
	var (
		entry              kv.Entry
		createdAt, updated string
	)
	if err := row.Scan(&entry.Key, &entry.Value, &createdAt, &updated); err != nil {
		return kv.Entry{}, err
	}

	var err error
	if entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return kv.Entry{}, errors.Wrap(err, "parse created_at")
	}
	if entry.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return kv.Entry{}, errors.Wrap(err, "parse updated_at")
	}
	return entry, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
