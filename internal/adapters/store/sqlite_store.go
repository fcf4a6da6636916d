package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/core"
)

// SQLiteStore is a SQLite implementation of the KeyValueStore port,
// giving cache snapshots process-restart durability on a single host.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (and if needed creates) the store database.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS kv_cache (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Get retrieves a stored value.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_cache WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, &core.StorageError{Op: "get", Key: key, Err: err}
	}
	return value, nil
}

// Set stores a value, replacing any previous one.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_cache (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return &core.StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Remove deletes a key.
func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_cache WHERE key = ?`, key); err != nil {
		return &core.StorageError{Op: "remove", Key: key, Err: err}
	}
	return nil
}

// Keys lists stored keys matching prefix.
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv_cache WHERE key LIKE ? ESCAPE '\'`, likePrefix(prefix))
	if err != nil {
		return nil, &core.StorageError{Op: "keys", Key: prefix, Err: err}
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, &core.StorageError{Op: "keys", Key: prefix, Err: err}
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.StorageError{Op: "keys", Key: prefix, Err: err}
	}
	return keys, nil
}

// RemoveMany deletes all given keys in one transaction.
func (s *SQLiteStore) RemoveMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &core.StorageError{Op: "remove_many", Err: err}
	}
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv_cache WHERE key = ?`, key); err != nil {
			tx.Rollback()
			return &core.StorageError{Op: "remove_many", Key: key, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &core.StorageError{Op: "remove_many", Err: err}
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// likePrefix escapes LIKE wildcards so a literal prefix match is
// performed.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
