package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/core"
)

// MySQLStore is a MySQL implementation of the KeyValueStore port, for
// deployments where cache snapshots must be shared or survive host
// replacement.
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLStore connects to MySQL and prepares the store table.
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS kv_cache (
			` + "`key`" + ` VARCHAR(255) PRIMARY KEY,
			value MEDIUMBLOB NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &MySQLStore{db: db, logger: logger}, nil
}

// Get retrieves a stored value.
func (s *MySQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv_cache WHERE `key` = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, &core.StorageError{Op: "get", Key: key, Err: err}
	}
	return value, nil
}

// Set stores a value, replacing any previous one.
func (s *MySQLStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_cache (`+"`key`"+`, value) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE value = VALUES(value)
	`, key, value)
	if err != nil {
		return &core.StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Remove deletes a key.
func (s *MySQLStore) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv_cache WHERE `key` = ?", key); err != nil {
		return &core.StorageError{Op: "remove", Key: key, Err: err}
	}
	return nil
}

// Keys lists stored keys matching prefix.
func (s *MySQLStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT `key` FROM kv_cache WHERE `key` LIKE ? ESCAPE '\\\\'", likePrefix(prefix))
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
func (s *MySQLStore) RemoveMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &core.StorageError{Op: "remove_many", Err: err}
	}
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, "DELETE FROM kv_cache WHERE `key` = ?", key); err != nil {
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
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
