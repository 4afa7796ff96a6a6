package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// SQLiteBackend stores snapshots in a SQLite database.
type SQLiteBackend struct {
	conn *sql.DB
}

// OpenSQLite creates a new database connection and ensures the schema is up to date.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// A ":memory:" database exists per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to apply schema")
	}

	return &SQLiteBackend{conn: db}, nil
}

// Close closes the database connection.
func (db *SQLiteBackend) Close() error {
	return db.conn.Close()
}

// Get retrieves the snapshot stored under key.
func (db *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := db.conn.QueryRowContext(ctx, `
		SELECT value FROM snapshots WHERE key = ?
	`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "failed to read snapshot %s", key)
	}
	return value, nil
}

// Put inserts or replaces the snapshot stored under key.
func (db *SQLiteBackend) Put(ctx context.Context, key string, value []byte) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO snapshots (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now())
	if err != nil {
		return errors.Wrapf(err, "failed to write snapshot %s", key)
	}
	return nil
}

// Delete removes the snapshot stored under key. Deleting a missing key is not an error.
func (db *SQLiteBackend) Delete(ctx context.Context, key string) error {
	_, err := db.conn.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE key = ?
	`, key)
	if err != nil {
		return errors.Wrapf(err, "failed to delete snapshot %s", key)
	}
	return nil
}
