package kv

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    store_key TEXT PRIMARY KEY,
    store_value TEXT NOT NULL,
    updated_at DATETIME NOT NULL
);
`

// DB is a Store backed by a SQLite file on the device.
type DB struct {
	conn *sqlx.DB
}

// Open opens (creating if needed) the SQLite file at path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	// A single connection keeps every mutation strictly ordered.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to local store: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply local store schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying file.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Get(key string) (string, bool, error) {
	var value string
	err := db.conn.Get(&value, `SELECT store_value FROM kv WHERE store_key = ?`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, true, nil
}

func (db *DB) Set(key, value string) error {
	_, err := db.conn.Exec(`
		INSERT INTO kv (store_key, store_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(store_key) DO UPDATE SET store_value = excluded.store_value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

func (db *DB) Delete(key string) error {
	if _, err := db.conn.Exec(`DELETE FROM kv WHERE store_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

func (db *DB) Keys() ([]string, error) {
	var keys []string
	if err := db.conn.Select(&keys, `SELECT store_key FROM kv ORDER BY store_key`); err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}
