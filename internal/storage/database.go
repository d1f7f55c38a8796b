// Package storage is the sync server's database: accounts and each account's
// mirrored key-value entries.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // Registers the postgres driver
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sqlx.DB
	now  func() time.Time
}

// Open connects with driver and ensures the schema is up to date.
func Open(driver, dsn string) (*DB, error) {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = sqliteSchema
	case DriverPostgres:
		schema = postgresSchema
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// SQLite allows a single writer.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == DriverSQLite {
		if _, err := conn.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: conn, now: time.Now}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) q(query string) string {
	return db.conn.Rebind(query)
}

// User is a registered account. Password holds the bcrypt hash.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Email     string    `db:"email" json:"email"`
	Password  string    `db:"password" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CreateUser inserts an account and returns its ID.
func (db *DB) CreateUser(ctx context.Context, username, email, passwordHash string) (int64, error) {
	now := db.now().UTC()
	var id int64
	err := db.conn.QueryRowxContext(ctx, db.q(`
		INSERT INTO users (username, email, password, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`), username, email, passwordHash, now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create user %s: %w", username, err)
	}
	return id, nil
}

// FindUserByEmail returns the account with email, or nil.
func (db *DB) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	return db.findUser(ctx, "email", email)
}

// FindUserByUsername returns the account with username, or nil.
func (db *DB) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	return db.findUser(ctx, "username", username)
}

// FindUserByID returns the account with id, or nil.
func (db *DB) FindUserByID(ctx context.Context, id int64) (*User, error) {
	return db.findUser(ctx, "id", id)
}

// column is always one of the fixed names passed by the Find helpers.
func (db *DB) findUser(ctx context.Context, column string, value any) (*User, error) {
	var u User
	err := db.conn.GetContext(ctx, &u, db.q(`
		SELECT id, username, email, password, created_at
		FROM users WHERE `+column+` = ?
	`), value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to find user by %s: %w", column, err)
	}
	return &u, nil
}

// Entry is one stored key-value pair. Value is the JSON text the client sent.
type Entry struct {
	Key       string    `db:"data_key"`
	Value     string    `db:"data_value"`
	UpdatedAt time.Time `db:"updated_at"`
}

const upsertEntry = `
	INSERT INTO user_data (user_id, data_key, data_value, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(user_id, data_key)
	DO UPDATE SET data_value = excluded.data_value, updated_at = excluded.updated_at
`

// Upsert stores value under key for the user, replacing any previous value.
func (db *DB) Upsert(ctx context.Context, userID int64, key, value string) error {
	_, err := db.conn.ExecContext(ctx, db.q(upsertEntry), userID, key, value, db.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert key %s for user %d: %w", key, userID, err)
	}
	return nil
}

// UpsertMany stores every entry in one transaction. Either all entries are written or none.
func (db *DB) UpsertMany(ctx context.Context, userID int64, entries map[string]string) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, db.q(upsertEntry))
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := db.now().UTC()
	for key, value := range entries {
		if _, err := stmt.ExecContext(ctx, userID, key, value, now); err != nil {
			return fmt.Errorf("failed to upsert key %s for user %d: %w", key, userID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upload for user %d: %w", userID, err)
	}
	return nil
}

// GetAll returns every entry of the user ordered by key.
func (db *DB) GetAll(ctx context.Context, userID int64) ([]Entry, error) {
	entries := []Entry{}
	err := db.conn.SelectContext(ctx, &entries, db.q(`
		SELECT data_key, data_value, updated_at
		FROM user_data WHERE user_id = ?
		ORDER BY data_key
	`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get data for user %d: %w", userID, err)
	}
	return entries, nil
}

// GetByKey returns the user's entry for key, or nil.
func (db *DB) GetByKey(ctx context.Context, userID int64, key string) (*Entry, error) {
	var e Entry
	err := db.conn.GetContext(ctx, &e, db.q(`
		SELECT data_key, data_value, updated_at
		FROM user_data WHERE user_id = ? AND data_key = ?
	`), userID, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Entry not found
		}
		return nil, fmt.Errorf("failed to get key %s for user %d: %w", key, userID, err)
	}
	return &e, nil
}

// DeleteByKey removes the user's entry for key. Removing an absent key is not an error.
func (db *DB) DeleteByKey(ctx context.Context, userID int64, key string) error {
	_, err := db.conn.ExecContext(ctx, db.q(`
		DELETE FROM user_data
		WHERE user_id = ? AND data_key = ?
	`), userID, key)
	if err != nil {
		return fmt.Errorf("failed to delete key %s for user %d: %w", key, userID, err)
	}
	return nil
}

// DeleteAll removes every entry of the user.
func (db *DB) DeleteAll(ctx context.Context, userID int64) error {
	_, err := db.conn.ExecContext(ctx, db.q(`DELETE FROM user_data WHERE user_id = ?`), userID)
	if err != nil {
		return fmt.Errorf("failed to delete data for user %d: %w", userID, err)
	}
	return nil
}
