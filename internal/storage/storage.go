package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

const (
	// DriverCGO is the mattn/go-sqlite3 driver name
	DriverCGO = "sqlite3"
	// DriverPure is the modernc.org/sqlite driver name
	DriverPure = "sqlite"

	busyTimeoutMillis = 5000
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("not found")

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Storage struct {
	db     *sql.DB
	driver string
}

const schema = `
CREATE TABLE IF NOT EXISTS volunteers (
	phone          TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	skills         TEXT NOT NULL DEFAULT '',
	available      INTEGER NOT NULL DEFAULT 1,
	current_role   TEXT,
	preferred_role TEXT
);

CREATE TABLE IF NOT EXISTS deleted_volunteers (
	phone          TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	skills         TEXT NOT NULL DEFAULT '',
	available      INTEGER NOT NULL DEFAULT 1,
	current_role   TEXT,
	preferred_role TEXT,
	deleted_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS flow_states (
	user_id    TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// DSN builds a connection string for the given driver. Both drivers get a
// busy timeout so exclusive transactions from other connections wait.
func DSN(driver, path string) (string, error) {
	switch driver {
	case DriverCGO:
		return fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d", path, busyTimeoutMillis), nil
	case DriverPure:
		return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", path, busyTimeoutMillis), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Open opens (creating if needed) the roster database and applies the schema
func Open(driver, path string) (*Storage, error) {
	dsn, err := DSN(driver, path)
	if err != nil {
		return nil, err
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Storage{db: db, driver: driver}, nil
}

// DB exposes the underlying handle for read paths
func (s *Storage) DB() *sql.DB {
	return s.db
}

// Driver returns the database/sql driver name in use
func (s *Storage) Driver() string {
	return s.driver
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// WithExclusiveTx runs fn inside BEGIN EXCLUSIVE on a dedicated connection.
// fn's error (or a panic) rolls the transaction back.
func (s *Storage) WithExclusiveTx(ctx context.Context, fn func(q Querier) error) (err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN EXCLUSIVE"); err != nil {
		return fmt.Errorf("failed to begin exclusive transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// A fresh context so cancellation does not leave the connection mid-transaction
		if _, rbErr := conn.ExecContext(context.Background(), "ROLLBACK"); rbErr != nil && err == nil {
			err = fmt.Errorf("failed to roll back: %w", rbErr)
		}
		if p := recover(); p != nil {
			panic(p)
		}
	}()

	if err = fn(conn); err != nil {
		return err
	}

	if _, err = conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	committed = true
	return nil
}
