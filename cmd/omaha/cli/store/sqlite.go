package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/chromedocs/omaha/cmd/omaha/cli/channel"
	"github.com/chromedocs/omaha/cmd/omaha/cli/paths"
)

const createObjectStoreTable = `CREATE TABLE IF NOT EXISTS object_store (
	category TEXT NOT NULL,
	key TEXT NOT NULL,
	value INTEGER NOT NULL,
	written_at INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (category, key)
)`

// Databases created before entries were timestamped lack written_at.
const addWrittenAtColumn = `ALTER TABLE object_store ADD COLUMN written_at INTEGER NOT NULL DEFAULT 0`

// SQLiteCreator keeps every category in one SQLite database.
type SQLiteCreator struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteCreator, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite cache path is required")
	}
	if err := paths.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; concurrent lookups would otherwise race for the lock.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(createObjectStoreTable); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create object_store table: %w", err)
	}
	if err := migrateWrittenAt(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &SQLiteCreator{sqlDB: sqlDB}, nil
}

func migrateWrittenAt(sqlDB *sql.DB) error {
	rows, err := sqlDB.Query(`SELECT name FROM pragma_table_info('object_store')`)
	if err != nil {
		return fmt.Errorf("inspect object_store table: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("inspect object_store table: %w", err)
		}
		if name == "written_at" {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect object_store table: %w", err)
	}
	// Release the only connection before altering the table.
	_ = rows.Close()
	if _, err := sqlDB.Exec(addWrittenAtColumn); err != nil {
		return fmt.Errorf("add written_at column: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (c *SQLiteCreator) Close() error {
	if c == nil || c.sqlDB == nil {
		return nil
	}
	return c.sqlDB.Close()
}

// Create implements Creator.
//
//nolint:ireturn // Creator interface
func (c *SQLiteCreator) Create(category string) (Store, error) {
	if err := validateCategory(category); err != nil {
		return nil, err
	}
	if c == nil || c.sqlDB == nil {
		return nil, errors.New("sqlite store is not configured")
	}
	return &SQLiteStore{sqlDB: c.sqlDB, category: category}, nil
}

// SQLiteStore is one category of a SQLiteCreator.
type SQLiteStore struct {
	sqlDB    *sql.DB
	category string
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}
	var value, writtenAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT value, written_at FROM object_store WHERE category = ? AND key = ?`,
		s.category, key,
	).Scan(&value, &writtenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get %s/%s: %w", s.category, key, err)
	}
	e := Entry{Value: channel.Number(value)}
	if writtenAt > 0 {
		e.Written = time.UnixMilli(writtenAt)
	}
	return e, true, nil
}

// Set implements Store.
func (s *SQLiteStore) Set(ctx context.Context, key string, value channel.Number) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO object_store (category, key, value, written_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(category, key) DO UPDATE SET value = excluded.value, written_at = excluded.written_at`,
		s.category, key, int64(value), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", s.category, key, err)
	}
	return nil
}
