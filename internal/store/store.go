package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrStale is returned when a conditional write matched no row
	ErrStale = errors.New("row changed concurrently")
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// conn holds the queries shared by Store and Tx
type conn struct {
	ext    sqlx.ExtContext
	driver string
}

func (c conn) rebind(query string) string {
	return c.ext.Rebind(query)
}

// forUpdate returns the row lock clause of the dialect. SQLite serialises
// writers on its own and has no row locks.
func (c conn) forUpdate() string {
	if c.driver == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func (c conn) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	err := sqlx.GetContext(ctx, c.ext, dest, c.rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (c conn) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, c.ext, dest, c.rebind(query), args...)
}

func (c conn) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	res, err := c.ext.ExecContext(ctx, c.rebind(query), args...)
	if err != nil && isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return res, err
}

// execOne runs a conditional write that must touch exactly one row
func (c conn) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := c.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrStale
	}
	return nil
}

// insert runs an INSERT ... RETURNING statement into dest
func (c conn) insert(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	err := sqlx.GetContext(ctx, c.ext, dest, c.rebind(query), args...)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type Store struct {
	conn
	db *sqlx.DB
}

// NewStore opens the database for the given driver ("postgres" or "sqlite")
func NewStore(driver, databaseURL string) (*Store, error) {
	db, err := sqlx.Connect(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	switch driver {
	case DriverPostgres:
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	case DriverSQLite:
		// one connection keeps an in-memory database alive and avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	default:
		db.Close()
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{conn: conn{ext: db, driver: driver}, db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx is a unit of work. Every read through a Tx sees the writes made before it
// and nothing is visible to other requests until WithTx commits.
type Tx struct {
	conn
	tx *sqlx.Tx
}

// WithTx runs fn in a transaction, committing when fn returns nil and
// rolling back otherwise
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{conn: conn{ext: tx, driver: s.driver}, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LockSeller serialises listing creation for one seller so the free quota
// count cannot be read by two transactions at once
func (t *Tx) LockSeller(ctx context.Context, sellerID int64) error {
	if t.driver != DriverPostgres {
		return nil
	}
	_, err := t.tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", sellerID)
	return err
}
