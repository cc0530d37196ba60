// Package store persists statements, expected rows, match links, signals,
// deltas and digests in SQLite or Postgres through database/sql.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

var (
	ErrUnknownDriver = errors.New("unknown store driver")
	// ErrSchemaDrift means the database schema is dirty or newer than this
	// binary understands.
	ErrSchemaDrift = errors.New("schema drift detected")
)

// tsLayout is the fixed UTC text format for every stored timestamp, so string
// comparison orders the same way as time.
const tsLayout = "2006-01-02T15:04:05Z"

type dialect struct {
	name       string // "sqlite" or "pgx"
	migrations string // subdirectory of migrations/
	numbered   bool   // $1 placeholders
}

var dialects = map[string]dialect{
	"sqlite": {name: "sqlite", migrations: "sqlite"},
	"pgx":    {name: "pgx", migrations: "postgres", numbered: true},
}

// Store is the database-backed implementation of the engine interfaces.
type Store struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// Open connects to the database, applies pending migrations and checks for
// schema drift. For sqlite the DSN is a file path; its directory is created.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	d, ok := dialects[strings.ToLower(driver)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	connStr := dsn
	if d.name == "sqlite" {
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		connStr = sqliteDSN(dsn)
	}

	db, err := sql.Open(d.name, connStr)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", d.name, err)
	}
	if d.name == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s database: %w", d.name, err)
	}

	if err := migrateUp(d, connStr); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, dialect: d, now: time.Now}, nil
}

func sqliteDSN(path string) string {
	return path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)&_pragma=journal_mode(WAL)"
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders as $n for Postgres.
func (s *Store) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, q execer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.rebind(query), args...)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// withTx runs fn in a transaction and commits when fn returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func toMicros(d decimal.Decimal) int64 {
	return d.Shift(6).Round(0).IntPart()
}

func fromMicros(m int64) decimal.Decimal {
	return decimal.New(m, -6)
}
