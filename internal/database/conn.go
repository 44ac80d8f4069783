// Package database wraps the storage engine shared by test runs and the
// served application. Every table name goes through a per-run prefix so
// concurrent runs never see each other's rows.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNoPrefix is returned when a destructive operation is attempted on a
// connection that has no storage prefix.
var ErrNoPrefix = errors.New("refusing to operate on tables without a storage prefix")

// ConnectionInfo describes how to reach the storage engine and which table
// namespace to use on it.
type ConnectionInfo struct {
	Driver string
	DSN    string
	Prefix string
}

// WithPrefix returns a copy of the info bound to another table prefix.
func (i ConnectionInfo) WithPrefix(prefix string) ConnectionInfo {
	i.Prefix = prefix
	return i
}

func (i ConnectionInfo) poolKey() string {
	return i.Driver + "|" + i.DSN
}

// Conn is a prefix-aware handle on a shared *sql.DB. Queries name tables as
// {table}; the placeholder is replaced by prefix+table before execution.
type Conn struct {
	db    *sql.DB
	info  ConnectionInfo
	owned bool
}

// Open connects to the storage engine described by info.
func Open(ctx context.Context, info ConnectionInfo) (*Conn, error) {
	db, err := openPool(ctx, info)
	if err != nil {
		return nil, err
	}
	return &Conn{db: db, info: info, owned: true}, nil
}

func openPool(ctx context.Context, info ConnectionInfo) (*sql.DB, error) {
	switch info.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", info.Driver)
	}
	if info.DSN == "" {
		return nil, fmt.Errorf("no DSN configured for %s connection", info.Driver)
	}

	db, err := sql.Open(info.Driver, info.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if info.Driver == DriverSQLite {
		db.SetMaxOpenConns(4)
	} else {
		db.SetMaxOpenConns(25)
	}
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// WithPrefix returns a connection sharing the same pool but bound to another
// table namespace. Closing the returned Conn does not close the pool.
func (c *Conn) WithPrefix(prefix string) *Conn {
	return &Conn{db: c.db, info: c.info.WithPrefix(prefix)}
}

// Info returns the connection info this handle was opened with.
func (c *Conn) Info() ConnectionInfo { return c.info }

// Prefix returns the table prefix.
func (c *Conn) Prefix() string { return c.info.Prefix }

// Driver returns the driver name.
func (c *Conn) Driver() string { return c.info.Driver }

// DB exposes the underlying pool.
func (c *Conn) DB() *sql.DB { return c.db }

// Table returns the prefixed name of table.
func (c *Conn) Table(table string) string {
	return c.info.Prefix + table
}

var tablePlaceholder = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Expand replaces {table} placeholders with prefixed names and rebinds
// positional parameters for the driver.
func (c *Conn) Expand(query string) string {
	query = tablePlaceholder.ReplaceAllString(query, c.info.Prefix+"$1")
	return Rebind(c.info.Driver, query)
}

// Rebind converts ? placeholders into the driver's positional form.
func Rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ExecContext runs a statement after placeholder expansion.
func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, c.Expand(query), args...)
}

// QueryContext runs a query after placeholder expansion.
func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, c.Expand(query), args...)
}

// QueryRowContext runs a single-row query after placeholder expansion.
func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, c.Expand(query), args...)
}

// ListTables returns the tables whose name starts with prefix, sorted.
func (c *Conn) ListTables(ctx context.Context, prefix string) ([]string, error) {
	var query string
	switch c.info.Driver {
	case DriverPostgres:
		query = `SELECT table_name FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'`
	default:
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`
	}

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		if strings.HasPrefix(name, prefix) {
			tables = append(tables, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(tables)
	return tables, nil
}

// Tables returns the tables in this connection's namespace.
func (c *Conn) Tables(ctx context.Context) ([]string, error) {
	return c.ListTables(ctx, c.info.Prefix)
}

// DropTables removes every table in this connection's namespace. It refuses
// to run without a prefix so the un-prefixed site can never be wiped.
func (c *Conn) DropTables(ctx context.Context) error {
	if c.info.Prefix == "" {
		return ErrNoPrefix
	}
	tables, err := c.Tables(ctx)
	if err != nil {
		return err
	}
	return c.drop(ctx, tables)
}

func (c *Conn) drop(ctx context.Context, tables []string) error {
	var errs []error
	for _, table := range tables {
		if _, err := c.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			errs = append(errs, fmt.Errorf("failed to drop %s: %w", table, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes the pool if this handle opened it.
func (c *Conn) Close() error {
	if c.owned && c.db != nil {
		return c.db.Close()
	}
	return nil
}
