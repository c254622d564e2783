package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"commerce-sync/internal/model"
	"commerce-sync/internal/syncerr"
)

// ErrTableNotFound is returned when a warehouse table has no columns.
var ErrTableNotFound = errors.New("repository: table not found")

// Options locate a warehouse.
type Options struct {
	Dialect  Dialect
	DSN      string
	Database string
	Schema   string

	// MaxOpenConns bounds the pool. Store passes use 1, a dedicated connection.
	MaxOpenConns int
}

// Conn is a warehouse handle scoped to one schema.
type Conn struct {
	db      *sql.DB
	dialect Dialect
	schema  string
	logger  *slog.Logger

	mu      sync.Mutex
	columns map[string][]string
}

// Open connects to the warehouse described by opts and pings it.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Conn, error) {
	dsn, err := opts.Dialect.WithDatabase(opts.DSN, opts.Database)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(opts.Dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", opts.Dialect, err)
	}

	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	if opts.Dialect == SQLite {
		db.SetConnMaxLifetime(0) // Keep connection alive
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", opts.Dialect, err)
	}

	return NewConn(db, opts.Dialect, opts.Schema, logger), nil
}

// NewConn wraps an open database.
func NewConn(db *sql.DB, dialect Dialect, schema string, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		db:      db,
		dialect: dialect,
		schema:  schema,
		logger:  logger.With("component", "warehouse", "dialect", string(dialect)),
		columns: make(map[string][]string),
	}
}

// Dialect returns the SQL dialect of the connection.
func (c *Conn) Dialect() Dialect { return c.dialect }

// Schema returns the schema tables are qualified with.
func (c *Conn) Schema() string { return c.schema }

// Close closes the underlying database.
func (c *Conn) Close() error {
	return c.db.Close()
}

// Ping checks that the warehouse is reachable.
func (c *Conn) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Tx is a warehouse transaction. Writes through the same Tx commit or roll back together.
type Tx struct {
	tx   *sql.Tx
	conn *Conn
}

// WithTransaction runs fn in a transaction, committing when fn returns nil.
func (c *Conn) WithTransaction(ctx context.Context, fn func(*Tx) error) (err error) {
	sqlTx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return &syncerr.WriteError{Table: "-", Statement: "begin", Err: err}
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Tx{tx: sqlTx, conn: c}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return &syncerr.WriteError{Table: "-", Statement: "commit", Err: err}
	}
	return nil
}

// Write writes one batch in its own transaction.
func (c *Conn) Write(ctx context.Context, entity model.EntityType, records []model.Record) (model.WriteCounts, error) {
	if len(records) == 0 {
		return model.WriteCounts{}, nil
	}

	var counts model.WriteCounts
	err := c.WithTransaction(ctx, func(tx *Tx) error {
		var err error
		counts, err = tx.Write(ctx, entity, records)
		return err
	})
	if err != nil {
		return model.WriteCounts{}, err
	}
	return counts, nil
}

func (c *Conn) table(name string) string {
	return c.dialect.Qualify(c.schema, name)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// tableColumns returns the column names of table in ordinal order, cached per connection.
func (c *Conn) tableColumns(ctx context.Context, q querier, table string) ([]string, error) {
	c.mu.Lock()
	cols, ok := c.columns[table]
	c.mu.Unlock()
	if ok {
		return cols, nil
	}

	var (
		rows *sql.Rows
		err  error
	)
	switch c.dialect {
	case Postgres:
		schema := c.schema
		if schema == "" {
			schema = "public"
		}
		rows, err = q.QueryContext(ctx,
			`SELECT column_name FROM information_schema.columns
			 WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position`, schema, table)
	case MySQL:
		rows, err = q.QueryContext(ctx,
			`SELECT column_name FROM information_schema.columns
			 WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND table_name = ? ORDER BY ordinal_position`, c.schema, table)
	default:
		rows, err = q.QueryContext(ctx, `SELECT name FROM pragma_table_info(?) ORDER BY cid`, table)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to describe table %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to describe table %s: %w", table, err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to describe table %s: %w", table, err)
	}

	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}

	c.mu.Lock()
	c.columns[table] = cols
	c.mu.Unlock()
	return cols, nil
}

func (c *Conn) forgetColumns() {
	c.mu.Lock()
	c.columns = make(map[string][]string)
	c.mu.Unlock()
}
