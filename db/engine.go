package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/maxpert/powder/cfg"
	"github.com/maxpert/powder/telemetry"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Engine is the embedded SQLite database every session executes against.
//
// SQLite WAL mode allows ONE writer + MANY concurrent readers, so two pools
// are kept:
// - writeDB: single connection for every mutating statement (_txlock=immediate)
// - readDB: pool for concurrent read-only statements (pool_size from config)
//
// Writers additionally queue on a weighted semaphore so waiting for the write
// slot honors the caller's context.
type Engine struct {
	path    string
	tempDir string
	writeDB *sql.DB
	readDB  *sql.DB
	writer  *semaphore.Weighted
	catalog *Catalog
}

// EngineOptions configures OpenEngine. An empty Path opens a database in a
// fresh temp dir that is removed on Close.
type EngineOptions struct {
	Path          string
	PoolSize      int
	BusyTimeoutMS int
	MaxIdleTime   time.Duration
	MaxLifetime   time.Duration
}

// EngineOptionsFromConfig reads the [engine] section of cfg.Config.
func EngineOptionsFromConfig() EngineOptions {
	e := cfg.Config.Engine
	return EngineOptions{
		Path:          cfg.EnginePath(),
		PoolSize:      e.PoolSize,
		BusyTimeoutMS: e.BusyTimeoutMS,
		MaxIdleTime:   time.Duration(e.MaxIdleTimeSeconds) * time.Second,
		MaxLifetime:   time.Duration(e.MaxLifetimeSeconds) * time.Second,
	}
}

// Column is a result column as the engine describes it.
type Column struct {
	Name     string
	DeclType string
}

// ResultSet is a fully materialized statement result.
type ResultSet struct {
	Columns      []Column
	Rows         [][]any
	RowsAffected int64
}

// OpenEngine opens (creating if needed) the database file and its catalog.
func OpenEngine(opts EngineOptions) (*Engine, error) {
	if opts.PoolSize < 1 {
		opts.PoolSize = 1
	}

	e := &Engine{
		path:   opts.Path,
		writer: semaphore.NewWeighted(1),
	}
	if e.path == "" {
		dir, err := os.MkdirTemp("", "powder-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
		e.tempDir = dir
		e.path = filepath.Join(dir, "powder.db")
	}

	// Helper to close all opened connections on error
	closeAll := func() {
		if e.writeDB != nil {
			e.writeDB.Close()
		}
		if e.readDB != nil {
			e.readDB.Close()
		}
		if e.tempDir != "" {
			os.RemoveAll(e.tempDir)
		}
	}

	var err error
	writeDSN := engineDSN(e.path, fmt.Sprintf("_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL&_txlock=immediate", opts.BusyTimeoutMS))
	e.writeDB, err = sql.Open(SQLiteDriverName, writeDSN)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to open write database: %w", err)
	}
	e.writeDB.SetMaxOpenConns(1)
	e.writeDB.SetMaxIdleConns(1)
	e.writeDB.SetConnMaxLifetime(0)

	// Note: Don't use mode=ro as it can interfere with WAL checkpointing
	readDSN := engineDSN(e.path, fmt.Sprintf("_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL", opts.BusyTimeoutMS))
	e.readDB, err = sql.Open(SQLiteDriverName, readDSN)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to open read database: %w", err)
	}
	e.readDB.SetMaxOpenConns(opts.PoolSize)
	e.readDB.SetMaxIdleConns(opts.PoolSize)
	if opts.MaxLifetime > 0 {
		e.readDB.SetConnMaxLifetime(opts.MaxLifetime)
	}
	if opts.MaxIdleTime > 0 {
		e.readDB.SetConnMaxIdleTime(opts.MaxIdleTime)
	}

	for _, db := range []*sql.DB{e.writeDB, e.readDB} {
		if _, err = db.Exec("PRAGMA cache_size=-64000"); err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to set cache size: %w", err)
		}
		if _, err = db.Exec("PRAGMA temp_store=MEMORY"); err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to set temp store: %w", err)
		}
	}

	e.catalog = &Catalog{engine: e}
	if err = e.catalog.init(context.Background()); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}

	log.Info().
		Str("path", e.path).
		Bool("ephemeral", e.tempDir != "").
		Int("pool_size", opts.PoolSize).
		Msg("Engine opened")
	return e, nil
}

func engineDSN(path, params string) string {
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return "file:" + path + "?" + params
}

// Path returns the database file.
func (e *Engine) Path() string { return e.path }

// Catalog returns the database and schema registry.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Close closes both pools and removes an ephemeral database.
func (e *Engine) Close() error {
	err := errors.Join(e.writeDB.Close(), e.readDB.Close())
	if e.tempDir != "" {
		if rmErr := os.RemoveAll(e.tempDir); rmErr != nil {
			err = errors.Join(err, rmErr)
		}
	}
	return err
}

// PoolStats reports open and in-use connections across both pools.
func (e *Engine) PoolStats() (open, inUse int) {
	for _, db := range []*sql.DB{e.writeDB, e.readDB} {
		s := db.Stats()
		open += s.OpenConnections
		inUse += s.InUse
	}
	return open, inUse
}

// Query runs a statement and materializes its rows. Statements that are not
// readOnly run on the write connection after taking the writer slot.
func (e *Engine) Query(ctx context.Context, text string, readOnly bool, args ...any) (*ResultSet, error) {
	var rs *ResultSet
	run := func(conn *sql.Conn) error {
		var err error
		rs, err = queryConn(ctx, conn, text, args)
		return err
	}

	var err error
	if readOnly {
		err = e.withConn(ctx, e.readDB, run)
	} else {
		err = e.WithWriter(ctx, run)
	}
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// Exec runs a mutating statement and reports the rows it changed.
func (e *Engine) Exec(ctx context.Context, text string, args ...any) (int64, error) {
	var affected int64
	err := e.WithWriter(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, text, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// WithWriter runs fn holding the writer slot. The wait for the slot ends
// early when ctx is done.
func (e *Engine) WithWriter(ctx context.Context, fn func(conn *sql.Conn) error) error {
	start := time.Now()
	if err := e.writer.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.writer.Release(1)
	telemetry.WriteLockWaitSeconds.Observe(time.Since(start).Seconds())

	return e.withConn(ctx, e.writeDB, fn)
}

// Runner runs statements. *Engine runs each one on its own and *Tx runs
// them inside one write transaction.
type Runner interface {
	Query(ctx context.Context, text string, readOnly bool, args ...any) (*ResultSet, error)
	Exec(ctx context.Context, text string, args ...any) (int64, error)
}

// Tx is a write transaction opened by InTx.
type Tx struct {
	tx *sql.Tx
}

// Query runs text inside the transaction. readOnly is ignored since the
// transaction already holds the writer.
func (t *Tx) Query(ctx context.Context, text string, _ bool, args ...any) (*ResultSet, error) {
	return queryConn(ctx, t.tx, text, args)
}

func (t *Tx) Exec(ctx context.Context, text string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, text, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InTx runs fn inside one write transaction holding the writer slot. The
// transaction commits when fn returns nil and rolls back otherwise.
func (e *Engine) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	return e.WithWriter(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(&Tx{tx: tx}); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Warn().Err(rbErr).Msg("Failed to roll back statement transaction")
			}
			return err
		}
		return tx.Commit()
	})
}

// withConn pins one pooled connection for fn and points the connection's
// interrupt slot at ctx so system_wait and friends stop with the statement.
func (e *Engine) withConn(ctx context.Context, db *sql.DB, fn func(conn *sql.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return contextError(ctx, err)
	}
	defer conn.Close()

	unbind := func() {}
	if err := conn.Raw(func(dc any) error {
		if sc, ok := dc.(*sqlite3.SQLiteConn); ok {
			unbind = bindInterrupt(sc, ctx.Done())
		}
		return nil
	}); err != nil {
		return err
	}
	defer unbind()

	return contextError(ctx, fn(conn))
}

// contextError prefers the context's error once it is done, since the
// engine reports an interrupted statement in its own words.
func contextError(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

type rowsQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryConn(ctx context.Context, conn rowsQuerier, text string, args []any) (*ResultSet, error) {
	rows, err := conn.QueryContext(ctx, text, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	rs := &ResultSet{Columns: make([]Column, len(types))}
	for i, ct := range types {
		rs.Columns[i] = Column{Name: ct.Name(), DeclType: ct.DatabaseTypeName()}
	}

	for rows.Next() {
		values := make([]any, len(types))
		dest := make([]any, len(types))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}
