package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruslano69/sqlbridge/pkg/core/tsql"
	"github.com/ruslano69/sqlbridge/pkg/metrics"
	"github.com/ruslano69/sqlbridge/pkg/sqlerr"
)

// logText bounds query text written to logs.
const logText = 200

// DB is the database handle callers share: one selected adapter with its
// pool and the translator for its dialect. It is safe for concurrent use.
//
// A DB is created once with Open and released with Close. Every operation
// after Close fails with a connection failure.
type DB struct {
	adapter      Adapter
	translator   *tsql.Translator
	logger       zerolog.Logger
	queryTimeout time.Duration
	closed       atomic.Bool
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(db *DB) { db.logger = l }
}

// WithQueryTimeout bounds each query. It overrides Config.QueryTimeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(db *DB) { db.queryTimeout = d }
}

// Open selects the adapter for cfg.Type, connects it and verifies the
// connection. Callers should treat an error as fatal at startup.
func Open(ctx context.Context, cfg Config, opts ...Option) (*DB, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if !IsRegistered(cfg.Type) {
		return nil, fmt.Errorf("no adapter registered for %s (available types: %v)", cfg.Type, GetRegisteredTypes())
	}

	adapter, err := New(ctx, cfg)
	if errors.Is(err, ErrInvalidConfig) {
		return nil, err
	}
	if err != nil {
		return nil, sqlerr.Connectivity(err)
	}

	db := NewDB(adapter, append([]Option{WithQueryTimeout(cfg.QueryTimeout)}, opts...)...)
	db.logger.Info().
		Str("dialect", string(cfg.Type)).
		Int("max_conns", cfg.MaxConns).
		Int("min_conns", cfg.MinConns).
		Dur("idle_timeout", cfg.IdleTimeout).
		Dur("connect_timeout", cfg.ConnectTimeout).
		Msg("connection pool opened")
	return db, nil
}

// NewDB wraps an already connected adapter.
func NewDB(adapter Adapter, opts ...Option) *DB {
	db := &DB{
		adapter:    adapter,
		translator: tsql.NewTranslator(adapter.Dialect()),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Dialect returns the dialect of the selected adapter.
func (db *DB) Dialect() tsql.Dialect {
	return db.adapter.Dialect()
}

// Adapter returns the underlying adapter.
func (db *DB) Adapter() Adapter {
	return db.adapter
}

// Query translates template for the selected dialect, binds params and
// runs it. Translation errors are returned before anything reaches the
// database.
func (db *DB) Query(ctx context.Context, template string, params tsql.Params) (*Result, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	stmt, err := db.translate(template, params)
	if err != nil {
		return nil, err
	}
	return db.run(ctx, db.adapter.Query, stmt)
}

// QueryNative runs SQL that is already in the selected dialect, without
// translation.
func (db *DB) QueryNative(ctx context.Context, query string, args ...any) (*Result, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.run(ctx, db.adapter.Query, &tsql.Statement{Source: query, SQL: query, Args: args})
}

// Execute runs a stored procedure with named arguments. Only SQL Server
// supports it; PostgreSQL reports an unsupported construct.
func (db *DB) Execute(ctx context.Context, procedure string, params tsql.Params) (*Result, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	args := make([]any, len(names))
	for i, name := range names {
		args[i] = sql.Named(name, params[name])
	}

	stmt := &tsql.Statement{Source: "EXEC " + procedure, SQL: procedure, Args: args, Names: names}
	return db.run(ctx, db.adapter.Execute, stmt)
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back when fn returns an error or panics; a panic
// is re-raised after the rollback.
func (db *DB) WithTx(ctx context.Context, fn func(q Querier) error) error {
	if err := db.checkOpen(); err != nil {
		return err
	}

	tx, err := db.adapter.BeginTx(ctx)
	if err != nil {
		// nothing was sent yet, a timeout here is a connection timeout
		return sqlerr.Connectivity(err)
	}

	defer func() {
		if p := recover(); p != nil {
			db.rollback(ctx, tx)
			panic(p)
		}
	}()

	if err := fn(&txQuerier{db: db, tx: tx}); err != nil {
		db.rollback(ctx, tx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return sqlerr.Classify(err)
	}
	return nil
}

// rollback runs even when ctx is already canceled.
func (db *DB) rollback(ctx context.Context, tx Tx) {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		db.logger.Error().Err(err).Msg("rollback failed")
	}
}

// Ping checks connectivity.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	return sqlerr.Connectivity(db.adapter.Ping(ctx))
}

// Close releases the pool. Only the first call closes the adapter.
func (db *DB) Close(ctx context.Context) error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := db.adapter.Close(ctx)
	db.logger.Info().Str("dialect", string(db.Dialect())).Msg("connection pool closed")
	return err
}

func (db *DB) checkOpen() error {
	if db.closed.Load() {
		return sqlerr.ConnectionFailure(fmt.Errorf("database handle is closed"))
	}
	return nil
}

func (db *DB) translate(template string, params tsql.Params) (*tsql.Statement, error) {
	dialect := string(db.translator.Dialect())
	stmt, err := db.translator.Translate(template, params)
	metrics.ObserveTranslation(dialect, err)
	if err != nil {
		db.logger.Error().Err(err).
			Str("dialect", dialect).
			Str("query", sqlerr.Truncate(template, logText)).
			Msg("translation failed")
		return nil, err
	}

	if e := db.logger.Debug(); e.Enabled() {
		e.Str("dialect", dialect).
			Str("query", sqlerr.Truncate(template, logText)).
			Str("rewritten", sqlerr.Truncate(stmt.SQL, logText)).
			Int("args", len(stmt.Args)).
			Strs("unreferenced", tsql.Unreferenced(stmt, params)).
			Msg("translated")
	}
	return stmt, nil
}

type queryFunc func(ctx context.Context, query string, args ...any) (*Result, error)

func (db *DB) run(ctx context.Context, q queryFunc, stmt *tsql.Statement) (*Result, error) {
	if db.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.queryTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := q(ctx, stmt.SQL, stmt.Args...)
	elapsed := time.Since(start)

	err = sqlerr.WithQuery(sqlerr.Classify(err), stmt.Source, stmt.SQL)
	metrics.ObserveQuery(string(db.Dialect()), elapsed, err)
	if err != nil {
		db.logger.Error().Err(err).
			Str("dialect", string(db.Dialect())).
			Str("query", sqlerr.Truncate(stmt.Source, logText)).
			Dur("elapsed", elapsed).
			Msg("query failed")
		return nil, err
	}
	return res, nil
}

// txQuerier translates templates and runs them on the transaction's
// connection.
type txQuerier struct {
	db *DB
	tx Tx
}

func (q *txQuerier) Query(ctx context.Context, template string, params tsql.Params) (*Result, error) {
	stmt, err := q.db.translate(template, params)
	if err != nil {
		return nil, err
	}
	return q.db.run(ctx, q.tx.Query, stmt)
}
