package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ruslano69/sqlbridge/pkg/adapters"
	"github.com/ruslano69/sqlbridge/pkg/adapters/base"
	"github.com/ruslano69/sqlbridge/pkg/core/tsql"
	"github.com/ruslano69/sqlbridge/pkg/sqlerr"
)

// Compile-time check: Adapter должен реализовывать интерфейс adapters.Adapter
var _ adapters.Adapter = (*Adapter)(nil)

// Регистрация адаптера в глобальной фабрике
func init() {
	adapters.Register(tsql.Postgres, func() adapters.Adapter {
		return &Adapter{}
	})
}

// Raw is the driver-specific part of a PostgreSQL result.
type Raw struct {
	CommandTag pgconn.CommandTag
	Fields     []pgconn.FieldDescription
}

// Adapter runs queries on PostgreSQL through a pgx connection pool.
type Adapter struct {
	pool *pgxpool.Pool
}

// Connect parses cfg.DSN, applies pool bounds and timeouts, opens the pool
// and pings it.
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	config, err := pgxpool.ParseConfig(withSSLMode(cfg.DSN, cfg.SSLMode))
	if err != nil {
		return fmt.Errorf("%w: failed to parse connection string: %w", adapters.ErrInvalidConfig, err)
	}

	if cfg.MaxConns > 0 {
		config.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		config.MinConns = int32(cfg.MinConns)
	}
	if cfg.IdleTimeout > 0 {
		config.MaxConnIdleTime = cfg.IdleTimeout
	}
	if cfg.ConnectTimeout > 0 {
		config.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.AppName != "" {
		config.ConnConfig.RuntimeParams["application_name"] = cfg.AppName
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return sqlerr.Connectivity(fmt.Errorf("failed to create connection pool: %w", err))
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return sqlerr.Connectivity(fmt.Errorf("failed to ping database: %w", err))
	}

	a.pool = pool
	return nil
}

// withSSLMode adds sslmode to dsn unless dsn already sets it.
func withSSLMode(dsn, mode string) string {
	if mode == "" || strings.Contains(dsn, "sslmode=") {
		return dsn
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return dsn
		}
		q := u.Query()
		q.Set("sslmode", mode)
		u.RawQuery = q.Encode()
		return u.String()
	}
	return strings.TrimSpace(dsn + " sslmode=" + mode)
}

// Close закрывает connection pool
func (a *Adapter) Close(ctx context.Context) error {
	if a.pool != nil {
		a.pool.Close()
	}
	return nil
}

// Ping проверяет доступность БД
func (a *Adapter) Ping(ctx context.Context) error {
	if a.pool == nil {
		return sqlerr.ConnectionFailure(errors.New("adapter not connected"))
	}
	return classifyConnect(a.pool.Ping(ctx))
}

// Dialect returns tsql.Postgres.
func (a *Adapter) Dialect() tsql.Dialect {
	return tsql.Postgres
}

// Pool возвращает *pgxpool.Pool для прямого доступа
func (a *Adapter) Pool() *pgxpool.Pool {
	return a.pool
}

// Query runs sql with positional arguments.
func (a *Adapter) Query(ctx context.Context, sql string, args ...any) (*adapters.Result, error) {
	if a.pool == nil {
		return nil, sqlerr.ConnectionFailure(errors.New("adapter not connected"))
	}
	return query(ctx, a.pool, sql, args)
}

// Execute is not available: PostgreSQL has no T-SQL style procedure calls
// with a return status.
func (a *Adapter) Execute(ctx context.Context, procedure string, args ...any) (*adapters.Result, error) {
	return nil, sqlerr.Unsupported("EXEC " + procedure)
}

// BeginTx начинает транзакцию
func (a *Adapter) BeginTx(ctx context.Context) (adapters.Tx, error) {
	if a.pool == nil {
		return nil, sqlerr.ConnectionFailure(errors.New("adapter not connected"))
	}
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, classifyConnect(err)
	}
	return &postgresTx{tx: tx}, nil
}

// postgresTx - обертка для pgx.Tx для реализации adapters.Tx
type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Query(ctx context.Context, sql string, args ...any) (*adapters.Result, error) {
	return query(ctx, t.tx, sql, args)
}

func (t *postgresTx) Commit(ctx context.Context) error {
	return classify(t.tx.Commit(ctx))
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	return classify(t.tx.Rollback(ctx))
}

// GetDatabaseVersion возвращает версию PostgreSQL
func (a *Adapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	if a.pool == nil {
		return "", sqlerr.ConnectionFailure(errors.New("adapter not connected"))
	}
	var version string
	if err := a.pool.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		return "", classify(err)
	}
	return version, nil
}

type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// typeMap resolves OIDs of built-in types to their names. It is only read.
var typeMap = pgtype.NewMap()

func query(ctx context.Context, q pgxQuerier, sql string, args []any) (*adapters.Result, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err)
	}

	fields := append([]pgconn.FieldDescription(nil), rows.FieldDescriptions()...)
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, classify(err)
	}

	typeNames := make(map[string]string, len(fields))
	for _, f := range fields {
		if t, ok := typeMap.TypeForOID(f.DataTypeOID); ok {
			typeNames[f.Name] = t.Name
		}
	}

	result := &adapters.Result{
		Rows:     make([]adapters.Row, len(maps)),
		RowCount: rows.CommandTag().RowsAffected(),
		Raw:      Raw{CommandTag: rows.CommandTag(), Fields: fields},
	}
	for i, m := range maps {
		row := make(adapters.Row, len(m))
		for k, v := range m {
			row[k] = base.NormalizeValue(v, typeNames[k])
		}
		result.Rows[i] = row
	}
	return result, nil
}
