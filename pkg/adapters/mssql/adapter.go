package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	mssqldb "github.com/microsoft/go-mssqldb"

	"github.com/ruslano69/sqlbridge/pkg/adapters"
	"github.com/ruslano69/sqlbridge/pkg/core/tsql"
	"github.com/ruslano69/sqlbridge/pkg/sqlerr"
)

// Compile-time check
var _ adapters.Adapter = (*Adapter)(nil)

func init() {
	adapters.Register(tsql.SQLServer, func() adapters.Adapter {
		return &Adapter{}
	})
}

// Adapter implements adapters.Adapter for Microsoft SQL Server on top of
// database/sql and go-mssqldb.
type Adapter struct {
	db *sql.DB

	// messages enables per-statement row counts through the driver's
	// message loop. Only the real driver supports it.
	messages bool

	serverVersion    int    // Major version: 11=2012, 13=2016, 14=2017, 15=2019, 16=2022
	serverVersionStr string // Full version string
	compatLevel      int    // Database compatibility level: 110=2012, 130=2016, etc.
}

// NewFromDB wraps an already opened *sql.DB. Row counts then fall back to
// the number of returned rows.
func NewFromDB(db *sql.DB) *Adapter {
	return &Adapter{db: db}
}

// Connect implements adapters.Adapter: opens the pool, pings the server and
// detects its version.
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	connector, err := mssqldb.NewConnector(BuildDSN(cfg))
	if err != nil {
		return fmt.Errorf("%w: failed to parse connection string: %w", adapters.ErrInvalidConfig, err)
	}
	db := sql.OpenDB(connector)

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxConns)
	}
	if cfg.IdleTimeout > 0 {
		db.SetConnMaxIdleTime(cfg.IdleTimeout)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return sqlerr.Connectivity(fmt.Errorf("failed to ping database: %w", err))
	}

	a.db = db
	a.messages = true

	if err := a.detectVersion(pingCtx); err != nil {
		db.Close()
		a.db = nil
		return classifyConnect(fmt.Errorf("failed to detect server version: %w", err))
	}
	return nil
}

// detectVersion reads the server version and database compatibility level.
func (a *Adapter) detectVersion(ctx context.Context) error {
	var version string
	if err := a.db.QueryRowContext(ctx, "SELECT CAST(SERVERPROPERTY('ProductVersion') AS NVARCHAR(128))").Scan(&version); err != nil {
		return err
	}
	a.serverVersionStr = version
	a.serverVersion = parseServerVersion(version)

	return a.db.QueryRowContext(ctx,
		"SELECT compatibility_level FROM sys.databases WHERE name = DB_NAME()").Scan(&a.compatLevel)
}

// parseServerVersion parses SQL Server version string to major version number.
// Examples:
//   - "11.0.2100.60" → 11 (SQL Server 2012)
//   - "15.0.2000.5"  → 15 (SQL Server 2019)
func parseServerVersion(version string) int {
	major, _, _ := strings.Cut(version, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return 0
	}
	return n
}

// serverVersionName returns human-readable server version name.
func serverVersionName(major int) string {
	switch major {
	case 11:
		return "SQL Server 2012"
	case 12:
		return "SQL Server 2014"
	case 13:
		return "SQL Server 2016"
	case 14:
		return "SQL Server 2017"
	case 15:
		return "SQL Server 2019"
	case 16:
		return "SQL Server 2022"
	default:
		return fmt.Sprintf("SQL Server (version %d)", major)
	}
}

// Close closes the database connection.
func (a *Adapter) Close(ctx context.Context) error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Ping tests the database connection.
func (a *Adapter) Ping(ctx context.Context) error {
	if a.db == nil {
		return sqlerr.ConnectionFailure(errors.New("adapter not connected"))
	}
	return classifyConnect(a.db.PingContext(ctx))
}

// Dialect returns tsql.SQLServer.
func (a *Adapter) Dialect() tsql.Dialect {
	return tsql.SQLServer
}

// DB returns the underlying *sql.DB.
func (a *Adapter) DB() *sql.DB {
	return a.db
}

// GetDatabaseVersion returns the SQL Server version string.
func (a *Adapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	if a.db == nil {
		return "", sqlerr.ConnectionFailure(errors.New("adapter not connected"))
	}
	if a.serverVersionStr == "" {
		if err := a.detectVersion(ctx); err != nil {
			return "", classify(err)
		}
	}
	return fmt.Sprintf("%s %s (compatibility level %d)",
		serverVersionName(a.serverVersion), a.serverVersionStr, a.compatLevel), nil
}

// Query runs a T-SQL batch with named arguments.
func (a *Adapter) Query(ctx context.Context, query string, args ...any) (*adapters.Result, error) {
	if a.db == nil {
		return nil, sqlerr.ConnectionFailure(errors.New("adapter not connected"))
	}
	return collect(ctx, a.db, a.messages, query, args, nil)
}

// procedureName accepts schema-qualified names, optionally bracketed.
var procedureName = regexp.MustCompile(`^(\[[^\]]+\]|[A-Za-z_#][\w@$#]*)(\.(\[[^\]]+\]|[A-Za-z_#][\w@$#]*)){0,2}$`)

// Execute runs a stored procedure as an RPC call. The procedure's return
// status is reported in Raw.ReturnStatus.
func (a *Adapter) Execute(ctx context.Context, procedure string, args ...any) (*adapters.Result, error) {
	if a.db == nil {
		return nil, sqlerr.ConnectionFailure(errors.New("adapter not connected"))
	}
	if !procedureName.MatchString(procedure) {
		return nil, sqlerr.Unsupported("EXEC " + procedure)
	}

	var status mssqldb.ReturnStatus
	return collect(ctx, a.db, a.messages, procedure, append(args, &status), &status)
}

// BeginTx starts a transaction.
func (a *Adapter) BeginTx(ctx context.Context) (adapters.Tx, error) {
	if a.db == nil {
		return nil, sqlerr.ConnectionFailure(errors.New("adapter not connected"))
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifyConnect(err)
	}
	return &mssqlTx{tx: tx, messages: a.messages}, nil
}

type mssqlTx struct {
	tx       *sql.Tx
	messages bool
}

func (t *mssqlTx) Query(ctx context.Context, query string, args ...any) (*adapters.Result, error) {
	return collect(ctx, t.tx, t.messages, query, args, nil)
}

func (t *mssqlTx) Commit(ctx context.Context) error {
	return classify(t.tx.Commit())
}

func (t *mssqlTx) Rollback(ctx context.Context) error {
	return classify(t.tx.Rollback())
}
