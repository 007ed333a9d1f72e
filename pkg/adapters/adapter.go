package adapters

import (
	"context"

	"github.com/ruslano69/sqlbridge/pkg/core/tsql"
)

// Adapter is the query capability of one database engine. Each dialect
// package registers its implementation with the factory in init().
//
// Adapters receive SQL that is already in their native dialect: translation
// and parameter binding happen in DB before the adapter is called.
type Adapter interface {
	// ========== Lifecycle ==========

	// Connect opens the connection pool and verifies it with a ping.
	Connect(ctx context.Context, cfg Config) error

	// Close releases the pool. Calling Close twice is a no-op.
	Close(ctx context.Context) error

	// Ping checks that a connection can be acquired.
	Ping(ctx context.Context) error

	// ========== Queries ==========

	// Query runs native SQL with already bound arguments and returns the
	// normalized result.
	Query(ctx context.Context, query string, args ...any) (*Result, error)

	// Execute runs a stored procedure by name. Arguments are sql.NamedArg.
	Execute(ctx context.Context, procedure string, args ...any) (*Result, error)

	// BeginTx starts a transaction pinned to one connection.
	BeginTx(ctx context.Context) (Tx, error)

	// ========== Metadata ==========

	// Dialect returns the SQL dialect the adapter executes.
	Dialect() tsql.Dialect

	// GetDatabaseVersion returns the server version string.
	GetDatabaseVersion(ctx context.Context) (string, error)
}

// Tx is a transaction in progress. Exactly one of Commit or Rollback
// ends it.
type Tx interface {
	Query(ctx context.Context, query string, args ...any) (*Result, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Querier runs query templates. Both *DB and the handle passed to a
// WithTx callback implement it.
type Querier interface {
	Query(ctx context.Context, template string, params tsql.Params) (*Result, error)
}
