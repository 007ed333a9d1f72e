// Package mssql provides the Microsoft SQL Server adapter for sqlbridge.
//
// SQL Server is the native dialect of the query templates, so statements
// reach the server unchanged and parameters are passed as named arguments
// (@name). The adapter registers itself for tsql.SQLServer in init().
//
// Supported servers: SQL Server 2012 and higher. The product version and the
// database compatibility level are read once on Connect.
//
// Usage:
//
//	import (
//	    "context"
//	    "github.com/ruslano69/sqlbridge/pkg/adapters"
//	    "github.com/ruslano69/sqlbridge/pkg/adapters/mssql"
//	    "github.com/ruslano69/sqlbridge/pkg/core/tsql"
//	)
//
//	func main() {
//	    ctx := context.Background()
//
//	    cfg := adapters.Config{
//	        Type:     tsql.SQLServer,
//	        Host:     `sql01\CHAT`,   // named instance, port from the browser service
//	        User:     "svc_chat",
//	        Password: "...",
//	        Database: "ChatDB",
//	        TrustServerCertificate: true,
//	    }
//
//	    db, err := adapters.Open(ctx, cfg)
//	    if err != nil {
//	        panic(err)
//	    }
//	    defer db.Close(ctx)
//
//	    res, err := db.Execute(ctx, "dbo.GetUserChats", tsql.Params{"userId": 42})
//	    status := res.Raw.(mssql.Raw).ReturnStatus
//	}
//
// Connection:
//
// BuildDSN turns the discrete config fields into a sqlserver:// URL
// (encrypt, TrustServerCertificate, connection timeout, app name). A DSN set
// in the config is used as is. MinConns has no equivalent in database/sql
// and is ignored.
//
// Results:
//
// A batch may return several result sets and row counts. Result.Rows is the
// first result set; Result.Raw is a Raw value with all of them:
//
//	Raw.Recordsets    every result set, in order
//	Raw.RowsAffected  per-statement counts from the driver message loop
//	Raw.ReturnStatus  RETURN value of a procedure called through Execute
//
// Type Mapping:
//
//	SQL Server Type        Go value in Row
//	─────────────────────────────────────────────────
//	INT, BIGINT, SMALLINT  int64
//	DECIMAL, NUMERIC       decimal.Decimal
//	MONEY, SMALLMONEY      decimal.Decimal
//	FLOAT, REAL            float64
//	UNIQUEIDENTIFIER       uuid.UUID (byte order fixed)
//	NVARCHAR, VARCHAR      string
//	DATETIME2, DATETIME    time.Time
//	BIT                    bool
//	VARBINARY              []byte
//
// A connection string the driver cannot parse wraps adapters.ErrInvalidConfig;
// any other failed Connect is a sqlerr connection error. Errors raised by the
// server afterwards keep their number and message and become native query
// errors, and so does a statement that runs past its deadline.
package mssql
