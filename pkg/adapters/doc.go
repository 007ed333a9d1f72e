/*
Package adapters selects and drives the database engine behind sqlbridge.

# Архитектура

	┌─────────────────────────────────────────┐
	│  Callers: templates in T-SQL + @params  │
	└─────────────────┬───────────────────────┘
	                  │
	┌─────────────────▼───────────────────────┐
	│  DB (db.go)                             │
	│    translate (pkg/core/tsql)            │
	│    run, classify errors, log, metrics   │
	└─────────────────┬───────────────────────┘
	                  │  Adapter interface
	        ┌─────────┴─────────┐
	┌───────▼──────┐   ┌────────▼─────┐
	│ postgres     │   │ mssql        │
	│ pgxpool      │   │ go-mssqldb   │
	└──────────────┘   └──────────────┘

The dialect is chosen once, from Config.Type, when Open is called. Each
dialect package registers itself with the factory in init(), so the binary
must import the ones it needs:

	import (
	    "github.com/ruslano69/sqlbridge/pkg/adapters"
	    _ "github.com/ruslano69/sqlbridge/pkg/adapters/mssql"
	    _ "github.com/ruslano69/sqlbridge/pkg/adapters/postgres"
	)

	db, err := adapters.Open(ctx, cfg, adapters.WithLogger(log))
	if err != nil {
	    log.Fatal().Err(err).Msg("database unavailable")
	}
	defer db.Close(ctx)

	res, err := db.Query(ctx, "SELECT TOP (1) * FROM users WHERE id = @id", tsql.Params{"id": 7})

# Results

Both adapters return Result with rows as column-keyed maps and a row
count. Values are normalized so the dialects agree: exact numerics become
decimal.Decimal, UUIDs become uuid.UUID and textual bytes become string.

# Errors

Translation errors (sqlerr codes 1xxx) are returned before the database is
touched. Lost connections and timeouts surface as 2xxx codes, everything
the engine rejects as 3xxx with the original and rewritten text attached.
*/
package adapters
