package mssql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang-sql/sqlexp"
	"github.com/google/uuid"
	mssqldb "github.com/microsoft/go-mssqldb"

	"github.com/ruslano69/sqlbridge/pkg/adapters"
	"github.com/ruslano69/sqlbridge/pkg/adapters/base"
)

// Raw is the driver-specific part of a SQL Server result.
type Raw struct {
	// Recordsets holds every result set of the batch in order.
	Recordsets [][]adapters.Row

	// RowsAffected holds the row count of every statement that reported one.
	RowsAffected []int64

	// ReturnStatus is set for procedure calls.
	ReturnStatus *int32
}

type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// collect runs query and gathers all result sets. Rows is the first result
// set; RowCount is the first reported row count, or the number of rows when
// the server reports none.
func collect(ctx context.Context, q sqlQuerier, messages bool, query string, args []any, status *mssqldb.ReturnStatus) (*adapters.Result, error) {
	var raw Raw
	var err error
	if messages {
		raw, err = collectMessages(ctx, q, query, args)
	} else {
		raw, err = collectPlain(ctx, q, query, args)
	}
	if err != nil {
		return nil, classify(err)
	}

	if status != nil {
		rs := int32(*status)
		raw.ReturnStatus = &rs
	}

	res := &adapters.Result{Rows: []adapters.Row{}, Raw: raw}
	if len(raw.Recordsets) > 0 {
		res.Rows = raw.Recordsets[0]
	}
	switch {
	case len(raw.RowsAffected) > 0:
		res.RowCount = raw.RowsAffected[0]
	default:
		res.RowCount = int64(len(res.Rows))
	}
	return res, nil
}

// collectMessages walks the driver message loop, which reports row counts
// per statement and errors raised in the middle of a batch.
func collectMessages(ctx context.Context, q sqlQuerier, query string, args []any) (Raw, error) {
	var raw Raw
	retmsg := &sqlexp.ReturnMessage{}
	rows, err := q.QueryContext(ctx, query, append(args, retmsg)...)
	if err != nil {
		return raw, err
	}
	defer rows.Close()

	var batchErr error
	for active := true; active; {
		switch m := retmsg.Message(ctx).(type) {
		case sqlexp.MsgNext:
			set, err := base.ScanRows(rows, normalize)
			if err != nil {
				return raw, err
			}
			raw.Recordsets = append(raw.Recordsets, set)
		case sqlexp.MsgRowsAffected:
			raw.RowsAffected = append(raw.RowsAffected, m.Count)
		case sqlexp.MsgError:
			if batchErr == nil {
				batchErr = m.Error
			}
		case sqlexp.MsgNextResultSet:
			active = rows.NextResultSet()
		}
	}

	if batchErr != nil {
		return raw, batchErr
	}
	if err := rows.Close(); err != nil {
		return raw, err
	}
	return raw, ctx.Err()
}

// collectPlain uses the standard result set iteration.
func collectPlain(ctx context.Context, q sqlQuerier, query string, args []any) (Raw, error) {
	var raw Raw
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return raw, err
	}
	defer rows.Close()

	for {
		set, err := base.ScanRows(rows, normalize)
		if err != nil {
			return raw, err
		}
		raw.Recordsets = append(raw.Recordsets, set)
		if !rows.NextResultSet() {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return raw, fmt.Errorf("error iterating result sets: %w", err)
	}
	return raw, rows.Close()
}

// normalize unwraps UNIQUEIDENTIFIER bytes, which SQL Server stores in
// mixed-endian order, before the shared normalization.
func normalize(v any, dbType string) any {
	if b, ok := v.([]byte); ok && base.BaseType(dbType) == "UNIQUEIDENTIFIER" && len(b) == 16 {
		var id mssqldb.UniqueIdentifier
		if err := id.Scan(b); err == nil {
			return uuid.UUID(id)
		}
	}
	return base.NormalizeValue(v, dbType)
}
