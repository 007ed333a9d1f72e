package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ruslano69/sqlbridge/pkg/sqlerr"
)

// classify maps pgx errors onto sqlerr codes. Server-side errors carry the
// SQLSTATE in their message.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return sqlerr.NativeQuery(err)
	}

	var connectErr *pgconn.ConnectError
	switch {
	case errors.As(err, &connectErr):
		return sqlerr.Connectivity(err)
	case pgconn.Timeout(err):
		return sqlerr.StatementTimeout(err)
	}
	return sqlerr.Classify(err)
}

// classifyConnect maps errors of calls that send no statement (ping, begin):
// a timeout there is a connection timeout.
func classifyConnect(err error) error {
	var pgErr *pgconn.PgError
	if err == nil || errors.As(err, &pgErr) {
		return classify(err)
	}
	return sqlerr.Connectivity(err)
}
