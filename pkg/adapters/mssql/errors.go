package mssql

import (
	"errors"

	mssqldb "github.com/microsoft/go-mssqldb"

	"github.com/ruslano69/sqlbridge/pkg/sqlerr"
)

// classify maps go-mssqldb errors onto sqlerr codes. Errors raised by the
// server carry an error number and are native query errors.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var srvErr mssqldb.Error
	if errors.As(err, &srvErr) {
		return sqlerr.NativeQuery(err)
	}
	var srvErrPtr *mssqldb.Error
	if errors.As(err, &srvErrPtr) {
		return sqlerr.NativeQuery(err)
	}
	return sqlerr.Classify(err)
}

// classifyConnect maps errors of calls that send no statement (ping, begin,
// version detection on connect): a timeout there is a connection timeout.
func classifyConnect(err error) error {
	var srvErr mssqldb.Error
	var srvErrPtr *mssqldb.Error
	if err == nil || errors.As(err, &srvErr) || errors.As(err, &srvErrPtr) {
		return classify(err)
	}
	return sqlerr.Connectivity(err)
}
