package mssql

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/ruslano69/sqlbridge/pkg/adapters"
)

// BuildDSN returns cfg.DSN when set, otherwise a sqlserver:// URL built from
// the discrete fields. A host of the form `server\instance` selects a named
// instance, in which case the port is resolved by the browser service.
func BuildDSN(cfg adapters.Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}

	q := url.Values{}
	if cfg.Database != "" {
		q.Set("database", cfg.Database)
	}
	q.Set("encrypt", strconv.FormatBool(cfg.Encrypt))
	q.Set("TrustServerCertificate", strconv.FormatBool(cfg.TrustServerCertificate))
	if cfg.ConnectTimeout > 0 {
		q.Set("connection timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds())))
	}
	if cfg.AppName != "" {
		q.Set("app name", cfg.AppName)
	}

	u := &url.URL{Scheme: "sqlserver", RawQuery: q.Encode()}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}

	host, instance, named := strings.Cut(cfg.Host, `\`)
	switch {
	case named:
		u.Host = host
		u.Path = "/" + instance
	case cfg.Port > 0:
		u.Host = net.JoinHostPort(host, strconv.Itoa(cfg.Port))
	default:
		u.Host = host
	}
	return u.String()
}
