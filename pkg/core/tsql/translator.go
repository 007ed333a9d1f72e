// Package tsql translates T-SQL query templates for execution on
// PostgreSQL or SQL Server.
//
// Translation is a bounded token scan, not a parser: the lexer tracks
// strings, comments, quoted identifiers and parenthesis depth, and each
// rewrite pass edits only the tokens it recognizes. Everything else is
// copied through verbatim.
package tsql

import (
	"fmt"
	"strings"
)

// Dialect names a target SQL dialect.
type Dialect string

const (
	Postgres  Dialect = "postgres"
	SQLServer Dialect = "mssql"
)

// ParseDialect accepts the common spellings of the supported dialects.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg", "pgx":
		return Postgres, nil
	case "mssql", "sqlserver", "sql_server", "tsql":
		return SQLServer, nil
	}
	return "", fmt.Errorf("unknown dialect %q", s)
}

type namedPass struct {
	name string
	fn   Pass
}

// postgresPasses run in order; parameters are bound before any of them.
var postgresPasses = []namedPass{
	{"procedure_calls", rejectProcedureCalls},
	{"current_time", rewriteCurrentTime},
	{"dateadd", rewriteDateAdd},
	{"function_names", rewriteFunctionNames},
	{"bracket_identifiers", rewriteBracketIdentifiers},
	{"identity", rewriteIdentity},
	{"apply", rewriteApply},
	{"output", rewriteOutput},
	{"top", rewriteTop},
	{"offset_fetch", rewriteOffsetFetch},
	{"lateral_on", rewriteLateralJoins},
}

// Translator converts templates for one dialect. It holds no mutable state
// and is safe for concurrent use.
type Translator struct {
	dialect Dialect
	passes  []namedPass
}

// NewTranslator returns the translator for d. SQL Server templates are
// already native and only have their parameters bound.
func NewTranslator(d Dialect) *Translator {
	t := &Translator{dialect: d}
	if d == Postgres {
		t.passes = postgresPasses
	}
	return t
}

func (t *Translator) Dialect() Dialect {
	return t.dialect
}

// Passes returns the pass names in execution order.
func (t *Translator) Passes() []string {
	names := make([]string, len(t.passes))
	for i, p := range t.passes {
		names[i] = p.name
	}
	return names
}

// Translate binds params into query and rewrites the result for the
// target dialect.
func (t *Translator) Translate(query string, params Params) (*Statement, error) {
	if t.dialect != Postgres {
		return Bind(query, params, Named)
	}

	// EXEC @res = proc would otherwise fail binding on @res
	if _, err := rejectProcedureCalls(query); err != nil {
		return nil, err
	}
	stmt, err := Bind(query, params, Positional)
	if err != nil {
		return nil, err
	}
	if stmt.SQL, err = t.Rewrite(stmt.SQL); err != nil {
		return nil, err
	}
	return stmt, nil
}

// Rewrite runs the syntax passes over already-bound text. Text without
// source-dialect constructs is returned unchanged.
func (t *Translator) Rewrite(query string) (string, error) {
	var err error
	for _, p := range t.passes {
		if query, err = p.fn(query); err != nil {
			return "", err
		}
	}
	return query, nil
}

// Translate is shorthand for NewTranslator(d).Translate(query, params).
func Translate(d Dialect, query string, params Params) (*Statement, error) {
	return NewTranslator(d).Translate(query, params)
}
