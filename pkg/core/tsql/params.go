package tsql

import (
	"database/sql"
	"sort"
	"strconv"

	"github.com/ruslano69/sqlbridge/pkg/sqlerr"
)

// Params maps placeholder names (without the leading @) to values.
type Params map[string]any

// BindStyle selects how placeholders are presented to the driver.
type BindStyle int

const (
	// Positional rewrites @name to $n (PostgreSQL).
	Positional BindStyle = iota
	// Named keeps @name in the text and passes sql.Named arguments (SQL Server).
	Named
)

// Statement is a translated query ready for a driver.
type Statement struct {
	// Source is the caller's template.
	Source string
	// SQL is the text sent to the engine.
	SQL string
	// Args is aligned to the assigned positional indices, or holds one
	// sql.NamedArg per distinct name.
	Args []any
	// Names lists distinct parameter names in index order.
	Names []string
}

// Bind resolves @name placeholders against params.
//
// Each distinct name is assigned an index the first time it appears in the
// text; later occurrences reuse it. Placeholders inside strings, comments
// and quoted identifiers are not placeholders. Entries of params the query
// never references are ignored.
func Bind(query string, params Params, style BindStyle) (*Statement, error) {
	tokens := Tokenize(query)
	stmt := &Statement{Source: query, SQL: query}

	index := make(map[string]int)
	var edits []edit
	hasPositional := false

	for _, tok := range tokens {
		switch tok.Type {
		case TokenPositional:
			hasPositional = true
		case TokenParam:
			name := tok.Literal[1:]
			n, seen := index[name]
			if !seen {
				value, ok := params[name]
				if !ok {
					return nil, sqlerr.MissingParameter(name)
				}
				stmt.Names = append(stmt.Names, name)
				n = len(stmt.Names)
				index[name] = n
				if style == Named {
					stmt.Args = append(stmt.Args, sql.Named(name, value))
				} else {
					stmt.Args = append(stmt.Args, value)
				}
			}
			if style == Positional {
				edits = append(edits, edit{tok.Pos, tok.End, "$" + strconv.Itoa(n)})
			}
		}
	}

	if style == Positional && hasPositional && len(stmt.Names) > 0 {
		return nil, sqlerr.Unsupported("mixed @name and $n placeholders")
	}

	stmt.SQL = applyEdits(query, edits)
	return stmt, nil
}

// Unreferenced returns the names in params that query never mentions, in
// sorted order.
func Unreferenced(stmt *Statement, params Params) []string {
	used := make(map[string]bool, len(stmt.Names))
	for _, n := range stmt.Names {
		used[n] = true
	}
	var out []string
	for name := range params {
		if !used[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
