package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ruslano69/sqlbridge/pkg/core/tsql"
)

type translateOptions struct {
	dialect string
	params  []string
	json    bool
}

func newTranslateCommand(a *app) *cobra.Command {
	opts := &translateOptions{}
	cmd := &cobra.Command{
		Use:   "translate [file]",
		Short: "Print a template translated for a dialect",
		Long: `Reads a T-SQL template from file (or stdin), binds --param values and prints
the SQL that would be sent to the selected dialect, followed by its arguments.
No database connection is made.`,
		Example: `  echo "SELECT TOP 5 * FROM Users WHERE name = @name" | sqlbridge translate --param name=alice
  sqlbridge translate --dialect mssql query.sql --param id=42`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.dialect, "dialect", "d", string(tsql.Postgres), "target dialect: postgres or mssql")
	f.StringArrayVarP(&opts.params, "param", "p", nil, "parameter as name=value (repeatable)")
	f.BoolVar(&opts.json, "json", false, "print a JSON object instead of text")
	return cmd
}

func runTranslate(cmd *cobra.Command, args []string, opts *translateOptions) error {
	dialect, err := tsql.ParseDialect(opts.dialect)
	if err != nil {
		return err
	}
	query, err := readQuery(cmd, args)
	if err != nil {
		return err
	}
	params, err := parseParams(opts.params)
	if err != nil {
		return err
	}

	stmt, err := tsql.Translate(dialect, query, params)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.json {
		return printStatementJSON(out, dialect, stmt)
	}
	printStatement(out, stmt, tsql.Unreferenced(stmt, params))
	return nil
}

func printStatement(w io.Writer, stmt *tsql.Statement, unused []string) {
	fmt.Fprintln(w, stmt.SQL)
	if len(stmt.Args) > 0 {
		fmt.Fprintln(w)
	}
	for i, arg := range stmt.Args {
		if named, ok := arg.(sql.NamedArg); ok {
			fmt.Fprintf(w, "-- @%s = %v (%T)\n", named.Name, named.Value, named.Value)
			continue
		}
		fmt.Fprintf(w, "-- $%d = %v (%T)  @%s\n", i+1, arg, arg, stmt.Names[i])
	}
	for _, name := range unused {
		fmt.Fprintf(w, "-- unused: @%s\n", name)
	}
}

type statementJSON struct {
	Dialect tsql.Dialect `json:"dialect"`
	SQL     string       `json:"sql"`
	Names   []string     `json:"names"`
	Args    []any        `json:"args"`
}

func printStatementJSON(w io.Writer, dialect tsql.Dialect, stmt *tsql.Statement) error {
	out := statementJSON{Dialect: dialect, SQL: stmt.SQL, Names: stmt.Names, Args: make([]any, len(stmt.Args))}
	if out.Names == nil {
		out.Names = []string{}
	}
	for i, arg := range stmt.Args {
		if named, ok := arg.(sql.NamedArg); ok {
			arg = named.Value
		}
		out.Args[i] = arg
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
