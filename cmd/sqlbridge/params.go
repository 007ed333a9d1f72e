package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/ruslano69/sqlbridge/pkg/core/tsql"
)

// parseParams turns repeated name=value flags into tsql.Params.
func parseParams(pairs []string) (tsql.Params, error) {
	params := make(tsql.Params, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimPrefix(strings.TrimSpace(name), "@")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --param %q: want name=value", pair)
		}
		params[name] = parseValue(value)
	}
	return params, nil
}

// parseValue guesses the type of a command-line value:
//
//	null        -> nil
//	true/false  -> bool
//	42          -> int64
//	12.50       -> decimal.Decimal
//	'007'       -> "007" (quotes force a string)
//	anything    -> string
func parseValue(v string) any {
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		return v[1 : len(v)-1]
	}
	switch strings.ToLower(v) {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if strings.ContainsAny(v, ".") {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return v
}

// readQuery reads the template from the file named in args, or stdin.
func readQuery(cmd *cobra.Command, args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) > 0 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return "", fmt.Errorf("failed to read query: %w", err)
	}

	query := strings.TrimSpace(string(data))
	if query == "" {
		return "", fmt.Errorf("empty query")
	}
	return query, nil
}
