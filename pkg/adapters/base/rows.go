package base

import (
	"database/sql"
	"fmt"

	"github.com/ruslano69/sqlbridge/pkg/adapters"
)

// ScanRows reads the current result set of rows into column-keyed maps,
// passing every value through normalize. It does not advance to the next
// result set and does not close rows.
func ScanRows(rows *sql.Rows, normalize Normalizer) ([]adapters.Row, error) {
	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	names := make([]string, len(cols))
	types := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name()
		types[i] = c.DatabaseTypeName()
	}

	result := make([]adapters.Row, 0)
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(adapters.Row, len(cols))
		for i, name := range names {
			v := values[i]
			if normalize != nil {
				v = normalize(v, types[i])
			}
			row[name] = v
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}
