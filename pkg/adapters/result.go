package adapters

// Row is one result row keyed by column name. Column names are kept as the
// engine reports them.
type Row map[string]any

// Result is the dialect-independent shape of a query result.
//
// For a single row-returning statement len(Rows) == RowCount. For
// INSERT/UPDATE/DELETE without RETURNING, Rows is empty and RowCount holds
// the affected row count. Raw carries the driver-specific result
// (postgres.Raw or mssql.Raw) for callers that need it.
type Result struct {
	Rows     []Row `json:"rows"`
	RowCount int64 `json:"rowCount"`
	Raw      any   `json:"-"`
}

// First returns the first row or nil.
func (r *Result) First() Row {
	if r == nil || len(r.Rows) == 0 {
		return nil
	}
	return r.Rows[0]
}
