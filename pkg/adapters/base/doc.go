// Package base holds the database/sql helpers shared by adapters: row
// scanning into adapters.Row and value normalization.
//
// NormalizeValue makes both dialects agree on value types:
//   - NUMERIC/DECIMAL/MONEY → decimal.Decimal (never float64)
//   - UUID/UNIQUEIDENTIFIER → uuid.UUID
//   - textual []byte → string, binary []byte → []byte
//
// Драйверо-специфичные типы (pgtype, mssqldb.UniqueIdentifier) are unwrapped
// by each adapter before or instead of calling NormalizeValue.
package base
