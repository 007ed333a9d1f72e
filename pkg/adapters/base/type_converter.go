package base

import (
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Normalizer converts one driver value of a column with the given database
// type name into its dialect-independent form.
type Normalizer func(v any, dbType string) any

// Column type families used for normalization.
var (
	exactNumericTypes = toSet("DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY")
	textTypes         = toSet("CHAR", "VARCHAR", "NCHAR", "NVARCHAR", "TEXT", "NTEXT", "XML", "JSON", "JSONB",
		"BPCHAR", "NAME", "CITEXT", "CLOB", "CHARACTER", "CHARACTER VARYING")
	uuidTypes = toSet("UUID", "UNIQUEIDENTIFIER")
)

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func in(set map[string]struct{}, t string) bool {
	_, ok := set[t]
	return ok
}

// BaseType upper-cases a database type name and drops any length or
// precision suffix: "decimal(10, 2)" -> "DECIMAL".
func BaseType(dbType string) string {
	t := strings.ToUpper(strings.TrimSpace(dbType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

// NormalizeValue is the Normalizer shared by both dialects:
//   - exact numerics (pgtype.Numeric, DECIMAL/NUMERIC/MONEY text or floats) become decimal.Decimal
//   - UUIDs ([16]byte, pgtype.UUID, UUID text) become uuid.UUID
//   - []byte of textual columns becomes string, of any other column a private copy
//   - integers of any width become int64 and float32 becomes float64, since
//     pgx returns int2/int4/float4 at their own width and go-mssqldb widens them
//
// Everything else is returned unchanged.
func NormalizeValue(v any, dbType string) any {
	t := BaseType(dbType)

	switch val := v.(type) {
	case nil:
		return nil

	case pgtype.Numeric:
		return numericValue(val)

	case pgtype.UUID:
		if !val.Valid {
			return nil
		}
		return uuid.UUID(val.Bytes)

	case [16]byte:
		return uuid.UUID(val)

	case []byte:
		switch {
		case in(exactNumericTypes, t):
			if d, err := decimal.NewFromString(string(val)); err == nil {
				return d
			}
			return string(val)
		case in(uuidTypes, t):
			if u, err := uuid.ParseBytes(val); err == nil {
				return u
			}
			if len(val) == 16 {
				return uuid.UUID(val)
			}
			return string(val)
		case in(textTypes, t):
			return string(val)
		}
		cp := make([]byte, len(val))
		copy(cp, val)
		return cp

	case string:
		switch {
		case in(exactNumericTypes, t):
			if d, err := decimal.NewFromString(val); err == nil {
				return d
			}
		case in(uuidTypes, t):
			if u, err := uuid.Parse(val); err == nil {
				return u
			}
		}
		return val

	case float64:
		if in(exactNumericTypes, t) {
			return decimal.NewFromFloat(val)
		}
		return val

	case float32:
		return NormalizeValue(float64(val), dbType)

	case int64:
		if in(exactNumericTypes, t) {
			return decimal.NewFromInt(val)
		}
		return val
	case int32:
		return NormalizeValue(int64(val), dbType)
	case int16:
		return NormalizeValue(int64(val), dbType)
	case int8:
		return NormalizeValue(int64(val), dbType)
	case int:
		return NormalizeValue(int64(val), dbType)
	case uint8:
		return NormalizeValue(int64(val), dbType)
	case uint16:
		return NormalizeValue(int64(val), dbType)
	case uint32:
		return NormalizeValue(int64(val), dbType)
	}
	return v
}

// numericValue converts a PostgreSQL NUMERIC. NaN and infinities have no
// decimal form and are returned as their text.
func numericValue(n pgtype.Numeric) any {
	if !n.Valid {
		return nil
	}
	if n.NaN {
		return "NaN"
	}
	switch {
	case n.InfinityModifier > 0:
		return "Infinity"
	case n.InfinityModifier < 0:
		return "-Infinity"
	}
	i := n.Int
	if i == nil {
		i = new(big.Int)
	}
	return decimal.NewFromBigInt(i, n.Exp)
}
