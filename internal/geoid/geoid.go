// Package geoid normalises census geographic identifiers so that columns coming
// from differently typed sources compare equal.
package geoid

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-analytics/internal/table"
)

// Missing is the canonical form of an absent identifier. Real identifiers are
// non-negative so it can never collide with one.
const Missing = "-1"

// Normalize returns the canonical string form of a geographic identifier.
// Numbers are truncated to an integer, missing values become Missing, numeric
// strings are treated like numbers (leading zeros dropped) and any other string
// is returned trimmed.
func Normalize(v any) string {
	if table.IsNull(v) {
		return Missing
	}

	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return Missing
		}
		if isDigits(s) {
			return trimZeros(s)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return formatTrunc(f)
		}
		return s
	case float64:
		if math.IsInf(x, 0) {
			return Missing
		}
		return formatTrunc(x)
	}

	if i, ok := table.AsInt(v); ok {
		return strconv.FormatInt(i, 10)
	}
	return table.AsString(v)
}

// NormalizeValues applies Normalize to every value and returns a new slice.
func NormalizeValues(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = Normalize(v)
	}
	return out
}

// NormalizeColumn returns a table with the named column normalised.
func NormalizeColumn(t *table.Table, name string) (*table.Table, error) {
	return NormalizeColumns(t, name)
}

// NormalizeColumns returns a table with each named column normalised.
func NormalizeColumns(t *table.Table, names ...string) (*table.Table, error) {
	out := t
	for _, name := range names {
		col, err := out.Column(name)
		if err != nil {
			return nil, eris.Wrap(err, "geoid: normalize")
		}
		if out, err = out.WithColumn(name, NormalizeValues(col)); err != nil {
			return nil, eris.Wrapf(err, "geoid: normalize %s", name)
		}
	}
	return out, nil
}

// NormalizePresent normalises the named columns the table actually has and
// reports which ones were skipped.
func NormalizePresent(t *table.Table, names ...string) (*table.Table, []string, error) {
	var present, skipped []string
	for _, name := range names {
		if t.Has(name) {
			present = append(present, name)
		} else {
			skipped = append(skipped, name)
		}
	}
	out, err := NormalizeColumns(t, present...)
	return out, skipped, err
}

// CoerceInt converts a column to int64. When any non-null value is not numeric
// the whole column falls back to its string form instead of failing. Nulls are
// preserved in both cases.
func CoerceInt(values []any) (out []any, isInt bool) {
	out = make([]any, len(values))
	for i, v := range values {
		if table.IsNull(v) {
			continue
		}
		n, ok := ToInt(v)
		if !ok {
			return coerceString(values), false
		}
		out[i] = n
	}
	return out, true
}

// ToInt converts a single identifier to int64, truncating fractional artifacts.
func ToInt(v any) (int64, bool) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return int64(math.Trunc(f)), true
	}
	return table.AsInt(v)
}

func coerceString(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		if table.IsNull(v) {
			continue
		}
		out[i] = table.AsString(v)
	}
	return out
}

func formatTrunc(f float64) string {
	t := math.Trunc(f)
	if t == 0 {
		t = 0 // drop the sign of -0
	}
	return strconv.FormatFloat(t, 'f', 0, 64)
}

// trimZeros drops leading zeros so "037063" and the integer 37063 agree.
func trimZeros(s string) string {
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "0"
	}
	return s
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
