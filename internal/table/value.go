package table

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// IsNull reports whether v is a missing value. NaN counts as missing.
func IsNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	}
	return false
}

// AsFloat converts a numeric cell to float64. Numeric strings are parsed.
func AsFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) {
			return 0, false
		}
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// AsInt converts a numeric cell to int64, truncating toward zero.
func AsInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	}
	f, ok := AsFloat(v)
	if !ok || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(math.Trunc(f)), true
}

// AsString renders a cell as text. Null renders as the empty string and integral
// floats render without a fractional part.
func AsString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		if x == math.Trunc(x) && math.Abs(x) < 1e18 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	}
	return ""
}

// Key returns the canonical join key for a cell, false for nulls.
func Key(v any) (string, bool) {
	if IsNull(v) {
		return "", false
	}
	return AsString(v), true
}

// Floats collects the non-null numeric values of a column.
func Floats(values []any) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := AsFloat(v); ok {
			out = append(out, f)
		}
	}
	return out
}

// naValues are the spellings of missing data that dataframe readers recognise.
var naValues = map[string]bool{
	"NA": true, "N/A": true, "NaN": true, "nan": true, "NULL": true, "null": true, "<NA>": true,
}

// Infer types a raw text cell the way a dataframe reader does: empty is null,
// integers become int64, decimals float64, everything else stays a string.
func Infer(raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" || naValues[s] {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !strings.ContainsAny(s, "xXpP") {
		if math.IsNaN(f) {
			return nil
		}
		return f
	}
	return raw
}

// FromText builds a table from raw text rows, typing each column as a whole:
// a column of integers is int64, a numeric column with any decimal is float64,
// and a column with any non-numeric text keeps every value as a string.
func FromText(header []string, rows [][]string) (*Table, error) {
	cols := make([][]any, len(header))
	for c := range header {
		col := make([]any, len(rows))
		kind := kindInt
		for r, row := range rows {
			if c >= len(row) {
				continue
			}
			v := Infer(row[c])
			col[r] = v
			switch v.(type) {
			case float64:
				if kind == kindInt {
					kind = kindFloat
				}
			case string:
				kind = kindString
			}
		}
		switch kind {
		case kindFloat:
			for r, v := range col {
				if i, ok := v.(int64); ok {
					col[r] = float64(i)
				}
			}
		case kindString:
			for r, v := range col {
				if v != nil {
					col[r] = strings.TrimSpace(rows[r][c])
				}
			}
		}
		cols[c] = col
	}
	return New(header, cols)
}

const (
	kindInt = iota
	kindFloat
	kindString
)
