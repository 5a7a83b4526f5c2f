package geoid

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-analytics/internal/table"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "-1"},
		{"nan", math.NaN(), "-1"},
		{"empty string", "  ", "-1"},
		{"int64", int64(37063000101), "37063000101"},
		{"int", 42, "42"},
		{"float truncates", 37063000101.9, "37063000101"},
		{"float artifact", 370630001011001.0, "370630001011001"},
		{"negative zero", -0.4, "0"},
		{"numeric string", "37063000101.0", "37063000101"},
		{"digit string", "37063000101", "37063000101"},
		{"leading zeros", "0101", "101"},
		{"already missing", "-1", "-1"},
		{"non numeric", " 1400000US37063 ", "1400000US37063"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []any{nil, math.NaN(), int64(5), 5.7, "5.7", "0012", "abc", "", "-1", -3.2, int64(0)}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %v", in)
	}
}

func TestNormalizeColumns(t *testing.T) {
	tbl := table.MustNew(
		[]string{"geo_id_t2020", "other"},
		[][]any{
			{37063000101.0, nil, "37063000102"},
			{1.5, 2.5, 3.5},
		},
	)

	out, err := NormalizeColumns(tbl, "geo_id_t2020")
	require.NoError(t, err)

	col, err := out.Column("geo_id_t2020")
	require.NoError(t, err)
	assert.Equal(t, []any{"37063000101", "-1", "37063000102"}, col)

	other, err := out.Column("other")
	require.NoError(t, err)
	assert.Equal(t, []any{1.5, 2.5, 3.5}, other)

	orig, err := tbl.Column("geo_id_t2020")
	require.NoError(t, err)
	assert.Equal(t, 37063000101.0, orig[0], "input table must not change")

	_, err = NormalizeColumns(tbl, "geo_id_bg2020")
	require.Error(t, err)
	assert.True(t, errors.Is(err, table.ErrMissingColumn))
}

func TestNormalizePresent(t *testing.T) {
	tbl := table.MustNew([]string{"a"}, [][]any{{1.0}})
	out, skipped, err := NormalizePresent(tbl, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, skipped)
	assert.Equal(t, "1", out.Value(0, "a"))
}

func TestCoerceInt(t *testing.T) {
	out, ok := CoerceInt([]any{"37063000101", 37063000102.0, nil, int64(3)})
	assert.True(t, ok)
	assert.Equal(t, []any{int64(37063000101), int64(37063000102), nil, int64(3)}, out)

	out, ok = CoerceInt([]any{"101", "1400000US37063", nil, 7.0})
	assert.False(t, ok, "non numeric values fall back to strings")
	assert.Equal(t, []any{"101", "1400000US37063", nil, "7"}, out)
}

func TestToInt(t *testing.T) {
	n, ok := ToInt(" 12.9 ")
	assert.True(t, ok)
	assert.Equal(t, int64(12), n)

	_, ok = ToInt("x12")
	assert.False(t, ok)

	_, ok = ToInt(nil)
	assert.False(t, ok)
}
