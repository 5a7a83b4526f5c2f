package table

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(t *testing.T) *Table {
	t.Helper()
	tbl, err := New(
		[]string{"REID", "value", "name"},
		[][]any{
			{"1", "2", "3"},
			{int64(10), 2.5, nil},
			{"a", "b", "c"},
		},
	)
	require.NoError(t, err)
	return tbl
}

func TestNew_LengthMismatch(t *testing.T) {
	_, err := New([]string{"a", "b"}, [][]any{{1}, {1, 2}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLengthMismatch))
}

func TestNew_DuplicateName(t *testing.T) {
	_, err := New([]string{"a", "a"}, [][]any{{1}, {2}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate column name")
}

func TestFromRows(t *testing.T) {
	tbl, err := FromRows([]string{"a", "b"}, [][]any{{int64(1), "x"}, {int64(2)}})
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "x", tbl.Value(0, "b"))
	assert.Nil(t, tbl.Value(1, "b"))

	_, err = FromRows([]string{"a"}, [][]any{{1, 2}})
	assert.True(t, errors.Is(err, ErrLengthMismatch))
}

func TestSelect(t *testing.T) {
	tbl := sample(t)

	out, err := tbl.Select("name", "REID")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "REID"}, out.Names())
	assert.Equal(t, 3, out.Len())

	_, err = tbl.Select("REID", "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingColumn))
	assert.Contains(t, err.Error(), "missing")
}

func TestDropAndRename(t *testing.T) {
	tbl := sample(t)

	out, err := tbl.Drop("value")
	require.NoError(t, err)
	assert.Equal(t, []string{"REID", "name"}, out.Names())
	assert.True(t, tbl.Has("value"), "receiver must be untouched")

	_, err = tbl.Drop("nope")
	assert.True(t, errors.Is(err, ErrMissingColumn))

	renamed, err := tbl.Rename("name", "label")
	require.NoError(t, err)
	assert.True(t, renamed.Has("label"))
	assert.False(t, renamed.Has("name"))
}

func TestAddSuffix(t *testing.T) {
	out := sample(t).AddSuffix("_t")
	assert.Equal(t, []string{"REID_t", "value_t", "name_t"}, out.Names())
	assert.Equal(t, 3, out.Len())
}

func TestWithColumn(t *testing.T) {
	tbl := sample(t)

	out, err := tbl.WithColumn("flag", []any{true, false, true})
	require.NoError(t, err)
	assert.Equal(t, 4, out.Width())
	assert.Equal(t, 3, tbl.Width())

	replaced, err := out.WithColumn("flag", []any{nil, nil, nil})
	require.NoError(t, err)
	assert.Equal(t, 4, replaced.Width())
	assert.Nil(t, replaced.Value(0, "flag"))
	assert.Equal(t, true, out.Value(0, "flag"))

	_, err = tbl.WithColumn("short", []any{1})
	assert.True(t, errors.Is(err, ErrLengthMismatch))
}

func TestFilterAndTake(t *testing.T) {
	tbl := sample(t)

	out := tbl.Filter(func(r int) bool { return tbl.Value(r, "name") != "b" })
	assert.Equal(t, 2, out.Len())
	assert.Equal(t, "c", out.Value(1, "name"))

	taken := tbl.Take([]int{2, -1, 0})
	assert.Equal(t, "3", taken.Value(0, "REID"))
	assert.Nil(t, taken.Value(1, "REID"))
	assert.Nil(t, taken.Value(1, "name"))
	assert.Equal(t, "1", taken.Value(2, "REID"))
}

func TestKeyIndex(t *testing.T) {
	tbl := MustNew([]string{"k"}, [][]any{{"a", nil, float64(7), int64(8)}})
	idx, err := tbl.KeyIndex("k")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 0, "7": 2, "8": 3}, idx)

	dup := MustNew([]string{"k"}, [][]any{{int64(7), 7.0}})
	_, err = dup.KeyIndex("k")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateKey))
	assert.Contains(t, err.Error(), `"7"`)
}

func TestValueHelpers(t *testing.T) {
	assert.True(t, IsNull(nil))
	assert.True(t, IsNull(math.NaN()))
	assert.False(t, IsNull(""))

	f, ok := AsFloat("2.5")
	assert.True(t, ok)
	assert.InDelta(t, 2.5, f, 1e-9)
	_, ok = AsFloat("abc")
	assert.False(t, ok)

	i, ok := AsInt(3.9)
	assert.True(t, ok)
	assert.Equal(t, int64(3), i)
	i, ok = AsInt(-3.9)
	assert.True(t, ok)
	assert.Equal(t, int64(-3), i)

	assert.Equal(t, "12", AsString(12.0))
	assert.Equal(t, "12.5", AsString(12.5))
	assert.Equal(t, "", AsString(nil))
	assert.Equal(t, "2024-01-02T00:00:00Z", AsString(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
}

func TestInfer(t *testing.T) {
	tests := []struct {
		raw  string
		want any
	}{
		{"", nil},
		{"  ", nil},
		{"NA", nil},
		{"42", int64(42)},
		{"-3", int64(-3)},
		{"4.5", 4.5},
		{"37063000101.0", 37063000101.0},
		{"single", "single"},
		{"0x10", "0x10"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Infer(tt.raw))
		})
	}
}

func TestFromText(t *testing.T) {
	tbl, err := FromText(
		[]string{"id", "amount", "label"},
		[][]string{
			{"1", "2", "a"},
			{"2", "2.5", "7"},
			{"3", "", ""},
		},
	)
	require.NoError(t, err)

	assert.Equal(t, int64(1), tbl.Value(0, "id"))
	assert.Equal(t, 2.0, tbl.Value(0, "amount"), "ints promote when the column has decimals")
	assert.Nil(t, tbl.Value(2, "amount"))
	assert.Equal(t, "7", tbl.Value(1, "label"), "text columns stay strings")
	assert.Nil(t, tbl.Value(2, "label"))
}
