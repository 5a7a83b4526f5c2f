package categorize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-analytics/internal/table"
)

func TestNewBreakpoints(t *testing.T) {
	b, err := NewBreakpoints([]float64{40, 10, 30, 20})
	require.NoError(t, err)
	assert.Equal(t, Breakpoints{10, 17.5, 25, 32.5, 40}, b)

	b, err = NewBreakpoints([]float64{7})
	require.NoError(t, err)
	assert.Equal(t, Breakpoints{7, 7, 7, 7, 7}, b)

	_, err = NewBreakpoints(nil)
	assert.True(t, errors.Is(err, ErrEmptyPopulation))
}

func TestNewBreakpoints_DoesNotReorderInput(t *testing.T) {
	in := []float64{3, 1, 2}
	_, err := NewBreakpoints(in)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 2}, in)
}

func TestCategory(t *testing.T) {
	b := Breakpoints{10, 17.5, 25, 32.5, 40}
	tests := []struct {
		v    float64
		want int
	}{
		{10, 1},
		{17.4, 1},
		{17.5, 2},
		{24.9, 2},
		{25, 3},
		{32.5, 4},
		{40, 4},
		{100, 4},
		{-5, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Category(b, tt.v), "value %v", tt.v)
	}
}

func TestCategory_Monotonic(t *testing.T) {
	b, err := NewBreakpoints([]float64{3, 9, 1, 4, 4, 12, 30, 7})
	require.NoError(t, err)
	prev := 0
	for v := 0.0; v <= 35; v += 0.5 {
		c := Category(b, v)
		assert.GreaterOrEqual(t, c, prev)
		prev = c
	}
}

func dataset(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.FromRows(
		[]string{"REID", "designation", "TOTAL_PROP_VALUE", "du_est_final"},
		[][]any{
			{"1", "single", int64(100), int64(1)},
			{"2", "single", int64(200), int64(1)},
			{"3", "multi", int64(900), int64(3)},
			{"4", "multi", int64(1600), int64(4)},
			{"5", "other", int64(50), int64(1)},
			{"6", "single", nil, int64(2)},
		},
	)
	require.NoError(t, err)
	return tbl
}

func TestCategorize(t *testing.T) {
	out, err := Categorize(dataset(t), Options{})
	require.NoError(t, err)

	for _, name := range []string{UnitValue, UnitValueCat, UnitValueCatSingle, UnitValueCatMulti} {
		assert.True(t, out.Has(name), name)
	}

	uv, _ := out.Column(UnitValue)
	assert.Equal(t, []any{100.0, 200.0, 300.0, 400.0, 50.0, nil}, uv)

	// Overall population [50,100,200,300,400]: breakpoints 50,100,200,300,400.
	// REID 6 has no unit value and falls in the first category.
	cat, _ := out.Column(UnitValueCat)
	assert.Equal(t, []any{int64(2), int64(3), int64(4), int64(4), int64(1), int64(1)}, cat)

	// Single population [100,200]: breakpoints 100,125,150,175,200.
	single, _ := out.Column(UnitValueCatSingle)
	assert.Equal(t, []any{int64(1), int64(4), nil, nil, nil, int64(1)}, single)

	multi, _ := out.Column(UnitValueCatMulti)
	assert.Equal(t, []any{nil, nil, int64(1), int64(4), nil, nil}, multi)
}

func TestCategorize_EmptySubpopulation(t *testing.T) {
	tbl := table.MustNew(
		[]string{"REID", "designation", "TOTAL_PROP_VALUE", "du_est_final"},
		[][]any{{"1", "2"}, {"single", "single"}, {10.0, 20.0}, {1.0, 1.0}},
	)
	out, err := Categorize(tbl, Options{})
	require.NoError(t, err)
	multi, _ := out.Column(UnitValueCatMulti)
	assert.Equal(t, []any{nil, nil}, multi)
}

func TestCategorize_NullUnitValues(t *testing.T) {
	tbl := table.MustNew(
		[]string{"REID", "designation", "TOTAL_PROP_VALUE", "du_est_final"},
		[][]any{
			{"1", "2", "3", "4"},
			{"multi", "multi", "multi", "multi"},
			{10.0, 20.0, 30.0, 40.0},
			{1.0, 1.0, 1.0, nil},
		},
	)
	out, err := Categorize(tbl, Options{})
	require.NoError(t, err)

	cat, _ := out.Column(UnitValueCat)
	assert.Equal(t, []any{int64(1), int64(3), int64(4), int64(1)}, cat)
	multi, _ := out.Column(UnitValueCatMulti)
	assert.Equal(t, []any{int64(1), int64(3), int64(4), int64(1)}, multi)

	noValues := table.MustNew(
		[]string{"REID", "designation", "TOTAL_PROP_VALUE", "du_est_final"},
		[][]any{{"1"}, {"single"}, {nil}, {1.0}},
	)
	out, err = Categorize(noValues, Options{})
	require.NoError(t, err)
	cat, _ = out.Column(UnitValueCat)
	assert.Equal(t, []any{int64(1)}, cat)
}

func TestCategorize_EmptyTable(t *testing.T) {
	tbl := table.MustNew(
		[]string{"REID", "designation", "TOTAL_PROP_VALUE", "du_est_final"},
		[][]any{{}, {}, {}, {}},
	)
	out, err := Categorize(tbl, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
	for _, name := range []string{UnitValue, UnitValueCat, UnitValueCatSingle, UnitValueCatMulti} {
		col, err := out.Column(name)
		require.NoError(t, err)
		assert.Empty(t, col)
	}
}

func TestCategorize_Errors(t *testing.T) {
	tbl := table.MustNew([]string{"REID"}, [][]any{{"1"}})
	_, err := Categorize(tbl, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, table.ErrMissingColumn))
	assert.Contains(t, err.Error(), "TOTAL_PROP_VALUE")

	dup := table.MustNew(
		[]string{"REID", "designation", "TOTAL_PROP_VALUE", "du_est_final"},
		[][]any{{"1", "1"}, {"single", "single"}, {1.0, 2.0}, {1.0, 1.0}},
	)
	_, err = Categorize(dup, Options{})
	assert.True(t, errors.Is(err, table.ErrDuplicateKey))
}
