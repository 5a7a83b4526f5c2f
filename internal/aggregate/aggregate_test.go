package aggregate

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-analytics/internal/table"
)

func TestBuiltins(t *testing.T) {
	vals := []any{int64(1), nil, int64(4), int64(2), math.NaN()}

	assert.Equal(t, int64(7), Sum.Reduce(vals))
	assert.InDelta(t, 7.0/3, Mean.Reduce(vals), 1e-12)
	assert.Equal(t, 2.0, Median.Reduce(vals))
	assert.Equal(t, int64(1), Min.Reduce(vals))
	assert.Equal(t, int64(4), Max.Reduce(vals))
	assert.InDelta(t, 1.5275252316519468, Std.Reduce(vals), 1e-12)
	assert.Equal(t, int64(2), MeanRound.Reduce(vals))

	floatVals := []any{1.5, 2.5, int64(1)}
	assert.Equal(t, 5.0, Sum.Reduce(floatVals))
	assert.Equal(t, 1.0, Min.Reduce(floatVals))
	assert.Equal(t, 2.5, Max.Reduce(floatVals))
	assert.Equal(t, 1.5, Median.Reduce(floatVals))
}

func TestBuiltins_AllNull(t *testing.T) {
	vals := []any{nil, nil}
	assert.Equal(t, 0.0, Sum.Reduce(vals))
	for _, f := range []Func{Mean, Median, Min, Max, Std, MeanRound} {
		assert.Nil(t, f.Reduce(vals), f.Name())
	}
	assert.Nil(t, Std.Reduce([]any{3.0}), "one value has no sample deviation")
}

func TestMeanRound_HalfToEven(t *testing.T) {
	assert.Equal(t, int64(2), MeanRound.Reduce([]any{2.0, 3.0}))
	assert.Equal(t, int64(4), MeanRound.Reduce([]any{3.0, 4.0}))
	assert.Equal(t, int64(3), MeanRound.Reduce([]any{2.0, 3.2}))
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"sum", "mean", "median", "min", "max", "std", "mean_round"} {
		f, err := Lookup(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, f.Name())
	}
	_, err := Lookup("mode")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mean_round")
}

func TestReducer(t *testing.T) {
	count := Reducer("count", func(v []any) any { return int64(len(table.Floats(v))) })
	assert.Equal(t, "count", count.Name())
	assert.Equal(t, int64(2), count.Reduce([]any{1.0, nil, int64(3)}))
}

func TestColumnName(t *testing.T) {
	assert.Equal(t, "du_est_final_sum", ColumnName("du_est_final", "sum"))
	assert.Equal(t, "unit_val_mean_round", ColumnName("unit_val", MeanRound.Name()))
}

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec(map[string][]string{
		"du_est_final":     {"sum", "mean"},
		"TOTAL_PROP_VALUE": {"sum"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"TOTAL_PROP_VALUE_sum", "du_est_final_sum", "du_est_final_mean"}, spec.OutputNames())

	_, err = ParseSpec(map[string][]string{"x": {"bogus"}})
	require.Error(t, err)
	_, err = ParseSpec(map[string][]string{"x": nil})
	require.Error(t, err)
}

func TestParseEntries(t *testing.T) {
	spec, err := ParseEntries([]string{"du_est_final:sum, mean", "TOTAL_PROP_VALUE:sum"})
	require.NoError(t, err)
	assert.Equal(t, []string{"du_est_final_sum", "du_est_final_mean", "TOTAL_PROP_VALUE_sum"}, spec.OutputNames())

	_, err = ParseEntries([]string{"du_est_final"})
	require.Error(t, err)
}

func TestLoadSpecs(t *testing.T) {
	doc := `
pu_2324_848:
  du_est_final: [sum, mean]
  TOTAL_PROP_VALUE: sum
geo_id_t2020:
  unit_val: [median, mean_round]
  students2324: sum
`
	specs, err := LoadSpecs(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, "pu_2324_848", specs[0].Key)
	assert.Equal(t, []string{"du_est_final_sum", "du_est_final_mean", "TOTAL_PROP_VALUE_sum"}, specs[0].Spec.OutputNames())
	assert.Equal(t, "geo_id_t2020", specs[1].Key)
	assert.Equal(t, []string{"unit_val_median", "unit_val_mean_round", "students2324_sum"}, specs[1].Spec.OutputNames())

	_, err = LoadSpecs(strings.NewReader("pu: {x: [nope]}"))
	require.Error(t, err)
	_, err = LoadSpecs(strings.NewReader("- a\n- b\n"))
	require.Error(t, err)

	specs, err = LoadSpecs(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestGroupBy(t *testing.T) {
	tbl := table.MustNew(
		[]string{"pu_2324_848", "du_est_final", "TOTAL_PROP_VALUE"},
		[][]any{
			{int64(7), int64(7)},
			{int64(2), int64(3)},
			{int64(100), int64(200)},
		},
	)
	spec, err := ParseEntries([]string{"du_est_final:sum,mean", "TOTAL_PROP_VALUE:sum"})
	require.NoError(t, err)

	out, err := GroupBy(tbl, "pu_2324_848", spec)
	require.NoError(t, err)
	assert.Equal(t, []string{"pu_2324_848", "du_est_final_sum", "du_est_final_mean", "TOTAL_PROP_VALUE_sum"}, out.Names())
	require.Equal(t, 1, out.Len())
	assert.Equal(t, int64(7), out.Value(0, "pu_2324_848"))
	assert.Equal(t, int64(5), out.Value(0, "du_est_final_sum"))
	assert.Equal(t, 2.5, out.Value(0, "du_est_final_mean"))
	assert.Equal(t, int64(300), out.Value(0, "TOTAL_PROP_VALUE_sum"))
}

func TestGroupBy_OrderingAndNullKeys(t *testing.T) {
	tbl := table.MustNew(
		[]string{"k", "v"},
		[][]any{
			{int64(10), nil, int64(2), int64(10), 9.0},
			{1.0, 100.0, 2.0, 3.0, nil},
		},
	)
	spec, err := ParseEntries([]string{"v:sum,max"})
	require.NoError(t, err)

	out, err := GroupBy(tbl, "k", spec)
	require.NoError(t, err)

	keys, _ := out.Column("k")
	assert.Equal(t, []any{int64(2), 9.0, int64(10)}, keys, "numeric keys sort numerically, null keys form no group")

	sums, _ := out.Column("v_sum")
	assert.Equal(t, []any{2.0, 0.0, 4.0}, sums)
	maxes, _ := out.Column("v_max")
	assert.Equal(t, []any{2.0, nil, 3.0}, maxes)
}

func TestGroupBy_StringKeys(t *testing.T) {
	tbl := table.MustNew([]string{"k", "v"}, [][]any{{"b", "a", "b"}, {1.0, 2.0, 3.0}})
	spec, err := ParseEntries([]string{"v:sum"})
	require.NoError(t, err)

	out, err := GroupBy(tbl, "k", spec)
	require.NoError(t, err)
	keys, _ := out.Column("k")
	assert.Equal(t, []any{"a", "b"}, keys)
	assert.Equal(t, 4.0, out.Value(1, "v_sum"))
}

func TestGroupBy_Errors(t *testing.T) {
	tbl := table.MustNew([]string{"k", "v"}, [][]any{{"a"}, {1.0}})
	spec, err := ParseEntries([]string{"v:sum"})
	require.NoError(t, err)

	_, err = GroupBy(tbl, "missing", spec)
	assert.True(t, errors.Is(err, table.ErrMissingColumn))

	missing, err := ParseEntries([]string{"w:sum"})
	require.NoError(t, err)
	_, err = GroupBy(tbl, "k", missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"w"`)

	dup := Spec{{Column: "v", Funcs: []Func{Sum, Reducer("sum", sum)}}}
	_, err = GroupBy(tbl, "k", dup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "v_sum")

	keyClash := table.MustNew([]string{"v_sum", "v"}, [][]any{{"a"}, {1.0}})
	_, err = GroupBy(keyClash, "v_sum", spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate output column")
}
