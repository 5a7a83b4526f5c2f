package layer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/parcel-analytics/internal/table"
)

func square(x, y float64) *geom.MultiPolygon {
	return geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{{{
		{x, y}, {x, y + 1}, {x + 1, y + 1}, {x + 1, y}, {x, y},
	}}}).SetSRID(4269)
}

func tracts(t *testing.T) *Layer {
	t.Helper()
	tbl, err := table.New(
		[]string{"GEOID", "NAMELSAD", "geometry"},
		[][]any{
			{"37063000100", "37063000200", nil, "37063000300"},
			{"Tract 1", "Tract 2", "Tract ?", "Tract 3"},
			{square(0, 0), square(1, 0), square(2, 0), square(3, 0)},
		},
	)
	require.NoError(t, err)
	return &Layer{Name: "tl_2020_37_tract", Table: tbl, Geometry: "geometry", CRS: CRS{SRID: 4269, WKT: "GEOGCS[...]"}}
}

func TestMerge(t *testing.T) {
	agg := table.MustNew(
		[]string{"GEOID_2020_t", "du_est_final_sum"},
		[][]any{
			{int64(37063000300), 37063000100.0, nil},
			{int64(7), int64(5), int64(9)},
		},
	)

	out, err := Merge(tracts(t), agg, MergeOptions{GeometryKey: "GEOID", AggregateKey: "GEOID_2020_t", Name: "tract"})
	require.NoError(t, err)

	assert.Equal(t, "tract", out.Name)
	assert.Equal(t, "geometry", out.Geometry)
	assert.Equal(t, "GEOID", out.Key)
	assert.Equal(t, CRS{SRID: 4269, WKT: "GEOGCS[...]"}, out.CRS)
	assert.Equal(t, []string{"GEOID", "NAMELSAD", "geometry", "du_est_final_sum"}, out.Table.Names())

	require.Equal(t, 3, out.Table.Len(), "null geometry key dropped")
	assert.Equal(t, int64(37063000100), out.Table.Value(0, "GEOID"))
	assert.Equal(t, int64(5), out.Table.Value(0, "du_est_final_sum"))
	assert.Nil(t, out.Table.Value(1, "du_est_final_sum"), "unmatched geometry keeps null statistics")
	assert.Equal(t, int64(7), out.Table.Value(2, "du_est_final_sum"))
}

func TestMerge_Errors(t *testing.T) {
	dup := table.MustNew([]string{"GEOID_2020_t"}, [][]any{{"37063000100", int64(37063000100)}})
	_, err := Merge(tracts(t), dup, MergeOptions{GeometryKey: "GEOID", AggregateKey: "GEOID_2020_t"})
	assert.True(t, errors.Is(err, ErrDuplicateKey))

	_, err = Merge(tracts(t), dup, MergeOptions{GeometryKey: "GEOID20", AggregateKey: "GEOID_2020_t"})
	assert.True(t, errors.Is(err, table.ErrMissingColumn))

	_, err = Merge(nil, dup, MergeOptions{})
	assert.Error(t, err)
}

func TestInferSchema(t *testing.T) {
	tbl := table.MustNew(
		[]string{"id", "widened", "name", "mixed", "empty", "geometry"},
		[][]any{
			{nil, int64(1), int64(2)},
			{int64(1), 2.5, nil},
			{"a", int64(2), nil},
			{int64(5), "A12", 3.5},
			{nil, nil, nil},
			{square(0, 0), nil, nil},
		},
	)

	fields := InferSchema(tbl, "geometry")
	assert.Equal(t, []Field{
		{Name: "id", Type: Integer},
		{Name: "widened", Type: Real},
		{Name: "name", Type: Text},
		{Name: "mixed", Type: Text},
		{Name: "empty", Type: Text},
		{Name: "geometry", Type: Geometry},
	}, fields)
	assert.Equal(t, "Real", Real.String())

	// Integers in a text column keep their value.
	assert.Equal(t, "5", convert(fields[3], int64(5)))
	assert.Equal(t, "A12", convert(fields[3], "A12"))
}

func TestToMultiPolygon(t *testing.T) {
	mp, err := ToMultiPolygon(nil)
	require.NoError(t, err)
	assert.Nil(t, mp)

	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{0, 0}, {0, 1}, {1, 1}, {0, 0}}}).SetSRID(4326)
	mp, err = ToMultiPolygon(poly)
	require.NoError(t, err)
	assert.Equal(t, 1, mp.NumPolygons())
	assert.Equal(t, 4326, mp.SRID())

	same := square(0, 0)
	mp, err = ToMultiPolygon(same)
	require.NoError(t, err)
	assert.Same(t, same, mp)

	_, err = ToMultiPolygon(geom.NewPointFlat(geom.XY, []float64{1, 2}))
	assert.Error(t, err)
}
