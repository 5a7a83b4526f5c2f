// Package clean reduces the joined parcel table to the analytic column set and
// removes parcels without dwelling units.
package clean

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-analytics/internal/census"
	"github.com/sells-group/parcel-analytics/internal/join"
	"github.com/sells-group/parcel-analytics/internal/table"
)

// DefaultEstimateColumn holds the dwelling-unit estimate that gates rows.
const DefaultEstimateColumn = "du_est_final"

// GeometryColumn is the name loaders give the parcel geometry.
const GeometryColumn = "geometry"

// ParcelColumns are the county parcel attributes kept in the analytic dataset.
var ParcelColumns = []string{
	"OBJECTID_1",
	"OBJECTID",
	"REID",
	"PIN",
	"PROPERTY_D",
	"LOCATION_A",
	"SPEC_DIST",
	"LAND_CLASS",
	"ACREAGE",
	"PROPERTY_O",
	"OWNER_MAIL",
	GeometryColumn,
}

// AnalyticColumnsV1 is the analytic dataset with tract and block group census
// estimates.
var AnalyticColumnsV1 = analyticColumns(census.Tract, census.BlockGroup)

// AnalyticColumnsV2 adds the block census estimates.
var AnalyticColumnsV2 = analyticColumns(census.Tract, census.BlockGroup, census.Block)

func analyticColumns(res ...census.Resolution) []string {
	out := make([]string, 0, len(ParcelColumns)+len(join.EstimateColumns)+7*len(res))
	out = append(out, ParcelColumns...)
	out = append(out, join.EstimateColumns...)
	for _, r := range res {
		out = append(out, census.SuffixedColumns(r)...)
	}
	return out
}

// ColumnSet returns a named analytic column set ("v1" or "v2").
func ColumnSet(version string) ([]string, error) {
	switch version {
	case "", "v1":
		return AnalyticColumnsV1, nil
	case "v2":
		return AnalyticColumnsV2, nil
	}
	return nil, eris.Errorf("clean: unknown column set %q (valid: v1, v2)", version)
}

// Options configures Clean.
type Options struct {
	Columns        []string // default AnalyticColumnsV1
	EstimateColumn string   // default du_est_final
}

// Clean selects the analytic columns and drops rows whose estimate is exactly
// zero. Null estimates are kept.
func Clean(t *table.Table, opts Options) (*table.Table, error) {
	if len(opts.Columns) == 0 {
		opts.Columns = AnalyticColumnsV1
	}
	if opts.EstimateColumn == "" {
		opts.EstimateColumn = DefaultEstimateColumn
	}

	subset, err := t.Select(opts.Columns...)
	if err != nil {
		return nil, eris.Wrap(err, "clean: select analytic columns")
	}
	est, err := subset.Column(opts.EstimateColumn)
	if err != nil {
		return nil, eris.Wrap(err, "clean: estimate column")
	}

	out := subset.Filter(func(r int) bool { return !isZero(est[r]) })

	zap.L().Info("cleaned analytic dataset",
		zap.String("component", "clean"),
		zap.Int("rows_in", t.Len()),
		zap.Int("rows_out", out.Len()),
		zap.Int("columns", out.Width()),
	)
	return out, nil
}

func isZero(v any) bool {
	if table.IsNull(v) {
		return false
	}
	if _, ok := v.(string); ok {
		return false
	}
	f, ok := table.AsFloat(v)
	return ok && f == 0
}

// StringifyTimes converts every time.Time cell to its RFC3339 text form.
func StringifyTimes(t *table.Table) (*table.Table, error) {
	out := t
	for _, name := range t.Names() {
		col, _ := t.Column(name)
		if !hasTime(col) {
			continue
		}
		conv := make([]any, len(col))
		for i, v := range col {
			if tm, ok := v.(time.Time); ok {
				conv[i] = tm.Format(time.RFC3339)
			} else {
				conv[i] = v
			}
		}
		var err error
		if out, err = out.WithColumn(name, conv); err != nil {
			return nil, eris.Wrapf(err, "clean: stringify %s", name)
		}
	}
	return out, nil
}

func hasTime(col []any) bool {
	for _, v := range col {
		if _, ok := v.(time.Time); ok {
			return true
		}
	}
	return false
}
