// Package join combines parcel geometry with dwelling-unit estimates and
// census statistics.
package join

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-analytics/internal/census"
	"github.com/sells-group/parcel-analytics/internal/geoid"
	"github.com/sells-group/parcel-analytics/internal/table"
)

// ErrDuplicateKey is returned when a join key repeats on a side that must be unique.
var ErrDuplicateKey = table.ErrDuplicateKey

// KeyColumn is the parcel identifier shared by parcels and estimates.
const KeyColumn = "REID"

// DefaultPrimaryKey identifies rows that carry parcel geometry.
const DefaultPrimaryKey = "OBJECTID_1"

// DefaultVintage is the geography vintage used for census joins.
const DefaultVintage = 2020

// EstimateColumns are the estimate attributes carried into the analytic dataset.
var EstimateColumns = []string{
	"designation",
	"housing_type",
	"du_est_final",
	"students2324",
	"students2223",
	"students2122",
	"students2021",
	"geo_id_b2010",
	"geo_id_b2020",
	"geo_id_bg2010",
	"geo_id_bg2020",
	"sch_id_base1819_es",
	"sch_id_base_es",
	"sch_id_gt_es",
	"sch_id_yr_es",
	"sch_id_yr_optout_es",
	"sch_id_zone",
	"sch_id_base_hs",
	"sch_id_gt_hs",
	"sch_id_base1819_ms",
	"sch_id_base_ms",
	"sch_id_gt_ms",
	"sch_id_yr_ms",
	"pu_2122_833",
	"pu_2324_848",
	"geo_id_t2010",
	"geo_id_t2020",
	"region",
	"TOTAL_PROP_VALUE",
}

// EstimateOptions configures Estimates.
type EstimateOptions struct {
	Columns    []string // estimate columns to keep; default EstimateColumns
	PrimaryKey string   // parcel column that must be non-null; default OBJECTID_1
}

// Estimates attaches estimate attributes to parcels. Every estimate row is
// kept in estimate order, then rows without a parcel primary key are dropped,
// so the result holds exactly the estimates whose REID exists in parcels.
func Estimates(parcels, estimates *table.Table, opts EstimateOptions) (*table.Table, error) {
	if len(opts.Columns) == 0 {
		opts.Columns = EstimateColumns
	}
	if opts.PrimaryKey == "" {
		opts.PrimaryKey = DefaultPrimaryKey
	}
	if !parcels.Has(opts.PrimaryKey) {
		return nil, eris.Wrapf(table.ErrMissingColumn, "join: parcels primary key %q", opts.PrimaryKey)
	}

	left, err := withStringKey(parcels, KeyColumn)
	if err != nil {
		return nil, eris.Wrap(err, "join: parcels")
	}

	keep := append([]string{KeyColumn}, opts.Columns...)
	right, err := estimates.Select(keep...)
	if err != nil {
		return nil, eris.Wrap(err, "join: estimates")
	}
	if right, err = withStringKey(right, KeyColumn); err != nil {
		return nil, eris.Wrap(err, "join: estimates")
	}

	leftIdx, err := left.KeyIndex(KeyColumn)
	if err != nil {
		return nil, eris.Wrap(err, "join: parcels")
	}
	if _, err := right.KeyIndex(KeyColumn); err != nil {
		return nil, eris.Wrap(err, "join: estimates")
	}

	rightKeys, _ := right.Column(KeyColumn)
	leftRows := make([]int, len(rightKeys))
	rightRows := make([]int, len(rightKeys))
	for r, v := range rightKeys {
		rightRows[r] = r
		leftRows[r] = -1
		if k, ok := table.Key(v); ok {
			if l, found := leftIdx[k]; found {
				leftRows[r] = l
			}
		}
	}

	merged, err := combine(left.Take(leftRows), right.Take(rightRows), KeyColumn)
	if err != nil {
		return nil, err
	}
	// Unmatched rows carry the estimate key in place of the missing parcel key.
	if merged, err = merged.WithColumn(KeyColumn, rightKeys); err != nil {
		return nil, err
	}

	pk, _ := merged.Column(opts.PrimaryKey)
	out := merged.Filter(func(r int) bool { return !table.IsNull(pk[r]) })

	zap.L().Info("joined estimates to parcels",
		zap.String("component", "join"),
		zap.Int("parcels", parcels.Len()),
		zap.Int("estimates", estimates.Len()),
		zap.Int("rows", out.Len()),
	)
	return out, nil
}

// CensusOptions configures Census.
type CensusOptions struct {
	Resolution census.Resolution
	Vintage    int // default 2020
}

// Census left-joins a census table onto the analytic dataset at one resolution.
// Census columns get the resolution suffix, the census identifier is dropped
// after the join and the row count of the analytic dataset is preserved.
func Census(analytic, tbl *table.Table, opts CensusOptions) (*table.Table, error) {
	if err := opts.Resolution.Validate(); err != nil {
		return nil, eris.Wrap(err, "join: census")
	}
	if opts.Vintage == 0 {
		opts.Vintage = DefaultVintage
	}

	leftKey := opts.Resolution.GeoColumn(opts.Vintage)
	leftVals, err := analytic.Column(leftKey)
	if err != nil {
		return nil, eris.Wrapf(err, "join: census %s", opts.Resolution)
	}

	conformed, err := census.Conform(tbl)
	if err != nil {
		return nil, eris.Wrapf(err, "join: census %s", opts.Resolution)
	}
	right := conformed.AddSuffix(opts.Resolution.Suffix())
	rightKey := census.IDColumn + opts.Resolution.Suffix()

	rightVals, _ := right.Column(rightKey)
	rightIdx := make(map[string]int, len(rightVals))
	for r, v := range rightVals {
		if table.IsNull(v) {
			continue
		}
		k := geoid.Normalize(v)
		if prior, dup := rightIdx[k]; dup {
			return nil, eris.Wrapf(ErrDuplicateKey, "join: census %s column %q value %q at rows %d and %d",
				opts.Resolution, census.IDColumn, k, prior, r)
		}
		rightIdx[k] = r
	}

	rightRows := make([]int, len(leftVals))
	matched := 0
	for r, v := range leftVals {
		rightRows[r] = -1
		if table.IsNull(v) {
			continue
		}
		if idx, ok := rightIdx[geoid.Normalize(v)]; ok {
			rightRows[r] = idx
			matched++
		}
	}

	out, err := combine(analytic, right.Take(rightRows), rightKey)
	if err != nil {
		return nil, eris.Wrapf(err, "join: census %s", opts.Resolution)
	}

	zap.L().Info("joined census estimates",
		zap.String("component", "join"),
		zap.String("resolution", opts.Resolution.String()),
		zap.String("key", leftKey),
		zap.Int("rows", out.Len()),
		zap.Int("matched", matched),
	)
	return out, nil
}

// Left joins right onto left by exact key value. Every left row is kept in
// order; right keys must be unique and the right key column is dropped. It
// returns the joined table and the number of left rows that matched.
func Left(left, right *table.Table, leftKey, rightKey string) (*table.Table, int, error) {
	leftVals, err := left.Column(leftKey)
	if err != nil {
		return nil, 0, eris.Wrap(err, "join: left")
	}
	rightIdx, err := right.KeyIndex(rightKey)
	if err != nil {
		return nil, 0, eris.Wrap(err, "join: left")
	}

	rows := make([]int, len(leftVals))
	matched := 0
	for r, v := range leftVals {
		rows[r] = -1
		if k, ok := table.Key(v); ok {
			if idx, hit := rightIdx[k]; hit {
				rows[r] = idx
				matched++
			}
		}
	}

	out, err := combine(left, right.Take(rows), rightKey)
	if err != nil {
		return nil, 0, err
	}
	return out, matched, nil
}

// withStringKey replaces the key column with its text form, keeping nulls so
// they never match. Text keys are kept verbatim, so "0100" and "100" differ.
func withStringKey(t *table.Table, name string) (*table.Table, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	keys := make([]any, len(col))
	for i, v := range col {
		if !table.IsNull(v) {
			keys[i] = table.AsString(v)
		}
	}
	return t.WithColumn(name, keys)
}

// combine places the columns of right (minus skip) after those of left. The two
// tables must already be row aligned. Names present on both sides get _x and _y.
func combine(left, right *table.Table, skip string) (*table.Table, error) {
	rightNames := make([]string, 0, right.Width())
	for _, n := range right.Names() {
		if n != skip {
			rightNames = append(rightNames, n)
		}
	}

	leftNames := left.Names()
	inLeft := make(map[string]bool, len(leftNames))
	for _, n := range leftNames {
		inLeft[n] = true
	}
	inRight := make(map[string]bool, len(rightNames))
	for _, n := range rightNames {
		inRight[n] = true
	}

	names := make([]string, 0, len(leftNames)+len(rightNames))
	cols := make([][]any, 0, cap(names))
	for _, n := range leftNames {
		col, _ := left.Column(n)
		if inRight[n] {
			n += "_x"
		}
		names = append(names, n)
		cols = append(cols, col)
	}
	for _, n := range rightNames {
		col, _ := right.Column(n)
		if inLeft[n] {
			n += "_y"
		}
		names = append(names, n)
		cols = append(cols, col)
	}

	out, err := table.New(names, cols)
	if err != nil {
		return nil, eris.Wrap(err, "join: combine columns")
	}
	return out, nil
}
