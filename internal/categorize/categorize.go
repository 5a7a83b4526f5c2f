// Package categorize derives per-unit property value and assigns quartile
// categories over the whole population and over designation subpopulations.
package categorize

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-analytics/internal/table"
)

// ErrEmptyPopulation is returned when breakpoints are requested for no values.
var ErrEmptyPopulation = eris.New("categorize: empty population")

// Output column names.
const (
	UnitValue          = "unit_val"
	UnitValueCat       = "unit_val_cat"
	UnitValueCatSingle = "unit_val_cat_single"
	UnitValueCatMulti  = "unit_val_cat_multi"
)

// Breakpoints are the 0, 25, 50, 75 and 100th percentiles of a population.
type Breakpoints [5]float64

// NewBreakpoints computes breakpoints with linear interpolation between closest
// ranks: for p in [0,1], h = (n-1)p and the value lies between the floor(h)-th
// and ceil(h)-th order statistics.
func NewBreakpoints(values []float64) (Breakpoints, error) {
	var b Breakpoints
	if len(values) == 0 {
		return b, ErrEmptyPopulation
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	for i, p := range []float64{0, 0.25, 0.5, 0.75, 1} {
		b[i] = quantile(sorted, p)
	}
	return b, nil
}

func quantile(sorted []float64, p float64) float64 {
	h := float64(len(sorted)-1) * p
	lo := int(h)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// Category places v in its quartile. Lower bounds are inclusive, so a value
// equal to a breakpoint lands in the higher category.
func Category(b Breakpoints, v float64) int {
	switch {
	case v >= b[3]:
		return 4
	case v >= b[2]:
		return 3
	case v >= b[1]:
		return 2
	}
	return 1
}

// Options configures Categorize.
type Options struct {
	ValueColumn       string // default TOTAL_PROP_VALUE
	UnitsColumn       string // default du_est_final
	DesignationColumn string // default designation
	KeyColumn         string // default REID
	Single            string // default "single"
	Multi             string // default "multi"
}

func (o *Options) defaults() {
	if o.ValueColumn == "" {
		o.ValueColumn = "TOTAL_PROP_VALUE"
	}
	if o.UnitsColumn == "" {
		o.UnitsColumn = "du_est_final"
	}
	if o.DesignationColumn == "" {
		o.DesignationColumn = "designation"
	}
	if o.KeyColumn == "" {
		o.KeyColumn = "REID"
	}
	if o.Single == "" {
		o.Single = "single"
	}
	if o.Multi == "" {
		o.Multi = "multi"
	}
}

// Categorize adds unit_val (value / units) and the overall, single-family and
// multi-family quartile categories. Subpopulation categories are computed on
// their subset and merged back by key; rows outside a subset get null. Rows
// with no unit value are placed in category 1.
//
// Rows must already exclude zero units.
func Categorize(t *table.Table, opts Options) (*table.Table, error) {
	opts.defaults()
	log := zap.L().With(zap.String("component", "categorize"))

	values, err := t.Column(opts.ValueColumn)
	if err != nil {
		return nil, eris.Wrap(err, "categorize: value column")
	}
	units, err := t.Column(opts.UnitsColumn)
	if err != nil {
		return nil, eris.Wrap(err, "categorize: units column")
	}
	designation, err := t.Column(opts.DesignationColumn)
	if err != nil {
		return nil, eris.Wrap(err, "categorize: designation column")
	}
	keys, err := t.Column(opts.KeyColumn)
	if err != nil {
		return nil, eris.Wrap(err, "categorize: key column")
	}

	unitVal := make([]any, t.Len())
	for r := range unitVal {
		unitVal[r] = divide(values[r], units[r])
	}

	all := make([]int, t.Len())
	for r := range all {
		all[r] = r
	}
	overall, ok := categories(unitVal, all)
	if !ok {
		log.Warn("no unit values to rank, every row falls in the first category",
			zap.Int("rows", t.Len()),
		)
	}

	out, err := t.WithColumn(UnitValue, unitVal)
	if err != nil {
		return nil, err
	}
	if out, err = out.WithColumn(UnitValueCat, overall); err != nil {
		return nil, err
	}

	for _, sub := range []struct{ column, designation string }{
		{UnitValueCatSingle, opts.Single},
		{UnitValueCatMulti, opts.Multi},
	} {
		rows := make([]int, 0, t.Len())
		for r, d := range designation {
			if s, ok := d.(string); ok && s == sub.designation {
				rows = append(rows, r)
			}
		}

		cats, ok := categories(unitVal, rows)
		if !ok {
			log.Warn("empty subpopulation",
				zap.String("designation", sub.designation),
				zap.Int("rows", len(rows)),
			)
		}

		merged, err := mergeByKey(keys, rows, cats)
		if err != nil {
			return nil, eris.Wrapf(err, "categorize: merge %s", sub.column)
		}
		if out, err = out.WithColumn(sub.column, merged); err != nil {
			return nil, err
		}
	}

	log.Info("categorized unit values", zap.Int("rows", out.Len()))
	return out, nil
}

// categories returns a full-length column holding the category of each row in
// rows, computed against the breakpoints of those rows only. Rows without a
// unit value compare below every breakpoint and get category 1. ok is false
// when no row has a unit value.
func categories(unitVal []any, rows []int) ([]any, bool) {
	pop := make([]float64, 0, len(rows))
	for _, r := range rows {
		if f, ok := table.AsFloat(unitVal[r]); ok {
			pop = append(pop, f)
		}
	}
	b, err := NewBreakpoints(pop)

	out := make([]any, len(unitVal))
	for _, r := range rows {
		out[r] = int64(1)
		if f, ok := table.AsFloat(unitVal[r]); ok && err == nil {
			out[r] = int64(Category(b, f))
		}
	}
	return out, err == nil
}

// mergeByKey maps subset categories back onto every row by key. A key repeated
// within the subset is an error.
func mergeByKey(keys []any, rows []int, cats []any) ([]any, error) {
	byKey := make(map[string]any, len(rows))
	for _, r := range rows {
		k, ok := table.Key(keys[r])
		if !ok {
			continue
		}
		if _, dup := byKey[k]; dup {
			return nil, eris.Wrapf(table.ErrDuplicateKey, "key %q", k)
		}
		byKey[k] = cats[r]
	}

	out := make([]any, len(keys))
	for r, v := range keys {
		if k, ok := table.Key(v); ok {
			out[r] = byKey[k]
		}
	}
	return out, nil
}

func divide(num, den any) any {
	n, ok1 := table.AsFloat(num)
	d, ok2 := table.AsFloat(den)
	if !ok1 || !ok2 || d == 0 {
		return nil
	}
	return n / d
}
