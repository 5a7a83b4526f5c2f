// Package aggregate rolls the analytic dataset up to a geographic key with
// per-column reducers and flattened <column>_<function> output names.
package aggregate

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-analytics/internal/table"
)

// GroupBy reduces t to one row per distinct non-null key value, sorted by key.
// The key column keeps its name; every (column, function) pair in spec yields
// a column named ColumnName(column, function).
func GroupBy(t *table.Table, key string, spec Spec) (*table.Table, error) {
	keyCol, err := t.Column(key)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: group key")
	}

	names := append([]string{key}, spec.OutputNames()...)
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, eris.Errorf("aggregate: duplicate output column %q", name)
		}
		seen[name] = true
	}

	inputs := make([][]any, 0, len(spec))
	for _, cs := range spec {
		col, err := t.Column(cs.Column)
		if err != nil {
			return nil, eris.Wrapf(err, "aggregate: by %s", key)
		}
		inputs = append(inputs, col)
	}

	groups := groupRows(keyCol)

	cols := make([][]any, len(names))
	for c := range cols {
		cols[c] = make([]any, len(groups))
	}
	for g, grp := range groups {
		cols[0][g] = grp.value
		c := 1
		for i, cs := range spec {
			vals := make([]any, len(grp.rows))
			for j, r := range grp.rows {
				vals[j] = inputs[i][r]
			}
			for _, f := range cs.Funcs {
				cols[c][g] = f.Reduce(vals)
				c++
			}
		}
	}

	out, err := table.New(names, cols)
	if err != nil {
		return nil, eris.Wrapf(err, "aggregate: by %s", key)
	}

	zap.L().Debug("aggregated",
		zap.String("component", "aggregate"),
		zap.String("key", key),
		zap.Int("rows_in", t.Len()),
		zap.Int("groups", out.Len()),
	)
	return out, nil
}

type group struct {
	key   string
	value any
	rows  []int
}

// groupRows buckets row indexes by key and orders the buckets: numerically when
// every key is a number, otherwise by key text.
func groupRows(keys []any) []*group {
	byKey := make(map[string]*group)
	var groups []*group
	numeric := true
	for r, v := range keys {
		k, ok := table.Key(v)
		if !ok {
			continue
		}
		g, found := byKey[k]
		if !found {
			g = &group{key: k, value: v}
			byKey[k] = g
			groups = append(groups, g)
			switch v.(type) {
			case int64, float64, int:
			default:
				numeric = false
			}
		}
		g.rows = append(g.rows, r)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if numeric {
			a, _ := table.AsFloat(groups[i].value)
			b, _ := table.AsFloat(groups[j].value)
			return a < b
		}
		return strings.Compare(groups[i].key, groups[j].key) < 0
	})
	return groups
}
