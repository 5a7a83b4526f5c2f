package aggregate

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/parcel-analytics/internal/table"
)

// Func reduces the values of one column within one group to a single cell.
type Func interface {
	Name() string
	Reduce(values []any) any
}

type reducer struct {
	name string
	fn   func(values []any) any
}

func (r reducer) Name() string            { return r.name }
func (r reducer) Reduce(values []any) any { return r.fn(values) }

// Reducer wraps a closure as a named Func.
func Reducer(name string, fn func(values []any) any) Func {
	return reducer{name: name, fn: fn}
}

// Built-in reducers. Nulls and non-numeric values are ignored; a group with
// no numeric values reduces to null, except Sum which reduces to 0.
var (
	Sum       = Reducer("sum", sum)
	Mean      = Reducer("mean", numeric(func(x []float64) any { return stat.Mean(x, nil) }))
	Median    = Reducer("median", numeric(median))
	Min       = Reducer("min", extreme(floats.Min, func(a, b int64) bool { return a < b }))
	Max       = Reducer("max", extreme(floats.Max, func(a, b int64) bool { return a > b }))
	Std       = Reducer("std", numeric(std))
	MeanRound = Reducer("mean_round", numeric(meanRound))
)

var builtins = map[string]Func{
	Sum.Name():       Sum,
	Mean.Name():      Mean,
	Median.Name():    Median,
	Min.Name():       Min,
	Max.Name():       Max,
	Std.Name():       Std,
	MeanRound.Name(): MeanRound,
}

// Names lists the reducers Lookup resolves, sorted.
func Names() []string {
	out := make([]string, 0, len(builtins))
	for name := range builtins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Lookup resolves a reducer by name.
func Lookup(name string) (Func, error) {
	f, ok := builtins[name]
	if !ok {
		return nil, eris.Errorf("aggregate: unknown function %q (valid: %v)", name, Names())
	}
	return f, nil
}

// numeric adapts a float reducer; empty input yields null.
func numeric(fn func(x []float64) any) func([]any) any {
	return func(values []any) any {
		x := table.Floats(values)
		if len(x) == 0 {
			return nil
		}
		return fn(x)
	}
}

// allInts reports whether every non-null value is an int64 and returns them.
func allInts(values []any) ([]int64, bool) {
	out := make([]int64, 0, len(values))
	for _, v := range values {
		if table.IsNull(v) {
			continue
		}
		i, ok := v.(int64)
		if !ok {
			return nil, false
		}
		out = append(out, i)
	}
	return out, true
}

func sum(values []any) any {
	if ints, ok := allInts(values); ok && len(ints) > 0 {
		var total int64
		for _, i := range ints {
			total += i
		}
		return total
	}
	x := table.Floats(values)
	if len(x) == 0 {
		return 0.0
	}
	return floats.Sum(x)
}

func extreme(fn func([]float64) float64, better func(a, b int64) bool) func([]any) any {
	return func(values []any) any {
		if ints, ok := allInts(values); ok && len(ints) > 0 {
			best := ints[0]
			for _, i := range ints[1:] {
				if better(i, best) {
					best = i
				}
			}
			return best
		}
		x := table.Floats(values)
		if len(x) == 0 {
			return nil
		}
		return fn(x)
	}
}

func median(x []float64) any {
	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// std is the sample standard deviation; one value has none.
func std(x []float64) any {
	if len(x) < 2 {
		return nil
	}
	return stat.StdDev(x, nil)
}

// meanRound rounds half to even, matching Python's round.
func meanRound(x []float64) any {
	return int64(math.RoundToEven(stat.Mean(x, nil)))
}
