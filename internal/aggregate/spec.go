package aggregate

import (
	"io"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ColumnSpec lists the reducers applied to one column.
type ColumnSpec struct {
	Column string
	Funcs  []Func
}

// Spec is an ordered aggregation specification. Output columns follow its order.
type Spec []ColumnSpec

// ColumnName is the flattened name of a reduced column.
func ColumnName(column, fn string) string {
	return column + "_" + fn
}

// OutputNames returns the flattened column names the spec produces.
func (s Spec) OutputNames() []string {
	var out []string
	for _, cs := range s {
		for _, f := range cs.Funcs {
			out = append(out, ColumnName(cs.Column, f.Name()))
		}
	}
	return out
}

// ParseSpec builds a Spec from column → reducer names. Columns are sorted so
// the result does not depend on map iteration order.
func ParseSpec(m map[string][]string) (Spec, error) {
	cols := make([]string, 0, len(m))
	for c := range m {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	spec := make(Spec, 0, len(cols))
	for _, c := range cols {
		cs, err := columnSpec(c, m[c])
		if err != nil {
			return nil, err
		}
		spec = append(spec, cs)
	}
	return spec, nil
}

// ParseEntries builds a Spec from "column:fn1,fn2" entries, keeping entry order.
func ParseEntries(entries []string) (Spec, error) {
	spec := make(Spec, 0, len(entries))
	for _, e := range entries {
		col, fns, ok := strings.Cut(e, ":")
		col = strings.TrimSpace(col)
		if !ok || col == "" {
			return nil, eris.Errorf("aggregate: entry %q must look like column:fn[,fn]", e)
		}
		cs, err := columnSpec(col, strings.Split(fns, ","))
		if err != nil {
			return nil, err
		}
		spec = append(spec, cs)
	}
	return spec, nil
}

func columnSpec(column string, names []string) (ColumnSpec, error) {
	cs := ColumnSpec{Column: column}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		f, err := Lookup(n)
		if err != nil {
			return ColumnSpec{}, eris.Wrapf(err, "aggregate: column %q", column)
		}
		cs.Funcs = append(cs.Funcs, f)
	}
	if len(cs.Funcs) == 0 {
		return ColumnSpec{}, eris.Errorf("aggregate: column %q has no functions", column)
	}
	return cs, nil
}

// UnmarshalYAML decodes a mapping of column to reducer name or list of names,
// keeping document order.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return eris.Errorf("aggregate: line %d: spec must be a mapping", node.Line)
	}

	out := make(Spec, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]

		var names []string
		switch val.Kind {
		case yaml.ScalarNode:
			names = []string{val.Value}
		case yaml.SequenceNode:
			if err := val.Decode(&names); err != nil {
				return eris.Wrapf(err, "aggregate: line %d", val.Line)
			}
		default:
			return eris.Errorf("aggregate: line %d: column %q needs a function name or list", val.Line, key.Value)
		}

		cs, err := columnSpec(key.Value, names)
		if err != nil {
			return err
		}
		out = append(out, cs)
	}
	*s = out
	return nil
}

// LayerSpec pairs a grouping key with its aggregation.
type LayerSpec struct {
	Key  string
	Spec Spec
}

// LoadSpecs reads a YAML document mapping group key → column → reducers:
//
//	pu_2324_848:
//	  du_est_final: [sum, mean]
//	  TOTAL_PROP_VALUE: sum
//
// Keys and columns keep document order.
func LoadSpecs(r io.Reader) ([]LayerSpec, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, eris.Wrap(err, "aggregate: parse specs")
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, eris.Errorf("aggregate: line %d: specs must be a mapping", root.Line)
	}

	out := make([]LayerSpec, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		var spec Spec
		if err := root.Content[i+1].Decode(&spec); err != nil {
			return nil, eris.Wrapf(err, "aggregate: key %q", root.Content[i].Value)
		}
		out = append(out, LayerSpec{Key: root.Content[i].Value, Spec: spec})
	}
	return out, nil
}
