package layer

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/parcel-analytics/internal/table"
)

// FieldType is the storage type of an exported column.
type FieldType int

// Field types.
const (
	Text FieldType = iota
	Integer
	Real
	Geometry
)

// GeometryType is the declared type of every exported geometry column.
const GeometryType = "MULTIPOLYGON"

func (ft FieldType) String() string {
	switch ft {
	case Integer:
		return "Integer"
	case Real:
		return "Real"
	case Geometry:
		return "Geometry"
	}
	return "Text"
}

// Field describes one exported column.
type Field struct {
	Name string
	Type FieldType
}

// InferSchema types each column from its non-null values: only integers is
// Integer, integers and float64 is Real, anything else present makes the
// column Text. All-null columns are Text. The geometry column, when named, is
// typed Geometry.
func InferSchema(t *table.Table, geometry string) []Field {
	names := t.Names()
	fields := make([]Field, len(names))
	for i, name := range names {
		fields[i] = Field{Name: name, Type: Text}
		if name == geometry && geometry != "" {
			fields[i].Type = Geometry
			continue
		}

		col, _ := t.Column(name)
		var ints, floats, other bool
		for _, v := range col {
			if table.IsNull(v) {
				continue
			}
			switch v.(type) {
			case int64, int, int32:
				ints = true
			case float64:
				floats = true
			default:
				other = true
			}
			if other {
				break
			}
		}
		switch {
		case other:
		case floats:
			fields[i].Type = Real
		case ints:
			fields[i].Type = Integer
		}
	}
	return fields
}

// ToMultiPolygon promotes polygons to multi-polygons. Nil stays nil and other
// geometry types are rejected.
func ToMultiPolygon(g any) (*geom.MultiPolygon, error) {
	switch x := g.(type) {
	case nil:
		return nil, nil
	case *geom.MultiPolygon:
		if x == nil {
			return nil, nil
		}
		return x, nil
	case *geom.Polygon:
		if x == nil {
			return nil, nil
		}
		mp := geom.NewMultiPolygon(x.Layout()).SetSRID(x.SRID())
		if err := mp.Push(x); err != nil {
			return nil, eris.Wrap(err, "layer: promote polygon")
		}
		return mp, nil
	}
	return nil, eris.Errorf("layer: geometry %T is not a polygon", g)
}

// convert renders a cell for storage under the field's type.
func convert(f Field, v any) any {
	if table.IsNull(v) {
		return nil
	}
	switch f.Type {
	case Integer:
		if n, ok := table.AsInt(v); ok {
			return n
		}
	case Real:
		if x, ok := table.AsFloat(v); ok {
			return x
		}
	case Text:
		return table.AsString(v)
	}
	return nil
}
