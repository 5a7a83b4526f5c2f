// Package layer attaches aggregated statistics to geometry layers and writes
// the result to a GeoPackage file or a PostGIS schema.
package layer

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-analytics/internal/geoid"
	"github.com/sells-group/parcel-analytics/internal/join"
	"github.com/sells-group/parcel-analytics/internal/table"
)

// ErrDuplicateKey is returned when the aggregated side of a merge repeats a key.
var ErrDuplicateKey = join.ErrDuplicateKey

// CRS identifies the coordinate reference system of a layer.
type CRS struct {
	SRID int    // EPSG code, 0 when unknown
	WKT  string // definition as read from the source, may be empty
}

// Layer is a named table with an optional geometry column.
type Layer struct {
	Name     string
	Table    *table.Table
	Geometry string // geometry column name, "" for attribute-only layers
	Key      string // identifier column, used as primary key by sinks that need one
	CRS      CRS
}

// Sink receives finished layers. Implementations own their connection or
// file and release it on Close.
type Sink interface {
	WriteLayer(ctx context.Context, l *Layer) error
	Close() error
}

// MergeOptions configures Merge.
type MergeOptions struct {
	GeometryKey  string // identifier column of the geometry layer
	AggregateKey string // identifier column of the aggregated table
	Name         string // output layer name; default the geometry layer name
}

// Merge left-joins aggregated statistics onto a geometry layer. Both key
// columns are coerced to integers and rows with a null key are dropped from
// both sides first. The result keeps the geometry layer's CRS and every
// remaining geometry row, with nulls where no aggregate matched.
func Merge(geo *Layer, agg *table.Table, opts MergeOptions) (*Layer, error) {
	if geo == nil || geo.Table == nil {
		return nil, eris.New("layer: merge: nil geometry layer")
	}
	if opts.Name == "" {
		opts.Name = geo.Name
	}

	left, err := coerceKey(geo.Table, opts.GeometryKey)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: merge %s", opts.Name)
	}
	right, err := coerceKey(agg, opts.AggregateKey)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: merge %s", opts.Name)
	}

	out, matched, err := join.Left(left, right, opts.GeometryKey, opts.AggregateKey)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: merge %s", opts.Name)
	}

	zap.L().Info("layer merged",
		zap.String("component", "layer"),
		zap.String("layer", opts.Name),
		zap.Int("geometries", geo.Table.Len()),
		zap.Int("rows", out.Len()),
		zap.Int("matched", matched),
	)
	return &Layer{
		Name:     opts.Name,
		Table:    out,
		Geometry: geo.Geometry,
		Key:      opts.GeometryKey,
		CRS:      geo.CRS,
	}, nil
}

// coerceKey converts the key column to integers and drops rows whose key is null.
func coerceKey(t *table.Table, key string) (*table.Table, error) {
	col, err := t.Column(key)
	if err != nil {
		return nil, err
	}
	coerced, _ := geoid.CoerceInt(col)
	out, err := t.WithColumn(key, coerced)
	if err != nil {
		return nil, err
	}
	return out.Filter(func(r int) bool { return !table.IsNull(coerced[r]) }), nil
}
