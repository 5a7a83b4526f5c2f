package shapefile

import (
	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// ToGeom converts a go-shp shape to a go-geom geometry tagged with srid.
// Returns nil for null, empty or unsupported shapes.
func ToGeom(shape shp.Shape, srid int) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(srid)
	case *shp.PolyLine:
		if g := polyLineToMultiLineString(s); g != nil {
			return g.SetSRID(srid)
		}
	case *shp.Polygon:
		if g := PolygonToMultiPolygon(s); g != nil {
			return g.SetSRID(srid)
		}
	}
	return nil
}

// rings splits the flat point list of a multi-part shape into one flat
// coordinate slice per part.
func rings(parts []int32, points []shp.Point) [][]float64 {
	out := make([][]float64, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || start >= end {
			continue
		}
		flat := make([]float64, 0, 2*(end-start))
		for _, p := range points[start:end] {
			flat = append(flat, p.X, p.Y)
		}
		out = append(out, flat)
	}
	return out
}

func polyLineToMultiLineString(pl *shp.PolyLine) *geom.MultiLineString {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}

	mls := geom.NewMultiLineString(geom.XY)
	for i, flat := range rings(pl.Parts, pl.Points) {
		if err := mls.Push(geom.NewLineStringFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("shapefile: skipping malformed linestring part", zap.Int("part", i), zap.Error(err))
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// PolygonToMultiPolygon converts a shapefile polygon to a MultiPolygon.
// Clockwise rings are shells; counter-clockwise rings are holes and attach to
// the shell containing their first vertex, or to the preceding shell.
func PolygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var polys []*geom.Polygon
	var shells [][]float64
	for i, flat := range rings(p.Parts, p.Points) {
		if len(flat) < 8 {
			zap.L().Debug("shapefile: skipping degenerate ring", zap.Int("part", i))
			continue
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		if len(polys) > 0 && xy.IsRingCounterClockwise(geom.XY, flat) {
			owner := len(polys) - 1
			first := geom.Coord{flat[0], flat[1]}
			for j, shell := range shells {
				if xy.IsPointInRing(geom.XY, first, shell) {
					owner = j
					break
				}
			}
			if err := polys[owner].Push(ring); err != nil {
				zap.L().Debug("shapefile: skipping malformed hole", zap.Int("part", i), zap.Error(err))
			}
			continue
		}

		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("shapefile: skipping malformed shell", zap.Int("part", i), zap.Error(err))
			continue
		}
		polys = append(polys, poly)
		shells = append(shells, flat)
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for i, poly := range polys {
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("shapefile: skipping malformed polygon", zap.Int("part", i), zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
