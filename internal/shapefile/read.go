// Package shapefile reads ESRI shapefiles into tables with a go-geom geometry
// column, decoding DBF attributes by field type and .cpg charset.
package shapefile

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/parcel-analytics/internal/table"
)

// DefaultGeometryColumn names the geometry column of tables read from shapefiles.
const DefaultGeometryColumn = "geometry"

// Options configures Read.
type Options struct {
	GeometryColumn string // default "geometry"
	Encoding       string // DBF charset; overrides the .cpg sidecar
	SRID           int    // used when the .prj has no recognised code
}

// Info describes a shapefile that was read.
type Info struct {
	SRID     int    // EPSG code, 0 when unknown
	WKT      string // contents of the .prj sidecar
	Encoding string // charset used for text fields, "" for raw bytes
	Records  int
	Empty    int // records without usable geometry
}

// Read loads every record of the shapefile at path. Attribute columns follow
// DBF field order and the geometry column comes last.
func Read(path string, opts Options) (*table.Table, Info, error) {
	if opts.GeometryColumn == "" {
		opts.GeometryColumn = DefaultGeometryColumn
	}
	info := Info{SRID: opts.SRID}

	log := zap.L().With(
		zap.String("component", "shapefile"),
		zap.String("path", path),
	)

	base := strings.TrimSuffix(path, ".shp")
	if prj, err := os.ReadFile(base + ".prj"); err == nil {
		info.WKT = strings.TrimSpace(string(prj))
		if srid := DetectSRID(info.WKT); srid != 0 {
			info.SRID = srid
		}
	}

	info.Encoding = opts.Encoding
	if info.Encoding == "" {
		if cpg, err := os.ReadFile(base + ".cpg"); err == nil {
			info.Encoding = strings.TrimSpace(string(cpg))
		}
	}
	dec, err := decoder(info.Encoding)
	if err != nil {
		return nil, info, err
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, info, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		names = append(names, strings.TrimRight(f.String(), "\x00"))
	}
	names = append(names, opts.GeometryColumn)

	var rows [][]any
	for reader.Next() {
		_, shape := reader.Shape()

		row := make([]any, len(names))
		for i, f := range fields {
			v, err := parseField(f, reader.Attribute(i), dec)
			if err != nil {
				return nil, info, eris.Wrapf(err, "shapefile: record %d field %s", len(rows), names[i])
			}
			row[i] = v
		}

		g := ToGeom(shape, info.SRID)
		if g == nil {
			info.Empty++
		} else {
			row[len(fields)] = g
		}
		rows = append(rows, row)
	}
	if err := reader.Err(); err != nil {
		return nil, info, eris.Wrapf(err, "shapefile: read %s", path)
	}
	info.Records = len(rows)

	t, err := table.FromRows(names, rows)
	if err != nil {
		return nil, info, eris.Wrapf(err, "shapefile: build table from %s", path)
	}

	log.Info("shapefile read",
		zap.Int("records", info.Records),
		zap.Int("empty_geometries", info.Empty),
		zap.Int("srid", info.SRID),
		zap.String("encoding", info.Encoding),
	)
	return t, info, nil
}

// decoder resolves a .cpg charset label. Bare code page numbers such as "1252"
// are Windows code pages.
func decoder(label string) (*encoding.Decoder, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, nil
	}
	if _, err := strconv.Atoi(label); err == nil {
		label = "windows-" + label
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: unsupported charset %q", label)
	}
	return enc.NewDecoder(), nil
}

// parseField types a raw DBF attribute by its field type. Blank values are null.
func parseField(f shp.Field, raw string, dec *encoding.Decoder) (any, error) {
	raw = strings.TrimRight(raw, "\x00")
	s := strings.TrimSpace(raw)

	switch f.Fieldtype {
	case 'N', 'F':
		if s == "" || strings.Trim(s, "*") == "" {
			return nil, nil
		}
		if f.Fieldtype == 'N' && f.Precision == 0 {
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i, nil
			}
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "numeric value %q", s)
		}
		return v, nil
	case 'D':
		if s == "" || strings.Trim(s, "0") == "" {
			return nil, nil
		}
		d, err := time.Parse("20060102", s)
		if err != nil {
			return nil, eris.Wrapf(err, "date value %q", s)
		}
		return d, nil
	case 'L':
		switch s {
		case "T", "t", "Y", "y":
			return true, nil
		case "F", "f", "N", "n":
			return false, nil
		}
		return nil, nil
	}

	if s == "" {
		return nil, nil
	}
	if dec != nil {
		decoded, err := dec.String(s)
		if err != nil {
			return nil, eris.Wrapf(err, "decode text %q", s)
		}
		return decoded, nil
	}
	return s, nil
}

var (
	authorityRE = regexp.MustCompile(`AUTHORITY\["EPSG",\s*"?(\d+)"?\]\s*\]\s*$`)
	nameRE      = regexp.MustCompile(`^(PROJCS|GEOGCS)\["([^"]+)"`)
)

// crsByName maps the coordinate system names ESRI writes into .prj files to
// EPSG codes.
func crsByName(name string) int {
	switch name {
	case "GCS_WGS_1984", "WGS 84":
		return 4326
	case "GCS_North_American_1983", "NAD83":
		return 4269
	case "WGS_1984_Web_Mercator_Auxiliary_Sphere":
		return 3857
	case "NAD_1983_StatePlane_North_Carolina_FIPS_3200_Feet":
		return 2264
	case "NAD_1983_StatePlane_North_Carolina_FIPS_3200":
		return 32119
	}
	return 0
}

// DetectSRID returns the EPSG code described by projection WKT, or 0.
func DetectSRID(wkt string) int {
	wkt = strings.TrimSpace(wkt)
	if m := authorityRE.FindStringSubmatch(wkt); m != nil {
		if code, err := strconv.Atoi(m[1]); err == nil {
			return code
		}
	}
	if m := nameRE.FindStringSubmatch(wkt); m != nil {
		return crsByName(m[2])
	}
	return 0
}
