package layer

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	gpkgApplicationID = 0x47504B47 // "GPKG"
	gpkgUserVersion   = 10300
)

const gpkgMigration = `
CREATE TABLE IF NOT EXISTS gpkg_spatial_ref_sys (
	srs_name                 TEXT NOT NULL,
	srs_id                   INTEGER PRIMARY KEY,
	organization             TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT NOT NULL,
	description              TEXT
);

CREATE TABLE IF NOT EXISTS gpkg_contents (
	table_name  TEXT NOT NULL PRIMARY KEY,
	data_type   TEXT NOT NULL,
	identifier  TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x       DOUBLE,
	min_y       DOUBLE,
	max_x       DOUBLE,
	max_y       DOUBLE,
	srs_id      INTEGER REFERENCES gpkg_spatial_ref_sys(srs_id)
);

CREATE TABLE IF NOT EXISTS gpkg_geometry_columns (
	table_name         TEXT NOT NULL REFERENCES gpkg_contents(table_name),
	column_name        TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id             INTEGER NOT NULL REFERENCES gpkg_spatial_ref_sys(srs_id),
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL,
	PRIMARY KEY (table_name, column_name)
);

INSERT OR IGNORE INTO gpkg_spatial_ref_sys VALUES
	('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
	('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system');
`

// GeoPackageOptions configures OpenGeoPackage.
type GeoPackageOptions struct {
	Overwrite   bool   // remove an existing file first
	Description string // recorded on every layer in gpkg_contents
}

// GeoPackage writes layers as tables of a single GeoPackage file.
type GeoPackage struct {
	db   *sql.DB
	path string
	opts GeoPackageOptions
}

var _ Sink = (*GeoPackage)(nil)

// OpenGeoPackage opens or creates the GeoPackage at path and ensures the
// metadata tables exist. Layers already in the file are kept unless
// opts.Overwrite is set.
func OpenGeoPackage(ctx context.Context, path string, opts GeoPackageOptions) (*GeoPackage, error) {
	if opts.Overwrite {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, eris.Wrapf(err, "gpkg: remove %s", path)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: open")
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA application_id=" + strconv.Itoa(gpkgApplicationID),
		"PRAGMA user_version=" + strconv.Itoa(gpkgUserVersion),
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "gpkg: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, gpkgMigration); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "gpkg: migrate")
	}
	return &GeoPackage{db: db, path: path, opts: opts}, nil
}

// Path returns the file the sink writes to.
func (g *GeoPackage) Path() string { return g.path }

// Close closes the underlying database.
func (g *GeoPackage) Close() error {
	return g.db.Close()
}

// WriteLayer replaces the table named l.Name with the layer's rows. Geometry
// columns are stored as MULTIPOLYGON in GeoPackage binary encoding.
func (g *GeoPackage) WriteLayer(ctx context.Context, l *Layer) error {
	if l == nil || l.Table == nil || l.Name == "" {
		return eris.New("gpkg: layer needs a name and a table")
	}
	if l.Geometry != "" && !l.Table.Has(l.Geometry) {
		return eris.Errorf("gpkg: layer %s: geometry column %q not found", l.Name, l.Geometry)
	}

	log := zap.L().With(
		zap.String("component", "gpkg"),
		zap.String("layer", l.Name),
	)
	fields := InferSchema(l.Table, l.Geometry)
	srsID := l.CRS.SRID
	if srsID == 0 {
		srsID = -1
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "gpkg: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := registerSRS(ctx, tx, srsID, l.CRS.WKT); err != nil {
		return err
	}

	quoted := quoteIdent(l.Name)
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS " + quoted,
		"DELETE FROM gpkg_geometry_columns WHERE table_name = ?",
		"DELETE FROM gpkg_contents WHERE table_name = ?",
	} {
		var args []any
		if strings.Contains(stmt, "?") {
			args = append(args, l.Name)
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return eris.Wrapf(err, "gpkg: layer %s: clear", l.Name)
		}
	}

	if _, err := tx.ExecContext(ctx, createTableSQL(l.Name, fields)); err != nil {
		return eris.Wrapf(err, "gpkg: layer %s: create table", l.Name)
	}

	cols := make([]string, len(fields))
	marks := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = quoteIdent(f.Name)
		marks[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+quoted+" ("+strings.Join(cols, ", ")+") VALUES ("+strings.Join(marks, ", ")+")")
	if err != nil {
		return eris.Wrapf(err, "gpkg: layer %s: prepare insert", l.Name)
	}
	defer stmt.Close() //nolint:errcheck

	var bounds *geom.Bounds
	args := make([]any, len(fields))
	for r := 0; r < l.Table.Len(); r++ {
		for i, f := range fields {
			v := l.Table.Value(r, f.Name)
			if f.Type != Geometry {
				args[i] = convert(f, v)
				continue
			}
			mp, err := ToMultiPolygon(v)
			if err != nil {
				return eris.Wrapf(err, "gpkg: layer %s row %d", l.Name, r)
			}
			if mp == nil {
				args[i] = nil
				continue
			}
			b, err := EncodeGeometry(mp, srsID)
			if err != nil {
				return eris.Wrapf(err, "gpkg: layer %s row %d", l.Name, r)
			}
			args[i] = b
			if !mp.Empty() {
				if bounds == nil {
					bounds = mp.Bounds()
				} else {
					bounds.Extend(mp)
				}
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "gpkg: layer %s: insert row %d", l.Name, r)
		}
	}

	dataType := "attributes"
	if l.Geometry != "" {
		dataType = "features"
	}
	var minX, minY, maxX, maxY any
	if bounds != nil {
		minX, minY, maxX, maxY = bounds.Min(0), bounds.Min(1), bounds.Max(0), bounds.Max(1)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, description, last_change, min_x, min_y, max_x, max_y, srs_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.Name, dataType, l.Name, g.opts.Description,
		time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		minX, minY, maxX, maxY, srsID,
	); err != nil {
		return eris.Wrapf(err, "gpkg: layer %s: register contents", l.Name)
	}

	if l.Geometry != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m) VALUES (?, ?, ?, ?, 0, 0)`,
			l.Name, l.Geometry, GeometryType, srsID,
		); err != nil {
			return eris.Wrapf(err, "gpkg: layer %s: register geometry column", l.Name)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrapf(err, "gpkg: layer %s: commit", l.Name)
	}

	log.Info("layer written",
		zap.String("path", g.path),
		zap.Int("rows", l.Table.Len()),
		zap.Int("fields", len(fields)),
		zap.Int("srs_id", srsID),
	)
	return nil
}

func registerSRS(ctx context.Context, tx *sql.Tx, srsID int, wkt string) error {
	if srsID <= 0 {
		return nil
	}
	if wkt == "" {
		wkt = "undefined"
	}
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO gpkg_spatial_ref_sys (srs_name, srs_id, organization, organization_coordsys_id, definition)
		 VALUES (?, ?, 'EPSG', ?, ?)`,
		"EPSG:"+strconv.Itoa(srsID), srsID, srsID, wkt,
	)
	return eris.Wrapf(err, "gpkg: register srs %d", srsID)
}

// createTableSQL builds the feature table. The primary key is "fid" unless a
// data column already uses that name.
func createTableSQL(name string, fields []Field) string {
	pk := "fid"
	for _, f := range fields {
		if strings.EqualFold(f.Name, pk) {
			pk = "gpkg_fid"
			break
		}
	}

	defs := []string{quoteIdent(pk) + " INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL"}
	for _, f := range fields {
		var typ string
		switch f.Type {
		case Integer:
			typ = "INTEGER"
		case Real:
			typ = "REAL"
		case Geometry:
			typ = GeometryType
		default:
			typ = "TEXT"
		}
		defs = append(defs, quoteIdent(f.Name)+" "+typ)
	}
	return "CREATE TABLE " + quoteIdent(name) + " (\n\t" + strings.Join(defs, ",\n\t") + "\n)"
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// EncodeGeometry encodes g as a GeoPackage binary blob: the "GP" header with
// an XY envelope followed by little-endian WKB.
func EncodeGeometry(g geom.T, srsID int) ([]byte, error) {
	body, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: encode wkb")
	}

	flags := byte(0x01) // little endian
	var envelope []float64
	if g.Empty() {
		flags |= 0x10
	} else {
		b := g.Bounds()
		flags |= 0x01 << 1
		envelope = []float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)}
	}

	out := make([]byte, 8+8*len(envelope), 8+8*len(envelope)+len(body))
	out[0], out[1], out[2], out[3] = 'G', 'P', 0, flags
	binary.LittleEndian.PutUint32(out[4:8], uint32(int32(srsID)))
	for i, v := range envelope {
		binary.LittleEndian.PutUint64(out[8+8*i:], math.Float64bits(v))
	}
	return append(out, body...), nil
}

// DecodeGeometry parses a GeoPackage binary blob back into a geometry tagged
// with the header's srs id.
func DecodeGeometry(b []byte) (geom.T, error) {
	if len(b) < 8 || b[0] != 'G' || b[1] != 'P' {
		return nil, eris.New("gpkg: not a geopackage geometry")
	}
	flags := b[3]
	var order binary.ByteOrder = binary.BigEndian
	if flags&0x01 != 0 {
		order = binary.LittleEndian
	}
	srsID := int(int32(order.Uint32(b[4:8])))

	var envelopeLen int
	switch (flags >> 1) & 0x07 {
	case 0:
	case 1:
		envelopeLen = 32
	case 2, 3:
		envelopeLen = 48
	case 4:
		envelopeLen = 64
	default:
		return nil, eris.Errorf("gpkg: invalid envelope indicator in flags %#x", flags)
	}
	if len(b) < 8+envelopeLen {
		return nil, eris.New("gpkg: truncated geometry header")
	}

	g, err := wkb.Unmarshal(b[8+envelopeLen:])
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: decode wkb")
	}
	return setSRID(g, srsID), nil
}

func setSRID(g geom.T, srid int) geom.T {
	switch x := g.(type) {
	case *geom.MultiPolygon:
		return x.SetSRID(srid)
	case *geom.Polygon:
		return x.SetSRID(srid)
	case *geom.Point:
		return x.SetSRID(srid)
	case *geom.MultiLineString:
		return x.SetSRID(srid)
	}
	return g
}

// Summary describes one layer stored in a GeoPackage.
type Summary struct {
	Name           string
	DataType       string
	Description    string
	SRID           int
	GeometryColumn string
	Rows           int64
}

// ListLayers reports the layers registered in the GeoPackage at path in name
// order.
func ListLayers(ctx context.Context, path string) ([]Summary, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "gpkg: stat %s", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: open")
	}
	defer db.Close() //nolint:errcheck

	rows, err := db.QueryContext(ctx, `
		SELECT c.table_name, c.data_type, COALESCE(c.description, ''), COALESCE(c.srs_id, -1), COALESCE(g.column_name, '')
		FROM gpkg_contents c
		LEFT JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
		ORDER BY c.table_name`)
	if err != nil {
		return nil, eris.Wrapf(err, "gpkg: list layers in %s", path)
	}
	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.Name, &s.DataType, &s.Description, &s.SRID, &s.GeometryColumn); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "gpkg: scan layer")
		}
		out = append(out, s)
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "gpkg: list layers")
	}

	for i := range out {
		q := "SELECT COUNT(*) FROM " + quoteIdent(out[i].Name)
		if err := db.QueryRowContext(ctx, q).Scan(&out[i].Rows); err != nil {
			return nil, eris.Wrapf(err, "gpkg: count %s", out[i].Name)
		}
	}
	return out, nil
}
