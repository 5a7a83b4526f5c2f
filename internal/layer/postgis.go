package layer

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-analytics/internal/db"
)

// PostGIS write modes.
const (
	ModeReplace = "replace"
	ModeUpsert  = "upsert"
)

// PostGISOptions configures the PostGIS sink.
type PostGISOptions struct {
	Schema    string // default "public"
	Mode      string // ModeReplace (default) or ModeUpsert
	BatchSize int    // rows per COPY; default db.DefaultBatchSize
}

// PostGIS writes each layer as a table of one schema.
type PostGIS struct {
	pool  db.Pool
	opts  PostGISOptions
	close func()
}

var _ Sink = (*PostGIS)(nil)

// NewPostGIS returns a sink writing through pool. Close leaves pool open.
func NewPostGIS(pool db.Pool, opts PostGISOptions) (*PostGIS, error) {
	if opts.Schema == "" {
		opts.Schema = "public"
	}
	switch opts.Mode {
	case "":
		opts.Mode = ModeReplace
	case ModeReplace, ModeUpsert:
	default:
		return nil, eris.Errorf("postgis: unknown mode %q (want %s or %s)", opts.Mode, ModeReplace, ModeUpsert)
	}
	return &PostGIS{pool: pool, opts: opts}, nil
}

// OpenPostGIS connects to url and returns a sink that owns the pool.
func OpenPostGIS(ctx context.Context, url string, opts PostGISOptions) (*PostGIS, error) {
	pool, err := db.Connect(ctx, url, 4)
	if err != nil {
		return nil, eris.Wrap(err, "postgis: connect")
	}
	p, err := NewPostGIS(pool, opts)
	if err != nil {
		pool.Close()
		return nil, err
	}
	p.close = pool.Close
	return p, nil
}

// Close releases the pool when the sink opened it.
func (p *PostGIS) Close() error {
	if p.close != nil {
		p.close()
	}
	return nil
}

// WriteLayer creates the layer table and loads its rows. In replace mode the
// table is dropped and recreated inside one transaction. In upsert mode the
// table is created when missing, keyed on l.Key, and rows are merged into it.
func (p *PostGIS) WriteLayer(ctx context.Context, l *Layer) error {
	if l == nil || l.Table == nil || l.Name == "" {
		return eris.New("postgis: layer needs a name and a table")
	}
	if p.opts.Mode == ModeUpsert && l.Key == "" {
		return eris.Errorf("postgis: layer %s: upsert needs a key column", l.Name)
	}

	fields := InferSchema(l.Table, l.Geometry)
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}
	rows, err := copyRows(l, fields)
	if err != nil {
		return err
	}

	log := zap.L().With(
		zap.String("component", "postgis"),
		zap.String("layer", p.opts.Schema+"."+l.Name),
		zap.String("mode", p.opts.Mode),
	)

	schemaSQL := "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{p.opts.Schema}.Sanitize()
	var n int64

	if p.opts.Mode == ModeUpsert {
		if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
			return eris.Wrapf(err, "postgis: create schema %s", p.opts.Schema)
		}
		if _, err := p.pool.Exec(ctx, createTablePG(p.opts.Schema, l, fields, true)); err != nil {
			return eris.Wrapf(err, "postgis: create table %s.%s", p.opts.Schema, l.Name)
		}
		n, err = db.BulkUpsert(ctx, p.pool, db.UpsertConfig{
			Table:        p.opts.Schema + "." + l.Name,
			Columns:      columns,
			ConflictKeys: []string{l.Key},
		}, rows)
		if err != nil {
			return eris.Wrapf(err, "postgis: layer %s", l.Name)
		}
	} else {
		tx, err := p.pool.Begin(ctx)
		if err != nil {
			return eris.Wrap(err, "postgis: begin tx")
		}
		defer tx.Rollback(ctx) //nolint:errcheck

		for _, stmt := range []string{
			schemaSQL,
			"DROP TABLE IF EXISTS " + pgx.Identifier{p.opts.Schema, l.Name}.Sanitize(),
			createTablePG(p.opts.Schema, l, fields, false),
		} {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return eris.Wrapf(err, "postgis: layer %s: %s", l.Name, firstWords(stmt))
			}
		}
		n, err = db.CopyBatches(ctx, tx, p.opts.Schema, l.Name, columns, rows, p.opts.BatchSize)
		if err != nil {
			return eris.Wrapf(err, "postgis: layer %s", l.Name)
		}
		if err := tx.Commit(ctx); err != nil {
			return eris.Wrapf(err, "postgis: layer %s: commit", l.Name)
		}
	}

	log.Info("layer written", zap.Int("rows", l.Table.Len()), zap.Int64("affected", n))
	return nil
}

// copyRows converts the layer to COPY rows with EWKB geometries. fields come
// from InferSchema and follow the table's column order.
func copyRows(l *Layer, fields []Field) ([][]any, error) {
	rows := l.Table.Rows()
	for r, row := range rows {
		for i, f := range fields {
			if f.Type != Geometry {
				row[i] = convert(f, row[i])
				continue
			}
			mp, err := ToMultiPolygon(row[i])
			if err != nil {
				return nil, eris.Wrapf(err, "postgis: layer %s row %d", l.Name, r)
			}
			if mp == nil {
				row[i] = nil
				continue
			}
			if mp.SRID() != l.CRS.SRID {
				mp = mp.Clone().SetSRID(l.CRS.SRID)
			}
			b, err := ewkb.Marshal(mp, ewkb.NDR)
			if err != nil {
				return nil, eris.Wrapf(err, "postgis: layer %s row %d: encode ewkb", l.Name, r)
			}
			row[i] = b
		}
	}
	return rows, nil
}

// createTablePG builds the DDL for a layer table. Keyed tables are created only
// when missing and carry a primary key on l.Key for upserts.
func createTablePG(schema string, l *Layer, fields []Field, keyed bool) string {
	defs := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		var typ string
		switch f.Type {
		case Integer:
			typ = "bigint"
		case Real:
			typ = "double precision"
		case Geometry:
			if l.CRS.SRID > 0 {
				typ = fmt.Sprintf("geometry(MultiPolygon, %d)", l.CRS.SRID)
			} else {
				typ = "geometry(MultiPolygon)"
			}
		default:
			typ = "text"
		}
		defs = append(defs, pgx.Identifier{f.Name}.Sanitize()+" "+typ)
	}
	if keyed && l.Key != "" {
		defs = append(defs, "PRIMARY KEY ("+pgx.Identifier{l.Key}.Sanitize()+")")
	}

	create := "CREATE TABLE "
	if keyed {
		create += "IF NOT EXISTS "
	}
	return create + pgx.Identifier{schema, l.Name}.Sanitize() + " (" + strings.Join(defs, ", ") + ")"
}

func firstWords(stmt string) string {
	parts := strings.Fields(stmt)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.ToLower(strings.Join(parts, " "))
}
