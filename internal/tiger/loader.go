package tiger

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/parcel-analytics/internal/fetcher"
	"github.com/sells-group/parcel-analytics/internal/layer"
	"github.com/sells-group/parcel-analytics/internal/shapefile"
)

// Options configures a Loader.
type Options struct {
	Year        int               // TIGER release for 2020-vintage products (default 2020)
	State       string            // state abbreviation or FIPS code
	Dir         string            // download directory (default <tmp>/tiger)
	BaseURL     string            // default DefaultBaseURL
	Local       map[string]string // product name → local .shp, directory or .zip
	Concurrency int               // parallel downloads in DownloadAll (default 2)
	Shapefile   shapefile.Options
}

// Loader resolves boundary products to local shapefiles and reads them.
type Loader struct {
	fetcher   fetcher.Fetcher
	opts      Options
	stateFIPS string
}

// NewLoader validates opts and returns a Loader.
func NewLoader(f fetcher.Fetcher, opts Options) (*Loader, error) {
	if opts.Year == 0 {
		opts.Year = 2020
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.Dir == "" {
		opts.Dir = filepath.Join(os.TempDir(), "tiger")
	}

	local := make(map[string]string, len(opts.Local))
	for name, p := range opts.Local {
		product, ok := ProductByName(name)
		if !ok {
			return nil, eris.Errorf("tiger: unknown product %q in local paths (valid: %s)", name, strings.Join(ProductNames(), ", "))
		}
		local[product.Name] = p
	}
	opts.Local = local

	var fips string
	if opts.State != "" {
		var err error
		if fips, err = StateFIPS(opts.State); err != nil {
			return nil, err
		}
	}
	return &Loader{fetcher: f, opts: opts, stateFIPS: fips}, nil
}

// URL returns the download URL of a product for the configured state.
func (l *Loader) URL(p Product) string {
	return DownloadURL(l.opts.BaseURL, p, l.opts.Year, l.stateFIPS)
}

// Path returns a local .shp path for the product, downloading it when no
// local override is configured.
func (l *Loader) Path(ctx context.Context, p Product) (string, error) {
	if src, ok := l.opts.Local[p.Name]; ok {
		shp, err := shapefile.Resolve(src, l.opts.Dir)
		if err != nil {
			return "", eris.Wrapf(err, "tiger: %s", p.Name)
		}
		return shp, nil
	}
	if l.stateFIPS == "" {
		return "", eris.Errorf("tiger: %s: no local path and no state to download for", p.Name)
	}
	if l.fetcher == nil {
		return "", eris.Errorf("tiger: %s: no local path and no fetcher", p.Name)
	}
	return Download(ctx, l.fetcher, l.URL(p), l.opts.Dir)
}

// ReadLayer reads a product as a geometry layer named after its TIGER file.
func (l *Loader) ReadLayer(ctx context.Context, p Product) (*layer.Layer, error) {
	shpPath, err := l.Path(ctx, p)
	if err != nil {
		return nil, err
	}
	return l.read(p.Name, shpPath, p.KeyColumn)
}

// ReadFile reads a boundary layer that is not a TIGER product, such as
// planning units, from a local .shp, directory or .zip. key must be one of
// its attributes.
func (l *Loader) ReadFile(ctx context.Context, src, key string) (*layer.Layer, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "tiger: read file")
	}
	shpPath, err := shapefile.Resolve(src, l.opts.Dir)
	if err != nil {
		return nil, eris.Wrapf(err, "tiger: %s", src)
	}
	return l.read(filepath.Base(src), shpPath, key)
}

func (l *Loader) read(label, shpPath, key string) (*layer.Layer, error) {
	tbl, info, err := shapefile.Read(shpPath, l.opts.Shapefile)
	if err != nil {
		return nil, eris.Wrapf(err, "tiger: read %s", label)
	}
	if !tbl.Has(key) {
		return nil, eris.Errorf("tiger: %s: %s has no %s column", label, shpPath, key)
	}

	geometry := l.opts.Shapefile.GeometryColumn
	if geometry == "" {
		geometry = shapefile.DefaultGeometryColumn
	}

	zap.L().Info("boundary layer read",
		zap.String("component", "tiger.loader"),
		zap.String("source", label),
		zap.String("path", shpPath),
		zap.Int("features", tbl.Len()),
	)
	return &layer.Layer{
		Name:     strings.TrimSuffix(filepath.Base(shpPath), filepath.Ext(shpPath)),
		Table:    tbl,
		Geometry: geometry,
		Key:      key,
		CRS:      layer.CRS{SRID: info.SRID, WKT: info.WKT},
	}, nil
}

// DownloadAll fetches and extracts products in parallel and returns the .shp
// path of each by product name.
func (l *Loader) DownloadAll(ctx context.Context, products []Product) (map[string]string, error) {
	paths := make([]string, len(products))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Concurrency)
	for i, p := range products {
		g.Go(func() error {
			shp, err := l.Path(gCtx, p)
			if err != nil {
				return err
			}
			paths[i] = shp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(products))
	for i, p := range products {
		out[p.Name] = paths[i]
	}
	state, _ := AbbrFromFIPS(l.stateFIPS)
	zap.L().Info("TIGER products ready",
		zap.String("component", "tiger.loader"),
		zap.String("state", state),
		zap.Int("products", len(out)),
	)
	return out, nil
}
