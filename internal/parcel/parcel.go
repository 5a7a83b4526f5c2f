// Package parcel loads county parcel geometry and the dwelling-unit estimate
// table.
package parcel

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-analytics/internal/fetcher"
	"github.com/sells-group/parcel-analytics/internal/shapefile"
	"github.com/sells-group/parcel-analytics/internal/table"
)

// Localize returns a local path for src. http(s) URLs are downloaded into dir
// once; later calls reuse the file. Local paths are returned unchanged.
func Localize(ctx context.Context, f fetcher.Fetcher, src, dir string) (string, error) {
	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return src, nil
	}

	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", eris.Errorf("parcel: cannot name download for %s", src)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "parcel: create %s", dir)
	}
	dest := filepath.Join(dir, name)

	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		zap.L().Debug("parcel: input already downloaded", zap.String("path", dest))
		return dest, nil
	}
	n, err := f.DownloadToFile(ctx, src, dest)
	if err != nil {
		return "", eris.Wrapf(err, "parcel: download %s", u.Host+u.Path)
	}
	zap.L().Info("parcel: input downloaded", zap.String("path", dest), zap.Int64("bytes", n))
	return dest, nil
}

// ParcelOptions configures LoadParcels.
type ParcelOptions struct {
	Shapefile shapefile.Options
	WorkDir   string // extraction directory for .zip inputs; default a temp dir
}

// LoadParcels reads parcel geometry from a .shp file, a directory holding one,
// or a .zip archive containing one.
func LoadParcels(src string, opts ParcelOptions) (*table.Table, shapefile.Info, error) {
	shpPath, err := shapefile.Resolve(src, opts.WorkDir)
	if err != nil {
		return nil, shapefile.Info{}, eris.Wrap(err, "parcel: load parcels")
	}

	t, info, err := shapefile.Read(shpPath, opts.Shapefile)
	if err != nil {
		return nil, info, eris.Wrap(err, "parcel: load parcels")
	}
	return t, info, nil
}

// EstimateOptions configures LoadEstimates.
type EstimateOptions struct {
	Sheet     string // xlsx worksheet name; default the first sheet
	Delimiter rune   // csv delimiter; default ','
}

// LoadEstimates reads the dwelling-unit estimate table from .csv or .xlsx.
// Columns are typed as a whole: integers, decimals, or text.
func LoadEstimates(ctx context.Context, src string, opts EstimateOptions) (*table.Table, error) {
	var (
		header []string
		rows   [][]string
		err    error
	)

	switch strings.ToLower(filepath.Ext(src)) {
	case ".csv", ".txt":
		fh, openErr := os.Open(src)
		if openErr != nil {
			return nil, eris.Wrapf(openErr, "parcel: open %s", src)
		}
		defer fh.Close() //nolint:errcheck
		header, rows, err = fetcher.ReadCSV(ctx, fh, fetcher.CSVOptions{Delimiter: opts.Delimiter, TrimSpace: true})
	case ".xlsx":
		header, rows, err = fetcher.ReadXLSX(src, fetcher.XLSXOptions{SheetName: opts.Sheet})
	default:
		return nil, eris.Errorf("parcel: unsupported estimate file %s (want .csv or .xlsx)", src)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "parcel: read estimates %s", src)
	}

	t, err := table.FromText(header, rows)
	if err != nil {
		return nil, eris.Wrapf(err, "parcel: estimates %s", src)
	}

	zap.L().Info("estimates loaded",
		zap.String("component", "parcel"),
		zap.String("path", src),
		zap.Int("rows", t.Len()),
		zap.Int("columns", t.Width()),
	)
	return t, nil
}
