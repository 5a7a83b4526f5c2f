package census

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-analytics/internal/fetcher"
	"github.com/sells-group/parcel-analytics/internal/geoid"
	"github.com/sells-group/parcel-analytics/internal/table"
)

// File reads census tables from CSV files named <res>_<year>.csv in Dir.
type File struct {
	Dir string
}

// Path returns the file backing a year and resolution.
func (f *File) Path(year int, res Resolution) string {
	return filepath.Join(f.Dir, fmt.Sprintf("%s_%d.csv", res, year))
}

// Fetch implements Source.
func (f *File) Fetch(ctx context.Context, year int, res Resolution) (*table.Table, error) {
	if err := res.Validate(); err != nil {
		return nil, err
	}

	path := f.Path(year, res)
	fh, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(ErrResolutionUnavailable, "%s %d: no file %s", res, year, path)
		}
		return nil, eris.Wrapf(err, "census: open %s", path)
	}
	defer fh.Close() //nolint:errcheck

	header, rows, err := fetcher.ReadCSV(ctx, fh, fetcher.CSVOptions{TrimSpace: true})
	if err != nil {
		return nil, eris.Wrapf(err, "census: read %s", path)
	}
	t, err := table.FromText(header, rows)
	if err != nil {
		return nil, eris.Wrapf(err, "census: build table from %s", path)
	}

	// GEOIDs may have been written as numbers; store the canonical string form.
	if t, err = geoid.NormalizeColumns(t, IDColumn); err != nil {
		return nil, eris.Wrapf(err, "census: %s", path)
	}
	return Conform(t)
}

// Write stores t as the CSV backing a year and resolution.
func (f *File) Write(year int, res Resolution, t *table.Table) error {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return eris.Wrapf(err, "census: create %s", f.Dir)
	}

	path := f.Path(year, res)
	fh, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "census: create %s", path)
	}

	if err := WriteCSV(fh, t); err != nil {
		fh.Close() //nolint:errcheck,gosec
		return eris.Wrapf(err, "census: write %s", path)
	}
	return fh.Close()
}

// WriteCSV writes t with a header row. Nulls are written as empty fields.
func WriteCSV(out io.Writer, t *table.Table) error {
	w := csv.NewWriter(out)
	if err := w.Write(t.Names()); err != nil {
		return err
	}
	record := make([]string, t.Width())
	for r := 0; r < t.Len(); r++ {
		for c, v := range t.Row(r) {
			record[c] = table.AsString(v)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Cached serves tables from a File when present and otherwise fetches them from
// Upstream, saving the result for the next run.
type Cached struct {
	Upstream Source
	Cache    *File
}

// Fetch implements Source.
func (c *Cached) Fetch(ctx context.Context, year int, res Resolution) (*table.Table, error) {
	if err := res.Validate(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(c.Cache.Path(year, res)); err == nil {
		zap.L().Debug("census cache hit",
			zap.Int("year", year),
			zap.String("resolution", res.String()),
		)
		return c.Cache.Fetch(ctx, year, res)
	}

	t, err := c.Upstream.Fetch(ctx, year, res)
	if err != nil {
		return nil, err
	}
	if err := c.Cache.Write(year, res, t); err != nil {
		zap.L().Warn("census: cache write failed", zap.Error(err))
	}
	return t, nil
}
