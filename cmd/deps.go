package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-analytics/internal/census"
	"github.com/sells-group/parcel-analytics/internal/fetcher"
	"github.com/sells-group/parcel-analytics/internal/layer"
	"github.com/sells-group/parcel-analytics/internal/shapefile"
	"github.com/sells-group/parcel-analytics/internal/tiger"
)

func newFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
}

// censusSource builds the configured census source. API results are cached as
// CSV under census.dir when census.cache is set.
func censusSource(f fetcher.Fetcher) (census.Source, error) {
	c := cfg.Census
	switch c.Source {
	case "file":
		return &census.File{Dir: c.Dir}, nil
	case "api":
		stateFIPS, err := tiger.StateFIPS(c.State)
		if err != nil {
			return nil, err
		}
		api, err := census.NewAPI(f, census.APIOptions{
			BaseURL:    c.BaseURL,
			Dataset:    c.Dataset,
			Key:        c.Key,
			StateFIPS:  stateFIPS,
			CountyFIPS: c.County,
		})
		if err != nil {
			return nil, err
		}
		if c.Cache && c.Dir != "" {
			return &census.Cached{Upstream: api, Cache: &census.File{Dir: c.Dir}}, nil
		}
		return api, nil
	}
	return nil, eris.Errorf("unknown census source %q", c.Source)
}

func tigerLoader(f fetcher.Fetcher) (*tiger.Loader, error) {
	return tiger.NewLoader(f, tiger.Options{
		Year:        cfg.Tiger.Year,
		State:       cfg.Census.State,
		Dir:         cfg.Tiger.Dir,
		BaseURL:     cfg.Tiger.BaseURL,
		Local:       cfg.Tiger.Local,
		Concurrency: cfg.Tiger.Concurrency,
		Shapefile:   shapefile.Options{GeometryColumn: shapefile.DefaultGeometryColumn},
	})
}

// openSink opens the configured output. The run id is recorded in the
// GeoPackage layer descriptions.
func openSink(ctx context.Context, runID string) (layer.Sink, error) {
	out := cfg.Output
	switch out.Driver {
	case "gpkg":
		gpkg, err := layer.OpenGeoPackage(ctx, out.Path, layer.GeoPackageOptions{
			Overwrite:   out.Overwrite,
			Description: fmt.Sprintf("parcel-analytics run %s (ACS %d)", runID, cfg.Census.Year),
		})
		if err != nil {
			return nil, err
		}
		return gpkg, nil
	case "postgis":
		pg, err := layer.OpenPostGIS(ctx, out.DatabaseURL, layer.PostGISOptions{
			Schema: out.Schema,
			Mode:   out.Mode,
		})
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	return nil, eris.Errorf("unknown output driver %q", out.Driver)
}
