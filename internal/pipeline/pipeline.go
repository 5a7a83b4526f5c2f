// Package pipeline builds the parcel analytic dataset and exports it as
// aggregated boundary layers.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-analytics/internal/aggregate"
	"github.com/sells-group/parcel-analytics/internal/categorize"
	"github.com/sells-group/parcel-analytics/internal/census"
	"github.com/sells-group/parcel-analytics/internal/clean"
	"github.com/sells-group/parcel-analytics/internal/config"
	"github.com/sells-group/parcel-analytics/internal/fetcher"
	"github.com/sells-group/parcel-analytics/internal/geoid"
	"github.com/sells-group/parcel-analytics/internal/join"
	"github.com/sells-group/parcel-analytics/internal/layer"
	"github.com/sells-group/parcel-analytics/internal/parcel"
	"github.com/sells-group/parcel-analytics/internal/shapefile"
	"github.com/sells-group/parcel-analytics/internal/table"
	"github.com/sells-group/parcel-analytics/internal/tiger"
)

// ParcelLayerName names the analytic dataset layer written with KeepIntermediate.
const ParcelLayerName = "parcels"

// GeometrySource reads boundary layers, either TIGER products or local files.
type GeometrySource interface {
	ReadLayer(ctx context.Context, p tiger.Product) (*layer.Layer, error)
	ReadFile(ctx context.Context, src, key string) (*layer.Layer, error)
}

var _ GeometrySource = (*tiger.Loader)(nil)

// Deps are the collaborators of a run.
type Deps struct {
	Census   census.Source
	Geometry GeometrySource
	Sink     layer.Sink      // may be nil for dry runs
	Fetcher  fetcher.Fetcher // downloads http(s) inputs; may be nil for local files
}

// Phase records one step of a run.
type Phase struct {
	Name     string
	Rows     int
	Duration time.Duration
	Err      string
}

// Result summarises a run.
type Result struct {
	RunID  string
	Rows   int // analytic dataset rows
	Layers []string
	Phases []Phase
}

// Pipeline runs the parcel analytics batch for one configuration.
type Pipeline struct {
	cfg   *config.Config
	deps  Deps
	plans []Plan
	runID string
	log   *zap.Logger
}

// New resolves the configured layers and returns a Pipeline with a fresh run id.
func New(cfg *config.Config, deps Deps) (*Pipeline, error) {
	if cfg == nil {
		return nil, eris.New("pipeline: nil config")
	}
	if deps.Census == nil {
		return nil, eris.New("pipeline: census source is required")
	}
	plans, err := Plans(cfg.Layers, cfg.Pipeline.AggregationsFile)
	if err != nil {
		return nil, err
	}
	if len(plans) > 0 && deps.Geometry == nil {
		return nil, eris.New("pipeline: geometry source is required")
	}

	runID := uuid.NewString()
	return &Pipeline{
		cfg:   cfg,
		deps:  deps,
		plans: plans,
		runID: runID,
		log:   zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", runID)),
	}, nil
}

// RunID identifies this run in logs and layer metadata.
func (p *Pipeline) RunID() string { return p.runID }

// SetSink sets the sink layers are written to.
func (p *Pipeline) SetSink(s layer.Sink) { p.deps.Sink = s }

// Plans returns the resolved layer plans.
func (p *Pipeline) Plans() []Plan { return p.plans }

// Run loads the inputs, builds the analytic dataset and exports every layer.
// Stages run strictly in order; the first error stops the run.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if p.deps.Sink == nil && !p.cfg.Pipeline.DryRun {
		return nil, eris.New("pipeline: sink is required unless dry run")
	}

	result := &Result{RunID: p.runID}
	p.log.Info("pipeline: starting",
		zap.Int("census_year", p.cfg.Census.Year),
		zap.Int("layers", len(p.plans)),
		zap.Bool("dry_run", p.cfg.Pipeline.DryRun),
	)

	track := func(name string, fn func() (int, error)) error {
		start := time.Now()
		rows, err := fn()
		phase := Phase{Name: name, Rows: rows, Duration: time.Since(start)}
		if err != nil {
			phase.Err = err.Error()
			p.log.Error("pipeline: phase failed", zap.String("phase", name), zap.Duration("duration", phase.Duration), zap.Error(err))
		} else {
			p.log.Info("pipeline: phase complete", zap.String("phase", name), zap.Int("rows", rows), zap.Duration("duration", phase.Duration))
		}
		result.Phases = append(result.Phases, phase)
		return err
	}

	var (
		parcels, estimates *table.Table
		crs                layer.CRS
	)
	if err := track("load", func() (int, error) {
		var err error
		parcels, estimates, crs, err = p.load(ctx)
		if err != nil {
			return 0, err
		}
		return parcels.Len(), nil
	}); err != nil {
		return result, err
	}

	var analytic *table.Table
	if err := track("analytic", func() (int, error) {
		var err error
		analytic, err = p.Analytic(ctx, parcels, estimates)
		if err != nil {
			return 0, err
		}
		return analytic.Len(), nil
	}); err != nil {
		return result, err
	}
	result.Rows = analytic.Len()

	if p.cfg.Pipeline.KeepIntermediate {
		if err := track("layer:"+ParcelLayerName, func() (int, error) {
			l := &layer.Layer{
				Name:     ParcelLayerName,
				Table:    analytic,
				Geometry: clean.GeometryColumn,
				Key:      join.KeyColumn,
				CRS:      crs,
			}
			return l.Table.Len(), p.write(ctx, l)
		}); err != nil {
			return result, err
		}
		result.Layers = append(result.Layers, ParcelLayerName)
	}

	for _, plan := range p.plans {
		if err := ctx.Err(); err != nil {
			return result, eris.Wrap(err, "pipeline: cancelled")
		}
		if err := track("layer:"+plan.Name, func() (int, error) {
			l, err := p.Layer(ctx, analytic, plan)
			if err != nil {
				return 0, err
			}
			return l.Table.Len(), p.write(ctx, l)
		}); err != nil {
			return result, err
		}
		result.Layers = append(result.Layers, plan.Name)
	}

	p.log.Info("pipeline: complete", zap.Int("rows", result.Rows), zap.Strings("layers", result.Layers))
	return result, nil
}

func (p *Pipeline) load(ctx context.Context) (*table.Table, *table.Table, layer.CRS, error) {
	in := p.cfg.Input

	parcelSrc, err := parcel.Localize(ctx, p.deps.Fetcher, in.Parcels, in.WorkDir)
	if err != nil {
		return nil, nil, layer.CRS{}, err
	}
	parcels, info, err := parcel.LoadParcels(parcelSrc, parcel.ParcelOptions{
		Shapefile: shapefile.Options{Encoding: in.Encoding, SRID: in.SRID},
		WorkDir:   in.WorkDir,
	})
	if err != nil {
		return nil, nil, layer.CRS{}, err
	}

	estimateSrc, err := parcel.Localize(ctx, p.deps.Fetcher, in.Estimates, in.WorkDir)
	if err != nil {
		return nil, nil, layer.CRS{}, err
	}
	estimates, err := parcel.LoadEstimates(ctx, estimateSrc, parcel.EstimateOptions{Sheet: in.EstimateSheet})
	if err != nil {
		return nil, nil, layer.CRS{}, err
	}
	return parcels, estimates, layer.CRS{SRID: info.SRID, WKT: info.WKT}, nil
}

// Analytic joins estimates and census tables onto the parcels, cleans the
// result and adds the unit value categories. Rows with zero estimated units
// are removed before unit values are computed.
func (p *Pipeline) Analytic(ctx context.Context, parcels, estimates *table.Table) (*table.Table, error) {
	pc := p.cfg.Pipeline

	t, err := join.Estimates(parcels, estimates, join.EstimateOptions{PrimaryKey: pc.PrimaryKey})
	if err != nil {
		return nil, err
	}

	for _, tag := range p.cfg.Census.Resolutions {
		res, err := census.ParseResolution(tag)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: census resolutions")
		}
		ct, err := p.deps.Census.Fetch(ctx, p.cfg.Census.Year, res)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: census %s %d", res, p.cfg.Census.Year)
		}
		if t, err = join.Census(t, ct, join.CensusOptions{Resolution: res, Vintage: pc.Vintage}); err != nil {
			return nil, err
		}
	}

	columns, err := clean.ColumnSet(pc.Columns)
	if err != nil {
		return nil, err
	}
	if t, err = clean.Clean(t, clean.Options{Columns: columns, EstimateColumn: pc.EstimateColumn}); err != nil {
		return nil, err
	}
	if t, err = clean.StringifyTimes(t); err != nil {
		return nil, err
	}

	var geoColumns []string
	for _, v := range census.Vintages {
		for _, r := range census.Resolutions {
			geoColumns = append(geoColumns, r.GeoColumn(v))
		}
	}
	t, skipped, err := geoid.NormalizePresent(t, geoColumns...)
	if err != nil {
		return nil, err
	}
	if len(skipped) > 0 {
		p.log.Debug("pipeline: geo id columns not in analytic dataset", zap.Strings("columns", skipped))
	}
	return categorize.Categorize(t, categorize.Options{UnitsColumn: pc.EstimateColumn})
}

// Layer aggregates the analytic dataset by the plan's geo column and merges
// the statistics onto the plan's boundary geometry. Parcels without a usable
// geo id are left out of every group.
func (p *Pipeline) Layer(ctx context.Context, analytic *table.Table, plan Plan) (*layer.Layer, error) {
	grouped, err := geoid.NormalizeColumn(analytic, plan.GeoColumn)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: layer %s", plan.Name)
	}
	keys, _ := grouped.Column(plan.GeoColumn)
	grouped = grouped.Filter(func(r int) bool { return keys[r] != geoid.Missing })

	agg, err := aggregate.GroupBy(grouped, plan.GeoColumn, plan.Spec)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: layer %s", plan.Name)
	}

	var geo *layer.Layer
	if plan.Geometry != "" {
		geo, err = p.deps.Geometry.ReadFile(ctx, plan.Geometry, plan.Key)
	} else {
		geo, err = p.deps.Geometry.ReadLayer(ctx, plan.Product)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: layer %s", plan.Name)
	}
	return layer.Merge(geo, agg, layer.MergeOptions{
		GeometryKey:  plan.Key,
		AggregateKey: plan.GeoColumn,
		Name:         plan.Name,
	})
}

func (p *Pipeline) write(ctx context.Context, l *layer.Layer) error {
	if p.cfg.Pipeline.DryRun {
		p.log.Info("pipeline: dry run, layer not written", zap.String("layer", l.Name), zap.Int("rows", l.Table.Len()))
		return nil
	}
	return p.deps.Sink.WriteLayer(ctx, l)
}
