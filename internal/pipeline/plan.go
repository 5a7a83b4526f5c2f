package pipeline

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-analytics/internal/aggregate"
	"github.com/sells-group/parcel-analytics/internal/census"
	"github.com/sells-group/parcel-analytics/internal/config"
	"github.com/sells-group/parcel-analytics/internal/tiger"
)

// Plan is one exported layer: the boundary product it is drawn from, the parcel
// column that assigns parcels to its features and the statistics computed.
type Plan struct {
	Name       string
	Product    tiger.Product
	Resolution census.Resolution
	Vintage    int
	GeoColumn  string // analytic dataset column grouped on
	Key        string // boundary feature identifier
	Geometry   string // local boundary source; Product is unset when given
	Spec       aggregate.Spec
}

// Plans resolves the configured layers. Specs read from the aggregations file
// replace inline ones for the geo column they name.
func Plans(layers []config.LayerConfig, aggregationsFile string) ([]Plan, error) {
	fileSpecs := map[string]aggregate.Spec{}
	if aggregationsFile != "" {
		fh, err := os.Open(aggregationsFile)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: open aggregations %s", aggregationsFile)
		}
		specs, err := aggregate.LoadSpecs(fh)
		fh.Close() //nolint:errcheck
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: aggregations %s", aggregationsFile)
		}
		for _, s := range specs {
			fileSpecs[s.Key] = s.Spec
		}
	}

	plans := make([]Plan, 0, len(layers))
	seen := map[string]bool{}
	for i, lc := range layers {
		plan, err := newPlan(lc, fileSpecs)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: layers[%d]", i)
		}
		if seen[strings.ToLower(plan.Name)] {
			return nil, eris.Errorf("pipeline: layers[%d]: duplicate layer name %q", i, plan.Name)
		}
		seen[strings.ToLower(plan.Name)] = true
		plans = append(plans, plan)
	}
	return plans, nil
}

func newPlan(lc config.LayerConfig, fileSpecs map[string]aggregate.Spec) (Plan, error) {
	if lc.Geometry != "" {
		return filePlan(lc, fileSpecs)
	}
	res, err := census.ParseResolution(lc.Resolution)
	if err != nil {
		return Plan{}, err
	}
	if lc.Vintage == 0 {
		lc.Vintage = 2020
	}

	var product tiger.Product
	if lc.Product != "" {
		p, ok := tiger.ProductByName(lc.Product)
		if !ok {
			return Plan{}, eris.Errorf("unknown product %q (valid: %s)", lc.Product, strings.Join(tiger.ProductNames(), ", "))
		}
		if p.Resolution != res {
			return Plan{}, eris.Errorf("product %s is %s geometry, layer resolution is %s", p.Name, p.Resolution, res)
		}
		product = p
	} else if product, err = tiger.ProductFor(res, lc.Vintage); err != nil {
		return Plan{}, err
	}

	plan := Plan{
		Name:       lc.Name,
		Product:    product,
		Resolution: res,
		Vintage:    lc.Vintage,
		GeoColumn:  lc.GeoColumn,
		Key:        lc.Key,
	}
	if plan.Name == "" {
		plan.Name = strings.ToLower(product.Name)
	}
	if plan.GeoColumn == "" {
		plan.GeoColumn = res.GeoColumn(lc.Vintage)
	}
	if plan.Key == "" {
		plan.Key = product.KeyColumn
	}

	if plan.Spec, err = planSpec(lc, plan.GeoColumn, fileSpecs); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

// filePlan resolves a layer drawn from a local boundary file. Such layers name
// their own geo column and key; resolution is optional.
func filePlan(lc config.LayerConfig, fileSpecs map[string]aggregate.Spec) (Plan, error) {
	if lc.GeoColumn == "" || lc.Key == "" {
		return Plan{}, eris.Errorf("layer geometry %s needs geo_column and key", lc.Geometry)
	}
	if lc.Product != "" {
		return Plan{}, eris.Errorf("layer sets both product %s and geometry %s", lc.Product, lc.Geometry)
	}

	plan := Plan{
		Name:      lc.Name,
		Vintage:   lc.Vintage,
		GeoColumn: lc.GeoColumn,
		Key:       lc.Key,
		Geometry:  lc.Geometry,
	}
	if lc.Resolution != "" {
		res, err := census.ParseResolution(lc.Resolution)
		if err != nil {
			return Plan{}, err
		}
		plan.Resolution = res
	}
	if plan.Name == "" {
		plan.Name = strings.ToLower(lc.GeoColumn)
	}

	var err error
	if plan.Spec, err = planSpec(lc, plan.GeoColumn, fileSpecs); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

func planSpec(lc config.LayerConfig, geoColumn string, fileSpecs map[string]aggregate.Spec) (aggregate.Spec, error) {
	if spec, ok := fileSpecs[geoColumn]; ok {
		return spec, nil
	}
	entries := lc.Aggregate
	if len(entries) == 0 {
		entries = config.DefaultAggregate
	}
	return aggregate.ParseEntries(entries)
}
