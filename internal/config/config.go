package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Census   CensusConfig   `yaml:"census" mapstructure:"census"`
	Input    InputConfig    `yaml:"input" mapstructure:"input"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Tiger    TigerConfig    `yaml:"tiger" mapstructure:"tiger"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Layers   []LayerConfig  `yaml:"layers" mapstructure:"layers"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// CensusConfig selects where census estimate tables come from.
type CensusConfig struct {
	Year        int      `yaml:"year" mapstructure:"year"`
	Source      string   `yaml:"source" mapstructure:"source"` // "api" or "file"
	Key         string   `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string   `yaml:"base_url" mapstructure:"base_url"`
	Dataset     string   `yaml:"dataset" mapstructure:"dataset"`
	State       string   `yaml:"state" mapstructure:"state"`   // abbreviation or FIPS, e.g. NC
	County      string   `yaml:"county" mapstructure:"county"` // three-digit county FIPS, e.g. 063
	Dir         string   `yaml:"dir" mapstructure:"dir"`       // CSV directory for the file source and the cache
	Cache       bool     `yaml:"cache" mapstructure:"cache"`
	Resolutions []string `yaml:"resolutions" mapstructure:"resolutions"`
}

// InputConfig locates the parcel geometry and the dwelling-unit estimates.
// Paths may be http(s) URLs; they are downloaded into WorkDir.
type InputConfig struct {
	Parcels       string `yaml:"parcels" mapstructure:"parcels"`
	Estimates     string `yaml:"estimates" mapstructure:"estimates"`
	EstimateSheet string `yaml:"estimate_sheet" mapstructure:"estimate_sheet"`
	Encoding      string `yaml:"encoding" mapstructure:"encoding"`
	SRID          int    `yaml:"srid" mapstructure:"srid"`
	WorkDir       string `yaml:"work_dir" mapstructure:"work_dir"`
}

// OutputConfig selects the layer sink.
type OutputConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "gpkg" or "postgis"
	Path        string `yaml:"path" mapstructure:"path"`
	Overwrite   bool   `yaml:"overwrite" mapstructure:"overwrite"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	Mode        string `yaml:"mode" mapstructure:"mode"` // "replace" or "upsert"
}

// TigerConfig configures boundary geometry acquisition.
type TigerConfig struct {
	Year        int               `yaml:"year" mapstructure:"year"`
	BaseURL     string            `yaml:"base_url" mapstructure:"base_url"`
	Dir         string            `yaml:"dir" mapstructure:"dir"`
	Local       map[string]string `yaml:"local" mapstructure:"local"`
	Concurrency int               `yaml:"concurrency" mapstructure:"concurrency"`
}

// PipelineConfig configures the analytic dataset build.
type PipelineConfig struct {
	PrimaryKey       string `yaml:"primary_key" mapstructure:"primary_key"`
	EstimateColumn   string `yaml:"estimate_column" mapstructure:"estimate_column"`
	Columns          string `yaml:"columns" mapstructure:"columns"` // analytic column set, "v1" or "v2"
	Vintage          int    `yaml:"vintage" mapstructure:"vintage"`
	AggregationsFile string `yaml:"aggregations_file" mapstructure:"aggregations_file"`
	KeepIntermediate bool   `yaml:"keep_intermediate" mapstructure:"keep_intermediate"`
	DryRun           bool   `yaml:"dry_run" mapstructure:"dry_run"`
}

// LayerConfig maps one exported geometry layer to the parcel geo-id column it
// is aggregated by.
type LayerConfig struct {
	Name       string   `yaml:"name" mapstructure:"name"`
	Product    string   `yaml:"product" mapstructure:"product"`       // TIGER product, e.g. TRACT10
	Resolution string   `yaml:"resolution" mapstructure:"resolution"` // t, b or bg
	Vintage    int      `yaml:"vintage" mapstructure:"vintage"`
	GeoColumn  string   `yaml:"geo_column" mapstructure:"geo_column"` // default geo_id_<res><vintage>
	Key        string   `yaml:"key" mapstructure:"key"`               // default the product's key column
	Aggregate  []string `yaml:"aggregate" mapstructure:"aggregate"`   // "column:fn[,fn]"
	Geometry   string   `yaml:"geometry" mapstructure:"geometry"`     // local boundary .shp, directory or .zip in place of a product
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultAggregate is applied to layers that list no aggregation of their own.
var DefaultAggregate = []string{
	"du_est_final:sum,mean",
	"TOTAL_PROP_VALUE:sum,mean_round",
	"unit_val:mean_round,median",
}

// DefaultLayers returns the six tract, block and block group layers for the
// 2010 and 2020 vintages.
func DefaultLayers() []LayerConfig {
	type def struct {
		product string
		res     string
		vintage int
	}
	defs := []def{
		{"TRACT", "t", 2020},
		{"BG", "bg", 2020},
		{"TABBLOCK20", "b", 2020},
		{"TRACT10", "t", 2010},
		{"BG10", "bg", 2010},
		{"TABBLOCK10", "b", 2010},
	}
	out := make([]LayerConfig, len(defs))
	for i, d := range defs {
		out[i] = LayerConfig{
			Name:       fmt.Sprintf("%s_%d", layerStem(d.res), d.vintage),
			Product:    d.product,
			Resolution: d.res,
			Vintage:    d.vintage,
			Aggregate:  append([]string(nil), DefaultAggregate...),
		}
	}
	return out
}

func layerStem(res string) string {
	switch res {
	case "t":
		return "tract"
	case "b":
		return "block"
	}
	return "block_group"
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PARCEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	// Keys without a real default are registered so PARCEL_* env vars reach them.
	for _, key := range []string{"census.api_key", "input.parcels", "input.estimates", "output.database_url"} {
		v.SetDefault(key, "")
	}
	v.SetDefault("census.year", 2020)
	v.SetDefault("census.source", "api")
	v.SetDefault("census.base_url", "https://api.census.gov/data")
	v.SetDefault("census.dataset", "acs/acs5")
	v.SetDefault("census.state", "NC")
	v.SetDefault("census.county", "063")
	v.SetDefault("census.dir", "data/census")
	v.SetDefault("census.cache", true)
	v.SetDefault("census.resolutions", []string{"t", "bg"})
	v.SetDefault("input.work_dir", "tmp/input")
	v.SetDefault("output.driver", "gpkg")
	v.SetDefault("output.path", "parcel_analytics.gpkg")
	v.SetDefault("output.overwrite", true)
	v.SetDefault("output.schema", "public")
	v.SetDefault("output.mode", "replace")
	v.SetDefault("tiger.year", 2020)
	v.SetDefault("tiger.base_url", "https://www2.census.gov/geo/tiger")
	v.SetDefault("tiger.dir", "tmp/tiger")
	v.SetDefault("tiger.concurrency", 2)
	v.SetDefault("pipeline.primary_key", "OBJECTID_1")
	v.SetDefault("pipeline.estimate_column", "du_est_final")
	v.SetDefault("pipeline.columns", "v1")
	v.SetDefault("pipeline.vintage", 2020)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if len(cfg.Layers) == 0 {
		cfg.Layers = DefaultLayers()
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is "run", "census" or
// "tiger".
func (c *Config) Validate(mode string) error {
	var missing []string
	require := func(ok bool, name string) {
		if !ok {
			missing = append(missing, name+" is required")
		}
	}

	switch mode {
	case "run":
		require(c.Input.Parcels != "", "input.parcels")
		require(c.Input.Estimates != "", "input.estimates")
		if err := c.validateCensus(require); err != nil {
			return err
		}
		if err := c.validateOutput(require); err != nil {
			return err
		}
		for i, l := range c.Layers {
			if l.Geometry != "" {
				require(l.GeoColumn != "", fmt.Sprintf("layers[%d].geo_column", i))
				require(l.Key != "", fmt.Sprintf("layers[%d].key", i))
				continue
			}
			require(l.Product != "", fmt.Sprintf("layers[%d].product", i))
			require(l.Resolution != "", fmt.Sprintf("layers[%d].resolution", i))
		}
	case "census":
		if err := c.validateCensus(require); err != nil {
			return err
		}
	case "tiger":
		require(c.Census.State != "" || len(c.Tiger.Local) > 0, "census.state")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
}

func (c *Config) validateCensus(require func(bool, string)) error {
	switch c.Census.Source {
	case "api":
		require(c.Census.State != "", "census.state")
		require(c.Census.County != "", "census.county")
	case "file":
		require(c.Census.Dir != "", "census.dir")
	default:
		return eris.Errorf("config: unknown census source %q (want api or file)", c.Census.Source)
	}
	return nil
}

func (c *Config) validateOutput(require func(bool, string)) error {
	switch c.Output.Driver {
	case "gpkg":
		require(c.Output.Path != "", "output.path")
	case "postgis":
		require(c.Output.DatabaseURL != "", "output.database_url")
		if c.Output.Mode != "replace" && c.Output.Mode != "upsert" {
			return eris.Errorf("config: unknown output mode %q (want replace or upsert)", c.Output.Mode)
		}
	default:
		return eris.Errorf("config: unknown output driver %q (want gpkg or postgis)", c.Output.Driver)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
