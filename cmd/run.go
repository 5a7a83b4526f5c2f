package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-analytics/internal/pipeline"
)

var (
	runYear             int
	runOutput           string
	runKeepIntermediate bool
	runDryRun           bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the analytic dataset and export the aggregated layers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if runYear != 0 {
			cfg.Census.Year = runYear
		}
		if runOutput != "" {
			cfg.Output.Path = runOutput
		}
		if runKeepIntermediate {
			cfg.Pipeline.KeepIntermediate = true
		}
		if runDryRun {
			cfg.Pipeline.DryRun = true
		}
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		f := newFetcher()
		src, err := censusSource(f)
		if err != nil {
			return err
		}
		loader, err := tigerLoader(f)
		if err != nil {
			return err
		}

		p, err := pipeline.New(cfg, pipeline.Deps{Census: src, Geometry: loader, Fetcher: f})
		if err != nil {
			return err
		}

		if !cfg.Pipeline.DryRun {
			sink, err := openSink(ctx, p.RunID())
			if err != nil {
				return eris.Wrap(err, "run: open output")
			}
			defer sink.Close() //nolint:errcheck
			p.SetSink(sink)
		}

		log := zap.L().With(zap.String("command", "run"))
		log.Info("starting parcel analytics",
			zap.String("run_id", p.RunID()),
			zap.Int("census_year", cfg.Census.Year),
			zap.String("driver", cfg.Output.Driver),
			zap.String("output", cfg.Output.Path),
		)

		res, err := p.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "run")
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "run %s: %d parcels\n", res.RunID, res.Rows)
		for _, ph := range res.Phases {
			fmt.Fprintf(out, "  %-28s %8d rows %10s\n", ph.Name, ph.Rows, ph.Duration.Round(time.Millisecond))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().IntVar(&runYear, "year", 0, "ACS year (default: from config)")
	runCmd.Flags().StringVar(&runOutput, "output", "", "GeoPackage path (default: from config)")
	runCmd.Flags().BoolVar(&runKeepIntermediate, "keep-intermediate", false, "also write the analytic dataset as a parcels layer")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "build and aggregate every layer without writing output")
	rootCmd.AddCommand(runCmd)
}
