package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-analytics/internal/census"
)

var censusCmd = &cobra.Command{
	Use:   "census",
	Short: "Fetch one census estimate table and write it as CSV to stdout",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		year, _ := cmd.Flags().GetInt("year")
		resTag, _ := cmd.Flags().GetString("resolution")
		if year == 0 {
			year = cfg.Census.Year
		}
		res, err := census.ParseResolution(resTag)
		if err != nil {
			return err
		}
		if err := cfg.Validate("census"); err != nil {
			return err
		}

		src, err := censusSource(newFetcher())
		if err != nil {
			return err
		}
		t, err := src.Fetch(ctx, year, res)
		if err != nil {
			return eris.Wrapf(err, "census: fetch %s %d", res, year)
		}

		zap.L().Info("census table fetched",
			zap.String("command", "census"),
			zap.Int("year", year),
			zap.String("resolution", res.String()),
			zap.Int("rows", t.Len()),
		)
		return census.WriteCSV(cmd.OutOrStdout(), t)
	},
}

func init() {
	censusCmd.Flags().Int("year", 0, "ACS year (default: from config)")
	censusCmd.Flags().String("resolution", "t", "t (tract), bg (block group) or b (block)")
	rootCmd.AddCommand(censusCmd)
}
