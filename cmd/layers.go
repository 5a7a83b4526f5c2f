package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/parcel-analytics/internal/layer"
)

var layersCmd = &cobra.Command{
	Use:   "layers [path.gpkg]",
	Short: "List the layers of a GeoPackage",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Output.Path
		if len(args) == 1 {
			path = args[0]
		}

		layers, err := layer.ListLayers(cmd.Context(), path)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(layers) == 0 {
			fmt.Fprintf(out, "No layers in %s\n", path)
			return nil
		}

		fmt.Fprintf(out, "%-24s %-10s %6s %10s\n", "Layer", "Type", "SRID", "Rows")
		fmt.Fprintln(out, strings.Repeat("-", 53))
		for _, l := range layers {
			fmt.Fprintf(out, "%-24s %-10s %6d %10d\n", l.Name, l.DataType, l.SRID, l.Rows)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(layersCmd)
}
