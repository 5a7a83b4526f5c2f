package main

import (
	"fmt"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-analytics/internal/tiger"
)

var tigerCmd = &cobra.Command{
	Use:   "tiger",
	Short: "Download TIGER/Line boundary shapefiles for the configured state",
	Long: `Downloads and extracts the Census TIGER/Line boundary products the layers are
drawn from. Archives already in the download directory are reused, so running
this ahead of "run" makes later runs work offline.

By default fetches the products of every configured layer.
Use --products to pick specific ones.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		productsStr, _ := cmd.Flags().GetString("products")
		year, _ := cmd.Flags().GetInt("year")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if year != 0 {
			cfg.Tiger.Year = year
		}
		if concurrency != 0 {
			cfg.Tiger.Concurrency = concurrency
		}
		if err := cfg.Validate("tiger"); err != nil {
			return err
		}

		products, err := selectProducts(splitAndTrim(productsStr))
		if err != nil {
			return err
		}

		loader, err := tigerLoader(newFetcher())
		if err != nil {
			return err
		}

		names := make([]string, len(products))
		for i, p := range products {
			names[i] = p.Name
		}
		zap.L().Info("downloading TIGER products",
			zap.String("command", "tiger"),
			zap.Int("year", cfg.Tiger.Year),
			zap.String("state", cfg.Census.State),
			zap.Strings("products", names),
		)

		paths, err := loader.DownloadAll(ctx, products)
		if err != nil {
			return eris.Wrap(err, "tiger")
		}

		sort.Strings(names)
		out := cmd.OutOrStdout()
		for _, name := range names {
			fmt.Fprintf(out, "%-12s %s\n", name, paths[name])
		}
		return nil
	},
}

// selectProducts resolves product names, defaulting to the products of the
// configured layers.
func selectProducts(names []string) ([]tiger.Product, error) {
	if len(names) == 0 {
		for _, l := range cfg.Layers {
			if l.Product != "" {
				names = append(names, l.Product)
			}
		}
	}

	seen := map[string]bool{}
	var out []tiger.Product
	for _, n := range names {
		p, ok := tiger.ProductByName(n)
		if !ok {
			return nil, eris.Errorf("tiger: unknown product %q (valid: %s)", n, strings.Join(tiger.ProductNames(), ", "))
		}
		if seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, eris.New("tiger: no products selected")
	}
	return out, nil
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func init() {
	tigerCmd.Flags().String("products", "", "comma-separated product names (default: products of the configured layers)")
	tigerCmd.Flags().Int("year", 0, "TIGER/Line release for 2020 products (default: from config)")
	tigerCmd.Flags().Int("concurrency", 0, "parallel downloads (default: from config)")
	rootCmd.AddCommand(tigerCmd)
}
