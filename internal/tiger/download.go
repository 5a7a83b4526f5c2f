package tiger

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-analytics/internal/fetcher"
)

// Download fetches a TIGER/Line ZIP into destDir, extracts it next to the
// archive and returns the path of the extracted .shp file. An archive that is
// already present is not downloaded again.
func Download(ctx context.Context, f fetcher.Fetcher, url, destDir string) (string, error) {
	log := zap.L().With(
		zap.String("component", "tiger.download"),
		zap.String("url", url),
	)

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "tiger: create dest dir")
	}

	zipName := path.Base(url)
	if !strings.HasSuffix(strings.ToLower(zipName), ".zip") {
		return "", eris.Errorf("tiger: %s is not a zip archive", url)
	}
	zipPath := filepath.Join(destDir, zipName)

	if info, err := os.Stat(zipPath); err == nil && info.Size() > 0 {
		log.Debug("zip already exists, skipping download", zap.String("path", zipPath))
	} else {
		log.Info("downloading TIGER shapefile")
		n, err := f.DownloadToFile(ctx, url, zipPath)
		if err != nil {
			_ = os.Remove(zipPath)
			return "", eris.Wrap(err, "tiger: download shapefile")
		}
		log.Debug("download complete", zap.Int64("bytes", n))
	}

	extractDir := filepath.Join(destDir, strings.TrimSuffix(zipName, filepath.Ext(zipName)))
	shpPath, err := fetcher.ExtractShapefile(zipPath, extractDir)
	if err != nil {
		return "", eris.Wrap(err, "tiger: extract shapefile")
	}
	return shpPath, nil
}
