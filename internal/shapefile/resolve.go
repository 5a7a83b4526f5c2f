package shapefile

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-analytics/internal/fetcher"
)

// Resolve returns the .shp path for src, which may be a .shp file, a
// directory holding one, or a .zip archive. Archives are extracted under
// workDir, or a fresh temp dir when workDir is empty.
func Resolve(src, workDir string) (string, error) {
	fi, err := os.Stat(src)
	if err != nil {
		return "", eris.Wrapf(err, "shapefile: stat %s", src)
	}

	if fi.IsDir() {
		p, err := fetcher.FindByExt(src, ".shp")
		if err != nil {
			return "", eris.Wrap(err, "shapefile: find .shp")
		}
		return p, nil
	}

	if !strings.EqualFold(filepath.Ext(src), ".zip") {
		return src, nil
	}

	dir := workDir
	if dir == "" {
		if dir, err = os.MkdirTemp("", "shapefile-*"); err != nil {
			return "", eris.Wrap(err, "shapefile: create extract dir")
		}
	} else {
		dir = filepath.Join(dir, strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)))
	}
	p, err := fetcher.ExtractShapefile(src, dir)
	if err != nil {
		return "", eris.Wrapf(err, "shapefile: extract %s", src)
	}
	return p, nil
}
