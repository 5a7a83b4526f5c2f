package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ShapefileParts are the archive members a shapefile reader uses. TIGER and
// county archives also carry metadata XML, which is left in the archive.
var ShapefileParts = []string{".shp", ".shx", ".dbf", ".prj", ".cpg"}

// ExtractShapefile unpacks the shapefile members of a ZIP archive into destDir,
// keeping their archive paths so sidecars stay next to their .shp, and returns
// the path of the first .shp in archive order.
func ExtractShapefile(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrapf(err, "zip: open %s", zipPath)
	}
	defer r.Close() //nolint:errcheck

	var shp string
	members, skipped := 0, 0
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !isShapefilePart(f.Name) {
			skipped++
			continue
		}

		dest, err := memberPath(destDir, f.Name)
		if err != nil {
			return "", err
		}
		if err := writeMember(f, dest); err != nil {
			return "", err
		}
		members++
		if shp == "" && strings.EqualFold(path.Ext(f.Name), ".shp") {
			shp = dest
		}
	}
	if shp == "" {
		return "", eris.Errorf("zip: no .shp member in %s", filepath.Base(zipPath))
	}

	zap.L().Debug("shapefile extracted",
		zap.String("component", "fetcher.zip"),
		zap.String("archive", zipPath),
		zap.String("shp", shp),
		zap.Int("members", members),
		zap.Int("skipped", skipped),
	)
	return shp, nil
}

// FindByExt returns the first path in dir (searched recursively, lexical order)
// with the given extension.
func FindByExt(dir, ext string) (string, error) {
	var found string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if found == "" && !d.IsDir() && strings.EqualFold(filepath.Ext(path), ext) {
			found = path
		}
		return nil
	})
	if err != nil {
		return "", eris.Wrapf(err, "zip: walk %s", dir)
	}
	if found == "" {
		return "", eris.Errorf("zip: no %s file in %s", ext, dir)
	}
	return found, nil
}

func isShapefilePart(name string) bool {
	ext := path.Ext(name)
	for _, part := range ShapefileParts {
		if strings.EqualFold(ext, part) {
			return true
		}
	}
	return false
}

// memberPath maps an archive member name under destDir. Names that would
// land outside destDir are rejected.
func memberPath(destDir, name string) (string, error) {
	local := filepath.FromSlash(name)
	if !filepath.IsLocal(local) {
		return "", eris.Errorf("zip: illegal member path %q", name)
	}
	return filepath.Join(destDir, local), nil
}

func writeMember(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return eris.Wrapf(err, "zip: create directory for %s", f.Name)
	}

	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "zip: open member %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "zip: create %s", dest)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close() //nolint:errcheck
		return eris.Wrapf(err, "zip: write %s", dest)
	}
	return eris.Wrapf(out.Close(), "zip: close %s", dest)
}
