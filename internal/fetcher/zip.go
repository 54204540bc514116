package fetcher

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractZIP extracts all files from a ZIP archive to the destination directory.
// Returns the list of extracted file paths.
func ExtractZIP(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		path, err := extractZIPEntry(f, destDir)
		if err != nil {
			return extracted, err
		}
		if path != "" {
			extracted = append(extracted, path)
		}
	}

	return extracted, nil
}

// extractZIPEntry extracts a single zip.File to the destination directory.
// Returns the extracted file path, or empty string for directories.
func extractZIPEntry(f *zip.File, destDir string) (string, error) {
	// Sanitize against zip slip
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(destPath, 0o755); err != nil {
			return "", eris.Wrap(err, "zip: create directory")
		}
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrap(err, "zip: write file")
	}

	return destPath, nil
}

// CreateZIP packs the tree rooted at srcDir into zipPath. Entry names are
// prefixed with the base name of srcDir, so a dated directory unpacks to
// itself. Returns the number of files written.
func CreateZIP(srcDir, zipPath string) (int, error) {
	out, err := os.Create(zipPath)
	if err != nil {
		return 0, eris.Wrap(err, "zip: create archive")
	}
	defer out.Close() //nolint:errcheck

	w := zip.NewWriter(out)
	root := filepath.Clean(srcDir)
	prefix := filepath.Base(root)

	var count int
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		fw, err := w.CreateHeader(&zip.FileHeader{
			Name:   filepath.ToSlash(filepath.Join(prefix, rel)),
			Method: zip.Deflate,
		})
		if err != nil {
			return err
		}

		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close() //nolint:errcheck

		if _, err := io.Copy(fw, in); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		_ = w.Close()
		return count, eris.Wrapf(err, "zip: pack %s", srcDir)
	}

	if err := w.Close(); err != nil {
		return count, eris.Wrap(err, "zip: finalize archive")
	}
	return count, nil
}
