package job

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// writeArchive bundles the given files into a single zip at zipPath. Entries
// are stored flat under their base names; duplicate titles simply produce
// duplicate entries, which readers resolve last-wins.
func writeArchive(zipPath string, files []string) (err error) {
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(zipPath)
		}
	}()

	zw := zip.NewWriter(out)
	for _, path := range files {
		if err = addArchiveEntry(zw, path); err != nil {
			zw.Close()
			return fmt.Errorf("archive %s: %w", path, err)
		}
	}
	return zw.Close()
}

func addArchiveEntry(zw *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := zw.Create(filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}
