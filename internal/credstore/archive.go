package credstore

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Archive writes a zip bundle of the session's credential directory to w.
func (s *Store) Archive(id string, w io.Writer) error {
	dir := s.Dir(id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read credential directory: %w", err)
	}

	zw := zip.NewWriter(w)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		f, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			zw.Close()
			return fmt.Errorf("open %s: %w", entry.Name(), err)
		}

		dst, err := zw.Create(entry.Name())
		if err != nil {
			f.Close()
			zw.Close()
			return fmt.Errorf("archive %s: %w", entry.Name(), err)
		}
		if _, err := io.Copy(dst, f); err != nil {
			f.Close()
			zw.Close()
			return fmt.Errorf("archive %s: %w", entry.Name(), err)
		}
		f.Close()
	}

	return zw.Close()
}
