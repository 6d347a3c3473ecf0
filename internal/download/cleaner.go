package download

import (
	"os"
	"path/filepath"
	"sort"
)

// ClearDir keeps the keep newest files of dir by name and removes the rest.
// A missing directory is created. Files that cannot be removed are skipped and
// the first such error is returned.
func ClearDir(dir string, keep int) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	if keep < 0 {
		keep = 0
	}
	if keep >= len(names) {
		return nil
	}

	var firstErr error
	for _, name := range names[keep:] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
