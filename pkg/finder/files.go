package finder

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// SkipDir reports directories that never hold caller sources: caches,
// virtual environments and hidden directories
func SkipDir(name string) bool {
	switch name {
	case "__pycache__", "node_modules", "venv", "site-packages", "build", "dist":
		return true
	}
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// FindPythonFiles walks root and returns the .py files below it as sorted
// slash separated paths relative to root
func FindPythonFiles(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if filepath.Ext(path) == ".py" {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})

	sort.Strings(files)
	return files, err
}
