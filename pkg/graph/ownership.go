package graph

import (
	"path/filepath"
	"strings"

	"github.com/ritzau/migration-graph/pkg/finder"
)

// PathPredicate decides whether an absolute file path belongs to a root
type PathPredicate func(path string) bool

// WithinRoot returns a predicate matching paths inside root
func WithinRoot(root string) PathPredicate {
	root = filepath.Clean(root)
	return func(path string) bool {
		_, ok := relativeTo(root, path)
		return ok
	}
}

// CallerSources returns the default caller predicate: paths inside root
// that are not below a directory finder.SkipDir excludes. A project-local
// virtualenv such as root/.venv/lib/python3.12/site-packages therefore
// stays out of the caller codebase, a vendor/ copy does not.
func CallerSources(root string) PathPredicate {
	root = filepath.Clean(root)
	return func(path string) bool {
		rel, ok := relativeTo(root, path)
		if !ok {
			return false
		}
		dirs := strings.Split(rel, "/")
		for _, dir := range dirs[:len(dirs)-1] {
			if finder.SkipDir(dir) {
				return false
			}
		}
		return true
	}
}

// classifier assigns ownership to call endpoints
type classifier struct {
	callerRoot  string
	libraryRoot string
	libraryName string
	isCaller    PathPredicate
	isLibrary   PathPredicate
}

// classify returns the owner of path and the path relative to the owner's
// root. ok is false when the path belongs to neither owner.
//
// A path matching both predicates is caller-owned. This is the policy for
// overlapping roots, e.g. a copy of the library vendored into the caller
// codebase is treated as caller code to be migrated.
func (c *classifier) classify(path string) (owner Ownership, rel string, ok bool) {
	if c.isCaller(path) {
		return CallerOwned(), c.callerPath(path), true
	}
	if c.isLibrary(path) {
		rel, _ := relativeTo(c.libraryRoot, path)
		return LibraryOwned(c.libraryName), rel, true
	}
	return Ownership{}, "", false
}

// callerPath returns path relative to the caller root
func (c *classifier) callerPath(path string) string {
	rel, _ := relativeTo(c.callerRoot, path)
	return rel
}

// relativeTo returns the slash separated path of target below root. When
// target is not below root it is returned cleaned and ok is false.
func relativeTo(root, target string) (string, bool) {
	target = filepath.Clean(target)
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(target), false
	}
	return filepath.ToSlash(rel), true
}
