package scope

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ritzau/migration-graph/pkg/logging"
)

// DefaultCacheSize is the number of parsed files kept per build
const DefaultCacheSize = 512

// Cache is a Provider that parses each Python file once and memoizes the
// resolver by path. Source files may change between builds, so a Cache
// must not outlive the build it was created for.
type Cache struct {
	ctx      context.Context
	resolved *lru.Cache[string, Resolver]
	readFile func(string) ([]byte, error)
	parses   int
}

// NewCache creates a resolver cache holding up to size files
func NewCache(ctx context.Context, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	resolved, err := lru.New[string, Resolver](size)
	if err != nil {
		return nil, fmt.Errorf("creating scope cache: %w", err)
	}
	return &Cache{
		ctx:      ctx,
		resolved: resolved,
		readFile: os.ReadFile,
	}, nil
}

// ResolverFor returns the resolver for the Python file at path
func (c *Cache) ResolverFor(path string) (Resolver, error) {
	path = filepath.Clean(path)
	if r, ok := c.resolved.Get(path); ok {
		return r, nil
	}

	src, err := c.readFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	r, err := NewPythonResolver(c.ctx, src)
	if err != nil {
		return nil, fmt.Errorf("indexing %s: %w", path, err)
	}
	c.parses++

	logging.Trace("indexed source file", "path", path, "scopes", r.Len())
	c.resolved.Add(path, r)
	return r, nil
}

// Parses returns how many files were parsed, cache misses included
func (c *Cache) Parses() int {
	return c.parses
}
