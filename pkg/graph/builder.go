package graph

import (
	"fmt"
	"path/filepath"

	"github.com/ritzau/migration-graph/pkg/logging"
	"github.com/ritzau/migration-graph/pkg/scope"
	"github.com/ritzau/migration-graph/pkg/trace"
)

// BuilderOptions configures a Builder
type BuilderOptions struct {
	// CallerRoot is the root directory of the codebase being migrated.
	CallerRoot string

	// LibraryRoot is the install directory of the tracked library.
	LibraryRoot string

	// LibraryName names the tracked library in library ownership tags.
	LibraryName string

	// IsCallerPath overrides the caller codebase predicate.
	// Default: CallerSources(CallerRoot).
	IsCallerPath PathPredicate

	// IsLibraryPath overrides the tracked library predicate.
	// Default: path is inside LibraryRoot.
	IsLibraryPath PathPredicate

	// Resolvers looks up qualified names of definition lines. Required.
	Resolvers scope.Provider
}

// BuildStats summarizes one build
type BuildStats struct {
	Records         int `json:"records"`
	Discarded       int `json:"discarded"`
	Functions       int `json:"functions"`
	DirectCalls     int `json:"directCalls"`
	TransitiveCalls int `json:"transitiveCalls"`
}

// Builder turns call records into a call graph
type Builder struct {
	classifier *classifier
	resolvers  scope.Provider
	stats      BuildStats
}

// NewBuilder creates a builder from opts
func NewBuilder(opts BuilderOptions) (*Builder, error) {
	if opts.Resolvers == nil {
		return nil, fmt.Errorf("%w: scope resolver provider is required", ErrInvalidOptions)
	}
	if opts.CallerRoot == "" {
		return nil, fmt.Errorf("%w: caller root is required", ErrInvalidOptions)
	}
	if opts.LibraryRoot == "" && opts.IsLibraryPath == nil {
		return nil, fmt.Errorf("%w: library root or library predicate is required", ErrInvalidOptions)
	}

	c := &classifier{
		callerRoot:  filepath.Clean(opts.CallerRoot),
		libraryRoot: filepath.Clean(opts.LibraryRoot),
		libraryName: opts.LibraryName,
		isCaller:    opts.IsCallerPath,
		isLibrary:   opts.IsLibraryPath,
	}
	if c.isCaller == nil {
		c.isCaller = CallerSources(c.callerRoot)
	}
	if c.isLibrary == nil {
		c.isLibrary = WithinRoot(c.libraryRoot)
	}

	return &Builder{
		classifier: c,
		resolvers:  opts.Resolvers,
	}, nil
}

// Build runs the direct pass over records, then the closure pass, and
// returns the frozen graph. On error no graph is returned.
func (b *Builder) Build(records []trace.RawCall) (*CallGraph, error) {
	g, err := b.BuildDirect(records)
	if err != nil {
		return nil, err
	}

	added, err := ComputeClosure(g)
	if err != nil {
		return nil, fmt.Errorf("computing transitive calls: %w", err)
	}
	b.stats.TransitiveCalls = added

	g.Freeze()

	logging.Info("Call graph built",
		"records", b.stats.Records,
		"discarded", b.stats.Discarded,
		"functions", b.stats.Functions,
		"direct", b.stats.DirectCalls,
		"transitive", b.stats.TransitiveCalls,
	)
	return g, nil
}

// BuildDirect runs only the direct pass and returns the unfrozen graph
func (b *Builder) BuildDirect(records []trace.RawCall) (*CallGraph, error) {
	b.stats = BuildStats{Records: len(records)}
	g := NewCallGraph()

	for i, record := range records {
		if err := b.addRecord(g, record); err != nil {
			return nil, fmt.Errorf("record %d (%s): %w", i+1, record, err)
		}
	}

	b.stats.Functions = g.Len()
	b.stats.DirectCalls = len(g.DirectCalls())
	return g, nil
}

func (b *Builder) addRecord(g *CallGraph, record trace.RawCall) error {
	if err := record.Validate(); err != nil {
		return err
	}

	calleeOwner, calleePath, ok := b.classifier.classify(record.CalleeFile)
	if !ok {
		b.stats.Discarded++
		logging.Trace("discarding call to untracked file", "callee", record.CalleeFile)
		return nil
	}

	callerName, err := b.qualifiedName(record.CallerFile, record.CallerFuncLine)
	if err != nil {
		return fmt.Errorf("resolving caller: %w", err)
	}
	caller, err := g.AddFunction(CallerOwned(), b.classifier.callerPath(record.CallerFile),
		record.CallerFuncLine, record.CallerFuncName, callerName)
	if err != nil {
		return err
	}

	calleeName, err := b.qualifiedName(record.CalleeFile, record.CalleeFuncLine)
	if err != nil {
		return fmt.Errorf("resolving callee: %w", err)
	}
	callee, err := g.AddFunction(calleeOwner, calleePath,
		record.CalleeFuncLine, record.CalleeFuncName, calleeName)
	if err != nil {
		return err
	}

	return g.AddDirectCall(caller, callee, record.CallLine)
}

func (b *Builder) qualifiedName(path string, line int) (string, error) {
	r, err := b.resolvers.ResolverFor(path)
	if err != nil {
		return "", err
	}
	name, err := r.QualifiedNameAt(line)
	if err != nil {
		return "", fmt.Errorf("%s:%d: %w", path, line, err)
	}
	return name, nil
}

// Stats returns the statistics of the last build
func (b *Builder) Stats() BuildStats {
	return b.stats
}
