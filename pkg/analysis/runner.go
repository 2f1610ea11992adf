// Package analysis builds call graphs from trace sources and derives the
// migration views on top of them.
package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ritzau/migration-graph/pkg/cycles"
	"github.com/ritzau/migration-graph/pkg/finder"
	"github.com/ritzau/migration-graph/pkg/graph"
	"github.com/ritzau/migration-graph/pkg/logging"
	"github.com/ritzau/migration-graph/pkg/pubsub"
	"github.com/ritzau/migration-graph/pkg/scope"
	"github.com/ritzau/migration-graph/pkg/trace"
)

const totalSteps = 4

// Sink receives build progress and results
type Sink interface {
	PublishBuildStatus(status pubsub.BuildStatus)
	SetResult(result *Result)
}

// Result is one finished build
type Result struct {
	BuildID   string
	Reason    string
	Finished  time.Time
	Graph     *graph.CallGraph
	Stats     graph.BuildStats
	Affected  []AffectedFile
	CallSites []CallSite
	Surface   []LibraryUsage
	Cycles    []cycles.CallCycle

	// Sources lists the caller files on disk, Untraced those the trace never entered
	Sources  []string
	Untraced []string
}

// Coverage is the percentage of caller files seen in the trace
func (r *Result) Coverage() float64 {
	return TraceCoverage(r.Sources, r.Untraced)
}

// RunnerOptions configures a Runner
type RunnerOptions struct {
	Source      trace.Source
	CallerRoot  string
	LibraryRoot string
	LibraryName string
	// ScopeCacheSize bounds the per-build resolver cache
	ScopeCacheSize int
	// Sink is optional
	Sink Sink
	// ListSources lists caller files relative to CallerRoot.
	// Default: finder.FindPythonFiles.
	ListSources func(root string) ([]string, error)
}

// Runner orchestrates trace loading, graph construction and analysis
type Runner struct {
	opts RunnerOptions
	mu   sync.Mutex // Prevent concurrent builds

	// newProvider creates the scope provider for one build
	newProvider func(ctx context.Context) (scope.Provider, error)
}

// NewRunner creates a new build runner
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("%w: trace source is required", graph.ErrInvalidOptions)
	}
	if opts.ListSources == nil {
		opts.ListSources = finder.FindPythonFiles
	}
	r := &Runner{opts: opts}
	r.newProvider = func(ctx context.Context) (scope.Provider, error) {
		return scope.NewCache(ctx, opts.ScopeCacheSize)
	}
	return r, nil
}

// WithProvider makes every build use p instead of a fresh file cache
func (r *Runner) WithProvider(p scope.Provider) *Runner {
	r.newProvider = func(context.Context) (scope.Provider, error) { return p, nil }
	return r
}

// Run executes one full build. reason is reported in logs and status events.
func (r *Runner) Run(ctx context.Context, reason string) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buildID := uuid.NewString()
	log := logging.New("runner").With("build", buildID[:8])
	log.Info("Starting build", "reason", reason, "source", r.opts.Source.Name())

	fail := func(step int, err error) (*Result, error) {
		log.Error("Build failed", "error", err)
		r.publish(buildID, pubsub.StateError, err.Error(), step)
		return nil, err
	}

	// Step 1: trace
	r.publish(buildID, pubsub.StateLoadingTrace, "Loading trace...", 1)
	// Same predicate the builder uses, library internals never enter as callers
	records, err := r.opts.Source.Load(ctx, trace.PathFilter(graph.CallerSources(r.opts.CallerRoot)), nil)
	if err != nil {
		return fail(1, fmt.Errorf("loading trace: %w", err))
	}

	// Step 2: direct and transitive passes with a fresh scope cache
	r.publish(buildID, pubsub.StateBuilding, fmt.Sprintf("Building graph from %d records...", len(records)), 2)
	provider, err := r.newProvider(ctx)
	if err != nil {
		return fail(2, err)
	}
	builder, err := graph.NewBuilder(graph.BuilderOptions{
		CallerRoot:  r.opts.CallerRoot,
		LibraryRoot: r.opts.LibraryRoot,
		LibraryName: r.opts.LibraryName,
		Resolvers:   provider,
	})
	if err != nil {
		return fail(2, err)
	}
	g, err := builder.Build(records)
	if err != nil {
		return fail(2, fmt.Errorf("building call graph: %w", err))
	}
	if c, ok := provider.(*scope.Cache); ok {
		log.Debug("Scope cache", "parsed", c.Parses())
	}

	// Step 3: migration views
	r.publish(buildID, pubsub.StateAnalyzing, "Finding affected files...", 3)
	result := &Result{
		BuildID:   buildID,
		Reason:    reason,
		Finished:  time.Now(),
		Graph:     g,
		Stats:     builder.Stats(),
		Affected:  FindAffectedFiles(g),
		CallSites: FindCallSites(g),
		Surface:   LibrarySurface(g),
		Cycles:    cycles.FindCallCycles(g),
	}

	// Coverage is informational, a failed walk does not fail the build
	sources, err := r.opts.ListSources(r.opts.CallerRoot)
	if err != nil {
		log.Warn("Listing caller sources failed", "root", r.opts.CallerRoot, "error", err)
	} else {
		result.Sources = sources
		result.Untraced = FindUntracedFiles(g, sources)
	}

	if r.opts.Sink != nil {
		r.opts.Sink.SetResult(result)
	}
	r.publish(buildID, pubsub.StateReady, "Build complete", 4)

	log.Info("Build complete",
		"functions", result.Stats.Functions,
		"affectedFiles", len(result.Affected),
		"cycles", len(result.Cycles),
		"untraced", len(result.Untraced),
	)
	return result, nil
}

func (r *Runner) publish(buildID, state, message string, step int) {
	if r.opts.Sink == nil {
		return
	}
	r.opts.Sink.PublishBuildStatus(pubsub.BuildStatus{
		BuildID: buildID,
		State:   state,
		Message: message,
		Step:    step,
		Total:   totalSteps,
	})
}
