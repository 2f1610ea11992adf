package analysis

import (
	"github.com/ritzau/migration-graph/pkg/graph"
)

// FindUntracedFiles returns the caller files from sources that hold no
// function seen in the trace. A large share usually means the traced run
// did not exercise the codebase well enough to trust the affected set.
func FindUntracedFiles(g *graph.CallGraph, sources []string) []string {
	traced := make(map[string]bool)
	for _, fn := range g.Functions() {
		if fn.Owner.IsCaller() {
			traced[fn.File] = true
		}
	}

	var untraced []string
	for _, file := range sources {
		if !traced[file] {
			untraced = append(untraced, file)
		}
	}
	return untraced
}

// TraceCoverage is the percentage of caller files seen in the trace
func TraceCoverage(sources, untraced []string) float64 {
	if len(sources) == 0 {
		return 0
	}
	return float64(len(sources)-len(untraced)) / float64(len(sources)) * 100
}
