// Package graph builds the call graph of a caller codebase and one tracked
// library from recorded call records.
//
// # Lifecycle
//
// A graph is produced by Builder.Build in two ordered passes:
//  1. The direct pass registers functions and one direct call per recorded
//     call site.
//  2. ComputeClosure adds a transitive call for every pair reachable through
//     two or more direct calls that is not already a direct pair.
//
// The builder then freezes the graph. A frozen graph rejects mutation and is
// safe for concurrent readers. A new trace produces a new graph; graphs are
// never updated in place.
package graph

import "errors"

var (
	// ErrGraphFrozen is returned when mutating a graph after Freeze.
	ErrGraphFrozen = errors.New("graph is frozen and cannot be modified")

	// ErrFunctionNotFound is returned when a call references a function
	// that was not registered in the same graph.
	ErrFunctionNotFound = errors.New("function not registered in graph")

	// ErrInvalidOptions is returned by NewBuilder for incomplete options.
	ErrInvalidOptions = errors.New("invalid builder options")
)
