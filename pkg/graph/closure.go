package graph

import (
	"fmt"
	"sort"

	gonumgraph "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/traverse"
)

// ComputeClosure adds a transitive call for every pair (u, v) where v is
// reachable from u through one or more direct calls and u->v is not itself
// a direct call. A function only reaches itself through an actual cycle of
// length two or more; a direct self call is already direct and is skipped.
//
// The direct pass must be complete before calling this. Returns the number
// of transitive calls added.
func ComputeClosure(g *CallGraph) (int, error) {
	if g.Frozen() {
		return 0, ErrGraphFrozen
	}

	direct := g.DirectGraph()
	added := 0

	for _, u := range g.Functions() {
		reached := make(map[int64]bool)

		// One visited set per source, shared by the walks from each successor
		walker := traverse.BreadthFirst{
			Visit: func(n gonumgraph.Node) {
				reached[n.ID()] = true
			},
		}
		successors := direct.From(u.ID())
		for successors.Next() {
			walker.Walk(direct, successors.Node(), nil)
		}

		for _, v := range sortedIDs(reached) {
			callee := g.FunctionByID(v)
			if u.directCallees.Has(callee) {
				continue
			}
			if err := g.AddTransitiveCall(u, callee); err != nil {
				return added, fmt.Errorf("adding transitive call %s -> %s: %w", u.key, callee.key, err)
			}
			added++
		}
	}

	return added, nil
}

// sortedIDs keeps transitive call insertion order deterministic
func sortedIDs(set map[int64]bool) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
