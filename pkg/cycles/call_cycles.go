// Package cycles finds recursion in a call graph.
package cycles

import (
	"sort"

	"gonum.org/v1/gonum/graph/topo"

	"github.com/ritzau/migration-graph/pkg/graph"
)

// CallCycle is a group of functions that can reach each other through
// direct calls. A single self-recursive function is a cycle of one.
type CallCycle struct {
	Functions []*graph.Function `json:"-"`
	Keys      []string          `json:"functions"`
	// Library is true when any member is library-owned
	Library bool `json:"library"`
}

// FindCallCycles returns the strongly connected components of the direct
// call relation that contain a cycle, ordered by their first key
func FindCallCycles(g *graph.CallGraph) []CallCycle {
	cycles := make([]CallCycle, 0)

	for _, scc := range topo.TarjanSCC(g.DirectGraph()) {
		if len(scc) < 2 {
			continue
		}
		fns := make([]*graph.Function, 0, len(scc))
		for _, node := range scc {
			if fn := g.FunctionByID(node.ID()); fn != nil {
				fns = append(fns, fn)
			}
		}
		cycles = append(cycles, newCallCycle(fns))
	}

	// The direct graph carries no self edges
	for _, fn := range g.Functions() {
		if fn.DirectCallees().Has(fn) {
			cycles = append(cycles, newCallCycle([]*graph.Function{fn}))
		}
	}

	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i].Keys[0] < cycles[j].Keys[0]
	})
	return cycles
}

func newCallCycle(fns []*graph.Function) CallCycle {
	sort.Slice(fns, func(i, j int) bool { return fns[i].Key() < fns[j].Key() })

	c := CallCycle{Functions: fns, Keys: make([]string, len(fns))}
	for i, fn := range fns {
		c.Keys[i] = fn.Key()
		if fn.Owner.IsLibrary() {
			c.Library = true
		}
	}
	return c
}
