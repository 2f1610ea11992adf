package graph

import (
	"fmt"
	"sync/atomic"

	"gonum.org/v1/gonum/graph/simple"
)

// CallKind selects direct calls, transitive calls or both
type CallKind string

const (
	CallKindDirect     CallKind = "direct"
	CallKindTransitive CallKind = "transitive"
	CallKindAll        CallKind = "all"
)

// ParseCallKind parses a call kind, defaulting to CallKindAll for ""
func ParseCallKind(s string) (CallKind, error) {
	switch CallKind(s) {
	case "", CallKindAll:
		return CallKindAll, nil
	case CallKindDirect:
		return CallKindDirect, nil
	case CallKindTransitive:
		return CallKindTransitive, nil
	}
	return "", fmt.Errorf("unknown call kind %q", s)
}

// Call is an edge between two functions. Direct calls carry the line of
// the call expression; transitive calls have Line 0.
type Call struct {
	Caller *Function `json:"-"`
	Callee *Function `json:"-"`
	Line   int       `json:"line,omitempty"`
}

// Key returns the identity of the call
func (c *Call) Key() string {
	return fmt.Sprintf("%s->%s@%d", c.Caller.key, c.Callee.key, c.Line)
}

// Direct reports whether the call is backed by a call site
func (c *Call) Direct() bool {
	return c.Line != 0
}

// callSet keeps edges unique by identity in insertion order
type callSet struct {
	byKey map[string]*Call
	order []*Call
}

func newCallSet() *callSet {
	return &callSet{byKey: make(map[string]*Call)}
}

func (s *callSet) add(c *Call) bool {
	key := c.Key()
	if _, exists := s.byKey[key]; exists {
		return false
	}
	s.byKey[key] = c
	s.order = append(s.order, c)
	return true
}

func (s *callSet) list() []*Call {
	out := make([]*Call, len(s.order))
	copy(out, s.order)
	return out
}

// CallGraph stores functions, direct calls and transitive calls.
//
// Functions are kept in an identity map and addressed by int64 IDs that
// double as node IDs in the gonum graph mirroring the direct relation.
type CallGraph struct {
	functions []*Function          // Indexed by ID
	byKey     map[string]*Function // Identity map
	direct    *callSet
	trans     *callSet
	graph     *simple.DirectedGraph // Direct caller->callee pairs, self loops excluded
	frozen    atomic.Bool
}

// NewCallGraph creates an empty call graph
func NewCallGraph() *CallGraph {
	return &CallGraph{
		byKey:  make(map[string]*Function),
		direct: newCallSet(),
		trans:  newCallSet(),
		graph:  simple.NewDirectedGraph(),
	}
}

// AddFunction registers a function and returns the node for its identity.
// If a function with the same identity exists it is returned unchanged.
func (g *CallGraph) AddFunction(owner Ownership, file string, line int, name, qualifiedName string) (*Function, error) {
	if g.Frozen() {
		return nil, ErrGraphFrozen
	}

	key := FunctionKey(owner, file, qualifiedName)
	if existing, exists := g.byKey[key]; exists {
		return existing, nil
	}

	id := int64(len(g.functions))
	fn := newFunction(g, id, owner, file, line, name, qualifiedName)
	g.functions = append(g.functions, fn)
	g.byKey[key] = fn
	g.graph.AddNode(simple.Node(id))

	return fn, nil
}

// AddDirectCall records a call from caller to callee at the given call site line
func (g *CallGraph) AddDirectCall(caller, callee *Function, line int) error {
	if err := g.checkMutation(caller, callee); err != nil {
		return err
	}

	g.direct.add(&Call{Caller: caller, Callee: callee, Line: line})
	caller.directCallees.Add(callee)
	callee.directCallers.Add(caller)

	// simple.DirectedGraph rejects self edges; a self loop never adds reachability
	if caller.id != callee.id && !g.graph.HasEdgeFromTo(caller.id, callee.id) {
		g.graph.SetEdge(g.graph.NewEdge(g.graph.Node(caller.id), g.graph.Node(callee.id)))
	}

	return nil
}

// AddTransitiveCall records that callee is reachable from caller without a single call site
func (g *CallGraph) AddTransitiveCall(caller, callee *Function) error {
	if err := g.checkMutation(caller, callee); err != nil {
		return err
	}

	g.trans.add(&Call{Caller: caller, Callee: callee})
	caller.transitiveCallees.Add(callee)
	callee.transitiveCallers.Add(caller)

	return nil
}

func (g *CallGraph) checkMutation(caller, callee *Function) error {
	if g.Frozen() {
		return ErrGraphFrozen
	}
	for _, fn := range []*Function{caller, callee} {
		if fn == nil || fn.graph != g {
			return fmt.Errorf("%w: %v", ErrFunctionNotFound, fn)
		}
	}
	return nil
}

// Freeze makes the graph read-only
func (g *CallGraph) Freeze() {
	g.frozen.Store(true)
}

// Frozen reports whether Freeze has been called
func (g *CallGraph) Frozen() bool {
	return g.frozen.Load()
}

// Len returns the number of functions
func (g *CallGraph) Len() int {
	return len(g.functions)
}

// Functions returns all functions in registration order
func (g *CallGraph) Functions() []*Function {
	out := make([]*Function, len(g.functions))
	copy(out, g.functions)
	return out
}

// Function returns the function with the given identity key
func (g *CallGraph) Function(key string) (*Function, bool) {
	fn, exists := g.byKey[key]
	return fn, exists
}

// FunctionByID returns the function for a node ID of DirectGraph
func (g *CallGraph) FunctionByID(id int64) *Function {
	if id < 0 || id >= int64(len(g.functions)) {
		return nil
	}
	return g.functions[id]
}

// DirectCalls returns all direct calls in insertion order
func (g *CallGraph) DirectCalls() []*Call {
	return g.direct.list()
}

// TransitiveCalls returns all transitive calls in insertion order
func (g *CallGraph) TransitiveCalls() []*Call {
	return g.trans.list()
}

// AllCalls returns direct calls followed by transitive calls
func (g *CallGraph) AllCalls() []*Call {
	return append(g.direct.list(), g.trans.order...)
}

// Calls returns the calls of the given kind
func (g *CallGraph) Calls(kind CallKind) []*Call {
	switch kind {
	case CallKindDirect:
		return g.DirectCalls()
	case CallKindTransitive:
		return g.TransitiveCalls()
	default:
		return g.AllCalls()
	}
}

// DirectGraph returns the gonum graph of deduplicated direct caller->callee
// pairs. Node IDs match Function.ID. Self loops are not represented.
func (g *CallGraph) DirectGraph() *simple.DirectedGraph {
	return g.graph
}
