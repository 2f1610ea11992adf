package graph

import (
	"fmt"
	"sort"
	"sync"
)

// OwnerKind distinguishes the two ownership classes of a function
type OwnerKind int

const (
	OwnerCaller  OwnerKind = iota // Part of the codebase being migrated
	OwnerLibrary                  // Part of the tracked library
)

// Ownership tags a function as belonging to the caller codebase or to the
// tracked library. The zero value is caller ownership.
type Ownership struct {
	Kind    OwnerKind
	Library string // Library name, empty for caller ownership
}

// CallerOwned returns the ownership of caller codebase functions
func CallerOwned() Ownership {
	return Ownership{Kind: OwnerCaller}
}

// LibraryOwned returns the ownership of functions in the named library
func LibraryOwned(name string) Ownership {
	return Ownership{Kind: OwnerLibrary, Library: name}
}

// IsCaller reports whether the owner is the caller codebase
func (o Ownership) IsCaller() bool {
	return o.Kind == OwnerCaller
}

// IsLibrary reports whether the owner is the tracked library
func (o Ownership) IsLibrary() bool {
	return o.Kind == OwnerLibrary
}

// String renders the ownership as "caller" or "library:<name>"
func (o Ownership) String() string {
	if o.Kind == OwnerLibrary {
		return "library:" + o.Library
	}
	return "caller"
}

// MarshalText encodes the ownership in its String form
func (o Ownership) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// FunctionKey renders the identity of a function. Two functions with the
// same qualified name, file and owner are the same node.
func FunctionKey(owner Ownership, file, qualifiedName string) string {
	return fmt.Sprintf("%s|%s|%s", owner, file, qualifiedName)
}

// Function is a node in the call graph.
//
// The adjacency sets are owned by the graph that created the function and
// must only be read by callers.
type Function struct {
	Owner         Ownership `json:"owner"`
	File          string    `json:"file"`          // Relative to the owning root, e.g. "app/views.py"
	Line          int       `json:"line"`          // Definition line
	Name          string    `json:"name"`          // Short name as recorded in the trace
	QualifiedName string    `json:"qualifiedName"` // Dotted path within the file, e.g. "Handler.get"

	id    int64
	key   string
	graph *CallGraph

	directCallees     FunctionSet
	directCallers     FunctionSet
	transitiveCallees FunctionSet
	transitiveCallers FunctionSet

	allCalleesOnce sync.Once
	allCallersOnce sync.Once
	allCallees     FunctionSet
	allCallers     FunctionSet
}

func newFunction(g *CallGraph, id int64, owner Ownership, file string, line int, name, qualifiedName string) *Function {
	return &Function{
		Owner:             owner,
		File:              file,
		Line:              line,
		Name:              name,
		QualifiedName:     qualifiedName,
		id:                id,
		key:               FunctionKey(owner, file, qualifiedName),
		graph:             g,
		directCallees:     make(FunctionSet),
		directCallers:     make(FunctionSet),
		transitiveCallees: make(FunctionSet),
		transitiveCallers: make(FunctionSet),
	}
}

// Key returns the identity key of the function
func (f *Function) Key() string {
	return f.key
}

// ID returns the graph-local node ID, shared with DirectGraph
func (f *Function) ID() int64 {
	return f.id
}

func (f *Function) String() string {
	return f.key
}

// DirectCallees returns the functions this function calls at a recorded call site
func (f *Function) DirectCallees() FunctionSet {
	return f.directCallees
}

// DirectCallers returns the functions that call this function at a recorded call site
func (f *Function) DirectCallers() FunctionSet {
	return f.directCallers
}

// TransitiveCallees returns the functions reachable only through longer paths
func (f *Function) TransitiveCallees() FunctionSet {
	return f.transitiveCallees
}

// TransitiveCallers returns the functions reaching this one only through longer paths
func (f *Function) TransitiveCallers() FunctionSet {
	return f.transitiveCallers
}

// AllCallees returns the union of direct and transitive callees.
// The result is computed once and cached when the graph is frozen.
func (f *Function) AllCallees() FunctionSet {
	if f.graph == nil || !f.graph.Frozen() {
		return union(f.directCallees, f.transitiveCallees)
	}
	f.allCalleesOnce.Do(func() {
		f.allCallees = union(f.directCallees, f.transitiveCallees)
	})
	return f.allCallees
}

// AllCallers returns the union of direct and transitive callers.
// The result is computed once and cached when the graph is frozen.
func (f *Function) AllCallers() FunctionSet {
	if f.graph == nil || !f.graph.Frozen() {
		return union(f.directCallers, f.transitiveCallers)
	}
	f.allCallersOnce.Do(func() {
		f.allCallers = union(f.directCallers, f.transitiveCallers)
	})
	return f.allCallers
}

// FunctionSet is a set of functions keyed by identity
type FunctionSet map[string]*Function

// Add inserts f into the set
func (s FunctionSet) Add(f *Function) {
	s[f.key] = f
}

// Has reports whether a function with the same identity is in the set
func (s FunctionSet) Has(f *Function) bool {
	_, ok := s[f.key]
	return ok
}

// Keys returns the sorted identity keys of the set
func (s FunctionSet) Keys() []string {
	keys := make([]string, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Sorted returns the functions ordered by identity key
func (s FunctionSet) Sorted() []*Function {
	keys := s.Keys()
	fns := make([]*Function, 0, len(keys))
	for _, key := range keys {
		fns = append(fns, s[key])
	}
	return fns
}

// Equal reports whether both sets hold the same identities
func (s FunctionSet) Equal(other FunctionSet) bool {
	if len(s) != len(other) {
		return false
	}
	for key := range s {
		if _, ok := other[key]; !ok {
			return false
		}
	}
	return true
}

func union(a, b FunctionSet) FunctionSet {
	out := make(FunctionSet, len(a)+len(b))
	for key, f := range a {
		out[key] = f
	}
	for key, f := range b {
		out[key] = f
	}
	return out
}
