// Package model is the serialized form of a call graph shared by the JSON
// export, the SQLite store and the web API.
package model

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/ritzau/migration-graph/pkg/graph"
)

// Node types
const (
	NodeTypeFile    = "file"
	NodeTypeCaller  = "caller"
	NodeTypeLibrary = "library"
)

// Graph represents a unified call graph containing nodes and edges.
// Function nodes are grouped under a parent node for their source file.
type Graph struct {
	Nodes map[string]*Node `json:"nodes"`
	Edges []*Edge          `json:"edges"`
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
		Edges: make([]*Edge, 0),
	}
}

// Node is a function or a source file.
type Node struct {
	ID       string                 `json:"id"`
	Label    string                 `json:"label"`
	Type     string                 `json:"type"`             // "file", "caller" or "library"
	Parent   string                 `json:"parent,omitempty"` // ID of the file node
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Edge is a direct or transitive call.
type Edge struct {
	Source   string                 `json:"source"`
	Target   string                 `json:"target"`
	Type     string                 `json:"type"` // "direct" or "transitive"
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// AddNode adds a node to the graph. If a node with the same ID exists, it updates it.
func (g *Graph) AddNode(node *Node) {
	if node.Metadata == nil {
		node.Metadata = make(map[string]interface{})
	}
	g.Nodes[node.ID] = node
}

// AddEdge adds an edge to the graph.
func (g *Graph) AddEdge(edge *Edge) {
	if edge.Metadata == nil {
		edge.Metadata = make(map[string]interface{})
	}
	g.Edges = append(g.Edges, edge)
}

// FileNodeID is the node ID of the file grouping node
func FileNodeID(owner graph.Ownership, file string) string {
	return owner.String() + "|" + file
}

// FromCallGraph converts the calls of the given kind and their endpoints.
// Functions without calls of that kind are still included.
func FromCallGraph(cg *graph.CallGraph, kind graph.CallKind) *Graph {
	g := NewGraph()

	for _, fn := range cg.Functions() {
		fileID := FileNodeID(fn.Owner, fn.File)
		if _, ok := g.Nodes[fileID]; !ok {
			g.AddNode(&Node{
				ID:    fileID,
				Label: fn.File,
				Type:  NodeTypeFile,
				Metadata: map[string]interface{}{
					"owner": fn.Owner.String(),
				},
			})
		}

		nodeType := NodeTypeCaller
		if fn.Owner.IsLibrary() {
			nodeType = NodeTypeLibrary
		}
		g.AddNode(&Node{
			ID:     fn.Key(),
			Label:  fn.QualifiedName,
			Type:   nodeType,
			Parent: fileID,
			Metadata: map[string]interface{}{
				"file": fn.File,
				"line": fn.Line,
				"name": fn.Name,
			},
		})
	}

	for _, call := range cg.Calls(kind) {
		edge := &Edge{
			Source: call.Caller.Key(),
			Target: call.Callee.Key(),
			Type:   string(graph.CallKindTransitive),
		}
		if call.Direct() {
			edge.Type = string(graph.CallKindDirect)
			edge.Metadata = map[string]interface{}{"line": call.Line}
		}
		g.AddEdge(edge)
	}

	sort.SliceStable(g.Edges, func(i, j int) bool {
		a, b := g.Edges[i], g.Edges[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Target < b.Target
	})
	return g
}

// Write encodes the graph as indented JSON
func (g *Graph) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(g); err != nil {
		return fmt.Errorf("encoding graph: %w", err)
	}
	return nil
}

// Stats counts nodes by type and edges by kind
func (g *Graph) Stats() map[string]int {
	stats := make(map[string]int)
	for _, n := range g.Nodes {
		stats[n.Type]++
	}
	for _, e := range g.Edges {
		stats[e.Type]++
	}
	return stats
}
