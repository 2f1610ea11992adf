package scope

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// tree-sitter-python node types used to build the scope index
const (
	pyNodeFunctionDefinition  = "function_definition"
	pyNodeClassDefinition     = "class_definition"
	pyNodeDecoratedDefinition = "decorated_definition"
)

// span is one function scope, with 1-based inclusive line bounds
type span struct {
	start int
	end   int
	depth int
	name  string
}

// PythonResolver resolves lines of one Python source file. The scope index
// is built once at construction.
type PythonResolver struct {
	spans []span
}

// NewPythonResolver parses src and indexes its function scopes.
//
// A decorated function's scope starts at its first decorator, matching the
// definition line the interpreter reports for it. Enclosing classes and
// functions contribute to the dotted name.
func NewPythonResolver(ctx context.Context, src []byte) (*PythonResolver, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing python source: %w", err)
	}
	defer tree.Close()

	r := &PythonResolver{}
	r.collect(tree.RootNode(), src, nil)

	sort.Slice(r.spans, func(i, j int) bool {
		if r.spans[i].start != r.spans[j].start {
			return r.spans[i].start < r.spans[j].start
		}
		return r.spans[i].depth < r.spans[j].depth
	})

	return r, nil
}

func (r *PythonResolver) collect(node *sitter.Node, src []byte, path []string) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}

		switch child.Type() {
		case pyNodeFunctionDefinition:
			qualified := extend(path, definitionName(child, src))

			first := child
			if node.Type() == pyNodeDecoratedDefinition {
				first = node
			}
			r.spans = append(r.spans, span{
				start: int(first.StartPoint().Row) + 1,
				end:   lastLine(child),
				depth: len(qualified),
				name:  strings.Join(qualified, "."),
			})
			r.collect(child, src, qualified)

		case pyNodeClassDefinition:
			r.collect(child, src, extend(path, definitionName(child, src)))

		default:
			r.collect(child, src, path)
		}
	}
}

// QualifiedNameAt returns the innermost function scope enclosing line
func (r *PythonResolver) QualifiedNameAt(line int) (string, error) {
	best := -1
	for i, s := range r.spans {
		if s.start > line {
			break
		}
		if line <= s.end && (best < 0 || s.depth > r.spans[best].depth) {
			best = i
		}
	}

	if best < 0 {
		return "", fmt.Errorf("%w: line %d", ErrUnresolvableScope, line)
	}
	return r.spans[best].name, nil
}

// Len returns the number of indexed function scopes
func (r *PythonResolver) Len() int {
	return len(r.spans)
}

func definitionName(node *sitter.Node, src []byte) string {
	if name := node.ChildByFieldName("name"); name != nil {
		return name.Content(src)
	}
	return "<anonymous>"
}

// lastLine returns the 1-based line holding the node's last character
func lastLine(node *sitter.Node) int {
	end := node.EndPoint()
	if end.Column == 0 && end.Row > node.StartPoint().Row {
		return int(end.Row)
	}
	return int(end.Row) + 1
}

func extend(path []string, name string) []string {
	out := make([]string, 0, len(path)+1)
	out = append(out, path...)
	return append(out, name)
}
