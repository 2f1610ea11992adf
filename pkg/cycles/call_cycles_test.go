package cycles

import (
	"testing"

	"github.com/ritzau/migration-graph/pkg/graph"
)

func buildGraph(t *testing.T, names []string, calls [][2]string) *graph.CallGraph {
	t.Helper()

	g := graph.NewCallGraph()
	fns := make(map[string]*graph.Function)
	for _, name := range names {
		fn, err := g.AddFunction(graph.CallerOwned(), name+".py", 1, name, name)
		if err != nil {
			t.Fatalf("AddFunction(%s) error = %v", name, err)
		}
		fns[name] = fn
	}
	for i, c := range calls {
		if err := g.AddDirectCall(fns[c[0]], fns[c[1]], i+1); err != nil {
			t.Fatalf("AddDirectCall(%v) error = %v", c, err)
		}
	}
	g.Freeze()
	return g
}

func names(c CallCycle) []string {
	out := make([]string, len(c.Functions))
	for i, fn := range c.Functions {
		out[i] = fn.Name
	}
	return out
}

func TestFindCallCyclesNoCycles(t *testing.T) {
	g := buildGraph(t, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}, {"a", "c"}})

	if cycles := FindCallCycles(g); len(cycles) != 0 {
		t.Errorf("Expected no cycles, found %d", len(cycles))
	}
}

func TestFindCallCycles(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		calls [][2]string
		want  [][]string
	}{
		{
			name:  "two-cycle",
			names: []string{"a", "b"},
			calls: [][2]string{{"a", "b"}, {"b", "a"}},
			want:  [][]string{{"a", "b"}},
		},
		{
			name:  "three-cycle with tail",
			names: []string{"a", "b", "c", "d"},
			calls: [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}, {"c", "d"}},
			want:  [][]string{{"a", "b", "c"}},
		},
		{
			name:  "self recursion",
			names: []string{"a", "b"},
			calls: [][2]string{{"a", "b"}, {"b", "b"}},
			want:  [][]string{{"b"}},
		},
		{
			name:  "separate cycles",
			names: []string{"a", "b", "c", "d", "e"},
			calls: [][2]string{{"a", "b"}, {"b", "a"}, {"c", "d"}, {"d", "c"}, {"e", "e"}},
			want:  [][]string{{"a", "b"}, {"c", "d"}, {"e"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cycles := FindCallCycles(buildGraph(t, tt.names, tt.calls))
			if len(cycles) != len(tt.want) {
				t.Fatalf("Expected %d cycles, got %d", len(tt.want), len(cycles))
			}
			for i, want := range tt.want {
				got := names(cycles[i])
				if len(got) != len(want) {
					t.Errorf("cycle %d = %v, want %v", i, got, want)
					continue
				}
				for j := range want {
					if got[j] != want[j] {
						t.Errorf("cycle %d = %v, want %v", i, got, want)
						break
					}
				}
				if cycles[i].Library {
					t.Errorf("cycle %d should not be marked library", i)
				}
			}
		})
	}
}

func TestFindCallCyclesLibraryMember(t *testing.T) {
	g := graph.NewCallGraph()
	a, _ := g.AddFunction(graph.CallerOwned(), "hooks.py", 1, "on_response", "on_response")
	b, _ := g.AddFunction(graph.LibraryOwned("requests"), "sessions.py", 1, "send", "Session.send")
	if err := g.AddDirectCall(a, b, 2); err != nil {
		t.Fatal(err)
	}
	if err := g.AddDirectCall(b, a, 3); err != nil {
		t.Fatal(err)
	}

	cycles := FindCallCycles(g)
	if len(cycles) != 1 || !cycles[0].Library {
		t.Errorf("Expected one library cycle, got %+v", cycles)
	}
}
