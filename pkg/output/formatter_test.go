package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/ritzau/migration-graph/pkg/analysis"
	"github.com/ritzau/migration-graph/pkg/graph"
	"github.com/ritzau/migration-graph/pkg/storage"
)

func init() {
	color.NoColor = true
}

func TestPrintMigrationReport(t *testing.T) {
	result := &analysis.Result{
		Stats: graph.BuildStats{Records: 10, Discarded: 4, Functions: 5, DirectCalls: 6, TransitiveCalls: 2},
		Affected: []analysis.AffectedFile{
			{File: "app/service.py", Direct: true, Functions: []analysis.AffectedFunction{
				{QualifiedName: "fetch", Line: 3, Direct: true, Reaches: []string{"library:requests|api.py|get"}},
			}},
			{File: "app/views.py", Functions: []analysis.AffectedFunction{
				{QualifiedName: "Handler.get", Line: 10, Reaches: []string{"library:requests|api.py|get"}},
			}},
		},
		CallSites: []analysis.CallSite{{File: "app/service.py", Line: 5, Caller: "fetch", Callee: "get"}},
		Surface:   []analysis.LibraryUsage{{QualifiedName: "get", DirectCallers: 1, AllCallers: 2}},
		Sources:   []string{"app/__init__.py", "app/service.py", "app/settings.py", "app/views.py"},
		Untraced:  []string{"app/__init__.py"},
	}

	var buf bytes.Buffer
	PrintMigrationReport(&buf, "requests", result)
	out := buf.String()

	for _, want := range []string{
		"Migration Report - requests",
		"Trace records: 10 (4 outside tracked code)",
		"app/service.py (direct)",
		"app/views.py (indirect)",
		"Handler.get:10 reaches 1 library function(s)",
		"app/service.py:5  fetch -> get",
		"Trace coverage: 75.0% of 4 caller file(s)",
		"UNTRACED FILES (1):",
		"Summary: 2 file(s) affected, 1 call the library directly",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Report is missing %q:\n%s", want, out)
		}
	}
}

func TestPrintMigrationReportNothingAffected(t *testing.T) {
	var buf bytes.Buffer
	PrintMigrationReport(&buf, "requests", &analysis.Result{})

	if !strings.Contains(buf.String(), "No caller code reaches requests") {
		t.Errorf("Unexpected report:\n%s", buf.String())
	}
}

func TestPrintFunctionQuery(t *testing.T) {
	n := &storage.Neighborhood{
		Function: &storage.Function{Key: "caller|app/service.py|fetch", Owner: "caller", File: "app/service.py", Line: 3, QualifiedName: "fetch"},
		Kind:     "direct",
		Callers: []*storage.Function{
			{Key: "caller|app/views.py|index", Owner: "caller", File: "app/views.py", Line: 8, QualifiedName: "index"},
		},
	}

	var buf bytes.Buffer
	PrintFunctionQuery(&buf, n)
	out := buf.String()

	for _, want := range []string{
		"caller|app/service.py|fetch",
		"app/service.py:3 (caller)",
		"CALLERS (1, direct calls):",
		"index  app/views.py:8 (caller)",
		"CALLEES (0, direct calls):",
		"  none",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
}
