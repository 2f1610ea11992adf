package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ritzau/migration-graph/pkg/graph"
	"github.com/ritzau/migration-graph/pkg/pubsub"
	"github.com/ritzau/migration-graph/pkg/scope"
	"github.com/ritzau/migration-graph/pkg/trace"
)

type fakeSink struct {
	mu       sync.Mutex
	statuses []pubsub.BuildStatus
	result   *Result
}

func (s *fakeSink) PublishBuildStatus(status pubsub.BuildStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
}

func (s *fakeSink) SetResult(result *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = result
}

func (s *fakeSink) states() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, st := range s.statuses {
		out = append(out, st.State)
	}
	return out
}

var traceRecords = []trace.RawCall{
	{CallerFile: "/src/app/views.py", CallerFuncLine: 10, CallerFuncName: "get", CallLine: 12,
		CalleeFile: "/src/app/service.py", CalleeFuncLine: 3, CalleeFuncName: "fetch"},
	{CallerFile: "/src/app/service.py", CallerFuncLine: 3, CallerFuncName: "fetch", CallLine: 5,
		CalleeFile: "/venv/requests/api.py", CalleeFuncLine: 64, CalleeFuncName: "get"},
	// Caller outside the codebase is filtered by the source
	{CallerFile: "/venv/requests/api.py", CallerFuncLine: 64, CallerFuncName: "get", CallLine: 70,
		CalleeFile: "/venv/requests/sessions.py", CalleeFuncLine: 500, CalleeFuncName: "request"},
}

func testProvider() *scope.MockProvider {
	return &scope.MockProvider{Files: map[string]map[int]string{
		"/src/app/views.py":     {10: "Handler.get"},
		"/src/app/service.py":   {3: "fetch"},
		"/venv/requests/api.py": {64: "get"},
	}}
}

func newTestRunner(t *testing.T, records []trace.RawCall, sink Sink) *Runner {
	t.Helper()
	r, err := NewRunner(RunnerOptions{
		Source:      &trace.StaticSource{Calls: records},
		CallerRoot:  "/src/app",
		LibraryRoot: "/venv/requests",
		LibraryName: "requests",
		Sink:        sink,
		ListSources: func(string) ([]string, error) {
			return []string{"__init__.py", "service.py", "settings.py", "views.py"}, nil
		},
	})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	return r.WithProvider(testProvider())
}

func TestRunnerRun(t *testing.T) {
	sink := &fakeSink{}
	r := newTestRunner(t, traceRecords, sink)

	result, err := r.Run(context.Background(), "initial build")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.BuildID == "" || result.Reason != "initial build" {
		t.Errorf("Unexpected result metadata %+v", result)
	}
	if result.Stats.Records != 2 || result.Stats.Functions != 3 {
		t.Errorf("Unexpected stats %+v", result.Stats)
	}
	if len(result.Affected) != 2 {
		t.Errorf("Expected 2 affected files, got %d", len(result.Affected))
	}
	if sink.result != result {
		t.Error("Sink should receive the result")
	}
	if len(result.Untraced) != 2 || result.Untraced[0] != "__init__.py" || result.Untraced[1] != "settings.py" {
		t.Errorf("Unexpected untraced files %v", result.Untraced)
	}
	if result.Coverage() != 50 {
		t.Errorf("Coverage() = %v, want 50", result.Coverage())
	}

	want := []string{pubsub.StateLoadingTrace, pubsub.StateBuilding, pubsub.StateAnalyzing, pubsub.StateReady}
	got := sink.states()
	if len(got) != len(want) {
		t.Fatalf("Published states %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("state %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRunnerRunError(t *testing.T) {
	sink := &fakeSink{}
	records := append([]trace.RawCall{}, traceRecords[0])
	records[0].CallerFuncLine = 99 // not a known definition line

	r := newTestRunner(t, records, sink)
	result, err := r.Run(context.Background(), "broken trace")
	if !errors.Is(err, scope.ErrUnresolvableScope) {
		t.Fatalf("Run() error = %v, want ErrUnresolvableScope", err)
	}
	if result != nil || sink.result != nil {
		t.Error("No result should be produced on error")
	}

	states := sink.states()
	if states[len(states)-1] != pubsub.StateError {
		t.Errorf("Last state = %s, want error", states[len(states)-1])
	}
}

func TestNewRunnerRequiresSource(t *testing.T) {
	if _, err := NewRunner(RunnerOptions{CallerRoot: "/src"}); err == nil {
		t.Error("Expected error without a trace source")
	}
}

func TestRunnerSourceListingFailureIsNotFatal(t *testing.T) {
	r, err := NewRunner(RunnerOptions{
		Source:      &trace.StaticSource{Calls: traceRecords},
		CallerRoot:  "/src/app",
		LibraryRoot: "/venv/requests",
		LibraryName: "requests",
		ListSources: func(string) ([]string, error) { return nil, errors.New("permission denied") },
	})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	result, err := r.WithProvider(testProvider()).Run(context.Background(), "no sources")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Sources != nil || result.Untraced != nil {
		t.Errorf("Expected no coverage data, got %v / %v", result.Sources, result.Untraced)
	}
}

func writeSource(t *testing.T, path, src string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunnerResolvesFromFreshSources(t *testing.T) {
	dir := t.TempDir()
	callerRoot := filepath.Join(dir, "app")
	libraryRoot := filepath.Join(dir, "site-packages", "requests")
	views := filepath.Join(callerRoot, "views.py")
	api := filepath.Join(libraryRoot, "api.py")

	writeSource(t, api, "def get(url):\n    return url\n")
	writeSource(t, views, "def index(request):\n    return get('/')\n")

	r, err := NewRunner(RunnerOptions{
		Source: &trace.StaticSource{Calls: []trace.RawCall{{
			CallerFile: views, CallerFuncLine: 1, CallerFuncName: "index", CallLine: 2,
			CalleeFile: api, CalleeFuncLine: 1, CalleeFuncName: "get",
		}}},
		CallerRoot:     callerRoot,
		LibraryRoot:    libraryRoot,
		LibraryName:    "requests",
		ScopeCacheSize: 8,
	})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	first, err := r.Run(context.Background(), "initial build")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, ok := first.Graph.Function(graph.FunctionKey(graph.CallerOwned(), "views.py", "index")); !ok {
		t.Fatalf("Expected index in first build")
	}
	if first.Coverage() != 100 {
		t.Errorf("Coverage() = %v, want 100", first.Coverage())
	}

	// Line 1 now opens a different function
	writeSource(t, views, "def landing(request):\n    return get('/')\n\n\ndef index(request):\n    pass\n")

	second, err := r.Run(context.Background(), "source changed: views.py")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, ok := second.Graph.Function(graph.FunctionKey(graph.CallerOwned(), "views.py", "landing")); !ok {
		t.Error("Second build should resolve line 1 against the rewritten file")
	}
	if _, ok := second.Graph.Function(graph.FunctionKey(graph.CallerOwned(), "views.py", "index")); ok {
		t.Error("Second build reused the scope index of the first build")
	}
}

func TestRunnerSkipsProjectVirtualenvCallers(t *testing.T) {
	const venvLib = "/src/app/.venv/lib/python3.12/site-packages/requests"
	records := []trace.RawCall{
		{CallerFile: "/src/app/views.py", CallerFuncLine: 10, CallerFuncName: "get", CallLine: 12,
			CalleeFile: venvLib + "/api.py", CalleeFuncLine: 64, CalleeFuncName: "get"},
		// Library internals, the caller is inside the caller root but in the virtualenv
		{CallerFile: venvLib + "/api.py", CallerFuncLine: 64, CallerFuncName: "get", CallLine: 70,
			CalleeFile: venvLib + "/sessions.py", CalleeFuncLine: 500, CalleeFuncName: "request"},
	}

	r, err := NewRunner(RunnerOptions{
		Source:      &trace.StaticSource{Calls: records},
		CallerRoot:  "/src/app",
		LibraryRoot: venvLib,
		LibraryName: "requests",
		ListSources: func(string) ([]string, error) { return []string{"views.py"}, nil },
	})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	r.WithProvider(&scope.MockProvider{Files: map[string]map[int]string{
		"/src/app/views.py":       {10: "Handler.get"},
		venvLib + "/api.py":      {64: "get"},
		venvLib + "/sessions.py": {500: "Session.request"},
	}})

	result, err := r.Run(context.Background(), "venv layout")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Stats.Records != 1 || result.Graph.Len() != 2 {
		t.Errorf("Expected only the caller record, got stats %+v", result.Stats)
	}
	if len(result.Affected) != 1 || result.Affected[0].File != "views.py" || !result.Affected[0].Direct {
		t.Errorf("Unexpected affected files %+v", result.Affected)
	}
}
