package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ritzau/migration-graph/pkg/analysis"
	"github.com/ritzau/migration-graph/pkg/graph"
	"github.com/ritzau/migration-graph/pkg/model"
	"github.com/ritzau/migration-graph/pkg/pubsub"
)

const (
	viewKey = "caller|app/views.py|Handler.get"
	getKey  = "library:requests|api.py|get"
)

func testResult(t *testing.T) *analysis.Result {
	t.Helper()

	g := graph.NewCallGraph()
	view, _ := g.AddFunction(graph.CallerOwned(), "app/views.py", 10, "get", "Handler.get")
	fetch, _ := g.AddFunction(graph.CallerOwned(), "app/service.py", 3, "fetch", "fetch")
	get, _ := g.AddFunction(graph.LibraryOwned("requests"), "api.py", 64, "get", "get")
	if err := g.AddDirectCall(view, fetch, 12); err != nil {
		t.Fatal(err)
	}
	if err := g.AddDirectCall(fetch, get, 5); err != nil {
		t.Fatal(err)
	}
	if _, err := graph.ComputeClosure(g); err != nil {
		t.Fatal(err)
	}
	g.Freeze()

	return &analysis.Result{
		BuildID:  "build-1",
		Reason:   "test",
		Finished: time.Now(),
		Graph:    g,
		Stats:    graph.BuildStats{Records: 2, Functions: 3, DirectCalls: 2, TransitiveCalls: 1},
		Affected: analysis.FindAffectedFiles(g),
		Sources:  []string{"app/__init__.py", "app/service.py", "app/views.py"},
		Untraced: []string{"app/__init__.py"},
	}
}

func get(t *testing.T, h http.Handler, target string, v interface{}) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if v != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
			t.Fatalf("GET %s: invalid JSON: %v\n%s", target, err, rec.Body.String())
		}
	}
	return rec
}

func TestNotReady(t *testing.T) {
	s := NewServer()
	defer s.Shutdown(context.Background())

	if rec := get(t, s.Handler(), "/api/functions", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 before the first build, got %d", rec.Code)
	}

	var status StatusView
	get(t, s.Handler(), "/api/status", &status)
	if status.Ready {
		t.Error("Status should not be ready")
	}
}

func TestFunctionsAndCalls(t *testing.T) {
	s := NewServer()
	defer s.Shutdown(context.Background())
	s.SetResult(testResult(t))
	h := s.Handler()

	var fns []FunctionView
	get(t, h, "/api/functions", &fns)
	if len(fns) != 3 {
		t.Errorf("Expected 3 functions, got %d", len(fns))
	}

	get(t, h, "/api/functions?owner=library", &fns)
	if len(fns) != 1 || fns[0].Key != getKey {
		t.Errorf("Library filter returned %+v", fns)
	}

	var calls []CallView
	get(t, h, "/api/calls?kind=transitive", &calls)
	if len(calls) != 1 || calls[0].Caller != viewKey || calls[0].Callee != getKey || calls[0].Line != 0 {
		t.Errorf("Unexpected transitive calls %+v", calls)
	}

	get(t, h, "/api/calls", &calls)
	if len(calls) != 3 {
		t.Errorf("Expected 3 calls of all kinds, got %d", len(calls))
	}

	if rec := get(t, h, "/api/calls?kind=sideways", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad kind, got %d", rec.Code)
	}
	if rec := get(t, h, "/api/functions?owner=nobody", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad owner, got %d", rec.Code)
	}
}

func TestRelatedFunctions(t *testing.T) {
	s := NewServer()
	defer s.Shutdown(context.Background())
	s.SetResult(testResult(t))
	h := s.Handler()

	tests := []struct {
		target string
		want   []string
	}{
		{"/api/functions/callees?key=" + viewKey + "&kind=direct", []string{"caller|app/service.py|fetch"}},
		{"/api/functions/callees?key=" + viewKey + "&kind=transitive", []string{getKey}},
		{"/api/functions/callees?key=" + viewKey, []string{"caller|app/service.py|fetch", getKey}},
		{"/api/functions/callers?key=" + getKey + "&kind=transitive", []string{viewKey}},
	}

	for _, tt := range tests {
		var fns []FunctionView
		if rec := get(t, h, tt.target, &fns); rec.Code != http.StatusOK {
			t.Errorf("GET %s: status %d", tt.target, rec.Code)
			continue
		}
		if len(fns) != len(tt.want) {
			t.Errorf("GET %s = %+v, want %v", tt.target, fns, tt.want)
			continue
		}
		for i := range tt.want {
			if fns[i].Key != tt.want[i] {
				t.Errorf("GET %s [%d] = %s, want %s", tt.target, i, fns[i].Key, tt.want[i])
			}
		}
	}

	if rec := get(t, h, "/api/functions/callers?key=caller|nope.py|x", nil); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown key, got %d", rec.Code)
	}
	if rec := get(t, h, "/api/functions/callers", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without key, got %d", rec.Code)
	}
}

func TestAnalysisEndpoints(t *testing.T) {
	s := NewServer()
	defer s.Shutdown(context.Background())
	s.SetResult(testResult(t))
	h := s.Handler()

	var affected []analysis.AffectedFile
	get(t, h, "/api/affected", &affected)
	if len(affected) != 2 {
		t.Errorf("Expected 2 affected files, got %d", len(affected))
	}

	rec := get(t, h, "/api/cycles", nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("Expected empty cycle list, got %q", rec.Body.String())
	}

	var coverage CoverageView
	get(t, h, "/api/coverage", &coverage)
	if coverage.Sources != 3 || len(coverage.Untraced) != 1 || coverage.Percent < 66 || coverage.Percent > 67 {
		t.Errorf("Unexpected coverage %+v", coverage)
	}

	var g model.Graph
	get(t, h, "/api/graph?kind=direct", &g)
	if len(g.Edges) != 2 {
		t.Errorf("Expected 2 direct edges, got %d", len(g.Edges))
	}

	var status StatusView
	get(t, h, "/api/status", &status)
	if !status.Ready || status.BuildID != "build-1" || status.Stats.Functions != 3 {
		t.Errorf("Unexpected status %+v", status)
	}

	if rec := get(t, h, "/api/status", nil); rec.Header().Get("X-Request-ID") == "" {
		t.Error("Responses should carry a request ID")
	}
}

func TestSubscribeBuildStatus(t *testing.T) {
	s := NewServer()
	defer s.Shutdown(context.Background())

	s.PublishBuildStatus(pubsub.BuildStatus{BuildID: "b1", State: pubsub.StateBuilding, Step: 2, Total: 4})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/subscribe/build_status", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("subscribe error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event pubsub.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("Invalid event: %v", err)
		}
		if event.Topic != pubsub.TopicBuildStatus || event.Type != pubsub.StateBuilding {
			t.Errorf("Unexpected event %+v", event)
		}
		return
	}
	t.Fatal("No event received")
}

func TestSubscribeUnknownTopic(t *testing.T) {
	s := NewServer()
	defer s.Shutdown(context.Background())

	if rec := get(t, s.Handler(), "/api/subscribe/nothing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestShutdownBeforeStart(t *testing.T) {
	s := NewServer()
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- s.Start(0) }()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Start after Shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start kept serving after Shutdown")
	}
}

func TestShutdownStopsRunningServer(t *testing.T) {
	s := NewServer()

	errc := make(chan error, 1)
	go func() { errc <- s.Start(0) }()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Start: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}
