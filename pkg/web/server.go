// Package web serves the latest call graph and its migration views as a
// JSON API with server-sent build status events.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/ritzau/migration-graph/pkg/analysis"
	"github.com/ritzau/migration-graph/pkg/graph"
	"github.com/ritzau/migration-graph/pkg/logging"
	"github.com/ritzau/migration-graph/pkg/model"
	"github.com/ritzau/migration-graph/pkg/pubsub"
)

// FunctionView is the API form of a function
type FunctionView struct {
	Key           string `json:"key"`
	Owner         string `json:"owner"`
	File          string `json:"file"`
	Line          int    `json:"line"`
	Name          string `json:"name"`
	QualifiedName string `json:"qualifiedName"`
}

// CallView is the API form of a call
type CallView struct {
	Caller string `json:"caller"`
	Callee string `json:"callee"`
	Kind   string `json:"kind"`
	Line   int    `json:"line,omitempty"`
}

// StatusView summarizes the served build
type StatusView struct {
	Ready    bool              `json:"ready"`
	BuildID  string            `json:"buildId,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	Finished time.Time         `json:"finished,omitempty"`
	Stats    *graph.BuildStats `json:"stats,omitempty"`
}

// CoverageView reports how much of the caller codebase the trace entered
type CoverageView struct {
	Sources  int      `json:"sources"`
	Percent  float64  `json:"percent"`
	Untraced []string `json:"untraced"`
}

// Server represents the web server
type Server struct {
	router    *mux.Router
	publisher *pubsub.SSEPublisher

	// lifecycle guards httpServer and stopped
	lifecycle  sync.Mutex
	httpServer *http.Server
	stopped    bool

	mu     sync.RWMutex
	result *analysis.Result
}

// NewServer creates a new web server
func NewServer() *Server {
	ssePublisher := pubsub.NewSSEPublisher()

	// New subscribers only need the current state
	ssePublisher.ConfigureTopic(pubsub.TopicBuildStatus, pubsub.TopicConfig{History: 10, Replay: pubsub.ReplayLatest})
	ssePublisher.ConfigureTopic(pubsub.TopicCallGraph, pubsub.TopicConfig{History: 1, Replay: pubsub.ReplayLatest})

	s := &Server{
		router:    mux.NewRouter(),
		publisher: ssePublisher,
	}
	s.setupRoutes()
	return s
}

// SetResult swaps in a finished build and announces it
func (s *Server) SetResult(result *analysis.Result) {
	s.mu.Lock()
	s.result = result
	s.mu.Unlock()

	data := pubsub.CallGraphData{
		BuildID:         result.BuildID,
		Functions:       result.Stats.Functions,
		DirectCalls:     result.Stats.DirectCalls,
		TransitiveCalls: result.Stats.TransitiveCalls,
		AffectedFiles:   len(result.Affected),
	}
	if err := s.publisher.Publish(pubsub.TopicCallGraph, "complete", data); err != nil {
		logging.Warn("failed to publish call graph event", "error", err)
	}
}

// PublishBuildStatus publishes a build status event
func (s *Server) PublishBuildStatus(status pubsub.BuildStatus) {
	if err := s.publisher.Publish(pubsub.TopicBuildStatus, status.State, status); err != nil {
		logging.Warn("failed to publish build status", "error", err)
	}
}

func (s *Server) current() *analysis.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

func (s *Server) setupRoutes() {
	s.router.Use(logging.RequestIDMiddleware)

	s.router.HandleFunc("/api/subscribe/{topic}", s.handleSubscribe).Methods("GET")

	// More specific routes must come first
	s.router.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/api/functions/callers", s.handleRelated(callers)).Methods("GET")
	s.router.HandleFunc("/api/functions/callees", s.handleRelated(callees)).Methods("GET")
	s.router.HandleFunc("/api/functions", s.withResult(s.handleFunctions)).Methods("GET")
	s.router.HandleFunc("/api/calls", s.withResult(s.handleCalls)).Methods("GET")
	s.router.HandleFunc("/api/affected", s.withResult(s.handleAffected)).Methods("GET")
	s.router.HandleFunc("/api/callsites", s.withResult(s.handleCallSites)).Methods("GET")
	s.router.HandleFunc("/api/surface", s.withResult(s.handleSurface)).Methods("GET")
	s.router.HandleFunc("/api/cycles", s.withResult(s.handleCycles)).Methods("GET")
	s.router.HandleFunc("/api/coverage", s.withResult(s.handleCoverage)).Methods("GET")
	s.router.HandleFunc("/api/graph", s.withResult(s.handleGraph)).Methods("GET")
}

// Handler returns the HTTP handler with all routes
func (s *Server) Handler() http.Handler {
	return s.router
}

type resultHandler func(w http.ResponseWriter, r *http.Request, result *analysis.Result)

// withResult answers 503 until the first build has finished
func (s *Server) withResult(h resultHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := s.current()
		if result == nil {
			http.Error(w, "Call graph not available yet", http.StatusServiceUnavailable)
			return
		}
		h(w, r, result)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

func callKind(w http.ResponseWriter, r *http.Request) (graph.CallKind, bool) {
	kind, err := graph.ParseCallKind(r.URL.Query().Get("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return kind, true
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]
	if topic != pubsub.TopicBuildStatus && topic != pubsub.TopicCallGraph {
		http.Error(w, fmt.Sprintf("Unknown topic: %s", topic), http.StatusNotFound)
		return
	}
	pubsub.ServeTopic(w, r, s.publisher, topic)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := StatusView{}
	if result := s.current(); result != nil {
		stats := result.Stats
		status = StatusView{
			Ready:    true,
			BuildID:  result.BuildID,
			Reason:   result.Reason,
			Finished: result.Finished,
			Stats:    &stats,
		}
	}
	writeJSON(w, r, status)
}

func (s *Server) handleFunctions(w http.ResponseWriter, r *http.Request, result *analysis.Result) {
	owner := r.URL.Query().Get("owner")
	if owner != "" && owner != "caller" && owner != "library" {
		http.Error(w, fmt.Sprintf("Unknown owner filter: %s", owner), http.StatusBadRequest)
		return
	}

	views := make([]FunctionView, 0, result.Graph.Len())
	for _, fn := range result.Graph.Functions() {
		if owner == "caller" && !fn.Owner.IsCaller() || owner == "library" && !fn.Owner.IsLibrary() {
			continue
		}
		views = append(views, functionView(fn))
	}
	writeJSON(w, r, views)
}

func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request, result *analysis.Result) {
	kind, ok := callKind(w, r)
	if !ok {
		return
	}

	calls := result.Graph.Calls(kind)
	views := make([]CallView, 0, len(calls))
	for _, c := range calls {
		views = append(views, callView(c))
	}
	writeJSON(w, r, views)
}

type direction int

const (
	callers direction = iota
	callees
)

func (s *Server) handleRelated(dir direction) http.HandlerFunc {
	return s.withResult(func(w http.ResponseWriter, r *http.Request, result *analysis.Result) {
		key := r.URL.Query().Get("key")
		if key == "" {
			http.Error(w, "Function key required", http.StatusBadRequest)
			return
		}
		kind, ok := callKind(w, r)
		if !ok {
			return
		}

		fn, found := result.Graph.Function(key)
		if !found {
			http.Error(w, fmt.Sprintf("Function not found: %s", key), http.StatusNotFound)
			return
		}

		set := relatedSet(fn, dir, kind)
		views := make([]FunctionView, 0, len(set))
		for _, other := range set.Sorted() {
			views = append(views, functionView(other))
		}
		writeJSON(w, r, views)
	})
}

func relatedSet(fn *graph.Function, dir direction, kind graph.CallKind) graph.FunctionSet {
	switch {
	case dir == callers && kind == graph.CallKindDirect:
		return fn.DirectCallers()
	case dir == callers && kind == graph.CallKindTransitive:
		return fn.TransitiveCallers()
	case dir == callers:
		return fn.AllCallers()
	case kind == graph.CallKindDirect:
		return fn.DirectCallees()
	case kind == graph.CallKindTransitive:
		return fn.TransitiveCallees()
	default:
		return fn.AllCallees()
	}
}

func (s *Server) handleAffected(w http.ResponseWriter, r *http.Request, result *analysis.Result) {
	writeJSON(w, r, nonNil(result.Affected))
}

func (s *Server) handleCallSites(w http.ResponseWriter, r *http.Request, result *analysis.Result) {
	writeJSON(w, r, nonNil(result.CallSites))
}

func (s *Server) handleSurface(w http.ResponseWriter, r *http.Request, result *analysis.Result) {
	writeJSON(w, r, nonNil(result.Surface))
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request, result *analysis.Result) {
	writeJSON(w, r, nonNil(result.Cycles))
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request, result *analysis.Result) {
	writeJSON(w, r, CoverageView{
		Sources:  len(result.Sources),
		Percent:  result.Coverage(),
		Untraced: nonNil(result.Untraced),
	})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request, result *analysis.Result) {
	kind, ok := callKind(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, model.FromCallGraph(result.Graph, kind))
}

// nonNil keeps empty lists as [] rather than null
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func functionView(fn *graph.Function) FunctionView {
	return FunctionView{
		Key:           fn.Key(),
		Owner:         fn.Owner.String(),
		File:          fn.File,
		Line:          fn.Line,
		Name:          fn.Name,
		QualifiedName: fn.QualifiedName,
	}
}

func callView(c *graph.Call) CallView {
	v := CallView{
		Caller: c.Caller.Key(),
		Callee: c.Callee.Key(),
		Kind:   string(graph.CallKindTransitive),
	}
	if c.Direct() {
		v.Kind = string(graph.CallKindDirect)
		v.Line = c.Line
	}
	return v
}

// Start serves on the given port until Shutdown is called
func (s *Server) Start(port int) error {
	s.lifecycle.Lock()
	if s.stopped {
		s.lifecycle.Unlock()
		return nil
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = srv
	s.lifecycle.Unlock()

	logging.Info("Starting web server", "url", fmt.Sprintf("http://localhost:%d", port))

	// Returns ErrServerClosed when Shutdown already ran
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes event streams and stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.lifecycle.Lock()
	s.stopped = true
	srv := s.httpServer
	s.lifecycle.Unlock()

	s.publisher.Close()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
