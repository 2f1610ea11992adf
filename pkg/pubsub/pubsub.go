package pubsub

import (
	"context"
	"encoding/json"
)

// Topics published by the build runner
const (
	TopicBuildStatus = "build_status"
	TopicCallGraph   = "call_graph"
)

// Build states in the order a successful build passes through them
const (
	StateLoadingTrace = "loading_trace"
	StateBuilding     = "building"
	StateAnalyzing    = "analyzing"
	StateReady        = "ready"
	StateError        = "error"
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // e.g. "build_status"
	Type    string          `json:"type"`    // e.g. "loading_trace", "ready"
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Version number for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic
	// Context cancellation will close the subscription
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data interface{}) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// BuildStatus reports the progress of one call graph build
type BuildStatus struct {
	BuildID string `json:"buildId"`
	State   string `json:"state"`
	Message string `json:"message"`
	Step    int    `json:"step"`  // 1-based
	Total   int    `json:"total"` // number of steps
}

// CallGraphData announces a finished graph
type CallGraphData struct {
	BuildID         string `json:"buildId"`
	Functions       int    `json:"functions"`
	DirectCalls     int    `json:"directCalls"`
	TransitiveCalls int    `json:"transitiveCalls"`
	AffectedFiles   int    `json:"affectedFiles"`
}
