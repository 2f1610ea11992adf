package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/ritzau/migration-graph/pkg/logging"
)

// ErrClosed is returned when publishing to or subscribing on a closed publisher
var ErrClosed = errors.New("publisher is closed")

// subscriberBuffer is the per-subscriber channel capacity. Slow clients
// lose events rather than stall a build.
const subscriberBuffer = 64

// Replay selects what a new subscriber receives from a topic's history
type Replay int

const (
	ReplayNone Replay = iota
	ReplayLatest
	ReplayAll
)

// TopicConfig configures the history kept for a topic
type TopicConfig struct {
	History int // Events kept for late subscribers
	Replay  Replay
}

// topicState is one topic's subscribers and history
type topicState struct {
	config  TopicConfig
	version int
	history []Event
	subs    map[*sseSubscription]struct{}
}

func (t *topicState) record(event Event) {
	if t.config.History <= 0 {
		return
	}
	t.history = append(t.history, event)
	if over := len(t.history) - t.config.History; over > 0 {
		t.history = append([]Event(nil), t.history[over:]...)
	}
}

func (t *topicState) replay() []Event {
	if len(t.history) == 0 {
		return nil
	}
	switch t.config.Replay {
	case ReplayAll:
		return append([]Event(nil), t.history...)
	case ReplayLatest:
		return []Event{t.history[len(t.history)-1]}
	}
	return nil
}

// SSEPublisher fans events out to server-sent event streams
type SSEPublisher struct {
	mu     sync.Mutex
	topics map[string]*topicState
	closed bool
}

// NewSSEPublisher creates a publisher with no configured topics
func NewSSEPublisher() *SSEPublisher {
	return &SSEPublisher{topics: make(map[string]*topicState)}
}

// ConfigureTopic sets the history policy of a topic
func (p *SSEPublisher) ConfigureTopic(name string, config TopicConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic(name).config = config
}

// topic returns the state for name, creating it. Callers hold p.mu.
func (p *SSEPublisher) topic(name string) *topicState {
	t, ok := p.topics[name]
	if !ok {
		t = &topicState{subs: make(map[*sseSubscription]struct{})}
		p.topics[name] = t
	}
	return t
}

// Subscribe registers a subscriber on topic. The replayed history is queued
// before any new event. Cancelling ctx closes the subscription.
func (p *SSEPublisher) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	sub := &sseSubscription{
		topic:     topic,
		events:    make(chan Event, subscriberBuffer),
		publisher: p,
	}
	t := p.topic(topic)
	t.subs[sub] = struct{}{}

	replayed := t.replay()
	for _, event := range replayed {
		sub.offer(event)
	}
	if len(replayed) > 0 {
		logging.Debug("replayed events to new subscriber", "topic", topic, "count", len(replayed))
	}

	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			sub.Close()
		}()
	}

	return sub, nil
}

// Publish marshals data and sends it to every subscriber of topic
func (p *SSEPublisher) Publish(topic string, eventType string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", topic, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	t := p.topic(topic)
	t.version++
	event := Event{Topic: topic, Type: eventType, Data: payload, Version: t.version}
	t.record(event)

	for sub := range t.subs {
		sub.offer(event)
	}
	return nil
}

// Close ends every subscription. Publishing afterwards fails with ErrClosed.
func (p *SSEPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	for _, t := range p.topics {
		for sub := range t.subs {
			close(sub.events)
		}
		t.subs = nil
	}
	return nil
}

// unsubscribe drops sub and closes its channel unless Close already did
func (p *SSEPublisher) unsubscribe(sub *sseSubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.topics[sub.topic]
	if !ok {
		return
	}
	if _, ok := t.subs[sub]; ok {
		delete(t.subs, sub)
		close(sub.events)
	}
}

type sseSubscription struct {
	topic     string
	events    chan Event
	publisher *SSEPublisher
	once      sync.Once
}

func (s *sseSubscription) Topic() string {
	return s.topic
}

func (s *sseSubscription) Events() <-chan Event {
	return s.events
}

func (s *sseSubscription) Close() error {
	s.once.Do(func() { s.publisher.unsubscribe(s) })
	return nil
}

// offer queues event without blocking. Callers hold the publisher lock.
func (s *sseSubscription) offer(event Event) {
	select {
	case s.events <- event:
	default:
		logging.Warn("subscriber queue full, dropping event", "topic", s.topic, "type", event.Type, "version", event.Version)
	}
}

// WriteEvent writes one server-sent event frame:
//
//	id: <version>
//	event: <type>
//	data: <event json>
func WriteEvent(w io.Writer, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Version, event.Type, body)
	return err
}

// ServeTopic streams topic to an HTTP client until the request ends or
// the publisher closes
func ServeTopic(w http.ResponseWriter, r *http.Request, pub Publisher, topic string) {
	sub, err := pub.Subscribe(r.Context(), topic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("Access-Control-Allow-Origin", "*")

	flush := func() {
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}

	fmt.Fprint(w, ": connected\n\n")
	flush()

	for event := range sub.Events() {
		if err := WriteEvent(w, event); err != nil {
			logging.DebugContext(r.Context(), "SSE client gone", "topic", topic, "error", err)
			return
		}
		flush()
	}
}
