package watcher

import (
	"context"
	"time"

	"github.com/ritzau/migration-graph/pkg/logging"
)

// Debouncer merges rapid change events into one Batch per rebuild.
// A batch is released after quietPeriod without new events, or maxWait
// after its first event, whichever comes first.
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan Batch
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a new event debouncer
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan Batch, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing events with debouncing
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *Debouncer) run(ctx context.Context) {
	defer close(d.output)

	var (
		quiet, deadline <-chan time.Time
		quietTimer      *time.Timer
		deadlineTimer   *time.Timer
		pending         Batch
		eventCount      int
	)

	flush := func() {
		if quietTimer != nil {
			quietTimer.Stop()
		}
		if deadlineTimer != nil {
			deadlineTimer.Stop()
		}
		quiet, deadline = nil, nil

		if pending.Empty() {
			return
		}
		logging.Debug("flushing accumulated events", "count", eventCount,
			"trace", len(pending.Trace), "sources", len(pending.Sources))

		pending.Timestamp = time.Now()
		d.output <- pending
		pending = Batch{}
		eventCount = 0
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				return
			}

			pending.add(event)
			eventCount++

			if quietTimer != nil {
				quietTimer.Stop()
			}
			quietTimer = time.NewTimer(d.quietPeriod)
			quiet = quietTimer.C

			if deadline == nil {
				deadlineTimer = time.NewTimer(d.maxWait)
				deadline = deadlineTimer.C
			}

		case <-quiet:
			flush()

		case <-deadline:
			flush()
		}
	}
}

// Output returns the channel of debounced batches
func (d *Debouncer) Output() <-chan Batch {
	return d.output
}
