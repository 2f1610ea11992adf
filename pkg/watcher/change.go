package watcher

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// String names the change type in logs and build reasons
func (t ChangeType) String() string {
	switch t {
	case ChangeTypeTrace:
		return "trace"
	case ChangeTypeSource:
		return "source"
	default:
		return fmt.Sprintf("ChangeType(%d)", int(t))
	}
}

// Batch is one debounced group of changes. Every batch needs exactly one
// full rebuild: a new trace changes the records and an edited source file
// can move the definition lines the trace refers to.
type Batch struct {
	Trace     []string
	Sources   []string
	Timestamp time.Time
}

// Empty reports whether the batch holds no changes
func (b Batch) Empty() bool {
	return len(b.Trace) == 0 && len(b.Sources) == 0
}

// add merges the paths of event into the batch
func (b *Batch) add(event ChangeEvent) {
	switch event.Type {
	case ChangeTypeTrace:
		b.Trace = append(b.Trace, event.Paths...)
	default:
		b.Sources = append(b.Sources, event.Paths...)
	}
}

// Reason describes the batch as a build reason, trace changes first
func (b Batch) Reason() string {
	var parts []string
	if len(b.Trace) > 0 {
		parts = append(parts, describe(ChangeTypeTrace, b.Trace))
	}
	if len(b.Sources) > 0 {
		parts = append(parts, describe(ChangeTypeSource, b.Sources))
	}
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, ", ")
}

func describe(t ChangeType, paths []string) string {
	if len(paths) == 1 {
		return fmt.Sprintf("%s changed: %s", t, filepath.Base(paths[0]))
	}
	return fmt.Sprintf("%d %s files changed", len(paths), t)
}
