// Package watcher turns file system activity around a trace file and a
// Python codebase into batched rebuild triggers.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ritzau/migration-graph/pkg/finder"
	"github.com/ritzau/migration-graph/pkg/logging"
)

// ChangeType represents the type of file change detected
type ChangeType int

const (
	ChangeTypeTrace ChangeType = iota
	ChangeTypeSource
)

// batchWindow groups raw fsnotify events before they reach the debouncer
const batchWindow = 100 * time.Millisecond

// ChangeEvent represents a batch of file system changes
type ChangeEvent struct {
	Type      ChangeType
	Paths     []string
	Timestamp time.Time
}

// FileWatcher watches the trace file and the caller codebase
type FileWatcher struct {
	watcher    *fsnotify.Watcher
	tracePath  string
	callerRoot string
	events     chan ChangeEvent
	stopOnce   sync.Once
}

// NewFileWatcher creates a watcher for the trace file at tracePath and the
// Python sources below callerRoot. An empty tracePath watches sources only.
func NewFileWatcher(tracePath, callerRoot string) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if tracePath != "" {
		tracePath = filepath.Clean(tracePath)
	}
	return &FileWatcher{
		watcher:    watcher,
		tracePath:  tracePath,
		callerRoot: filepath.Clean(callerRoot),
		events:     make(chan ChangeEvent, 100),
	}, nil
}

// Start begins watching for file changes
func (fw *FileWatcher) Start(ctx context.Context) error {
	// Watch the directory, tools often replace the trace file on write
	if fw.tracePath != "" {
		traceDir := filepath.Dir(fw.tracePath)
		if err := fw.watcher.Add(traceDir); err != nil {
			return fmt.Errorf("failed to watch trace directory %s: %w", traceDir, err)
		}
	}

	count, err := fw.watchSourceDirs(fw.callerRoot)
	if err != nil {
		logging.Warn("failed to watch caller sources", "error", err)
	}

	logging.Info("started watching", "trace", fw.tracePath, "callerRoot", fw.callerRoot, "dirs", count)

	go fw.processEvents(ctx)
	return nil
}

// watchSourceDirs adds root and every source directory below it
func (fw *FileWatcher) watchSourceDirs(root string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip entries we can't access
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && finder.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			logging.Warn("failed to watch directory", "path", path, "error", err)
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return count, nil
}

// classify maps a raw event to a change type. ok is false for irrelevant files.
func (fw *FileWatcher) classify(event fsnotify.Event) (ChangeType, bool) {
	name := filepath.Clean(event.Name)
	switch {
	case fw.tracePath != "" && name == fw.tracePath:
		return ChangeTypeTrace, true
	case strings.HasSuffix(name, ".py") && strings.HasPrefix(name, fw.callerRoot+string(filepath.Separator)):
		return ChangeTypeSource, true
	}
	return 0, false
}

// processEvents batches file system events by type
func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer close(fw.events)

	pending := make(map[ChangeType][]string)

	flushTimer := time.NewTimer(batchWindow)
	flushTimer.Stop()

	flush := func() {
		for _, t := range []ChangeType{ChangeTypeTrace, ChangeTypeSource} {
			if len(pending[t]) == 0 {
				continue
			}
			fw.events <- ChangeEvent{Type: t, Paths: pending[t], Timestamp: time.Now()}
			delete(pending, t)
		}
	}

	for {
		select {
		case <-ctx.Done():
			fw.Stop()
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			// New packages inside the codebase need their own watch
			if event.Has(fsnotify.Create) && strings.HasPrefix(event.Name, fw.callerRoot) && !finder.SkipDir(filepath.Base(event.Name)) {
				if n, _ := fw.watchSourceDirs(event.Name); n > 0 {
					logging.Debug("watching new directory", "path", event.Name)
				}
			}

			if t, ok := fw.classify(event); ok && !event.Has(fsnotify.Chmod) {
				pending[t] = append(pending[t], event.Name)
				flushTimer.Reset(batchWindow)
			}

		case <-flushTimer.C:
			flush()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

// Events returns the channel of change events
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

// Stop stops the file watcher
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		err = fw.watcher.Close()
	})
	return err
}
