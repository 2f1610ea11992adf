package trace

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ritzau/migration-graph/pkg/logging"
)

// Source provides the call records for one build
type Source interface {
	// Name identifies the source in logs
	Name() string

	// Load returns the records accepted by the filters
	Load(ctx context.Context, callerFilter, calleeFilter PathFilter) ([]RawCall, error)
}

// FileSource reads records from a trace file on disk
type FileSource struct {
	Path string
}

// NewFileSource creates a source for the trace file at path
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) Name() string {
	return "file:" + s.Path
}

func (s *FileSource) Load(ctx context.Context, callerFilter, calleeFilter PathFilter) ([]RawCall, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := logging.New("trace.file")
	logger.Debug("Parsing trace", "path", s.Path)

	calls, err := ParseFile(s.Path, callerFilter, calleeFilter)
	if err != nil {
		return nil, err
	}

	logger.Info("Parsed trace", "path", s.Path, "records", len(calls))
	return calls, nil
}

// CommandSource runs an instrumented program and parses the trace it
// prints on stdout
type CommandSource struct {
	Command  string
	Dir      string
	Executor Executor
}

// NewCommandSource creates a source that runs command in dir
func NewCommandSource(command, dir string) *CommandSource {
	return &CommandSource{Command: command, Dir: dir, Executor: NewExecutor()}
}

func (s *CommandSource) Name() string {
	return "command:" + s.Command
}

func (s *CommandSource) Load(ctx context.Context, callerFilter, calleeFilter PathFilter) ([]RawCall, error) {
	logger := logging.New("trace.command")
	logger.Debug("Running trace command", "command", s.Command, "dir", s.Dir)

	out, err := s.Executor.Run(ctx, s.Dir, s.Command)
	if err != nil {
		return nil, err
	}

	calls, err := Parse(bytes.NewReader(out), callerFilter, calleeFilter)
	if err != nil {
		return nil, fmt.Errorf("parsing output of %q: %w", s.Command, err)
	}

	logger.Info("Parsed trace", "command", s.Command, "bytes", len(out), "records", len(calls))
	return calls, nil
}

// StaticSource serves a fixed set of records
type StaticSource struct {
	Calls []RawCall
}

func (s *StaticSource) Name() string {
	return "static"
}

func (s *StaticSource) Load(ctx context.Context, callerFilter, calleeFilter PathFilter) ([]RawCall, error) {
	var out []RawCall
	for _, call := range s.Calls {
		if callerFilter != nil && !callerFilter(call.CallerFile) {
			continue
		}
		if calleeFilter != nil && !calleeFilter(call.CalleeFile) {
			continue
		}
		out = append(out, call)
	}
	return out, nil
}
