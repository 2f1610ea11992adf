package trace

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Executor runs the instrumented program that writes a trace to stdout
type Executor interface {
	Run(ctx context.Context, dir string, command string) ([]byte, error)
}

// ShellExecutor runs commands through sh -c
type ShellExecutor struct{}

// NewExecutor creates the default shell executor
func NewExecutor() Executor {
	return &ShellExecutor{}
}

// Run executes command in dir and returns its stdout. Stderr is only
// reported when the command fails.
func (e *ShellExecutor) Run(ctx context.Context, dir string, command string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("trace command failed: %w\nOutput: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// MockExecutor returns canned output
type MockExecutor struct {
	MockOutput []byte
	MockError  error

	// Commands records every command passed to Run
	Commands []string
}

func (m *MockExecutor) Run(ctx context.Context, dir string, command string) ([]byte, error) {
	m.Commands = append(m.Commands, command)
	return m.MockOutput, m.MockError
}
