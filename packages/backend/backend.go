// Package backend provides the reference executor backend.
//
// The subprocess backend shells out to a Python interpreter per test
// identity so the CLI works end to end against a real test suite. The
// scheduler treats any backend as an opaque blocking capability; fancier
// embeddings plug in behind the same interface.
package backend

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/blitz-test/blitz/packages/core/model"
)

// Subprocess executes each test body in a fresh interpreter process.
type Subprocess struct {
	python  string
	workdir string
	timeout time.Duration
}

// SubprocessOption configures a Subprocess backend.
type SubprocessOption func(*Subprocess)

// WithPython overrides the interpreter binary (default "python3").
func WithPython(bin string) SubprocessOption {
	return func(s *Subprocess) { s.python = bin }
}

// WithWorkdir sets the working directory tests run from.
func WithWorkdir(dir string) SubprocessOption {
	return func(s *Subprocess) { s.workdir = dir }
}

// WithTimeout bounds a single test body execution.
func WithTimeout(d time.Duration) SubprocessOption {
	return func(s *Subprocess) { s.timeout = d }
}

// NewSubprocess creates the subprocess backend.
func NewSubprocess(opts ...SubprocessOption) *Subprocess {
	s := &Subprocess{python: "python3"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs the test identity under pytest and maps the exit code to an
// outcome: 0 passed, 1 failed, anything else errored.
func (s *Subprocess) Execute(ctx context.Context, test *model.TestRecord, _ map[string]any) model.Outcome {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, s.python, "-m", "pytest", test.ID, "-x", "-q", "--no-header", "-p", "no:cacheprovider")
	if s.workdir != "" {
		cmd.Dir = s.workdir
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	if err == nil {
		return model.Outcome{Status: model.StatusPassed}
	}

	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return model.Outcome{Status: model.StatusFailed, Reason: tail(buf.String(), 20)}
	}
	return model.Outcome{Status: model.StatusErrored, Reason: tail(buf.String(), 20)}
}

// tail returns the last n lines of output for the outcome reason.
func tail(out string, n int) string {
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
