// Package runner provides safe command execution with workspace bounds,
// timeouts, and output size limits.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// waitDelay bounds how long Run waits for I/O after the process is
// killed, in case a grandchild still holds the output pipes.
const waitDelay = 2 * time.Second

// Runner executes commands safely within a workspace boundary.
type Runner struct {
	Workspace string
	Timeout   time.Duration
	MaxOutput int // bytes
}

// Command describes one process execution.
type Command struct {
	Argv    []string      // binary (resolved via PATH) and arguments
	Dir     string        // relative to the workspace root; must remain within it
	Env     []string      // full child environment; nil inherits the parent's
	Timeout time.Duration // overrides Runner.Timeout when > 0
	Stream  io.Writer     // optional live copy of the output
}

// Run executes cmd and waits for it to exit. The process is killed on
// timeout or when ctx is cancelled; either way it is reaped before Run
// returns. A non-nil error means the process could not be started.
func (r *Runner) Run(ctx context.Context, c Command) (*Result, error) {
	if len(c.Argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}

	dir, err := r.resolveDir(c.Dir)
	if err != nil {
		return nil, err
	}

	timeout := r.Timeout
	if c.Timeout > 0 {
		timeout = c.Timeout
	}
	maxOutput := r.MaxOutput

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	runID := uuid.New().String()

	cmd := exec.CommandContext(runCtx, c.Argv[0], c.Argv[1:]...)
	cmd.Dir = dir
	cmd.Env = c.Env
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	var out bytes.Buffer
	lw := &limitWriter{buf: &out, limit: maxOutput}
	var w io.Writer = lw
	if c.Stream != nil {
		w = io.MultiWriter(w, c.Stream)
	}
	// Same writer for both streams: exec serialises the writes.
	cmd.Stdout = w
	cmd.Stderr = w

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)
	if cmd.Process != nil {
		// Reap anything the suite left behind in its process group.
		killProcessGroup(cmd)
	}

	res := &Result{
		RunID:     runID,
		Output:    out.Bytes(),
		Truncated: lw.truncated,
		Duration:  elapsed,
	}

	if runErr != nil {
		switch {
		case ctx.Err() != nil:
			res.Cancelled = true
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			res.TimedOut = true
		}

		var exitErr *exec.ExitError
		switch {
		case errors.As(runErr, &exitErr):
			res.ExitCode = exitErr.ExitCode()
		case errors.Is(runErr, exec.ErrWaitDelay) && cmd.ProcessState != nil:
			// The process exited but a child it started kept the
			// output pipes open until WaitDelay closed them.
			res.ExitCode = cmd.ProcessState.ExitCode()
		case res.TimedOut || res.Cancelled:
			res.ExitCode = -1
		default:
			// Binary not found or other exec error.
			return nil, fmt.Errorf("executing %s: %w", c.Argv[0], runErr)
		}
	}

	return res, nil
}

// resolveDir resolves cwd relative to the workspace and validates it
// is within the workspace boundary.
func (r *Runner) resolveDir(cwd string) (string, error) {
	return ResolveDir(r.Workspace, cwd)
}

// ResolveDir resolves cwd against workspace and rejects paths that
// escape it.
func ResolveDir(workspace, cwd string) (string, error) {
	if cwd == "" {
		return workspace, nil
	}

	var dir string
	if filepath.IsAbs(cwd) {
		dir = filepath.Clean(cwd)
	} else {
		dir = filepath.Clean(filepath.Join(workspace, cwd))
	}

	rel, err := filepath.Rel(workspace, dir)
	if err != nil {
		return "", fmt.Errorf("resolving cwd: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("cwd %q is outside workspace %q", cwd, workspace)
	}
	return dir, nil
}

// limitWriter writes up to limit bytes to buf, then silently discards the rest.
type limitWriter struct {
	buf       *bytes.Buffer
	limit     int
	truncated bool // some bytes were discarded
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		w.truncated = true
		return len(p), nil // discard
	}
	if len(p) > remaining {
		// Report all bytes as consumed to avoid short write errors.
		w.buf.Write(p[:remaining])
		w.truncated = true
		return len(p), nil
	}
	return w.buf.Write(p)
}
