package runner

import "time"

// Result holds the output of a command execution.
type Result struct {
	RunID     string        // unique identifier for this run
	ExitCode  int           // process exit code, -1 when killed by a signal
	Output    []byte        // captured stdout and stderr, interleaved (may be truncated)
	Truncated bool          // true if output exceeded the size cap
	Duration  time.Duration // wall-clock time from start to reap
	TimedOut  bool          // the per-call timeout elapsed and the process was killed
	Cancelled bool          // the caller's context was cancelled and the process was killed
}
