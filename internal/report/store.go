// Package report holds per-domain run results, the aggregate report of
// one orchestration, and their persistence.
package report

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel exit codes for outcomes where the suite produced no exit
// status of its own.
const (
	ExitLaunchFailure = -1 // the suite command could not be started
	ExitTimeout       = -2 // killed after the configured timeout
	ExitCancelled     = -3 // killed because the run was interrupted
	ExitKilled        = -4 // killed by a signal nobody here sent
)

// Status labels a single domain's outcome.
type Status string

const (
	Pass        Status = "pass"
	Fail        Status = "fail"
	LaunchError Status = "launch-error"
	Timeout     Status = "timeout"
	Cancelled   Status = "cancelled"
)

// StatusOf maps an exit code to its status label.
func StatusOf(exitCode int) Status {
	switch exitCode {
	case 0:
		return Pass
	case ExitLaunchFailure:
		return LaunchError
	case ExitTimeout:
		return Timeout
	case ExitCancelled:
		return Cancelled
	default:
		return Fail
	}
}

// RunResult is the outcome of one domain's suite execution. It is not
// modified after the suite runner returns it.
type RunResult struct {
	RunID          string `json:"run_id,omitempty"` // process execution ID
	Domain         string `json:"domain"`
	Settings       string `json:"settings,omitempty"`
	Command        string `json:"command,omitempty"` // shell-quoted, for display
	ExitCode       int    `json:"exit_code"`
	Status         Status `json:"status"`
	DurationMillis int64  `json:"duration_ms"`
	Output         string `json:"output,omitempty"`
	Truncated      bool   `json:"truncated,omitempty"`
	Error          string `json:"error,omitempty"` // launch failure detail
}

// Passed reports whether the suite exited 0.
func (r *RunResult) Passed() bool {
	return r.ExitCode == 0
}

// Duration returns the elapsed time of the run.
func (r *RunResult) Duration() time.Duration {
	return time.Duration(r.DurationMillis) * time.Millisecond
}

// OverallStatus is the aggregate outcome of an orchestration.
type OverallStatus string

const (
	Success OverallStatus = "success"
	Failure OverallStatus = "failure"
	Aborted OverallStatus = "aborted"
)

// Report aggregates every RunResult of one orchestration, in domain
// registration order.
type Report struct {
	ID             string        `json:"id"`
	StartedAt      time.Time     `json:"started_at"`
	DurationMillis int64         `json:"duration_ms"`
	Status         OverallStatus `json:"status"`
	Results        []*RunResult  `json:"results"`
	Skipped        []string      `json:"skipped,omitempty"` // domains never started
}

// New returns an empty report stamped with a fresh ID and start time.
func New() *Report {
	return &Report{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
		Results:   []*RunResult{},
	}
}

// Finish computes the overall status and total duration. A report is a
// success only when it was not aborted and every result passed.
func (r *Report) Finish(aborted bool) {
	r.DurationMillis = time.Since(r.StartedAt).Milliseconds()
	switch {
	case aborted:
		r.Status = Aborted
	case len(r.Failed()) > 0:
		r.Status = Failure
	default:
		r.Status = Success
	}
}

// OK reports whether the run succeeded.
func (r *Report) OK() bool {
	return r.Status == Success
}

// Failed returns the results that did not pass, in order.
func (r *Report) Failed() []*RunResult {
	var out []*RunResult
	for _, res := range r.Results {
		if !res.Passed() {
			out = append(out, res)
		}
	}
	return out
}

// Result returns the result recorded for domain.
func (r *Report) Result(domain string) (*RunResult, bool) {
	for _, res := range r.Results {
		if res.Domain == domain {
			return res, true
		}
	}
	return nil, false
}

// Duration returns the elapsed time of the whole run.
func (r *Report) Duration() time.Duration {
	return time.Duration(r.DurationMillis) * time.Millisecond
}

// Store persists and retrieves reports.
type Store interface {
	Save(r *Report) error
	Load(id string) (*Report, error)
}

// ErrNotFound is wrapped when a report ID is unknown to a store.
var ErrNotFound = errors.New("report not found")
