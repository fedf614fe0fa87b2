// Package orchestrator runs every domain of a registry through a suite
// runner and aggregates the results into one report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/deixis/suiterun/internal/profile"
	"github.com/deixis/suiterun/internal/report"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrEmptyRegistry is returned before any run when there is nothing to run.
	ErrEmptyRegistry = errors.New("no domains registered")
	// ErrAborted is returned with the partial report when ctx is cancelled.
	ErrAborted = errors.New("orchestration aborted")
)

// SuiteRunner runs one domain. Implemented by suite.Runner.
type SuiteRunner interface {
	Validate(d profile.Domain) error
	Run(ctx context.Context, d profile.Domain) *report.RunResult
}

// Reporter presents progress. Implemented by console.Console.
type Reporter interface {
	Announce(d profile.Domain)
	Summarize(r *report.Report)
}

// Orchestrator drives a registry through a SuiteRunner.
type Orchestrator struct {
	Runner   SuiteRunner
	Reporter Reporter // optional

	// FailFast stops at the first failing domain; the rest are skipped.
	FailFast bool
	// Parallel is the maximum number of domains in flight. Values below
	// 2 run domains one at a time.
	Parallel int
}

// RunAll runs every domain of reg in registration order and returns the
// report. Validation errors are returned before anything runs. On
// cancellation the partial report is returned together with ErrAborted.
func (o *Orchestrator) RunAll(ctx context.Context, reg *profile.Registry) (*report.Report, error) {
	if reg == nil || reg.Len() == 0 {
		return nil, ErrEmptyRegistry
	}
	reg.Freeze()

	domains := reg.List()
	for _, d := range domains {
		if err := o.Runner.Validate(d); err != nil {
			return nil, err
		}
	}

	rep := report.New()
	var results []*report.RunResult
	if o.Parallel > 1 {
		results = o.runParallel(ctx, domains)
	} else {
		results = o.runSequential(ctx, domains)
	}

	for i, res := range results {
		if res == nil {
			rep.Skipped = append(rep.Skipped, domains[i].Name)
			continue
		}
		rep.Results = append(rep.Results, res)
	}

	aborted := ctx.Err() != nil
	rep.Finish(aborted)
	if o.Reporter != nil {
		o.Reporter.Summarize(rep)
	}
	if aborted {
		return rep, fmt.Errorf("%w: %d of %d domains ran", ErrAborted, len(rep.Results), len(domains))
	}
	return rep, nil
}

// runSequential returns one slot per domain; nil marks a domain that
// never started.
func (o *Orchestrator) runSequential(ctx context.Context, domains []profile.Domain) []*report.RunResult {
	results := make([]*report.RunResult, len(domains))
	for i, d := range domains {
		if ctx.Err() != nil {
			break
		}
		res := o.runOne(ctx, d)
		results[i] = res
		if o.FailFast && !res.Passed() {
			break
		}
	}
	return results
}

func (o *Orchestrator) runParallel(ctx context.Context, domains []profile.Domain) []*report.RunResult {
	results := make([]*report.RunResult, len(domains))
	sem := semaphore.NewWeighted(int64(o.Parallel))

	// stop is closed on the first failure in fail-fast mode.
	stop := make(chan struct{})
	var stopOnce sync.Once

	var wg sync.WaitGroup
	for i, d := range domains {
		// Acquire in order so domains start in registration order.
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		if stopped(stop) || ctx.Err() != nil {
			sem.Release(1)
			break
		}

		wg.Add(1)
		go func(i int, d profile.Domain) {
			defer wg.Done()
			defer sem.Release(1)

			res := o.runOne(ctx, d)
			results[i] = res
			if o.FailFast && !res.Passed() {
				stopOnce.Do(func() { close(stop) })
			}
		}(i, d)
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) runOne(ctx context.Context, d profile.Domain) *report.RunResult {
	if o.Reporter != nil {
		o.Reporter.Announce(d)
	}
	res := o.Runner.Run(ctx, d)
	if res == nil {
		// A runner must always produce a result; treat a missing one as a launch failure.
		res = &report.RunResult{
			Domain:   d.Name,
			Settings: d.Context.Settings,
			ExitCode: report.ExitLaunchFailure,
			Status:   report.LaunchError,
			Error:    "suite runner returned no result",
		}
	}
	return res
}

func stopped(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
