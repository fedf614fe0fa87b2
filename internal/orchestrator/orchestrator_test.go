package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/deixis/suiterun/internal/profile"
	"github.com/deixis/suiterun/internal/report"
)

// fakeRunner returns canned exit codes and records the order of calls
// and which configuration contexts were active at the same time.
type fakeRunner struct {
	mu       sync.Mutex
	exits    map[string]int
	delays   map[string]time.Duration
	invalid  map[string]error
	onRun    func(d profile.Domain)
	calls    []string
	active   map[string]bool
	overlaps []string
	events   *[]string
}

func (f *fakeRunner) Validate(d profile.Domain) error {
	return f.invalid[d.Name]
}

func (f *fakeRunner) Run(ctx context.Context, d profile.Domain) *report.RunResult {
	f.mu.Lock()
	f.calls = append(f.calls, d.Name)
	if f.active == nil {
		f.active = make(map[string]bool)
	}
	for other := range f.active {
		f.overlaps = append(f.overlaps, other+"+"+d.Context.Settings)
	}
	f.active[d.Context.Settings] = true
	if f.events != nil {
		*f.events = append(*f.events, "run "+d.Name)
	}
	f.mu.Unlock()

	if f.onRun != nil {
		f.onRun(d)
	}
	exit := f.exits[d.Name]
	if delay := f.delays[d.Name]; delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			exit = report.ExitCancelled
		}
	}

	f.mu.Lock()
	delete(f.active, d.Context.Settings)
	f.mu.Unlock()

	return &report.RunResult{
		Domain:   d.Name,
		Settings: d.Context.Settings,
		ExitCode: exit,
		Status:   report.StatusOf(exit),
	}
}

func (f *fakeRunner) invoked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// recorder is a Reporter that logs what it was asked to present.
type recorder struct {
	mu      sync.Mutex
	events  []string
	summary *report.Report
}

func (r *recorder) Announce(d profile.Domain) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "announce "+d.Name)
}

func (r *recorder) Summarize(rep *report.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "summarize")
	r.summary = rep
}

func registry(t *testing.T, names ...string) *profile.Registry {
	t.Helper()
	reg := profile.NewRegistry()
	for _, n := range names {
		if err := reg.Register(n, profile.ConfigContext{Settings: "settings_" + n}); err != nil {
			t.Fatal(err)
		}
	}
	return reg
}

func domainNames(results []*report.RunResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Domain
	}
	return out
}

func TestRunAll_CoreBasicScenario(t *testing.T) {
	runner := &fakeRunner{exits: map[string]int{"core": 0, "basic": 1}}
	rec := &recorder{}
	o := &Orchestrator{Runner: runner, Reporter: rec}

	rep, err := o.RunAll(context.Background(), registry(t, "core", "basic"))
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	if got := domainNames(rep.Results); !reflect.DeepEqual(got, []string{"core", "basic"}) {
		t.Errorf("results = %v, want [core basic]", got)
	}
	if rep.Status != report.Failure {
		t.Errorf("Status = %q, want failure", rep.Status)
	}
	if rep.Results[0].Status != report.Pass || rep.Results[1].Status != report.Fail {
		t.Errorf("statuses = %q, %q", rep.Results[0].Status, rep.Results[1].Status)
	}
	if rec.summary != rep {
		t.Error("reporter did not receive the report")
	}
}

func TestRunAll_ResultCountMatchesDomains(t *testing.T) {
	exits := map[string]int{
		"a": 0,
		"b": 1,
		"c": report.ExitLaunchFailure,
		"d": report.ExitTimeout,
		"e": 0,
	}
	o := &Orchestrator{Runner: &fakeRunner{exits: exits}}

	rep, err := o.RunAll(context.Background(), registry(t, "a", "b", "c", "d", "e"))
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(rep.Results) != 5 {
		t.Errorf("len(Results) = %d, want 5", len(rep.Results))
	}
	if len(rep.Failed()) != 3 {
		t.Errorf("len(Failed()) = %d, want 3", len(rep.Failed()))
	}
}

func TestRunAll_AllPass(t *testing.T) {
	o := &Orchestrator{Runner: &fakeRunner{}}
	rep, err := o.RunAll(context.Background(), registry(t, "core", "basic"))
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if rep.Status != report.Success {
		t.Errorf("Status = %q, want success", rep.Status)
	}
}

func TestRunAll_FailurePropagates(t *testing.T) {
	// Any single failing domain, wherever it sits, makes the run a failure.
	names := []string{"a", "b", "c"}
	for _, bad := range names {
		o := &Orchestrator{Runner: &fakeRunner{exits: map[string]int{bad: 2}}}
		rep, err := o.RunAll(context.Background(), registry(t, names...))
		if err != nil {
			t.Fatalf("RunAll: %v", err)
		}
		if rep.Status != report.Failure {
			t.Errorf("%s failing: Status = %q, want failure", bad, rep.Status)
		}
	}
}

func TestRunAll_EmptyRegistry(t *testing.T) {
	runner := &fakeRunner{}
	o := &Orchestrator{Runner: runner}

	rep, err := o.RunAll(context.Background(), profile.NewRegistry())
	if !errors.Is(err, ErrEmptyRegistry) {
		t.Fatalf("err = %v, want ErrEmptyRegistry", err)
	}
	if rep != nil {
		t.Error("expected no report")
	}
	if len(runner.invoked()) != 0 {
		t.Errorf("runner invoked %v, want no calls", runner.invoked())
	}
}

func TestRunAll_ValidationErrorRunsNothing(t *testing.T) {
	bad := errors.New("unresolvable settings")
	runner := &fakeRunner{invalid: map[string]error{"basic": bad}}
	rec := &recorder{}
	o := &Orchestrator{Runner: runner, Reporter: rec}

	_, err := o.RunAll(context.Background(), registry(t, "core", "basic"))
	if !errors.Is(err, bad) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if len(runner.invoked()) != 0 {
		t.Errorf("runner invoked %v, want no calls", runner.invoked())
	}
	if len(rec.events) != 0 {
		t.Errorf("reporter events = %v, want none", rec.events)
	}
}

func TestRunAll_AnnounceBeforeRun(t *testing.T) {
	rec := &recorder{}
	runner := &fakeRunner{events: &rec.events}
	o := &Orchestrator{Runner: runner, Reporter: rec}

	if _, err := o.RunAll(context.Background(), registry(t, "core", "basic")); err != nil {
		t.Fatal(err)
	}
	want := []string{"announce core", "run core", "announce basic", "run basic", "summarize"}
	if !reflect.DeepEqual(rec.events, want) {
		t.Errorf("events = %v, want %v", rec.events, want)
	}
}

func TestRunAll_ContextIsolation(t *testing.T) {
	runner := &fakeRunner{delays: map[string]time.Duration{"core": 10 * time.Millisecond, "basic": 10 * time.Millisecond}}
	o := &Orchestrator{Runner: runner}

	if _, err := o.RunAll(context.Background(), registry(t, "core", "basic", "extra")); err != nil {
		t.Fatal(err)
	}
	if len(runner.overlaps) != 0 {
		t.Errorf("configuration contexts overlapped: %v", runner.overlaps)
	}
}

func TestRunAll_FailFast(t *testing.T) {
	runner := &fakeRunner{exits: map[string]int{"core": 1}}
	o := &Orchestrator{Runner: runner, FailFast: true}

	rep, err := o.RunAll(context.Background(), registry(t, "core", "basic"))
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if got := runner.invoked(); !reflect.DeepEqual(got, []string{"core"}) {
		t.Errorf("invoked = %v, want [core]", got)
	}
	if len(rep.Results) != 1 {
		t.Errorf("len(Results) = %d, want 1", len(rep.Results))
	}
	if !reflect.DeepEqual(rep.Skipped, []string{"basic"}) {
		t.Errorf("Skipped = %v, want [basic]", rep.Skipped)
	}
	if rep.Status != report.Failure {
		t.Errorf("Status = %q, want failure", rep.Status)
	}
}

func TestRunAll_DefaultContinuesAfterFailure(t *testing.T) {
	runner := &fakeRunner{exits: map[string]int{"core": 1}}
	o := &Orchestrator{Runner: runner}

	if _, err := o.RunAll(context.Background(), registry(t, "core", "basic")); err != nil {
		t.Fatal(err)
	}
	if got := runner.invoked(); !reflect.DeepEqual(got, []string{"core", "basic"}) {
		t.Errorf("invoked = %v, want [core basic]", got)
	}
}

func TestRunAll_CancelledMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &fakeRunner{
		delays: map[string]time.Duration{"core": time.Minute},
		onRun: func(d profile.Domain) {
			if d.Name == "core" {
				cancel()
			}
		},
	}
	rec := &recorder{}
	o := &Orchestrator{Runner: runner, Reporter: rec}

	rep, err := o.RunAll(ctx, registry(t, "core", "basic"))
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", err)
	}
	if rep == nil {
		t.Fatal("expected a partial report")
	}
	if rep.Status != report.Aborted {
		t.Errorf("Status = %q, want aborted", rep.Status)
	}
	if len(rep.Results) != 1 || rep.Results[0].Status != report.Cancelled {
		t.Errorf("Results = %v, want one cancelled result", domainNames(rep.Results))
	}
	if !reflect.DeepEqual(rep.Skipped, []string{"basic"}) {
		t.Errorf("Skipped = %v, want [basic]", rep.Skipped)
	}
	if rec.summary != rep {
		t.Error("partial report was not summarized")
	}
}

func TestRunAll_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &fakeRunner{}
	o := &Orchestrator{Runner: runner}
	rep, err := o.RunAll(ctx, registry(t, "core", "basic"))
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", err)
	}
	if len(rep.Results) != 0 || len(rep.Skipped) != 2 {
		t.Errorf("Results = %d, Skipped = %v", len(rep.Results), rep.Skipped)
	}
	if len(runner.invoked()) != 0 {
		t.Errorf("invoked = %v, want none", runner.invoked())
	}
}

func TestRunAll_FreezesRegistry(t *testing.T) {
	reg := registry(t, "core")
	o := &Orchestrator{Runner: &fakeRunner{}}
	if _, err := o.RunAll(context.Background(), reg); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("late", profile.ConfigContext{Settings: "x"}); !errors.Is(err, profile.ErrFrozen) {
		t.Errorf("err = %v, want ErrFrozen", err)
	}
}

func TestRunAll_ParallelKeepsRegistrationOrder(t *testing.T) {
	// Earlier domains take longer, so completion order is reversed.
	runner := &fakeRunner{delays: map[string]time.Duration{
		"a": 150 * time.Millisecond,
		"b": 100 * time.Millisecond,
		"c": 50 * time.Millisecond,
		"d": 0,
	}}
	o := &Orchestrator{Runner: runner, Parallel: 4}

	rep, err := o.RunAll(context.Background(), registry(t, "a", "b", "c", "d"))
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if got := domainNames(rep.Results); !reflect.DeepEqual(got, []string{"a", "b", "c", "d"}) {
		t.Errorf("results = %v, want registration order", got)
	}
}

func TestRunAll_ParallelLimit(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0
	runner := &fakeRunner{
		delays: map[string]time.Duration{},
		onRun: func(profile.Domain) {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()
			time.Sleep(30 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
		},
	}
	names := make([]string, 6)
	for i := range names {
		names[i] = fmt.Sprintf("d%d", i)
	}
	o := &Orchestrator{Runner: runner, Parallel: 2}

	rep, err := o.RunAll(context.Background(), registry(t, names...))
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Results) != 6 {
		t.Errorf("len(Results) = %d, want 6", len(rep.Results))
	}
	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestRunAll_ParallelFailFast(t *testing.T) {
	runner := &fakeRunner{
		exits:  map[string]int{"a": 1},
		delays: map[string]time.Duration{"a": 50 * time.Millisecond, "b": 200 * time.Millisecond},
	}
	o := &Orchestrator{Runner: runner, Parallel: 2, FailFast: true}

	rep, err := o.RunAll(context.Background(), registry(t, "a", "b", "c"))
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if got := domainNames(rep.Results); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("results = %v, want [a b]", got)
	}
	if !reflect.DeepEqual(rep.Skipped, []string{"c"}) {
		t.Errorf("Skipped = %v, want [c]", rep.Skipped)
	}
}
