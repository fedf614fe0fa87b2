// Package suite runs one test domain as an external process under that
// domain's configuration context.
//
// The context is established only through the child's argv and
// environment. The parent environment is read once and never written,
// so no configuration can leak from one domain into the next.
package suite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/alessio/shellescape"
	"github.com/deixis/suiterun/internal/config"
	"github.com/deixis/suiterun/internal/profile"
	"github.com/deixis/suiterun/internal/report"
	"github.com/deixis/suiterun/internal/runner"
)

// DomainEnv is set in every suite process to the running domain's name.
const DomainEnv = "SUITERUN_DOMAIN"

// ErrContextResolution is returned by Validate when a domain's
// configuration context cannot be turned into an invocation.
var ErrContextResolution = errors.New("configuration context cannot be resolved")

// CommandRunner executes a process. Implemented by runner.Runner.
type CommandRunner interface {
	Run(ctx context.Context, c runner.Command) (*runner.Result, error)
}

// Runner turns domains into suite processes.
type Runner struct {
	Exec      CommandRunner
	Workspace string

	Command      []string          // suite command; targets and the settings flag are appended
	SettingsFlag string            // rendered as <flag>=<settings> when set
	SettingsEnv  string            // receives the settings when set
	Env          map[string]string // shared by every domain, below the domain's own env
	BaseEnv      []string          // parent environment snapshot; nil means os.Environ()

	// Timeout, when > 0, bounds every domain and replaces per-domain
	// timeouts from the config file.
	Timeout time.Duration

	Stream io.Writer // optional live copy of suite output
}

// New builds a Runner from a loaded configuration.
func New(cfg *config.Config, workspace string) *Runner {
	return &Runner{
		Exec: &runner.Runner{
			Workspace: workspace,
			Timeout:   cfg.Timeout(),
			MaxOutput: cfg.MaxOutputBytes(),
		},
		Workspace:    workspace,
		Command:      cfg.SuiteCommand(),
		SettingsFlag: cfg.SettingsFlag,
		SettingsEnv:  cfg.SettingsVar(),
		Env:          cfg.Env,
		BaseEnv:      os.Environ(),
	}
}

// Invocation is the fully resolved process for one domain.
type Invocation struct {
	Argv    []string
	Env     []string
	Dir     string
	Timeout time.Duration
}

// String renders the invocation as a shell command line.
func (inv Invocation) String() string {
	return shellescape.QuoteCommand(inv.Argv)
}

// Validate resolves d's configuration context without running anything.
func (r *Runner) Validate(d profile.Domain) error {
	_, err := r.Resolve(d)
	return err
}

// Resolve builds the invocation for d.
func (r *Runner) Resolve(d profile.Domain) (Invocation, error) {
	if d.Context.IsZero() {
		return Invocation{}, fmt.Errorf("%w: domain %q has neither settings nor env", ErrContextResolution, d.Name)
	}
	for k := range d.Context.Env {
		if err := checkEnvKey(k); err != nil {
			return Invocation{}, fmt.Errorf("%w: domain %q: %v", ErrContextResolution, d.Name, err)
		}
	}
	for k := range r.Env {
		if err := checkEnvKey(k); err != nil {
			return Invocation{}, fmt.Errorf("%w: shared env: %v", ErrContextResolution, err)
		}
	}
	if d.Context.Settings != "" && r.SettingsFlag == "" && r.SettingsEnv == "" {
		return Invocation{}, fmt.Errorf("%w: domain %q has settings but no settings flag or variable is configured", ErrContextResolution, d.Name)
	}
	if _, err := runner.ResolveDir(r.Workspace, d.Dir); err != nil {
		return Invocation{}, fmt.Errorf("%w: domain %q: %v", ErrContextResolution, d.Name, err)
	}

	command := r.Command
	if len(d.Command) > 0 {
		command = d.Command
	}
	if len(command) == 0 || command[0] == "" {
		return Invocation{}, fmt.Errorf("%w: domain %q has no command", ErrContextResolution, d.Name)
	}

	argv := make([]string, 0, len(command)+len(d.Targets)+1)
	argv = append(argv, command...)
	argv = append(argv, d.Targets...)
	if r.SettingsFlag != "" && d.Context.Settings != "" {
		argv = append(argv, r.SettingsFlag+"="+d.Context.Settings)
	}

	timeout := d.Timeout
	if r.Timeout > 0 {
		timeout = r.Timeout
	}

	return Invocation{
		Argv:    argv,
		Env:     r.environ(d),
		Dir:     d.Dir,
		Timeout: timeout,
	}, nil
}

// environ builds the child environment: the parent snapshot minus every
// key the context defines, then shared env, settings, domain name and
// the domain's own env, each layer overriding the one before.
func (r *Runner) environ(d profile.Domain) []string {
	overlay := make(map[string]string, len(r.Env)+len(d.Context.Env)+2)
	for k, v := range r.Env {
		overlay[k] = v
	}
	if r.SettingsEnv != "" && d.Context.Settings != "" {
		overlay[r.SettingsEnv] = d.Context.Settings
	}
	overlay[DomainEnv] = d.Name
	for k, v := range d.Context.Env {
		overlay[k] = v
	}

	base := r.BaseEnv
	if base == nil {
		base = os.Environ()
	}

	env := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, ok := overlay[k]; ok {
			continue
		}
		if k == r.SettingsEnv || k == DomainEnv {
			// Never inherit a settings value from the parent.
			continue
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overlay[k])
	}
	return env
}

func checkEnvKey(k string) error {
	if k == "" || strings.ContainsAny(k, "=\x00") {
		return fmt.Errorf("invalid environment variable name %q", k)
	}
	return nil
}

// Run executes d's suite and blocks until it exits, fails to launch,
// times out or is cancelled. Every outcome is returned as a RunResult.
func (r *Runner) Run(ctx context.Context, d profile.Domain) *report.RunResult {
	res := &report.RunResult{
		Domain:   d.Name,
		Settings: d.Context.Settings,
	}

	inv, err := r.Resolve(d)
	if err != nil {
		return launchFailure(res, err, 0)
	}
	res.Command = inv.String()

	start := time.Now()
	out, err := r.Exec.Run(ctx, runner.Command{
		Argv:    inv.Argv,
		Dir:     inv.Dir,
		Env:     inv.Env,
		Timeout: inv.Timeout,
		Stream:  r.Stream,
	})
	if err != nil {
		return launchFailure(res, err, time.Since(start))
	}

	res.RunID = out.RunID
	res.Output = string(out.Output)
	res.Truncated = out.Truncated
	res.DurationMillis = out.Duration.Milliseconds()
	switch {
	case out.TimedOut:
		res.ExitCode = report.ExitTimeout
	case out.Cancelled:
		res.ExitCode = report.ExitCancelled
	default:
		res.ExitCode = out.ExitCode
		if res.ExitCode < 0 {
			res.ExitCode = report.ExitKilled
		}
	}
	res.Status = report.StatusOf(res.ExitCode)
	return res
}

func launchFailure(res *report.RunResult, err error, elapsed time.Duration) *report.RunResult {
	res.ExitCode = report.ExitLaunchFailure
	res.Status = report.LaunchError
	res.Error = err.Error()
	res.Output = err.Error()
	res.DurationMillis = elapsed.Milliseconds()
	return res
}
