// Package config loads and validates the optional .suiterun YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/deixis/suiterun/internal/profile"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up at the repository root.
const FileName = ".suiterun"

// Default values for runner configuration.
const (
	DefaultTimeout     = 30 * time.Minute
	DefaultMaxOutput   = 1 << 20 // 1 MB
	DefaultSettingsEnv = "SUITERUN_SETTINGS"
)

// DefaultCommand is used when no command is configured.
var DefaultCommand = []string{"python", "-m", "django", "test"}

// Config holds the parsed .suiterun configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version      int               `yaml:"version"`
	RawTimeout   string            `yaml:"timeout"`       // per-domain bound, e.g. "10m"
	RawMaxOutput int               `yaml:"max_output"`    // bytes captured per domain
	Command      []string          `yaml:"command"`       // suite command, targets are appended
	SettingsFlag string            `yaml:"settings_flag"` // e.g. --settings, rendered as --settings=<settings>
	SettingsEnv  string            `yaml:"settings_env"`  // e.g. DJANGO_SETTINGS_MODULE
	Env          map[string]string `yaml:"env"`           // shared by every domain
	ResultsDir   string            `yaml:"results_dir"`   // where run reports are kept
	Parallel     int               `yaml:"parallel"`      // max concurrent domains, default 1
	FailFast     bool              `yaml:"fail_fast"`
	Domains      []DomainConfig    `yaml:"domains"`
}

// DomainConfig describes one test domain.
type DomainConfig struct {
	Name       string            `yaml:"name"`
	Settings   string            `yaml:"settings"`
	Env        map[string]string `yaml:"env"`
	Targets    []string          `yaml:"targets"`
	Command    []string          `yaml:"command"`
	Dir        string            `yaml:"dir"`
	RawTimeout string            `yaml:"timeout"`
}

// Timeout returns the configured timeout or the default.
func (c *Config) Timeout() time.Duration {
	if d := parseTimeout(c.RawTimeout); d > 0 {
		return d
	}
	return DefaultTimeout
}

// MaxOutputBytes returns the configured max output size or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// SuiteCommand returns the configured suite command, falling back to
// DefaultCommand.
func (c *Config) SuiteCommand() []string {
	if len(c.Command) > 0 {
		return c.Command
	}
	return DefaultCommand
}

// SettingsVar returns the environment variable that carries a domain's
// settings. When neither a settings flag nor a variable is configured,
// DefaultSettingsEnv is used so the settings always reach the suite.
func (c *Config) SettingsVar() string {
	if c.SettingsEnv != "" {
		return c.SettingsEnv
	}
	if c.SettingsFlag != "" {
		return ""
	}
	return DefaultSettingsEnv
}

// ParallelLimit returns the number of domains allowed to run at once.
func (c *Config) ParallelLimit() int {
	if c.Parallel > 1 {
		return c.Parallel
	}
	return 1
}

// ResultsDirectory returns the directory for saved run reports. An
// empty result means a temporary directory should be used.
func (c *Config) ResultsDirectory(root string) string {
	if c.ResultsDir == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return ""
		}
		return filepath.Join(dir, "suiterun", "runs")
	}
	if filepath.IsAbs(c.ResultsDir) {
		return c.ResultsDir
	}
	return filepath.Join(root, c.ResultsDir)
}

// Registry builds the profile registry from the configured domains, in
// file order.
func (c *Config) Registry() (*profile.Registry, error) {
	reg := profile.NewRegistry()
	for i, dc := range c.Domains {
		timeout := time.Duration(0)
		if dc.RawTimeout != "" {
			timeout = parseTimeout(dc.RawTimeout)
			if timeout <= 0 {
				return nil, fmt.Errorf("domain %q: invalid timeout %q", dc.Name, dc.RawTimeout)
			}
		}
		err := reg.Add(profile.Domain{
			Name: dc.Name,
			Context: profile.ConfigContext{
				Settings: dc.Settings,
				Env:      dc.Env,
			},
			Targets: dc.Targets,
			Command: dc.Command,
			Dir:     dc.Dir,
			Timeout: timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("domains[%d]: %w", i, err)
		}
	}
	return reg, nil
}

// parseTimeout accepts a Go duration ("90s") or a bare number of seconds ("90").
func parseTimeout(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := ParseSeconds(s)
	if err != nil {
		return 0
	}
	return d
}

// LoadResult holds the parsed config and the discovered repository root.
type LoadResult struct {
	Config   *Config
	RepoRoot string // directory holding .suiterun, .git or go.mod; falls back to workspace
	Path     string // config file that was read, empty if none
}

// Load reads the .suiterun file from the repository root.
// The repository root is discovered by walking upward from workspace.
// If no .suiterun file exists, a default Config is returned.
func Load(workspace string) (*LoadResult, error) {
	root, err := findRepoRoot(workspace)
	if err != nil {
		// No marker found; use workspace as root.
		root = workspace
	}

	path := filepath.Join(root, FileName)
	cfg, err := readFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &LoadResult{Config: &Config{}, RepoRoot: root}, nil
		}
		return nil, err
	}
	return &LoadResult{Config: cfg, RepoRoot: root, Path: path}, nil
}

// LoadFile reads an explicit configuration file. Its directory is the
// repository root.
func LoadFile(path string) (*LoadResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	cfg, err := readFile(abs)
	if err != nil {
		return nil, err
	}
	return &LoadResult{Config: cfg, RepoRoot: filepath.Dir(abs), Path: abs}, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

var rootMarkers = []string{FileName, ".git", "go.mod"}

// findRepoRoot walks upward from dir looking for a directory containing
// one of rootMarkers.
func findRepoRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		for _, m := range rootMarkers {
			if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("repository root not found")
		}
		dir = parent
	}
}
