// Package config loads the ticketdeck configuration file.
//
// Configuration problems are the only fatal error class besides missing
// external binaries: a bad config surfaces at startup and stops the
// process, while everything at steady state degrades gracefully.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"ticketdeck/internal/constants"
)

// Config is the root configuration, stored as TOML at
// <control-root>/config.toml.
type Config struct {
	// RepoDir is the git repository worktrees are created from.
	// Defaults to the current directory at ticket creation.
	RepoDir string `toml:"repo_dir"`

	// WorktreeRoot is where per-ticket worktrees are placed.
	WorktreeRoot string `toml:"worktree_root"`

	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	StalenessSeconds    int `toml:"staleness_seconds"`
	ProbeTimeoutSeconds int `toml:"probe_timeout_seconds"`
	BootGraceSeconds    int `toml:"boot_grace_seconds"`

	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Agent    AgentConfig    `toml:"agent"`
	Todo     TodoConfig     `toml:"todo"`

	// controlRoot is where this config was loaded from; not serialized.
	controlRoot string `toml:"-"`
}

// ServerConfig describes the dev server run in the ticket's server window.
type ServerConfig struct {
	// Command is sent to the server window to start the process.
	Command string `toml:"command"`

	// HealthURL overrides the probe URL; empty means the URL extracted
	// from the server's ready log line.
	HealthURL string `toml:"health_url"`

	// ReadyPatterns and ErrorPatterns override the log matcher defaults.
	ReadyPatterns []string `toml:"ready_patterns"`
	ErrorPatterns []string `toml:"error_patterns"`
}

// DatabaseConfig describes the database probed by checkDatabase.
type DatabaseConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`

	// DSN enables a driver-level ping on top of the TCP dial when set
	// (go-sql-driver/mysql format).
	DSN string `toml:"dsn"`
}

// AgentConfig describes how agent sessions are launched.
type AgentConfig struct {
	// Command is the agent binary; the session id is appended as
	// "--session-id <id>".
	Command string `toml:"command"`
}

// TodoConfig overrides the TODO parser pattern families. Empty families
// use the compiled-in defaults.
type TodoConfig struct {
	CompletedPatterns []string `toml:"completed_patterns"`
	BlockedPatterns   []string `toml:"blocked_patterns"`
	PendingPatterns   []string `toml:"pending_patterns"`
}

// ControlRoot resolves the control directory: $TICKETDECK_HOME when set,
// else ~/.ticketdeck.
func ControlRoot() (string, error) {
	if env := os.Getenv("TICKETDECK_HOME"); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, constants.ControlDirName), nil
}

// defaults returns the compiled-in configuration.
func defaults(controlRoot string) *Config {
	return &Config{
		WorktreeRoot:        filepath.Join(controlRoot, "worktrees"),
		PollIntervalSeconds: int(constants.PollInterval / time.Second),
		StalenessSeconds:    int(constants.StalenessThreshold / time.Second),
		ProbeTimeoutSeconds: int(constants.ProbeTimeout / time.Second),
		BootGraceSeconds:    int(constants.BootGraceWindow / time.Second),
		Server: ServerConfig{
			Command: "npm run dev",
		},
		Database: DatabaseConfig{
			Host: "localhost",
			Port: 5432,
		},
		Agent: AgentConfig{
			Command: "claude",
		},
		controlRoot: controlRoot,
	}
}

// LoadOrCreate reads config.toml under the control root, writing the
// defaults first when no file exists. An unreadable or invalid file is a
// ConfigurationError: fatal, reported immediately.
func LoadOrCreate(controlRoot string) (*Config, error) {
	path := filepath.Join(controlRoot, "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := defaults(controlRoot)
		if err := write(path, cfg); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}
		return cfg, nil
	}

	cfg := defaults(controlRoot)
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	cfg.controlRoot = controlRoot
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll_interval_seconds must be positive, got %d", c.PollIntervalSeconds)
	}
	if c.ProbeTimeoutSeconds <= 0 {
		return fmt.Errorf("probe_timeout_seconds must be positive, got %d", c.ProbeTimeoutSeconds)
	}
	if c.StalenessSeconds <= 0 {
		return fmt.Errorf("staleness_seconds must be positive, got %d", c.StalenessSeconds)
	}
	return nil
}

func write(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// Accessors converting the persisted integer seconds to durations.

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *Config) Staleness() time.Duration {
	return time.Duration(c.StalenessSeconds) * time.Second
}

func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

func (c *Config) BootGrace() time.Duration {
	return time.Duration(c.BootGraceSeconds) * time.Second
}

// Root returns the control root this config was loaded from.
func (c *Config) Root() string {
	return c.controlRoot
}
