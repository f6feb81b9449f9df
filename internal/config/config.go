// Package config provides configuration loading and defaults for daemonize.
//
// Configuration is loaded from a TOML file in the user's data directory.
// It describes the daemon context (pidfile, directories, ownership, detach
// mode), where the standard streams go, the command to supervise, and
// logging, with defaults that daemonize the command in place.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/daemonize/internal/atomicfile"
	"tools.zach/dev/daemonize/internal/migrate"
	"tools.zach/dev/daemonize/internal/paths"
)

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version int `toml:"version"`
	// Daemon holds the daemon context settings.
	Daemon DaemonConfig `toml:"daemon"`
	// Streams holds the standard stream redirection targets.
	Streams StreamsConfig `toml:"streams"`
	// Command holds the supervised command.
	Command CommandConfig `toml:"command"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// DaemonConfig holds the settings applied when the daemon context opens.
type DaemonConfig struct {
	// PIDFile is the pidfile path, relative to the data directory unless absolute.
	PIDFile string `toml:"pidfile"`
	// LockMessage is printed when another instance holds the pidfile.
	LockMessage string `toml:"lock_message,omitempty"`
	// WorkingDirectory is the directory the daemon changes into.
	WorkingDirectory string `toml:"working_directory"`
	// ChrootDirectory, when set, becomes the daemon's root directory.
	ChrootDirectory string `toml:"chroot_directory,omitempty"`
	// Umask is the octal file creation mask, e.g. "022".
	Umask string `toml:"umask"`
	// User is the user name or numeric uid to run as. Empty keeps the current user.
	User string `toml:"user,omitempty"`
	// Group is the group name or numeric gid to run as. Empty keeps the current group.
	Group string `toml:"group,omitempty"`
	// PreventCore disables core dumps.
	PreventCore bool `toml:"prevent_core"`
	// Detach is the detach mode: auto, always, or never.
	Detach string `toml:"detach"`
	// ReadyTimeoutSeconds bounds how long the invoker waits for the daemon. 0 waits forever.
	ReadyTimeoutSeconds int `toml:"ready_timeout_seconds"`
	// PreserveFDs lists extra descriptor numbers kept open across the sweep.
	PreserveFDs []int `toml:"preserve_fds,omitempty"`
}

// StreamsConfig holds the files the standard streams are redirected to.
// Paths are relative to the data directory unless absolute. An empty path
// redirects the stream to the null device.
type StreamsConfig struct {
	// Stdin is the file standard input reads from.
	Stdin string `toml:"stdin,omitempty"`
	// Stdout is the file standard output appends to.
	Stdout string `toml:"stdout"`
	// Stderr is the file standard error appends to.
	Stderr string `toml:"stderr"`
}

// CommandConfig holds the command that runs inside the daemon.
type CommandConfig struct {
	// Path is the executable to run, resolved against PATH when not absolute.
	Path string `toml:"path"`
	// Args are passed to the command after its name.
	Args []string `toml:"args"`
	// EnvKeep lists glob patterns of environment variable names inherited
	// from the invoking environment.
	EnvKeep []string `toml:"env_keep"`
	// Env lists extra KEY=VALUE entries added to the command's environment.
	Env []string `toml:"env,omitempty"`
	// Forward lists the signals relayed from the daemon to the command.
	Forward []string `toml:"forward"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: migrate.Config.CurrentVersion,
		Daemon: DaemonConfig{
			PIDFile:             paths.PIDFile,
			WorkingDirectory:    "/",
			Umask:               "0",
			PreventCore:         true,
			Detach:              "auto",
			ReadyTimeoutSeconds: 30,
		},
		Streams: StreamsConfig{
			Stdout: paths.StdoutFile,
			Stderr: paths.StderrFile,
		},
		Command: CommandConfig{
			Args:    []string{},
			EnvKeep: []string{"PATH", "HOME", "USER", "LANG", "LC_*", "TZ"},
			Forward: []string{"SIGTERM", "SIGINT", "SIGHUP"},
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ///////////////////////////////////////////////
// Example Configuration
// ///////////////////////////////////////////////

// ExampleConfig returns a Config suitable for generating config.default.toml.
// It differs from the defaults only in naming a command to run.
func ExampleConfig() *Config {
	cfg := DefaultConfig()
	cfg.Command.Path = "/usr/bin/sleep"
	cfg.Command.Args = []string{"infinity"}
	return cfg
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return 1
	}
	if v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses the configuration file from dataDir/daemonize.toml.
// If the file doesn't exist, returns DefaultConfig.
func Load(dataDir string) (*Config, error) {
	return LoadFile(filepath.Join(dataDir, paths.ConfigFile))
}

// LoadFile reads, migrates, and validates the configuration file at path.
// A migrated file is backed up to path.bak and rewritten at the current
// version. If the file doesn't exist, returns DefaultConfig.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	version := PeekVersion(data)
	if version > migrate.Config.CurrentVersion {
		return nil, fmt.Errorf("config version %d is newer than supported version %d", version, migrate.Config.CurrentVersion)
	}

	// Apply migrations if needed
	shouldMigrate := migrate.Config.NeedsMigration(version, false)
	if shouldMigrate {
		if backupErr := os.WriteFile(path+paths.BackupSuffix, data, 0o644); backupErr != nil {
			slog.Warn("failed to write config backup", "error", backupErr)
		}
		var migrateErr error
		data, _, migrateErr = migrate.Config.Run(data, version)
		if migrateErr != nil {
			return nil, fmt.Errorf("migrate config: %w", migrateErr)
		}
	}

	// Auto-apply dev transforms
	if migrate.Config.HasDev() {
		var devErr error
		data, devErr = migrate.Config.RunDev(data)
		if devErr != nil {
			return nil, fmt.Errorf("apply dev transforms: %w", devErr)
		}
		shouldMigrate = true
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Version = migrate.Config.CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// Re-save after migration
	if shouldMigrate {
		if err := cfg.Save(path); err != nil {
			slog.Warn("failed to save migrated config", "error", err)
		}
	}

	return cfg, nil
}

// Save writes the config to disk as TOML using atomic file write.
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	return atomicfile.Write(path, data, 0o644)
}

// Marshal encodes the config as TOML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return buf.Bytes(), nil
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Daemon.PIDFile == "" {
		return fmt.Errorf("daemon.pidfile must not be empty")
	}

	if c.Daemon.WorkingDirectory == "" {
		return fmt.Errorf("daemon.working_directory must not be empty")
	}

	if c.Daemon.ChrootDirectory != "" && !filepath.IsAbs(c.Daemon.ChrootDirectory) {
		return fmt.Errorf("invalid daemon.chroot_directory %q: must be absolute", c.Daemon.ChrootDirectory)
	}

	if _, err := c.Daemon.UmaskValue(); err != nil {
		return err
	}

	switch c.Daemon.Detach {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("invalid daemon.detach %q: must be auto, always, or never", c.Daemon.Detach)
	}

	if c.Daemon.ReadyTimeoutSeconds < 0 {
		return fmt.Errorf("daemon.ready_timeout_seconds must be >= 0, got %d", c.Daemon.ReadyTimeoutSeconds)
	}

	for _, fd := range c.Daemon.PreserveFDs {
		if fd < 0 {
			return fmt.Errorf("invalid daemon.preserve_fds entry %d: must be >= 0", fd)
		}
	}

	for _, p := range c.Command.EnvKeep {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid command.env_keep pattern %q", p)
		}
	}

	for _, kv := range c.Command.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			return fmt.Errorf("invalid command.env entry %q: must be KEY=VALUE", kv)
		}
	}

	for _, name := range c.Command.Forward {
		if !strings.HasPrefix(name, "SIG") {
			return fmt.Errorf("invalid command.forward signal %q: must be a signal name such as SIGTERM", name)
		}
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}

	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}

	return nil
}

// ///////////////////////////////////////////////
// Daemon Helpers
// ///////////////////////////////////////////////

// UmaskValue parses the octal umask string.
func (d DaemonConfig) UmaskValue() (int, error) {
	n, err := strconv.ParseUint(d.Umask, 8, 32)
	if err != nil || n > 0o777 {
		return 0, fmt.Errorf("invalid daemon.umask %q: must be an octal mask between 0 and 777", d.Umask)
	}
	return int(n), nil
}

// ///////////////////////////////////////////////
// Command Helpers
// ///////////////////////////////////////////////

// KeepEnv reports whether the environment variable name matches any of the
// configured env_keep patterns.
func (c *CommandConfig) KeepEnv(name string) bool {
	for _, pattern := range c.EnvKeep {
		matched, err := doublestar.Match(pattern, name)
		if err != nil {
			slog.Warn("invalid glob pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// Environ builds the command's environment from environ (normally
// os.Environ()): entries whose names match env_keep, followed by the
// configured extra entries, which take precedence.
func (c *CommandConfig) Environ(environ []string) []string {
	override := make(map[string]bool, len(c.Env))
	for _, kv := range c.Env {
		k, _, _ := strings.Cut(kv, "=")
		override[k] = true
	}
	out := make([]string, 0, len(environ)+len(c.Env))
	for _, kv := range environ {
		k, _, ok := strings.Cut(kv, "=")
		if !ok || override[k] || !c.KeepEnv(k) {
			continue
		}
		out = append(out, kv)
	}
	return append(out, c.Env...)
}
