// Package paths centralizes file and directory names used across the project.
// All data directory file names are defined here as the single source of truth.
package paths

import "path/filepath"

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile    = "daemonize.pid"
	ConfigFile = "daemonize.toml"
	LogFile    = "daemonize.log"
	StdoutFile = "stdout.log"
	StderrFile = "stderr.log"
)

// Installation names.
const (
	BinaryName = "daemonize"
	DataDirRel = ".daemonize" // relative to $HOME
)

// BackupSuffix is appended to the config file name when a migration
// rewrites it.
const BackupSuffix = ".bak"

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// PID returns the full path to the default PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// ConfigBackup returns the path the config is copied to before migration.
func (d DataDir) ConfigBackup() string { return d.Config() + BackupSuffix }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// Stdout returns the full path to the captured standard output file.
func (d DataDir) Stdout() string { return filepath.Join(d.Root, StdoutFile) }

// Stderr returns the full path to the captured standard error file.
func (d DataDir) Stderr() string { return filepath.Join(d.Root, StderrFile) }

// Resolve returns p unchanged when it is absolute and joined to the data
// directory otherwise. An empty p stays empty.
func (d DataDir) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(d.Root, p)
}
