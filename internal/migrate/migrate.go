// Package migrate upgrades versioned files on disk, such as daemonize.toml,
// one schema version at a time. Each step is a pure function over the raw
// file bytes so a failed upgrade leaves the original file untouched.
package migrate

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Migration upgrades file contents to Version from the version before it.
type Migration struct {
	// Version is the schema version the upgrade produces.
	Version int
	// Description names the change in log output, e.g.
	// "daemon.detach bool to auto/always/never".
	Description string
	// Upgrade rewrites data written at the prior version.
	Upgrade func(data []byte) ([]byte, error)
}

// Error reports the migration step that failed.
type Error struct {
	Version     int
	Description string
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("migration to v%d failed (%s): %v", e.Version, e.Description, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Run applies, in version order, every migration newer than fromVersion.
// It returns the upgraded data and the version reached. On failure the
// version is the last one successfully reached.
func Run(data []byte, fromVersion int, migrations []Migration) ([]byte, int, error) {
	pending := slices.SortedFunc(slices.Values(migrations), func(a, b Migration) int {
		return cmp.Compare(a.Version, b.Version)
	})

	version := fromVersion
	for _, m := range pending {
		if m.Version <= version {
			continue
		}
		slog.Info("upgrading schema", "from", version, "to", m.Version, "change", m.Description)
		out, err := m.Upgrade(data)
		if err != nil {
			return nil, version, &Error{Version: m.Version, Description: m.Description, Err: err}
		}
		data, version = out, m.Version
	}
	return data, version, nil
}

// NeedsMigration reports whether a file written at fileVersion must be
// upgraded. A version mismatch always counts; force counts whenever any
// migration is registered.
func NeedsMigration(fileVersion, currentVersion int, force bool, migrations []Migration) bool {
	if fileVersion != currentVersion || (force && len(migrations) > 0) {
		return true
	}
	return slices.ContainsFunc(migrations, func(m Migration) bool { return m.Version > fileVersion })
}
