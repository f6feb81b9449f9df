package pidfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/gofrs/flock"
)

// Status describes a pidfile as seen from outside the holder.
type Status struct {
	// Path is the pidfile location that was probed.
	Path string
	// Exists reports whether the file is present.
	Exists bool
	// Running reports whether a live process holds the lock.
	Running bool
	// PID is the recorded process id, or 0 when the file is absent or unreadable.
	PID int
}

// State returns a short label for the status: "running", "stale" or "stopped".
func (s Status) State() string {
	switch {
	case s.Running:
		return "running"
	case s.Exists:
		return "stale"
	default:
		return "stopped"
	}
}

// Probe reports whether the pidfile at path is held by a live process. Unlike
// [New] it never creates, deletes or rewrites the file, so it is safe to call
// from a control command while the daemon runs. The test lock is held for an
// instant; a starting daemon retries through it rather than reporting
// contention.
func Probe(path string) (Status, error) {
	st := Status{Path: path}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return st, nil
		}
		return st, fmt.Errorf("stat pidfile %s: %w", path, err)
	}
	st.Exists = true
	if pid, err := Read(path); err == nil {
		st.PID = pid
	}

	lock := flock.New(path, flock.SetFlag(os.O_RDONLY))
	ok, err := lock.TryLock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Released between the stat and the lock attempt.
			return Status{Path: path}, nil
		}
		return st, fmt.Errorf("probe pidfile %s: %w", path, err)
	}
	if ok {
		_ = lock.Unlock()
		return st, nil
	}
	st.Running = true
	return st, nil
}
