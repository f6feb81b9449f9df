// Package pidfile implements the single-instance guard used by the daemon:
// an exclusively flock(2)-locked file whose entire contents are the decimal
// process id of the holder.
//
// Contention is fatal. When another live process holds the lock, [New] and
// [PidFile.Acquire] print the configured message and terminate the process
// with status 1; single-instance enforcement is not something the caller
// gets to catch and ignore.
package pidfile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"
)

// ErrLocked is returned by [New] and [PidFile.Acquire] when the lock is held
// by another process and the fatal hook did not terminate the process.
var ErrLocked = errors.New("pidfile is locked by another process")

// filePerm is the mode used when the pidfile is created.
const filePerm fs.FileMode = 0o644

// contentionWindow is how long a contended lock is retried before the holder
// is taken to be another instance. [Probe] holds the lock for a moment, so a
// single failed attempt proves nothing.
var contentionWindow = 250 * time.Millisecond

// errContended marks a lock attempt that found the lock held.
var errContended = errors.New("pidfile lock contended")

// ///////////////////////////////////////////////
// PidFile
// ///////////////////////////////////////////////

// PidFile is an exclusive advisory lock bound to one filesystem path.
type PidFile struct {
	// path is the pidfile location, resolved by the OS at lock time (so a
	// relative or chroot-relative path follows the process's current root).
	path string
	// message is printed when another holder is active.
	message string
	// lock owns the open handle; it is only open while the lock is held.
	lock *flock.Flock
	// held reports whether this instance currently owns the lock.
	held bool
	// fatal reports lock contention. The default never returns.
	fatal func(msg string)
}

// Option configures a [PidFile].
type Option func(*PidFile)

// WithMessage sets the message printed when another process holds the lock.
func WithMessage(msg string) Option {
	return func(p *PidFile) { p.message = msg }
}

// New binds a PidFile to path. It fails fast if another process currently
// holds the lock: the file is test-locked, released and deleted, so a stale
// file left by a dead holder is cleaned up here.
func New(path string, opts ...Option) (*PidFile, error) {
	if path == "" {
		return nil, errors.New("pidfile: empty path")
	}
	p := &PidFile{path: path, fatal: exitWithMessage}
	for _, opt := range opts {
		opt(p)
	}
	p.lock = flock.New(path, flock.SetPermissions(filePerm))

	ok, err := tryLock(p.lock)
	if err != nil {
		return nil, fmt.Errorf("probe pidfile %s: %w", path, err)
	}
	if !ok {
		p.fatal(p.contentionMessage())
		return nil, ErrLocked
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_ = p.lock.Unlock()
		return nil, fmt.Errorf("remove stale pidfile %s: %w", path, err)
	}
	if err := p.lock.Unlock(); err != nil {
		return nil, fmt.Errorf("release pidfile probe %s: %w", path, err)
	}
	return p, nil
}

// Path returns the pidfile location.
func (p *PidFile) Path() string { return p.path }

// Held reports whether this instance currently holds the lock.
func (p *PidFile) Held() bool { return p.held }

// Acquire takes the exclusive lock and writes the current process id into the
// file. Calling Acquire while already held is a no-op.
func (p *PidFile) Acquire() error {
	if p.held {
		return nil
	}
	ok, err := tryLock(p.lock)
	if err != nil {
		return fmt.Errorf("lock pidfile %s: %w", p.path, err)
	}
	if !ok {
		p.fatal(p.contentionMessage())
		return ErrLocked
	}
	if err := writePID(p.path, os.Getpid()); err != nil {
		_ = os.Remove(p.path)
		_ = p.lock.Unlock()
		return err
	}
	p.held = true
	slog.Debug("pidfile acquired", "path", p.path, "pid", os.Getpid())
	return nil
}

// Release deletes the pidfile and drops the lock. The file is removed while
// the lock is still held so no other process can lock the path and then lose
// its file to this cleanup. Calling Release when not held is a no-op.
func (p *PidFile) Release() error {
	if !p.held {
		return nil
	}
	var errs []error
	if err := os.Remove(p.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove pidfile %s: %w", p.path, err))
	}
	if err := p.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("unlock pidfile %s: %w", p.path, err))
	}
	p.held = false
	slog.Debug("pidfile released", "path", p.path)
	return errors.Join(errs...)
}

// tryLock takes the exclusive lock, retrying with backoff while it is
// contended. It reports false once contentionWindow has passed without
// getting the lock.
func tryLock(lock *flock.Flock) (bool, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Millisecond
	bo.MaxInterval = 25 * time.Millisecond
	bo.MaxElapsedTime = contentionWindow

	err := backoff.Retry(func() error {
		ok, err := lock.TryLock()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errContended
		}
		return nil
	}, bo)
	if errors.Is(err, errContended) {
		return false, nil
	}
	return err == nil, err
}

// contentionMessage returns the configured message, or a default naming the path.
func (p *PidFile) contentionMessage() string {
	if p.message != "" {
		return p.message
	}
	return fmt.Sprintf("another instance holds %s", p.path)
}

// ///////////////////////////////////////////////
// File Contents
// ///////////////////////////////////////////////

// writePID replaces the contents of path with pid in decimal. The file is
// opened separately from the lock handle; flock locks are advisory and do not
// restrict writes through other descriptors. It must already exist (the lock
// created it), otherwise the pid would land in an unlocked file.
func writePID(path string, pid int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("open pidfile %s: %w", path, err)
	}
	if _, err := f.WriteString(strconv.Itoa(pid)); err != nil {
		f.Close()
		return fmt.Errorf("write pidfile %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close pidfile %s: %w", path, err)
	}
	return nil
}

// Read returns the process id stored in the pidfile at path. Surrounding
// whitespace is tolerated so files written by other tools still parse.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, fmt.Errorf("pidfile %s is empty", path)
	}
	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pidfile %s: invalid pid %q", path, s)
	}
	return pid, nil
}

// exitWithMessage is the default contention handler.
func exitWithMessage(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
