package daemon

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Filer is anything backed by an OS file descriptor: [*os.File], the
// results of File() on net connections and listeners, or [FD].
type Filer interface {
	Fd() uintptr
}

// FD is a raw descriptor number usable where a [Filer] is expected.
type FD int

// Fd returns the descriptor number.
func (f FD) Fd() uintptr { return uintptr(f) }

// LockGuard is the single-instance lock held while the context is open.
// [*pidfile.PidFile] implements it.
type LockGuard interface {
	Path() string
	Acquire() error
	Release() error
}

// DetachMode selects whether Open detaches the process.
type DetachMode int

const (
	// DetachAuto detaches unless the process was started by init or by a
	// superserver that passed a socket on stdin.
	DetachAuto DetachMode = iota
	// DetachAlways always detaches.
	DetachAlways
	// DetachNever keeps the process in its current session.
	DetachNever
)

func (m DetachMode) String() string {
	switch m {
	case DetachAlways:
		return "always"
	case DetachNever:
		return "never"
	default:
		return "auto"
	}
}

// ParseDetachMode parses "auto", "always" or "never".
func ParseDetachMode(s string) (DetachMode, error) {
	switch s {
	case "auto", "":
		return DetachAuto, nil
	case "always":
		return DetachAlways, nil
	case "never":
		return DetachNever, nil
	default:
		return DetachAuto, fmt.Errorf("invalid detach mode %q (want auto, always or never)", s)
	}
}

// ///////////////////////////////////////////////
// Context
// ///////////////////////////////////////////////

// Context turns the calling process into a daemon. Configure the exported
// fields after [New], then call [Context.Open] once and defer
// [Context.Close]. Fields must not change after the first Open.
type Context struct {
	// ChrootDirectory becomes the filesystem root when set.
	ChrootDirectory string
	// WorkingDirectory is entered after the chroot. Defaults to "/".
	WorkingDirectory string
	// Umask is the file creation mask. Defaults to 0.
	Umask int
	// UID and GID are the ids the process switches to. Default to the real
	// ids of the caller.
	UID int
	GID int
	// PreventCore disables core dumps. Defaults to true.
	PreventCore bool
	// Detach selects whether the process detaches. Defaults to DetachAuto.
	Detach DetachMode
	// FilesPreserve lists descriptors that survive the descriptor sweep.
	FilesPreserve []Filer
	// Stdin, Stdout and Stderr replace the standard streams. Nil means the
	// null device.
	Stdin  Filer
	Stdout Filer
	Stderr Filer
	// SignalMap is installed on Open. Defaults to [DefaultSignalMap].
	SignalMap SignalMap
	// PidFile, when set, is acquired on Open and released on Close.
	PidFile LockGuard
	// Terminator replaces the built-in handler of the [Terminate] action.
	Terminator func(os.Signal)
	// ReadyTimeout bounds how long the invoking process waits for the
	// detached daemon to report readiness. Zero waits until the daemon
	// reports or exits.
	ReadyTimeout time.Duration

	mu      sync.Mutex
	isOpen  bool
	sys     system
	errOut  io.Writer
	stage   stage
	ready   *os.File
	signals signalDispatcher
}

// New returns a Context with default configuration. In a process started as
// a detach stage, the first Context created claims that stage.
func New() *Context {
	c := newContext(hostSystem{})
	c.stage, c.ready = detectStage()
	return c
}

func newContext(sys system) *Context {
	return &Context{
		WorkingDirectory: "/",
		UID:              sys.Getuid(),
		GID:              sys.Getgid(),
		PreventCore:      true,
		Detach:           DetachAuto,
		SignalMap:        DefaultSignalMap(),
		sys:              sys,
		errOut:           os.Stderr,
	}
}

// IsOpen reports whether the context is open.
func (c *Context) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOpen
}

// Open turns the process into a daemon. It is a no-op on an open context.
//
// The steps run in a fixed order: change root, prevent core dumps, set the
// umask, change working directory, drop group then user privileges, detach,
// install signal handlers, close every descriptor not preserved, redirect
// the standard streams, and acquire the pidfile. The first failing step
// aborts Open; the changes already made stay in effect.
//
// Detaching re-executes the program with the same arguments, so code before
// Open runs once in each stage. The invoking process does not return from a
// detaching Open: it exits 0 once the daemon holds its pidfile, or 1 when
// the daemon fails first.
func (c *Context) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isOpen {
		return nil
	}

	err := c.open()
	if c.stage == stageDaemon && c.ready != nil {
		if rerr := reportReady(c.ready, err); rerr != nil {
			slog.Warn("failed to report daemon readiness", "error", rerr)
		}
		c.closeReady()
	}
	if err != nil {
		return err
	}
	c.isOpen = true
	return nil
}

func (c *Context) open() error {
	switch c.stage {
	case stageLeader:
		return c.detachLeader()
	case stageInvoker:
		if c.detachEnabled() {
			return c.detachInvoker()
		}
	}

	// Listed before chroot hides /proc and before the sweep closes them.
	reserved, err := c.sys.ReservedDescriptors()
	if err != nil {
		return &EnvironmentError{Op: "identify runtime descriptors", Err: err}
	}

	if c.ChrootDirectory != "" {
		if err := changeRootDirectory(c.sys, c.ChrootDirectory); err != nil {
			return err
		}
	}
	if c.PreventCore {
		if err := preventCoreDump(c.sys); err != nil {
			return err
		}
	}
	if err := changeFileCreationMask(c.sys, c.Umask); err != nil {
		return err
	}
	if err := changeWorkingDirectory(c.sys, c.WorkingDirectory); err != nil {
		return err
	}
	if err := changeProcessOwner(c.sys, c.UID, c.GID); err != nil {
		return err
	}

	if err := c.signals.install(c.sys, c.makeSignalHandlerMap()); err != nil {
		return fmt.Errorf("install signal handlers: %w", err)
	}

	if err := closeAllOpenFiles(c.sys, c.excludeDescriptors(reserved)); err != nil {
		return err
	}
	if err := redirectStream(c.sys, stdinFD, c.Stdin); err != nil {
		return err
	}
	if err := redirectStream(c.sys, stdoutFD, c.Stdout); err != nil {
		return err
	}
	if err := redirectStream(c.sys, stderrFD, c.Stderr); err != nil {
		return err
	}

	if c.PidFile != nil {
		if err := c.PidFile.Acquire(); err != nil {
			return fmt.Errorf("acquire pidfile %s: %w", c.PidFile.Path(), err)
		}
	}
	return nil
}

// Close releases the pidfile and marks the context closed. It is a no-op on
// a closed context, so a deferred Close and the terminate handler may both
// run. Descriptors and streams are never restored.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isOpen {
		return nil
	}
	var err error
	if c.PidFile != nil {
		if rerr := c.PidFile.Release(); rerr != nil {
			err = fmt.Errorf("release pidfile %s: %w", c.PidFile.Path(), rerr)
		}
	}
	c.isOpen = false
	return err
}

// Run opens the context, calls fn and closes the context on every return
// path, including a panic in fn.
func (c *Context) Run(fn func() error) (err error) {
	if err := c.Open(); err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn()
}

// terminate is the built-in handler of the Terminate action.
func (c *Context) terminate(sig os.Signal) {
	slog.Info("terminating on signal", "signal", sig)
	if err := c.Close(); err != nil {
		slog.Error("failed to close daemon context", "error", err)
	}
	fmt.Fprintf(c.errOut, "Terminating on signal %s\n", signalNumber(sig))
	c.sys.Exit(1)
}

// ///////////////////////////////////////////////
// Open Helpers
// ///////////////////////////////////////////////

// detachEnabled resolves the Detach mode for the invoking process.
func (c *Context) detachEnabled() bool {
	switch c.Detach {
	case DetachAlways:
		return true
	case DetachNever:
		return false
	default:
		return detachRequired(c.sys)
	}
}

// makeSignalHandlerMap resolves Terminate entries to the context's
// terminator.
func (c *Context) makeSignalHandlerMap() SignalMap {
	term := c.Terminator
	if term == nil {
		term = c.terminate
	}
	m := make(SignalMap, len(c.SignalMap))
	for sig, action := range c.SignalMap {
		if action.kind == actionTerminate {
			action = Handle(term)
		}
		m[sig] = action
	}
	return m
}

// excludeDescriptors collects the descriptors the sweep must leave open: the
// preserved files, the replacement streams, the runtime's own descriptors
// and the readiness pipe of a detached daemon.
func (c *Context) excludeDescriptors(reserved []int) map[int]struct{} {
	exclude := make(map[int]struct{})
	for _, f := range c.FilesPreserve {
		if fd, ok := descriptor(f); ok {
			exclude[fd] = struct{}{}
		}
	}
	for _, f := range []Filer{c.Stdin, c.Stdout, c.Stderr} {
		if fd, ok := descriptor(f); ok {
			exclude[fd] = struct{}{}
		}
	}
	for _, fd := range reserved {
		exclude[fd] = struct{}{}
	}
	if c.ready != nil {
		if fd, ok := descriptor(c.ready); ok {
			exclude[fd] = struct{}{}
		}
	}
	return exclude
}

// descriptor returns the descriptor behind f. A nil Filer, a nil or closed
// *os.File and negative numbers have none.
func descriptor(f Filer) (int, bool) {
	if f == nil {
		return -1, false
	}
	fd := int(f.Fd())
	if fd < 0 {
		return -1, false
	}
	return fd, true
}
