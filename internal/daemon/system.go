package daemon

import (
	"os"
	"os/signal"
)

// ///////////////////////////////////////////////
// OS Layer
// ///////////////////////////////////////////////

// system is the set of process-global OS operations the context composes.
// The host implementation lives in the platform files; tests substitute a
// recording fake so the irreversible steps can be observed without being
// performed.
type system interface {
	Getuid() int
	Getgid() int
	Geteuid() int
	Getppid() int

	Chdir(dir string) error
	Chroot(dir string) error
	Umask(mask int) error
	Setgroups(gids []int) error
	Setgid(gid int) error
	Setuid(uid int) error
	DisableCoreDumps() error

	// MaxFileDescriptors returns the hard RLIMIT_NOFILE value.
	MaxFileDescriptors() (uint64, error)
	// OpenDescriptors lists the open descriptors when the platform can
	// enumerate them. ok is false when the caller must sweep the full range.
	OpenDescriptors() (fds []int, ok bool)
	// ReservedDescriptors returns descriptors owned by the Go runtime that
	// must survive the descriptor sweep. It fails where they cannot be
	// identified, since sweeping them would crash the runtime.
	ReservedDescriptors() ([]int, error)
	Close(fd int) error
	Dup2(oldfd, newfd int) error
	OpenNull() (int, error)
	IsSocket(fd int) bool

	IgnoreSignal(sigs ...os.Signal)
	NotifySignal(ch chan<- os.Signal, sigs ...os.Signal)

	// Spawn starts the next detach stage and does not wait for it.
	Spawn(req spawnRequest) error
	Exit(code int)
}

// spawnRequest describes one re-exec of the current executable.
type spawnRequest struct {
	// stage is the stage the new process will run as.
	stage stage
	// ready is the write end of the readiness pipe, passed as fd 3.
	ready *os.File
	// setsid starts the new process in its own session.
	setsid bool
}

// hostSystem performs the operations on the running process.
type hostSystem struct{}

func (hostSystem) Getuid() int  { return os.Getuid() }
func (hostSystem) Getgid() int  { return os.Getgid() }
func (hostSystem) Geteuid() int { return os.Geteuid() }
func (hostSystem) Getppid() int { return os.Getppid() }

func (hostSystem) Chdir(dir string) error { return os.Chdir(dir) }

func (hostSystem) IgnoreSignal(sigs ...os.Signal) { signal.Ignore(sigs...) }

func (hostSystem) NotifySignal(ch chan<- os.Signal, sigs ...os.Signal) {
	signal.Notify(ch, sigs...)
}

func (hostSystem) Exit(code int) { os.Exit(code) }
