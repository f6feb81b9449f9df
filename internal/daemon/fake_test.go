// Recording fakes for the OS layer. fakeSystem keeps an ordered log of the
// process changes Open would make and models the descriptor table as a set,
// so tests can observe the irreversible steps without performing them.

package daemon

import (
	"fmt"
	"os"
	"slices"
	"sync"
	"syscall"
)

// ///////////////////////////////////////////////
// fakeSystem
// ///////////////////////////////////////////////

type fakeSystem struct {
	mu    sync.Mutex
	calls []string

	uid, gid, ppid int
	euid           int
	stdinSocket    bool

	// open is the simulated descriptor table.
	open        map[int]bool
	listable    bool
	maxfd       uint64
	reserved    []int
	reservedErr error

	// fail maps an operation name to the error it returns.
	fail map[string]error

	ignored  []os.Signal
	notified []os.Signal
	notifyCh chan<- os.Signal

	spawns  []spawnRequest
	spawnFn func(spawnRequest) error
	exits   []int
}

// newFakeSystem returns a fake with descriptors 0 through n-1 open.
func newFakeSystem(n int) *fakeSystem {
	f := &fakeSystem{
		uid:   1000,
		gid:   100,
		ppid:  4242,
		euid:  1000,
		open:  make(map[int]bool),
		maxfd: uint64(n),
		fail:  make(map[string]error),
	}
	for fd := range n {
		f.open[fd] = true
	}
	return f
}

func (f *fakeSystem) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeSystem) err(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[op]
}

// log returns a copy of the recorded calls.
func (f *fakeSystem) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// openFDs returns the simulated open descriptors in ascending order.
func (f *fakeSystem) openFDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var fds []int
	for fd := range f.open {
		fds = append(fds, fd)
	}
	slices.Sort(fds)
	return fds
}

func (f *fakeSystem) Getuid() int  { return f.uid }
func (f *fakeSystem) Getgid() int  { return f.gid }
func (f *fakeSystem) Geteuid() int { return f.euid }
func (f *fakeSystem) Getppid() int { return f.ppid }

func (f *fakeSystem) Chdir(dir string) error {
	f.record("chdir %s", dir)
	return f.err("chdir")
}

func (f *fakeSystem) Chroot(dir string) error {
	f.record("chroot %s", dir)
	return f.err("chroot")
}

func (f *fakeSystem) Umask(mask int) error {
	f.record("umask %03o", mask)
	return f.err("umask")
}

func (f *fakeSystem) Setgroups(gids []int) error {
	f.record("setgroups %v", gids)
	return f.err("setgroups")
}

func (f *fakeSystem) Setgid(gid int) error {
	f.record("setgid %d", gid)
	return f.err("setgid")
}

func (f *fakeSystem) Setuid(uid int) error {
	f.record("setuid %d", uid)
	return f.err("setuid")
}

func (f *fakeSystem) DisableCoreDumps() error {
	f.record("core 0")
	return f.err("core")
}

func (f *fakeSystem) MaxFileDescriptors() (uint64, error) {
	return f.maxfd, f.err("maxfd")
}

func (f *fakeSystem) OpenDescriptors() ([]int, bool) {
	if !f.listable {
		return nil, false
	}
	return f.openFDs(), true
}

func (f *fakeSystem) ReservedDescriptors() ([]int, error) {
	return f.reserved, f.reservedErr
}

func (f *fakeSystem) Close(fd int) error {
	if err := f.err(fmt.Sprintf("close %d", fd)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open[fd] {
		return syscall.EBADF
	}
	delete(f.open, fd)
	f.calls = append(f.calls, fmt.Sprintf("close %d", fd))
	return nil
}

func (f *fakeSystem) Dup2(oldfd, newfd int) error {
	if err := f.err("dup2"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open[oldfd] {
		return syscall.EBADF
	}
	f.open[newfd] = true
	f.calls = append(f.calls, fmt.Sprintf("dup2 %d %d", oldfd, newfd))
	return nil
}

// OpenNull takes the lowest free descriptor, as open(2) does.
func (f *fakeSystem) OpenNull() (int, error) {
	if err := f.err("null"); err != nil {
		return -1, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fd := 0
	for f.open[fd] {
		fd++
	}
	f.open[fd] = true
	f.calls = append(f.calls, fmt.Sprintf("null %d", fd))
	return fd, nil
}

func (f *fakeSystem) IsSocket(fd int) bool { return fd == stdinFD && f.stdinSocket }

func (f *fakeSystem) IgnoreSignal(sigs ...os.Signal) {
	f.mu.Lock()
	f.ignored = append(f.ignored, sigs...)
	f.mu.Unlock()
	f.record("ignore %d", len(sigs))
}

func (f *fakeSystem) NotifySignal(ch chan<- os.Signal, sigs ...os.Signal) {
	f.mu.Lock()
	f.notifyCh = ch
	f.notified = append(f.notified, sigs...)
	f.mu.Unlock()
	f.record("notify %d", len(sigs))
}

func (f *fakeSystem) Spawn(req spawnRequest) error {
	f.mu.Lock()
	f.spawns = append(f.spawns, req)
	fn := f.spawnFn
	f.mu.Unlock()
	f.record("spawn %d", req.stage)
	if fn != nil {
		return fn(req)
	}
	return nil
}

func (f *fakeSystem) Exit(code int) {
	f.mu.Lock()
	f.exits = append(f.exits, code)
	f.mu.Unlock()
	f.record("exit %d", code)
}

// ///////////////////////////////////////////////
// fakeGuard
// ///////////////////////////////////////////////

// fakeGuard is a LockGuard that logs into the fake system's call log.
type fakeGuard struct {
	sys        *fakeSystem
	path       string
	acquireErr error
	releaseErr error
	acquired   int
	released   int
}

func (g *fakeGuard) Path() string { return g.path }

func (g *fakeGuard) Acquire() error {
	g.sys.record("acquire %s", g.path)
	if g.acquireErr != nil {
		return g.acquireErr
	}
	g.acquired++
	return nil
}

func (g *fakeGuard) Release() error {
	g.sys.record("release %s", g.path)
	g.released++
	return g.releaseErr
}

// newTestContext returns a context wired to a fake system with sixteen
// open descriptors, writing terminal messages to errOut.
func newTestContext(errOut *syncBuffer) (*Context, *fakeSystem) {
	sys := newFakeSystem(16)
	c := newContext(sys)
	c.Detach = DetachNever
	if errOut != nil {
		c.errOut = errOut
	}
	return c, sys
}

// syncBuffer collects output written from the signal goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
