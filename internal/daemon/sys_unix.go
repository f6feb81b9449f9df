//go:build unix

// POSIX primitives backing the daemon context.
//
// This file is compiled on every unix platform. Enumeration of open
// descriptors and stream duplication differ between Linux and the BSDs and
// live in sys_linux.go, sys_kqueue.go and sys_unsupported.go.

package daemon

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// readyFD is the descriptor number the readiness pipe occupies in a stage
// process: the first entry of exec.Cmd.ExtraFiles.
const readyFD = 3

func (hostSystem) Chroot(dir string) error { return unix.Chroot(dir) }

func (hostSystem) Umask(mask int) error {
	unix.Umask(mask)
	return nil
}

// Setgroups uses the syscall package, which applies the change to every
// thread on Linux; the x/sys variant changes only the calling thread.
func (hostSystem) Setgroups(gids []int) error { return syscall.Setgroups(gids) }

func (hostSystem) Setgid(gid int) error { return unix.Setgid(gid) }
func (hostSystem) Setuid(uid int) error { return unix.Setuid(uid) }

// DisableCoreDumps sets both the soft and hard RLIMIT_CORE to zero.
func (hostSystem) DisableCoreDumps() error {
	return unix.Setrlimit(unix.RLIMIT_CORE, &unix.Rlimit{})
}

func (hostSystem) MaxFileDescriptors() (uint64, error) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return 0, err
	}
	return uint64(rl.Max), nil
}

func (hostSystem) Close(fd int) error { return unix.Close(fd) }

func (hostSystem) OpenNull() (int, error) {
	return unix.Open(os.DevNull, unix.O_RDWR, 0)
}

// IsSocket reports whether fd refers to a socket. Only ENOTSOCK and EBADF
// rule it out; any other getsockopt failure still means a socket answered.
func (hostSystem) IsSocket(fd int) bool {
	_, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TYPE)
	return !errors.Is(err, unix.ENOTSOCK) && !errors.Is(err, unix.EBADF)
}

// Spawn re-executes the current binary with the same arguments as the next
// detach stage. Standard streams are inherited so failures before the
// daemon redirects them still reach the invoker's terminal.
func (hostSystem) Spawn(req spawnRequest) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(exe)
	cmd.Args = os.Args
	cmd.Env = append(withoutStageEnv(os.Environ()),
		stageEnv+"="+strconv.Itoa(int(req.stage)),
		readyFDEnv+"="+strconv.Itoa(readyFD),
	)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{req.ready}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: req.setsid}
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// withoutStageEnv drops any stage markers inherited from this process.
func withoutStageEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if strings.HasPrefix(kv, stageEnv+"=") || strings.HasPrefix(kv, readyFDEnv+"=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// lookupSignal resolves a signal by its conventional name, e.g. "SIGTSTP".
func lookupSignal(name string) (os.Signal, bool) {
	sig := unix.SignalNum(name)
	if sig == 0 {
		return nil, false
	}
	return sig, true
}
