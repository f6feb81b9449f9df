//go:build darwin || freebsd || dragonfly

package daemon

import (
	"os"

	"golang.org/x/sys/unix"
)

// OpenDescriptors reports that enumeration is unavailable, so the sweep
// covers the whole descriptor range.
func (hostSystem) OpenDescriptors() ([]int, bool) { return nil, false }

// ReservedDescriptors returns every kqueue descriptor below the sweep bound.
// The runtime's poller is a kqueue with a user-event wakeup on these
// platforms, so it is the only descriptor the runtime needs. A kqueue is
// recognized by a kevent call that neither changes nor waits for anything;
// kevent fails with EBADF on any other kind of descriptor.
func (h hostSystem) ReservedDescriptors() ([]int, error) {
	// A pipe registers with the poller, creating its kqueue if nothing has
	// yet, so the scan below cannot miss one created later in Open.
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	r.Close()
	w.Close()

	maxfd, err := maxFileDescriptors(h)
	if err != nil {
		return nil, err
	}
	var reserved []int
	var zero unix.Timespec
	for fd := range maxfd {
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
			continue
		}
		if _, err := unix.Kevent(fd, nil, nil, &zero); err == nil {
			reserved = append(reserved, fd)
		}
	}
	return reserved, nil
}

func (hostSystem) Dup2(oldfd, newfd int) error { return unix.Dup2(oldfd, newfd) }
