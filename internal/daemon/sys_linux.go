//go:build linux

package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// fdDir lists the calling process's open descriptors.
const fdDir = "/proc/self/fd"

// runtimeInodes are the link targets of descriptors the Go runtime opens for
// its network poller. Closing them breaks deadlines and pipe I/O for the rest
// of the process lifetime.
var runtimeInodes = map[string]bool{
	"anon_inode:[eventpoll]": true,
	"anon_inode:[eventfd]":   true,
}

func (hostSystem) OpenDescriptors() ([]int, bool) {
	entries, err := os.ReadDir(fdDir)
	if err != nil {
		return nil, false
	}
	fds := make([]int, 0, len(entries))
	for _, e := range entries {
		fd, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		fds = append(fds, fd)
	}
	return fds, true
}

// ReservedDescriptors finds the poller's descriptors by their link targets
// in /proc. Without /proc the runtime's descriptors cannot be told apart.
func (h hostSystem) ReservedDescriptors() ([]int, error) {
	fds, ok := h.OpenDescriptors()
	if !ok {
		return nil, fmt.Errorf("list %s: %w", fdDir, errors.ErrUnsupported)
	}
	var reserved []int
	for _, fd := range fds {
		target, err := os.Readlink(fdDir + "/" + strconv.Itoa(fd))
		if err != nil {
			continue
		}
		if runtimeInodes[target] {
			reserved = append(reserved, fd)
		}
	}
	return reserved, nil
}

// Dup2 uses dup3, the only duplication call every Linux architecture has.
// oldfd must differ from newfd.
func (hostSystem) Dup2(oldfd, newfd int) error {
	return unix.Dup3(oldfd, newfd, 0)
}
