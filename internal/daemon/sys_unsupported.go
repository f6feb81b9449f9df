//go:build unix && !linux && !darwin && !freebsd && !dragonfly

package daemon

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

func (hostSystem) OpenDescriptors() ([]int, bool) { return nil, false }

// ReservedDescriptors fails: the poller here keeps a wakeup pipe or an event
// port that cannot be told apart from the program's own descriptors, and
// sweeping it crashes the runtime.
func (hostSystem) ReservedDescriptors() ([]int, error) {
	return nil, fmt.Errorf("runtime poller descriptors on %s: %w", runtime.GOOS, errors.ErrUnsupported)
}

func (hostSystem) Dup2(oldfd, newfd int) error { return unix.Dup2(oldfd, newfd) }
