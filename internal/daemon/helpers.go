package daemon

import (
	"errors"
	"math"
	"slices"
	"strconv"
	"syscall"
)

// defaultMaxFD bounds the descriptor sweep when RLIMIT_NOFILE is unlimited.
const defaultMaxFD = 2048

// Standard stream descriptor numbers.
const (
	stdinFD  = 0
	stdoutFD = 1
	stderrFD = 2
)

// ///////////////////////////////////////////////
// Process Environment
// ///////////////////////////////////////////////

// changeWorkingDirectory sets the current working directory.
func changeWorkingDirectory(sys system, dir string) error {
	if err := sys.Chdir(dir); err != nil {
		return &EnvironmentError{Op: "change working directory", Err: err}
	}
	return nil
}

// changeRootDirectory moves into dir and makes it the filesystem root. The
// two calls form one step: a chdir without the chroot is reported as a
// failure of the whole operation.
func changeRootDirectory(sys system, dir string) error {
	if err := sys.Chdir(dir); err != nil {
		return &EnvironmentError{Op: "change root directory", Err: err}
	}
	if err := sys.Chroot(dir); err != nil {
		return &EnvironmentError{Op: "change root directory", Err: err}
	}
	return nil
}

// changeFileCreationMask sets the process umask.
func changeFileCreationMask(sys system, mask int) error {
	if err := sys.Umask(mask); err != nil {
		return &EnvironmentError{Op: "change file creation mask", Err: err}
	}
	return nil
}

// changeProcessOwner sets the group id and then the user id. Group first:
// once the user id is dropped the process may no longer change its group.
// A root process also replaces its supplementary groups with gid alone, so
// groups inherited from root do not outlive the drop.
func changeProcessOwner(sys system, uid, gid int) error {
	if sys.Geteuid() == 0 {
		if err := sys.Setgroups([]int{gid}); err != nil {
			return &EnvironmentError{Op: "change process owner", Err: err}
		}
	}
	if err := sys.Setgid(gid); err != nil {
		return &EnvironmentError{Op: "change process owner", Err: err}
	}
	if err := sys.Setuid(uid); err != nil {
		return &EnvironmentError{Op: "change process owner", Err: err}
	}
	return nil
}

// preventCoreDump sets the core dump size limit to zero.
func preventCoreDump(sys system) error {
	if err := sys.DisableCoreDumps(); err != nil {
		return &EnvironmentError{Op: "prevent core dump", Err: err}
	}
	return nil
}

// detachRequired reports whether the process should detach. A process
// started by init, or by a superserver that hands it a socket on stdin, is
// already detached.
func detachRequired(sys system) bool {
	if sys.Getppid() == 1 {
		return false
	}
	return !sys.IsSocket(stdinFD)
}

// ///////////////////////////////////////////////
// Descriptors
// ///////////////////////////////////////////////

// maxFileDescriptors returns the upper bound of the descriptor sweep.
func maxFileDescriptors(sys system) (int, error) {
	limit, err := sys.MaxFileDescriptors()
	if err != nil {
		return 0, err
	}
	if limit > math.MaxInt32 {
		return defaultMaxFD, nil
	}
	return int(limit), nil
}

// closeFileDescriptorIfOpen closes fd. A descriptor that is already closed
// is not an error.
func closeFileDescriptorIfOpen(sys system, fd int) error {
	err := sys.Close(fd)
	if err == nil || errors.Is(err, syscall.EBADF) {
		return nil
	}
	return &EnvironmentError{Op: "close file descriptor " + strconv.Itoa(fd), Err: err}
}

// closeAllOpenFiles closes every descriptor from the highest possible value
// down to 0, except those in exclude. Where the platform lists open
// descriptors only those are visited.
func closeAllOpenFiles(sys system, exclude map[int]struct{}) error {
	fds, ok := sys.OpenDescriptors()
	if !ok {
		maxfd, err := maxFileDescriptors(sys)
		if err != nil {
			return &EnvironmentError{Op: "determine descriptor limit", Err: err}
		}
		fds = make([]int, maxfd)
		for i := range fds {
			fds[i] = i
		}
	}
	slices.Sort(fds)
	slices.Reverse(fds)

	for _, fd := range fds {
		if _, keep := exclude[fd]; keep {
			continue
		}
		if err := closeFileDescriptorIfOpen(sys, fd); err != nil {
			return err
		}
	}
	return nil
}

// redirectStream points the standard stream descriptor target at
// replacement, or at the null device when replacement is nil.
func redirectStream(sys system, target int, replacement Filer) error {
	if fd, ok := descriptor(replacement); ok {
		if fd == target {
			return nil
		}
		if err := sys.Dup2(fd, target); err != nil {
			return &EnvironmentError{Op: "redirect stream " + strconv.Itoa(target), Err: err}
		}
		return nil
	}

	null, err := sys.OpenNull()
	if err != nil {
		return &EnvironmentError{Op: "open null device", Err: err}
	}
	if null == target {
		return nil
	}
	if err := sys.Dup2(null, target); err != nil {
		_ = sys.Close(null)
		return &EnvironmentError{Op: "redirect stream " + strconv.Itoa(target), Err: err}
	}
	return closeFileDescriptorIfOpen(sys, null)
}
