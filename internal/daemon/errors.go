package daemon

import (
	"errors"
	"fmt"
	"syscall"
)

// ///////////////////////////////////////////////
// Error Types
// ///////////////////////////////////////////////

// EnvironmentError reports a failed change to the process environment during
// [Context.Open]: changing root or working directory, umask, process owner,
// core dump limit, closing descriptors or redirecting a standard stream.
type EnvironmentError struct {
	// Op names the failed step, e.g. "change root directory".
	Op string
	// Err is the underlying OS error.
	Err error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("unable to %s (%v)", e.Op, e.Err)
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// DetachError reports a failure to start one of the detach stages.
type DetachError struct {
	// Phase is "first fork" or "second fork".
	Phase string
	// Err is the underlying error from starting the stage process.
	Err error
}

func (e *DetachError) Error() string {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return fmt.Sprintf("failed %s: [%d] %s", e.Phase, int(errno), errno.Error())
	}
	return fmt.Sprintf("failed %s: %v", e.Phase, e.Err)
}

func (e *DetachError) Unwrap() error { return e.Err }
