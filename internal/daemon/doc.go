// Package daemon turns a running foreground process into a detached POSIX
// daemon.
//
// A [Context] carries the configuration (root and working directory, umask,
// process owner, preserved descriptors, replacement streams, signal actions
// and an optional pidfile) and a two-state lifecycle. [Context.Open] applies
// the irreversible process changes in a fixed order; [Context.Close] releases
// the pidfile. Both are idempotent.
//
//	ctx := daemon.New()
//	ctx.PidFile = pf
//	ctx.Stdout = logFile
//	if err := ctx.Open(); err != nil {
//		return err
//	}
//	defer ctx.Close()
//
// # Detaching
//
// A Go process cannot fork, so detaching re-executes the program with the
// same arguments and environment in two further stages:
//
//   - the invoker starts a session leader with setsid and waits on a pipe;
//   - the session leader starts the daemon and exits at once;
//   - the daemon runs the remaining steps of Open and writes "ok" (or the
//     error) to the pipe after it holds its pidfile.
//
// The invoker exits 0 on "ok" and 1 otherwise, including when the daemon
// dies before reporting. Code that runs before Open therefore runs once in
// every stage and must be safe to repeat.
//
// # Descriptors
//
// Open closes every descriptor that is not preserved, including files owned
// by *os.File values elsewhere in the program. Such files must not be used,
// or left for the garbage collector to close, after Open: their descriptor
// numbers are reused by the streams and the pidfile.
//
// The descriptors of the Go runtime's network poller are kept open: on Linux
// they are found through /proc/self/fd, on darwin, FreeBSD and DragonFly by
// probing for kqueues. On other unix systems they cannot be identified and
// Open fails with an error wrapping [errors.ErrUnsupported].
package daemon
