package daemon

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ///////////////////////////////////////////////
// Detach Stages
// ///////////////////////////////////////////////

// Environment variables marking a re-executed detach stage.
const (
	stageEnv   = "DAEMONIZE_STAGE"
	readyFDEnv = "DAEMONIZE_READY_FD"
)

// stage identifies which process of the detach sequence is running.
type stage int

const (
	// stageInvoker is the process the user started.
	stageInvoker stage = iota
	// stageLeader is the session leader started with setsid. It only starts
	// the daemon and exits.
	stageLeader
	// stageDaemon is the final daemon process. It is not a session leader
	// and so can never reacquire a controlling terminal.
	stageDaemon
)

// Readiness report lines written by the daemon stage.
const (
	readyOK    = "ok"
	readyError = "error"
)

// errDetached is returned from Open in a stage that has handed off to the
// next one. The host system exits before it is ever seen.
var errDetached = errors.New("daemon: process handed off to detached stage")

// detectStage reads and clears the stage markers of this process. The
// markers are removed so commands the daemon starts do not inherit them.
func detectStage() (stage, *os.File) {
	s, serr := strconv.Atoi(os.Getenv(stageEnv))
	fd, ferr := strconv.Atoi(os.Getenv(readyFDEnv))
	_ = os.Unsetenv(stageEnv)
	_ = os.Unsetenv(readyFDEnv)

	if serr != nil || ferr != nil || fd < 0 {
		return stageInvoker, nil
	}
	switch stage(s) {
	case stageLeader, stageDaemon:
		return stage(s), os.NewFile(uintptr(fd), "daemonize-ready")
	default:
		return stageInvoker, nil
	}
}

// detachInvoker starts the session leader and waits for the daemon to report
// readiness, then exits: 0 once the daemon holds its pidfile, 1 if it failed,
// died first, or did not answer within ReadyTimeout.
func (c *Context) detachInvoker() error {
	r, w, err := os.Pipe()
	if err != nil {
		return &DetachError{Phase: "first fork", Err: err}
	}
	err = c.sys.Spawn(spawnRequest{stage: stageLeader, ready: w, setsid: true})
	w.Close()
	if err != nil {
		r.Close()
		return &DetachError{Phase: "first fork", Err: err}
	}

	slog.Debug("waiting for daemon readiness", "timeout", c.ReadyTimeout)
	rerr := awaitReady(r, c.ReadyTimeout)
	r.Close()
	if rerr != nil {
		fmt.Fprintln(c.errOut, rerr)
		c.sys.Exit(1)
		return rerr
	}
	c.sys.Exit(0)
	return errDetached
}

// detachLeader starts the daemon stage, handing on the readiness pipe, and
// exits.
func (c *Context) detachLeader() error {
	if err := c.sys.Spawn(spawnRequest{stage: stageDaemon, ready: c.ready}); err != nil {
		derr := &DetachError{Phase: "second fork", Err: err}
		_ = reportReady(c.ready, derr)
		c.closeReady()
		c.sys.Exit(1)
		return derr
	}
	c.closeReady()
	c.sys.Exit(0)
	return errDetached
}

// closeReady closes the readiness pipe once this process is done with it.
func (c *Context) closeReady() {
	if c.ready == nil {
		return
	}
	_ = c.ready.Close()
	c.ready = nil
}

// ///////////////////////////////////////////////
// Readiness Protocol
// ///////////////////////////////////////////////

// reportReady writes a single readiness line: "ok", or "error <message>".
func reportReady(w io.Writer, err error) error {
	line := readyOK + "\n"
	if err != nil {
		line = readyError + " " + strings.ReplaceAll(err.Error(), "\n", " ") + "\n"
	}
	_, werr := io.WriteString(w, line)
	return werr
}

// awaitReady reads the readiness line from r. A zero timeout waits until the
// daemon reports or every copy of the write end is closed.
func awaitReady(r *os.File, timeout time.Duration) error {
	if timeout > 0 {
		if err := r.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			slog.Debug("readiness pipe has no deadline support", "error", err)
		}
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	switch {
	case err == nil:
	case errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("daemon did not report readiness within %s", timeout)
	case errors.Is(err, io.EOF):
		return errors.New("daemon exited before reporting readiness")
	default:
		return fmt.Errorf("read daemon readiness: %w", err)
	}

	line = strings.TrimSuffix(line, "\n")
	if line == readyOK {
		return nil
	}
	if msg, ok := strings.CutPrefix(line, readyError+" "); ok {
		return errors.New(msg)
	}
	return fmt.Errorf("unexpected readiness report %q", line)
}
