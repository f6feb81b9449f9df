package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tools.zach/dev/daemonize/internal/config"
	"tools.zach/dev/daemonize/internal/daemon"
	"tools.zach/dev/daemonize/internal/logger"
	"tools.zach/dev/daemonize/internal/paths"
	"tools.zach/dev/daemonize/internal/pidfile"
)

// ///////////////////////////////////////////////
// Run Command
// ///////////////////////////////////////////////

func newRunCommand(ctx *commandContext) *cobra.Command {
	var detachFlag string
	cmd := &cobra.Command{
		Use:   "run [-- command [args...]]",
		Short: "Daemonize and run the configured command",
		Long: "Daemonize and run the configured command.\n\n" +
			"A command given after -- replaces command.path and command.args from the config.\n" +
			"The daemon exits with the command's exit status and removes its pidfile.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Command.Path = args[0]
				cfg.Command.Args = args[1:]
			}
			if detachFlag != "" {
				cfg.Daemon.Detach = detachFlag
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			if cfg.Command.Path == "" {
				return fmt.Errorf("no command configured: set command.path in %s or pass one after --", ctx.configPath())
			}
			return runDaemon(cfg, ctx.dataDir())
		},
	}
	cmd.Flags().StringVar(&detachFlag, "detach", "", "Override daemon.detach (auto, always, never)")
	return cmd
}

// runDaemon opens the daemon context described by cfg and supervises the
// command until it exits. Everything before Open runs again in each detach
// stage, so it only prepares state and logs to the console.
func runDaemon(cfg *config.Config, dd paths.DataDir) error {
	level := logger.ParseLevel(cfg.Log.Level)
	slog.SetDefault(logger.NewConsoleLogger(os.Stderr, level))

	if err := os.MkdirAll(dd.Root, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	streams, err := openStreams(cfg.Streams, dd)
	if err != nil {
		return err
	}
	defer streams.Close()

	pidPath := dd.Resolve(cfg.Daemon.PIDFile)
	var opts []pidfile.Option
	if cfg.Daemon.LockMessage != "" {
		opts = append(opts, pidfile.WithMessage(cfg.Daemon.LockMessage))
	}
	pf, err := pidfile.New(pidPath, opts...)
	if err != nil {
		return err
	}

	sup := &supervisor{}
	dctx, err := buildContext(cfg, streams, pf, sup)
	if err != nil {
		return err
	}

	logger.Trace(slog.Default(), "opening daemon context", "pidfile", pidPath, "detach", dctx.Detach.String())
	return dctx.Run(func() error {
		closeLog := useDaemonLogger(cfg, dd, level)
		defer closeLog()

		slog.Info("daemon started", "version", resolveVersion(), "command", cfg.Command.Path, "pidfile", pidPath)
		code, err := sup.run(newCommand(cfg.Command))
		if err != nil {
			slog.Error("command failed", "error", err)
			return err
		}
		slog.Info("command exited", "status", code)
		if code != 0 {
			return &exitError{code: code}
		}
		return nil
	})
}

// useDaemonLogger switches the default logger to the rotating log file once
// the daemon is open. A chrooted daemon cannot reach the data directory, so
// it keeps logging to its redirected stderr instead.
func useDaemonLogger(cfg *config.Config, dd paths.DataDir, level slog.Level) func() {
	if cfg.Daemon.ChrootDirectory != "" {
		slog.SetDefault(logger.NewConsoleLogger(os.Stderr, level))
		return func() {}
	}
	log, closer, err := logger.NewLogger(dd.Log(), level, cfg.Log.MaxSizeMB)
	if err != nil {
		slog.Warn("failed to open log file, logging to stderr", "error", err)
		return func() {}
	}
	slog.SetDefault(log)
	return func() { closer.Close() }
}

// ///////////////////////////////////////////////
// Context Builder
// ///////////////////////////////////////////////

// buildContext maps the daemon section of cfg onto a daemon.Context. Each
// configured forward signal is handled by relaying it to the command.
func buildContext(cfg *config.Config, streams *streamFiles, guard daemon.LockGuard, sup *supervisor) (*daemon.Context, error) {
	c := daemon.New()
	c.ChrootDirectory = cfg.Daemon.ChrootDirectory
	c.WorkingDirectory = cfg.Daemon.WorkingDirectory
	c.PreventCore = cfg.Daemon.PreventCore
	c.ReadyTimeout = time.Duration(cfg.Daemon.ReadyTimeoutSeconds) * time.Second
	c.PidFile = guard

	mask, err := cfg.Daemon.UmaskValue()
	if err != nil {
		return nil, err
	}
	c.Umask = mask

	if c.Detach, err = daemon.ParseDetachMode(cfg.Daemon.Detach); err != nil {
		return nil, err
	}

	if c.UID, c.GID, err = lookupOwner(cfg.Daemon.User, cfg.Daemon.Group, c.UID, c.GID); err != nil {
		return nil, err
	}

	for _, fd := range cfg.Daemon.PreserveFDs {
		c.FilesPreserve = append(c.FilesPreserve, daemon.FD(fd))
	}

	if streams != nil {
		c.Stdin = filer(streams.stdin)
		c.Stdout = filer(streams.stdout)
		c.Stderr = filer(streams.stderr)
	}

	for _, name := range cfg.Command.Forward {
		sig, ok := daemon.LookupSignal(name)
		if !ok {
			return nil, fmt.Errorf("unknown signal %q in command.forward", name)
		}
		c.SignalMap[sig] = daemon.Handle(sup.forward)
	}
	return c, nil
}

// filer keeps a nil file from becoming a non-nil daemon.Filer.
func filer(f *os.File) daemon.Filer {
	if f == nil {
		return nil
	}
	return f
}

// ///////////////////////////////////////////////
// Stream Files
// ///////////////////////////////////////////////

// streamFiles holds the files the standard streams are redirected to. A nil
// entry means the null device.
type streamFiles struct {
	stdin  *os.File
	stdout *os.File
	stderr *os.File
}

// openStreams opens the configured stream files. stdout and stderr share one
// file when they name the same path.
func openStreams(sc config.StreamsConfig, dd paths.DataDir) (*streamFiles, error) {
	s := &streamFiles{}
	var err error
	if p := dd.Resolve(sc.Stdin); p != "" {
		if s.stdin, err = os.Open(p); err != nil {
			return nil, fmt.Errorf("open stdin: %w", err)
		}
	}
	if p := dd.Resolve(sc.Stdout); p != "" {
		if s.stdout, err = openAppend(p); err != nil {
			s.Close()
			return nil, fmt.Errorf("open stdout: %w", err)
		}
	}
	if p := dd.Resolve(sc.Stderr); p != "" {
		if p == dd.Resolve(sc.Stdout) {
			s.stderr = s.stdout
		} else if s.stderr, err = openAppend(p); err != nil {
			s.Close()
			return nil, fmt.Errorf("open stderr: %w", err)
		}
	}
	return s, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
}

// Close closes each distinct open stream file.
func (s *streamFiles) Close() {
	seen := map[*os.File]bool{}
	for _, f := range []*os.File{s.stdin, s.stdout, s.stderr} {
		if f != nil && !seen[f] {
			seen[f] = true
			f.Close()
		}
	}
}

// ///////////////////////////////////////////////
// Supervisor
// ///////////////////////////////////////////////

// newCommand builds the supervised command. Its standard streams are the
// daemon's, which Open has already redirected.
func newCommand(cc config.CommandConfig) *exec.Cmd {
	cmd := exec.Command(cc.Path, cc.Args...)
	cmd.Env = cc.Environ(os.Environ())
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// supervisor runs one command and relays signals to it. Signals arriving
// before the command starts are delivered right after it starts.
type supervisor struct {
	mu      sync.Mutex
	proc    *os.Process
	pending []os.Signal
}

// forward relays sig to the command.
func (s *supervisor) forward(sig os.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		s.pending = append(s.pending, sig)
		return
	}
	if err := s.proc.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		slog.Warn("failed to forward signal", "signal", sig.String(), "error", err)
		return
	}
	slog.Info("forwarded signal", "signal", sig.String(), "pid", s.proc.Pid)
}

// run starts cmd, waits for it, and returns its exit status. A command killed
// by a signal reports 128 plus the signal number, as a shell would.
func (s *supervisor) run(cmd *exec.Cmd) (int, error) {
	s.mu.Lock()
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	s.proc = cmd.Process
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, sig := range pending {
		s.forward(sig)
	}

	err := cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal()), nil
		}
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return 0, fmt.Errorf("wait %s: %w", cmd.Path, err)
	}
	return 0, nil
}
