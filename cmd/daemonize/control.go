package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	daemonize "tools.zach/dev/daemonize"
	"tools.zach/dev/daemonize/internal/atomicfile"
	"tools.zach/dev/daemonize/internal/daemon"
	"tools.zach/dev/daemonize/internal/logger"
	"tools.zach/dev/daemonize/internal/pidfile"
)

// statusNotRunning is the LSB init-script status for a stopped program.
const statusNotRunning = 3

// ///////////////////////////////////////////////
// Status
// ///////////////////////////////////////////////

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is running",
		Long:  "Show whether the daemon is running. Exits 3 when it is not.",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := ctx.pidPath()
			if err != nil {
				return err
			}
			st, err := pidfile.Probe(path)
			if err != nil {
				return err
			}

			pid := "-"
			if st.PID > 0 {
				pid = strconv.Itoa(st.PID)
			}
			stdout := cmd.OutOrStdout()
			fmt.Fprintln(stdout, renderTable(
				[]string{"Pidfile", "State", "PID"},
				[][]string{{st.Path, st.State(), pid}},
				[]columnAlignment{alignLeft, alignLeft, alignRight},
				isTerminal(stdout),
			))
			if !st.Running {
				return &exitError{code: statusNotRunning}
			}
			return nil
		},
	}
}

// ///////////////////////////////////////////////
// Stop
// ///////////////////////////////////////////////

func newStopCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration
	var signalName string
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Signal the daemon and wait for it to release its pidfile",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			sig, ok := daemon.LookupSignal(signalName)
			if !ok {
				return fmt.Errorf("unknown signal %q", signalName)
			}
			path, err := ctx.pidPath()
			if err != nil {
				return err
			}
			st, err := pidfile.Probe(path)
			if err != nil {
				return err
			}
			if !st.Running {
				fmt.Fprintln(stdout, "Daemon is not running")
				if st.Exists {
					fmt.Fprintf(stdout, "Stale pidfile left at %s\n", path)
				}
				return nil
			}
			if st.PID <= 0 {
				return fmt.Errorf("pidfile %s is locked but holds no pid", path)
			}

			proc, err := os.FindProcess(st.PID)
			if err != nil {
				return fmt.Errorf("find daemon process %d: %w", st.PID, err)
			}
			fmt.Fprintf(stdout, "Stopping daemon (pid %d)...\n", st.PID)
			if err := proc.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
				return fmt.Errorf("signal daemon process %d: %w", st.PID, err)
			}

			wctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := pidfile.WaitReleased(wctx, path); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return fmt.Errorf("daemon (pid %d) did not stop within %s", st.PID, timeout)
				}
				return err
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for the daemon to exit")
	cmd.Flags().StringVar(&signalName, "signal", "SIGTERM", "Signal sent to the daemon")
	return cmd
}

// ///////////////////////////////////////////////
// Init
// ///////////////////////////////////////////////

func newInitCommand(ctx *commandContext) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ctx.configPath()
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			write := atomicfile.Create
			if force {
				write = atomicfile.Write
			}
			if err := write(path, daemonize.DefaultConfigTOML, 0o644); err != nil {
				if errors.Is(err, fs.ErrExist) {
					return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
				}
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")
	return cmd
}

// ///////////////////////////////////////////////
// Logs
// ///////////////////////////////////////////////

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the end of the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ctx.dataDir().Log()
			tail, err := logger.ReadTail(path, lines)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("no log file at %s", path)
				}
				return err
			}
			if tail != "" {
				fmt.Fprintln(cmd.OutOrStdout(), tail)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	return cmd
}

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "daemonize", resolveVersion())
			return nil
		},
	}
}
