package main

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"tools.zach/dev/daemonize/internal/config"
	"tools.zach/dev/daemonize/internal/paths"
)

func newRootCommand() *cobra.Command {
	var dataDirFlag string
	var configFlag string

	ctx := newCommandContext(&dataDirFlag, &configFlag)

	rootCmd := &cobra.Command{
		Use:           paths.BinaryName,
		Short:         "Run a program as a Unix daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", defaultDataDir(), "Data directory for config, pidfile, and logs")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default <data-dir>/"+paths.ConfigFile+")")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newStopCommand(ctx))
	rootCmd.AddCommand(newInitCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// commandContext resolves the data directory and loads the config once per
// invocation.
type commandContext struct {
	dataDirFlag *string
	configFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(dataDirFlag, configFlag *string) *commandContext {
	return &commandContext{
		dataDirFlag: dataDirFlag,
		configFlag:  configFlag,
	}
}

// dataDir returns the data directory as an absolute path, since the daemon
// changes its working directory before it writes anything there.
func (c *commandContext) dataDir() paths.DataDir {
	root := ""
	if c.dataDirFlag != nil {
		root = strings.TrimSpace(*c.dataDirFlag)
	}
	if root == "" {
		root = defaultDataDir()
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return paths.DataDir{Root: root}
}

func (c *commandContext) configPath() string {
	if c.configFlag != nil {
		if p := strings.TrimSpace(*c.configFlag); p != "" {
			return p
		}
	}
	return c.dataDir().Config()
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.LoadFile(c.configPath())
	})
	return c.config, c.configErr
}

// pidPath returns the configured pidfile location.
func (c *commandContext) pidPath() (string, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return c.dataDir().Resolve(cfg.Daemon.PIDFile), nil
}
