package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/go-metaphor/internal/cliconfig"
)

// CLI holds the command tree and its shared flags.
type CLI struct {
	version     string
	verbose     bool
	silent      bool
	configFile  string
	initialized bool
	rootCmd     *cobra.Command
}

// New creates the CLI.
func New(version string) *CLI {
	c := &CLI{version: version}
	c.setupCommands()
	return c
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:           "metaphor",
		Short:         "Evaluate verb metaphor detection models",
		Version:       c.version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.initLogging()
		},
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	pf := c.rootCmd.PersistentFlags()
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVarP(&c.silent, "silent", "s", false, "Suppress all logging")
	pf.StringVar(&c.configFile, "config", "", "YAML config file")
	cliconfig.RegisterFlags(pf)

	c.rootCmd.AddCommand(c.newEvaluateCommand())
	c.rootCmd.AddCommand(c.newScoreCommand())
	c.rootCmd.AddCommand(c.newWeightsCommand())
	c.rootCmd.AddCommand(c.newInspectCommand())
}

// Run executes the CLI.
func (c *CLI) Run() error {
	return c.rootCmd.Execute()
}

// settings resolves flags, environment and config file for cmd.
func (c *CLI) settings(cmd *cobra.Command) (cliconfig.Settings, error) {
	return cliconfig.Load(cmd.Flags(), c.configFile)
}

func (c *CLI) initLogging() {
	if c.initialized {
		return
	}
	c.initialized = true

	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	if c.silent {
		level = slog.Level(100)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}
