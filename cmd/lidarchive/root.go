package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lidar-tools/lidarchive/internal/config"
	"github.com/lidar-tools/lidarchive/internal/logging"
)

var (
	// Set during build time using -ldflags
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigFile = "lidarchive.yaml"

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	configFile string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "lidarchive",
		Short: "Assembles raw lidar files into measurements and tracks their processing.",
		Long: `lidarchive scans folders of raw lidar files, groups them into continuous
measurements paired with dark runs, and drives each measurement through
conversion, upload to the remote processing chain and product download.

Progress is kept in a datalog so an interrupted run can be resumed.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate(`{{.Use}} version {{.Version}}` + "\n")

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", defaultConfigFile, "Configuration file path")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose (debug) logging output")

	cmd.AddCommand(
		newRunCmd(opts),
		newScanCmd(opts),
		newServeCmd(opts),
		newInitConfigCmd(opts),
	)
	return cmd
}

// Execute runs the command line.
func Execute() error {
	return newRootCmd().Execute()
}

// load reads the configuration file and creates the process logger, which
// writes to the command's stderr.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, *logging.Logger, error) {
	cfg, err := config.LoadConfig(o.configFile)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Logging.Level
	if o.verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: cmd.ErrOrStderr(),
		File:   cfg.Logging.File,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newInitConfigCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path]",
		Short: "Writes a commented starting configuration",
		Long: `Writes a commented starting configuration to path, or to the --config
location when no path is given. Existing files are never overwritten.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := root.configFile
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return nil
		},
	}
}
