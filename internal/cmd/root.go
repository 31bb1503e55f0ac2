// Package cmd implements the gitmirror command line interface.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gitmirror/gitmirror/internal/config"
	"github.com/gitmirror/gitmirror/internal/logging"
)

var RootCmd = &cobra.Command{
	Use:           "gitmirror",
	Short:         "Provisioned two-tier git mirroring with recurring backup jobs",
	SilenceUsage:  true,
	SilenceErrors: true,
}

type rootFlags struct {
	configFile string
	logLevel   string
	logFormat  string
}

var flags rootFlags

func init() {
	fs := pflag.NewFlagSet("root", pflag.ContinueOnError)
	fs.StringVarP(&flags.configFile, "config", "c", "/etc/gitmirror/config.yaml", "path to the configuration file")
	fs.StringVar(&flags.logLevel, "log-level", logging.LevelInfo, "log level (debug, info, warn, error)")
	fs.StringVar(&flags.logFormat, "log-format", "console", "log format (console, json)")
	RootCmd.PersistentFlags().AddFlagSet(fs)
}

func setup() (*config.Root, *logging.Logger, error) {
	logger, err := logging.NewLogger(logging.Config{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.ParseFile(flags.configFile)
	if err != nil {
		return nil, nil, err
	}

	return cfg, logger, nil
}
