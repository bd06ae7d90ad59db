// Package cli defines the command-line interface for stagectl.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/snowstage/stagectl/internal/logging"
)

const (
	// defaultConfigPath is the default path to the project configuration file.
	defaultConfigPath = "stagectl.yaml"
)

// Options stores global CLI options shared between commands.
type Options struct {
	ConfigPath string
	Env        string
	LogLevel   logging.Level
}

// Execute builds the root command, runs it with the provided args and logger, and returns any error.
func Execute(args []string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewLogger(os.Stderr, logging.LevelInfo)
	}

	rootOpts := &Options{
		ConfigPath: defaultConfigPath,
		LogLevel:   logging.LevelInfo,
	}

	var base baseEnv
	if err := parseEnv(&base); err != nil {
		return err
	}
	if base.ConfigPath != "" {
		rootOpts.ConfigPath = base.ConfigPath
	}
	if base.Env != "" {
		rootOpts.Env = base.Env
	}

	rootCmd := newRootCommand(rootOpts, base, logger)
	rootCmd.SetArgs(args)

	return rootCmd.Execute()
}

// newRootCommand constructs the root cobra.Command with global flags and subcommands.
func newRootCommand(opts *Options, base baseEnv, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stagectl",
		Short: "stagectl is a declarative deployment tool for warehouse-hosted Streamlit apps",
		Long:  "stagectl uploads local Streamlit sources to a named Snowflake stage and registers the app object bound to a query warehouse, driven by a stagectl.yaml definition.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := logging.ParseLevel(cmd.Flag("log-level").Value.String())
			opts.LogLevel = level
			logger = logging.NewLogger(os.Stderr, level)
			cmd.SetContext(context.WithValue(cmd.Context(), loggerKey{}, logger))
			logger.Debug("logger initialized", "level", level)
			return nil
		},
	}

	defaultLogLevel := "info"
	if base.LogLevel != "" {
		defaultLogLevel = base.LogLevel
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", opts.ConfigPath, "Path to stagectl.yaml configuration file")
	cmd.PersistentFlags().StringVarP(&opts.Env, "env", "e", opts.Env, "Environment name (e.g. dev, staging, prod)")
	cmd.PersistentFlags().String("log-level", defaultLogLevel, "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newDeployCommand(opts),
		newPlanCommand(opts),
		newRenderCommand(opts),
		newStatusCommand(opts),
		newDestroyCommand(opts),
		newDoctorCommand(opts),
		newInitCommand(opts),
		newWatchCommand(opts),
		newHistoryCommand(opts),
		newEnvsCommand(opts),
		newCICommand(opts),
		newVersionCommand(),
	)

	return cmd
}

// loggerKey is a private context key used to store a logger in command contexts.
type loggerKey struct{}

// LoggerFromContext extracts a logger from the context or falls back to a default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return logging.NewLogger(os.Stderr, logging.LevelInfo)
	}
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return logging.NewLogger(os.Stderr, logging.LevelInfo)
}
