// Command authctl administers the componentsdb authentication store: it runs
// schema migrations, inspects the configured identity providers, verifies
// federated tokens and removes expired first-party tokens.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rjw57/componentsdb/internal/pkg/logger"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are the flags shared by every subcommand
type globalOptions struct {
	configPath    string
	logLevel      string
	logFile       string
	logToStderr   bool
	alsoLogStderr bool
	logFormat     string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "authctl",
		Short:         "componentsdb authentication administration",
		Long:          "Administrative commands for the componentsdb federated identity and token store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to config file (optional)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFile, "log-file", "", "Log file path (if specified, logs to file instead of stderr)")
	flags.BoolVar(&opts.logToStderr, "logtostderr", false, "Log to stderr (default behavior unless --log-file specified)")
	flags.BoolVar(&opts.alsoLogStderr, "alsologtostderr", false, "Log to both file and stderr")
	flags.StringVar(&opts.logFormat, "log-format", "text", "Log format (text, json)")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newProvidersCommand(opts))
	cmd.AddCommand(newValidateTokenCommand(opts))
	cmd.AddCommand(newCleanupCommand(opts))
	cmd.AddCommand(newAuditCommand(opts))

	return cmd
}

// setupLogging configures the global logger
func setupLogging(opts *globalOptions) error {
	logToStderr := opts.logToStderr
	if opts.logFile == "" {
		logToStderr = true
	}

	globalLogger, err := logger.SetupLogger(logger.Config{
		Level:         logger.ParseLevel(opts.logLevel),
		LogFile:       opts.logFile,
		LogToStderr:   logToStderr,
		AlsoLogStderr: opts.alsoLogStderr,
		Format:        opts.logFormat,
	})
	if err != nil {
		return err
	}

	slog.SetDefault(globalLogger)
	return nil
}
