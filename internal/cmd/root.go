package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/adamancini/hotpush/internal/errs"
)

var (
	// Global flags
	outputFormat  string
	configPath    string
	binaryVersion string
	verbose       bool
	quiet         bool
	logFormat     string
	logLevel      string
	logFile       string
)

// buildInfo is set by Execute.
var buildInfo = struct {
	version, commit, date string
}{"dev", "none", "unknown"}

// Execute runs the hotpush CLI until it finishes or the process is interrupted.
func Execute(version, commit, date string) error {
	buildInfo.version, buildInfo.commit, buildInfo.date = version, commit, date

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd().ExecuteContext(ctx)
}

// ExitCode maps an error returned by Execute to a process exit status.
func ExitCode(err error) int {
	switch errs.KindOf(err) {
	case errs.Canceled:
		return 130
	case errs.InvalidParameter:
		return 2
	default:
		return 1
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hotpush",
		Short: "Over-the-air update engine for application bundles",
		Long: `hotpush checks an update server for new releases of an application bundle,
downloads and installs them into a local package store, and rolls back
releases that fail to start.

Configure the app identity and deployment key in hotpush.yaml (see 'hotpush init').`,
		Version:       buildInfo.version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json, yaml")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to hotpush config file")
	rootCmd.PersistentFlags().StringVar(&binaryVersion, "binary-version", "", "Version of the installed binary (default: appVersion from config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (errors only)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Diagnostic log format: text, json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Diagnostic log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write diagnostic logs to a rotating file")

	// Add subcommands
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newRollbackCmd())
	rootCmd.AddCommand(newStartupCmd())
	rootCmd.AddCommand(newReadyCmd())
	rootCmd.AddCommand(newMarkLoadingCmd())
	rootCmd.AddCommand(newClearFailedCmd())
	rootCmd.AddCommand(newPruneCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	// Register completion functions for enum flags
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	return rootCmd
}
