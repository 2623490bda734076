package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/adamancini/hotpush/internal/engine"
	"github.com/adamancini/hotpush/internal/output"
	"github.com/adamancini/hotpush/internal/types"
)

// syncReport is a sync result plus whether the host must restart now.
type syncReport struct {
	Status          types.SyncStatus  `json:"status" yaml:"status"`
	Package         types.Package     `json:"package,omitempty" yaml:"package,omitempty"`
	InstallMode     types.InstallMode `json:"installMode,omitempty" yaml:"installMode,omitempty"`
	RestartRequired bool              `json:"restartRequired" yaml:"restartRequired"`
}

func newSyncReport(r *engine.SyncResult, restart bool) syncReport {
	return syncReport{
		Status:          r.Status,
		Package:         r.Package,
		InstallMode:     r.InstallMode,
		RestartRequired: restart,
	}
}

func (r syncReport) RenderText(w io.Writer) error {
	switch r.Status {
	case types.SyncUpToDate:
		_, err := io.WriteString(w, "Already up to date. Nothing to do.\n")
		return err
	case types.SyncBinaryUpdateRequired:
		_, err := fmt.Fprintf(w, "A new binary is required (app version %s). Update the application itself.\n", r.Package.Meta().AppVersion)
		return err
	case types.SyncUpdateIgnored:
		_, err := fmt.Fprintf(w, "Skipped release %s: it failed to install before.\n", r.Package.Meta().PackageHash)
		return err
	}

	fields := output.Fields{
		{Label: "Status", Value: "update installed"},
		{Label: "Install mode", Value: r.InstallMode},
	}
	fields = append(fields, packageFields(r.Package)...)
	if err := fields.RenderText(w); err != nil {
		return err
	}
	if r.RestartRequired {
		_, err := io.WriteString(w, "\nRestart the application now to apply the update.\n")
		return err
	}
	return nil
}

func newSyncCmd() *cobra.Command {
	var (
		flags    syncFlags
		progress bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Check for, download and install an update",
		Long: `Sync checks the update server and, when a new release exists, downloads it
into the package store and installs it.

Optional releases use --install-mode (default onNextRestart); mandatory
releases use --mandatory-install-mode (default immediate). Releases that
failed before are skipped unless --ignore-failed-updates=false, in which
case sync fails.

Flags override the sync section of the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.ignoreFailedUpdatesSet = cmd.Flags().Changed("ignore-failed-updates")
			return runSync(cmd, flags, progress)
		},
	}

	cmd.Flags().StringVar(&flags.deploymentKey, "deployment-key", "", "Override the configured deployment key")
	cmd.Flags().StringVar(&flags.installMode, "install-mode", "", "When optional updates take effect: immediate, onNextRestart, onNextResume, onNextSuspend")
	cmd.Flags().StringVar(&flags.mandatoryInstallMode, "mandatory-install-mode", "", "When mandatory updates take effect")
	cmd.Flags().StringVar(&flags.minimumBackgroundDuration, "minimum-background-duration", "", "Time in background before an onNextResume update applies (e.g. 30s)")
	cmd.Flags().StringVar(&flags.checkFrequency, "check-frequency", "", "When the host runs sync: onAppStart, onAppResume, manual")
	cmd.Flags().BoolVar(&flags.ignoreFailedUpdates, "ignore-failed-updates", true, "Skip releases that failed to install before")
	cmd.Flags().BoolVar(&progress, "progress", false, "Print download progress to stderr")

	modes := func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var names []string
		for _, m := range types.AllInstallModes() {
			names = append(names, m.String())
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	}
	_ = cmd.RegisterFlagCompletionFunc("install-mode", modes)
	_ = cmd.RegisterFlagCompletionFunc("mandatory-install-mode", modes)
	_ = cmd.RegisterFlagCompletionFunc("check-frequency", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var names []string
		for _, f := range types.AllCheckFrequencies() {
			names = append(names, f.String())
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// runSync executes the sync workflow.
func runSync(cmd *cobra.Command, flags syncFlags, progress bool) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	opts, err := syncOptions(s.cfg.Sync, flags)
	if err != nil {
		return err
	}
	if progress && !quiet {
		stderr := cmd.ErrOrStderr()
		opts.Progress = func(received, total int64) {
			if total > 0 {
				_, _ = fmt.Fprintf(stderr, "\rDownloading... %d/%d bytes (%d%%)", received, total, received*100/total)
			} else {
				_, _ = fmt.Fprintf(stderr, "\rDownloading... %d bytes", received)
			}
		}
	}

	result, err := s.engine.Sync(cmd.Context(), opts)
	if progress && !quiet {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr())
	}
	if err != nil {
		return err
	}

	if quiet && s.out.Format() == output.FormatText {
		return nil
	}
	return s.out.Write(newSyncReport(result, s.host.restartRequested()))
}
