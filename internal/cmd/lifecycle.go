package cmd

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/adamancini/hotpush/internal/engine"
	"github.com/adamancini/hotpush/internal/output"
)

// startupReport tells the host what to load after a restart.
type startupReport struct {
	engine.State   `yaml:",inline"`
	RunningHash    string `json:"runningHash,omitempty" yaml:"runningHash,omitempty"`
	EntryPointPath string `json:"entryPointPath,omitempty" yaml:"entryPointPath,omitempty"`
}

func (r startupReport) RenderText(w io.Writer) error {
	load := r.EntryPointPath
	if load == "" {
		load = "(binary)"
	}
	fields := output.Fields{
		{Label: "Load", Value: load},
		{Label: "Did update", Value: r.DidUpdate},
		{Label: "Rolled back", Value: r.NeedToReportRollback},
	}
	if r.IsRunningBinaryVersion {
		fields = append(fields, output.Field{Label: "Binary is newer", Value: true})
	}
	return fields.RenderText(w)
}

func newStartupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "startup",
		Short: "Reconcile a pending update after the application restarts",
		Long: `Startup is run once when the application process starts. A pending update
that was marked loading but never confirmed is rolled back; otherwise the
pending update is confirmed as having run.

It prints the entry point the application should load, or "(binary)" when
the bundle shipped with the binary should run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			ctx := cmd.Context()
			if err := s.engine.InitializeAfterRestart(ctx); err != nil {
				return err
			}

			report := startupReport{State: s.engine.State()}
			if !report.IsRunningBinaryVersion {
				current, err := s.engine.Store().CurrentPackage(ctx)
				if err != nil {
					return err
				}
				if current != nil {
					report.RunningHash = current.PackageHash
					report.EntryPointPath = s.engine.Store().EntryPointPath(current)
				}
			}
			return s.out.Write(report)
		},
	}
}

func newReadyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Confirm that the running update started successfully",
		Long: `Ready clears the pending update record. Call it once the application has
loaded the update, so a later restart does not roll it back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimple(cmd, "Update confirmed.", func(s *session) error {
				return s.engine.NotifyApplicationReady(cmd.Context())
			})
		},
	}
}

func newMarkLoadingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mark-loading",
		Short: "Flag the pending update as loading before an in-process reload",
		Long: `Mark-loading records that the application is about to load the pending
update without a full restart. If the next startup finds the flag still set
because 'hotpush ready' was never run, the update is rolled back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimple(cmd, "Pending update marked as loading.", func(s *session) error {
				return s.engine.MarkLoading(cmd.Context())
			})
		},
	}
}

func newRollbackCmd() *cobra.Command {
	var (
		yes             bool
		interactiveMode bool
	)

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Abandon the current package and return to the previous one",
		Long: `Rollback records the current package as failed, makes the previous package
current and deletes the abandoned package. With no previous package the
application falls back to the bundle shipped with the binary.

On a terminal rollback asks for confirmation unless --yes is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimple(cmd, "Rolled back.", func(s *session) error {
				ctx := cmd.Context()
				current, err := s.engine.Store().CurrentPackageHash(ctx)
				if err != nil {
					return err
				}
				previous, err := s.engine.Store().PreviousPackageHash(ctx)
				if err != nil {
					return err
				}
				if previous == "" {
					previous = "the binary bundle"
				}
				if current != "" && !confirm(cmd, yes, interactiveMode, "Roll back %s to %s?", current, previous) {
					return errAborted
				}
				return s.engine.RollbackPackage(ctx)
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	cmd.Flags().BoolVarP(&interactiveMode, "interactive", "i", false, "Ask for confirmation even when stdin is not a terminal")

	return cmd
}

func newClearFailedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-failed",
		Short: "Forget releases that failed to install",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimple(cmd, "Failed updates cleared.", func(s *session) error {
				return s.engine.ClearFailedUpdates(cmd.Context())
			})
		},
	}
}

// errAborted is returned by fn when the user declines a confirmation.
var errAborted = errors.New("aborted")

// runSimple opens a session, runs fn and prints done unless quiet.
func runSimple(cmd *cobra.Command, done string, fn func(*session) error) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if err := fn(s); err != nil {
		if errors.Is(err, errAborted) {
			s.out.Messagef("Aborted.")
			return nil
		}
		return err
	}
	if !quiet {
		s.out.Messagef("%s", done)
	}
	return nil
}
