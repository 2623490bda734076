package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/adamancini/hotpush/internal/output"
	"github.com/adamancini/hotpush/internal/types"
)

// statusReport summarizes the package store.
type statusReport struct {
	AppName        string               `json:"appName" yaml:"appName"`
	Root           string               `json:"root" yaml:"root"`
	Current        *types.LocalPackage  `json:"current,omitempty" yaml:"current,omitempty"`
	Previous       *types.LocalPackage  `json:"previous,omitempty" yaml:"previous,omitempty"`
	Pending        *types.PendingUpdate `json:"pending,omitempty" yaml:"pending,omitempty"`
	EntryPointPath string               `json:"entryPointPath,omitempty" yaml:"entryPointPath,omitempty"`
	FailedUpdates  []types.Descriptor   `json:"failedUpdates" yaml:"failedUpdates"`
}

func (r statusReport) RenderText(w io.Writer) error {
	hashOf := func(p *types.LocalPackage) any {
		if p == nil {
			return "(binary)"
		}
		return p.PackageHash + " (" + p.Label + ")"
	}
	fields := output.Fields{
		{Label: "App", Value: r.AppName},
		{Label: "Package store", Value: r.Root},
		{Label: "Current", Value: hashOf(r.Current)},
		{Label: "Previous", Value: hashOf(r.Previous)},
	}
	if r.Pending != nil {
		pending := r.Pending.Hash
		if r.Pending.IsLoading {
			pending += " (loading)"
		}
		fields = append(fields, output.Field{Label: "Pending", Value: pending})
	}
	if r.EntryPointPath != "" {
		fields = append(fields, output.Field{Label: "Entry point", Value: r.EntryPointPath})
	}
	fields = append(fields, output.Field{Label: "Failed updates", Value: len(r.FailedUpdates)})
	return fields.RenderText(w)
}

// packageResult is a single package, or none.
type packageResult struct {
	State   types.UpdateState   `json:"state" yaml:"state"`
	Package *types.LocalPackage `json:"package" yaml:"package"`
}

func (r packageResult) RenderText(w io.Writer) error {
	if r.Package == nil {
		_, err := io.WriteString(w, "No "+r.State.String()+" package.\n")
		return err
	}
	return packageFields(r.Package).RenderText(w)
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [running|pending|latest]",
		Short: "Show installed packages",
		Long: `Status summarizes the package store: the current and previous packages,
the pending update and the releases that failed to install.

With an argument it shows one package instead:
  running  the package the application is executing now
  pending  the installed update waiting for a restart
  latest   the most recently installed package`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"running", "pending", "latest"},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			if len(args) == 1 {
				state, err := types.ParseUpdateState(args[0])
				if err != nil {
					return err
				}
				pkg, err := s.engine.UpdateMetadata(cmd.Context(), state)
				if err != nil {
					return err
				}
				return s.out.Write(packageResult{State: state, Package: pkg})
			}

			report, err := s.status(cmd.Context())
			if err != nil {
				return err
			}
			return s.out.Write(report)
		},
	}

	return cmd
}

func (s *session) status(ctx context.Context) (*statusReport, error) {
	store := s.engine.Store()
	st := s.engine.Settings()

	current, err := store.CurrentPackage(ctx)
	if err != nil {
		return nil, err
	}
	previous, err := store.PreviousPackage(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := st.PendingUpdate(ctx)
	if err != nil {
		return nil, err
	}
	failed, err := st.FailedUpdates(ctx)
	if err != nil {
		return nil, err
	}

	report := &statusReport{
		AppName:       st.AppName(),
		Root:          store.Root(),
		Current:       current,
		Previous:      previous,
		Pending:       pending,
		FailedUpdates: failed,
	}
	if report.FailedUpdates == nil {
		report.FailedUpdates = []types.Descriptor{}
	}
	if current != nil {
		report.EntryPointPath = store.EntryPointPath(current)
	}
	return report, nil
}
