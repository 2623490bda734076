package cmd

import (
	"io"
	"strings"

	"github.com/spf13/cobra"
)

type pruneReport struct {
	Deleted []string `json:"deleted" yaml:"deleted"`
	Kept    int      `json:"kept" yaml:"kept"`
	DryRun  bool     `json:"dryRun" yaml:"dryRun"`
}

func (r pruneReport) RenderText(w io.Writer) error {
	var b strings.Builder
	verb := "Removed"
	if r.DryRun {
		verb = "Would remove"
	}
	if len(r.Deleted) == 0 {
		b.WriteString("Nothing to prune.\n")
	}
	for _, name := range r.Deleted {
		b.WriteString(verb + " " + name + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func newPruneCmd() *cobra.Command {
	var (
		dryRun          bool
		yes             bool
		interactiveMode bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove package folders and temp files no longer referenced",
		Long: `Prune deletes package folders other than the current and previous package,
along with download and pointer-file temp files left behind by an
interrupted process.

On a terminal prune asks for confirmation unless --yes is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			ctx := cmd.Context()
			result, err := s.engine.Prune(ctx, true)
			if err != nil {
				return err
			}
			if !dryRun && len(result.Deleted) > 0 {
				if !confirm(cmd, yes, interactiveMode, "Remove %d entries from %s?", len(result.Deleted), s.engine.Store().Root()) {
					s.out.Messagef("Aborted.")
					return nil
				}
				if result, err = s.engine.Prune(ctx, false); err != nil {
					return err
				}
			}
			report := pruneReport{Deleted: result.Deleted, Kept: result.Kept, DryRun: dryRun}
			if report.Deleted == nil {
				report.Deleted = []string{}
			}
			return s.out.Write(report)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what would be removed without deleting")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	cmd.Flags().BoolVarP(&interactiveMode, "interactive", "i", false, "Ask for confirmation even when stdin is not a terminal")

	return cmd
}
