package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/adamancini/hotpush/internal/output"
	"github.com/adamancini/hotpush/internal/types"
)

// checkResult is the outcome of an update check.
type checkResult struct {
	Available            bool                 `json:"available" yaml:"available"`
	BinaryUpdateRequired bool                 `json:"binaryUpdateRequired" yaml:"binaryUpdateRequired"`
	Package              *types.RemotePackage `json:"package,omitempty" yaml:"package,omitempty"`
}

func (r checkResult) RenderText(w io.Writer) error {
	switch {
	case r.BinaryUpdateRequired:
		return output.Fields{
			{Label: "Status", Value: "binary update required"},
			{Label: "App version", Value: r.Package.AppVersion},
		}.RenderText(w)
	case !r.Available:
		_, err := io.WriteString(w, "No update available.\n")
		return err
	}
	fields := append(output.Fields{{Label: "Status", Value: "update available"}}, packageFields(r.Package)...)
	return fields.RenderText(w)
}

func newCheckCmd() *cobra.Command {
	var deploymentKey string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the update server for a new release",
		Long: `Check asks the update server whether a release newer than the installed
package exists. Nothing is downloaded.

Releases that failed to install before are reported with "Failed before".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			remote, err := s.engine.CheckForUpdate(cmd.Context(), deploymentKey)
			if err != nil {
				return err
			}
			return s.out.Write(checkResult{
				Available:            remote != nil && !remote.IsBinaryRedirect(),
				BinaryUpdateRequired: remote.IsBinaryRedirect(),
				Package:              remote,
			})
		},
	}

	cmd.Flags().StringVar(&deploymentKey, "deployment-key", "", "Override the configured deployment key")

	return cmd
}
