package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/roach88/skop/internal/ir"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]any{
				"version":        ir.AppVersion,
				"schema_version": ir.SchemaVersion,
				"go":             runtime.Version(),
			}
			if rootOpts.Format == "json" {
				return newFormatter(rootOpts, cmd).Success(info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "skop %s (investigation schema v%d, %s)\n", ir.AppVersion, ir.SchemaVersion, runtime.Version())
			return nil
		},
	}
}
