package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewArchiveCommand creates the archive command.
func NewArchiveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <investigation>",
		Short: "Hide an investigation from the list",
		Long: `Archive a registered investigation. The file is left untouched and can
still be opened by path; it no longer appears in "skop list".

Examples:
  skop archive "Azure Falcon"
  skop archive 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchive(cmd.Context(), rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runArchive(ctx context.Context, opts *RootOptions, ref string, cmd *cobra.Command) error {
	reg, err := openRegistry(opts)
	if err != nil {
		return err
	}
	defer reg.Close()

	_, entry, err := resolveRef(ctx, reg, ref)
	if err != nil {
		return err
	}
	if entry == nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s is not registered", ref))
	}
	if err := reg.Archive(ctx, entry.ID); err != nil {
		return classify("failed to archive investigation", err)
	}

	if opts.Format == "json" {
		entry.Archived = true
		return newFormatter(opts, cmd).Success(entry)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Archived %q #%d\n", entry.Name, entry.ID)
	return nil
}
