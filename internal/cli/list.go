package cli

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/skop/internal/registry"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	All bool
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered investigations",
		Long: `List registered investigations, most recently opened first.

Examples:
  skop list
  skop list --all --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "include archived investigations")

	return cmd
}

func runList(ctx context.Context, opts *ListOptions, cmd *cobra.Command) error {
	reg, err := openRegistry(opts.RootOptions)
	if err != nil {
		return err
	}
	defer reg.Close()

	entries, err := reg.List(ctx, opts.All)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list investigations", err)
	}

	if opts.Format == "json" {
		return newFormatter(opts.RootOptions, cmd).Success(entries)
	}
	return outputListText(cmd, entries)
}

func outputListText(cmd *cobra.Command, entries []registry.Entry) error {
	w := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(w, "No investigations. Create one with: skop new")
		return nil
	}

	t := newTable(w, "ID", "Name", "Colour", "Last opened", "Path")
	for _, e := range entries {
		name := e.Name
		if e.Archived {
			name += " (archived)"
		}
		t.AppendRow(table.Row{e.ID, name, colorLabel(e.Color), formatTime(e.LastAccessed), e.Path})
	}
	t.Render()
	return nil
}
