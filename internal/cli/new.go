package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/skop/internal/ir"
	"github.com/roach88/skop/internal/registry"
	"github.com/roach88/skop/internal/store"
	"github.com/roach88/skop/internal/widgetspec"
)

// NewOptions holds flags for the new command.
type NewOptions struct {
	*RootOptions
	Dir         string
	Color       string
	Description string
}

// NewNewCommand creates the new command.
func NewNewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "new [name]",
		Short: "Create a new investigation",
		Long: `Create a new investigation file and register it.

Without a name a random "Colour Animal" name is generated. The file is
created in the data directory unless --dir is given.

Examples:
  skop new
  skop new "Disk Latency" --color amber
  skop new "Prod Outage" --dir ./cases --description "checkout 500s"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = strings.TrimSpace(args[0])
			}
			return runNew(cmd.Context(), opts, name, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "directory for the investigation file (default: data dir)")
	cmd.Flags().StringVar(&opts.Color, "color", "", `colour: palette name or "r,g,b"`)
	cmd.Flags().StringVar(&opts.Description, "description", "", "investigation description")

	return cmd
}

func runNew(ctx context.Context, opts *NewOptions, name string, cmd *cobra.Command) error {
	color := ir.DefaultColor
	if name == "" {
		name, color = registry.RandomName(nil)
	}
	if opts.Color != "" {
		c, err := parseColor(opts.Color)
		if err != nil {
			return err
		}
		color = c
	}

	dir := opts.Dir
	if dir == "" {
		dir = opts.Config.DataDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return WrapExitError(ExitFailure, "failed to create directory", err)
	}
	path, err := registry.UniquePath(dir, name)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to choose file name", err)
	}

	catalog, err := widgetspec.New()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load widget catalog", err)
	}
	st, err := store.Create(path, ir.Metadata{Name: name, Description: opts.Description, Color: color},
		storeOptions(opts.RootOptions, catalog)...)
	if err != nil {
		return classify("failed to create investigation", err)
	}
	meta, err := st.Metadata(ctx)
	closeErr := st.Close()
	if err != nil {
		return classify("failed to read metadata", err)
	}
	if closeErr != nil {
		return WrapExitError(ExitFailure, "failed to close investigation", closeErr)
	}

	reg, err := openRegistry(opts.RootOptions)
	if err != nil {
		return err
	}
	defer reg.Close()

	entry, err := reg.Add(ctx, name, path, color)
	if err != nil {
		return classify("failed to register investigation", err)
	}

	if opts.Format == "json" {
		return newFormatter(opts.RootOptions, cmd).Success(map[string]any{
			"entry":    entry,
			"metadata": meta,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %q (%s) #%d\n  %s\n", entry.Name, colorLabel(entry.Color), entry.ID, entry.Path)
	return nil
}
