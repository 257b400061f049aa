package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/skop/internal/ir"
	"github.com/roach88/skop/internal/store"
)

// InfoOptions holds flags for the info command.
type InfoOptions struct {
	*RootOptions
	Name        string
	Description string
	Color       string
}

// InfoResult is the JSON payload of the info command.
type InfoResult struct {
	Path     string             `json:"path"`
	Metadata ir.Metadata        `json:"metadata"`
	Stats    store.Stats        `json:"stats"`
	Widgets  []ir.WidgetVersion `json:"widgets"`
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InfoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "info <investigation>",
		Short: "Show an investigation's metadata, widgets and capture statistics",
		Long: `Show an investigation's metadata, active widgets and capture statistics.

The investigation is a file path, registry id or name. Passing --name,
--description or --color updates the metadata first.

Examples:
  skop info "Azure Falcon"
  skop info ./cases/prod_outage.skop --format json
  skop info 3 --name "Checkout 500s" --color red`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "rename the investigation")
	cmd.Flags().StringVar(&opts.Description, "description", "", "set the description")
	cmd.Flags().StringVar(&opts.Color, "color", "", `set the colour: palette name or "r,g,b"`)

	return cmd
}

func runInfo(ctx context.Context, opts *InfoOptions, ref string, cmd *cobra.Command) error {
	inv, err := openInvestigation(ctx, opts.RootOptions, ref)
	if err != nil {
		return err
	}
	defer inv.Close()

	meta, err := inv.store.Metadata(ctx)
	if err != nil {
		return classify("failed to read metadata", err)
	}

	if cmd.Flags().Changed("name") || cmd.Flags().Changed("description") || cmd.Flags().Changed("color") {
		if err := updateInfo(ctx, opts, inv, &meta, cmd); err != nil {
			return err
		}
	}

	stats, err := inv.store.Stats(ctx)
	if err != nil {
		return classify("failed to read statistics", err)
	}
	widgets, err := inv.store.ListActive(ctx)
	if err != nil {
		return classify("failed to list widgets", err)
	}

	result := InfoResult{Path: inv.store.Path(), Metadata: meta, Stats: stats, Widgets: widgets}
	if opts.Format == "json" {
		return newFormatter(opts.RootOptions, cmd).Success(result)
	}
	return outputInfoText(cmd, result)
}

func updateInfo(ctx context.Context, opts *InfoOptions, inv *investigation, meta *ir.Metadata, cmd *cobra.Command) error {
	if cmd.Flags().Changed("name") {
		meta.Name = opts.Name
	}
	if cmd.Flags().Changed("description") {
		meta.Description = opts.Description
	}
	if cmd.Flags().Changed("color") {
		c, err := parseColor(opts.Color)
		if err != nil {
			return err
		}
		meta.Color = c
	}

	if err := inv.store.UpdateMetadata(ctx, meta.Name, meta.Description, meta.Color); err != nil {
		return classify("failed to update metadata", err)
	}
	if inv.entry == nil {
		return nil
	}

	reg, err := openRegistry(opts.RootOptions)
	if err != nil {
		return err
	}
	defer reg.Close()
	if err := reg.Rename(ctx, inv.entry.ID, meta.Name, meta.Color); err != nil {
		return classify("failed to update registry", err)
	}
	return nil
}

func outputInfoText(cmd *cobra.Command, r InfoResult) error {
	w := cmd.OutOrStdout()
	m := r.Metadata

	fmt.Fprintf(w, "%s (%s)\n", m.Name, colorLabel(m.Color))
	if m.Description != "" {
		fmt.Fprintf(w, "  %s\n", m.Description)
	}
	fmt.Fprintf(w, "  path:     %s\n", r.Path)
	fmt.Fprintf(w, "  uid:      %s\n", m.UID)
	fmt.Fprintf(w, "  created:  %s\n", formatTime(m.CreatedAt))
	fmt.Fprintf(w, "  schema:   v%d (%s clock)\n", m.SchemaVersion, m.ClockSource)
	fmt.Fprintf(w, "  widgets:  %d active of %d (%d versions)\n", r.Stats.ActiveWidgets, r.Stats.Widgets, r.Stats.Versions)
	fmt.Fprintf(w, "  lines:    %d\n", r.Stats.Lines)
	if r.Stats.Lines > 0 {
		fmt.Fprintf(w, "  captured: %s .. %s\n", formatTime(r.Stats.FirstLine), formatTime(r.Stats.LastLine))
	}

	if len(r.Widgets) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	return outputWidgetTable(w, r.Widgets)
}

// outputWidgetTable prints widgets one per row.
func outputWidgetTable(w io.Writer, widgets []ir.WidgetVersion) error {
	t := newTable(w, "ID", "Version", "Type", "Config", "Changed")
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: configWidth}})
	for _, v := range widgets {
		t.AppendRow(table.Row{v.ID, v.Version, v.Type, string(v.Config), formatTime(v.CreatedAt)})
	}
	t.Render()
	return nil
}
