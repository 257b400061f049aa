package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/skop/internal/ir"
	"github.com/roach88/skop/internal/store"
	"github.com/roach88/skop/internal/widgetspec"
)

// WidgetOptions holds flags shared by widget subcommands.
type WidgetOptions struct {
	*RootOptions
	Config    string
	X, Y      float64
	W, H      float64
	Collapsed bool
}

// NewWidgetCommand creates the widget command group.
func NewWidgetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "widget",
		Short: "Manage an investigation's widgets",
		Long: `Add, edit, archive and inspect widgets. Every edit writes a new widget
version; captured output is tied to the version that produced it.`,
	}

	cmd.AddCommand(newWidgetAddCommand(rootOpts))
	cmd.AddCommand(newWidgetUpdateCommand(rootOpts))
	cmd.AddCommand(newWidgetArchiveCommand(rootOpts))
	cmd.AddCommand(newWidgetListCommand(rootOpts))
	cmd.AddCommand(newWidgetHistoryCommand(rootOpts))
	cmd.AddCommand(newWidgetTypesCommand(rootOpts))

	return cmd
}

func addGeometryFlags(cmd *cobra.Command, opts *WidgetOptions) {
	cmd.Flags().Float64Var(&opts.X, "x", 0, "canvas x position")
	cmd.Flags().Float64Var(&opts.Y, "y", 0, "canvas y position")
	cmd.Flags().Float64Var(&opts.W, "width", 0, "width (default: type default)")
	cmd.Flags().Float64Var(&opts.H, "height", 0, "height (default: type default)")
}

func newWidgetAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WidgetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <investigation> <type>",
		Short: "Add a widget",
		Long: `Add a widget of the given type. The config is a JSON object checked
against the type's schema; see "skop widget types".

Examples:
  skop widget add "Azure Falcon" raw_command --config '{"cmd":"uptime"}'
  skop widget add 3 cpu_monitor --config '{"interval_seconds":1}' --x 420`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWidgetAdd(cmd.Context(), opts, args[0], ir.WidgetType(args[1]), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "{}", "widget config as a JSON object")
	addGeometryFlags(cmd, opts)

	return cmd
}

func runWidgetAdd(ctx context.Context, opts *WidgetOptions, ref string, widgetType ir.WidgetType, cmd *cobra.Command) error {
	inv, err := openInvestigation(ctx, opts.RootOptions, ref)
	if err != nil {
		return err
	}
	defer inv.Close()

	info, ok := inv.catalog.Lookup(widgetType)
	if !ok {
		return WrapExitError(ExitCommandError, "cannot add widget", fmt.Errorf("%w: %s", widgetspec.ErrUnknownType, widgetType))
	}
	size := info.DefaultSize
	if opts.W > 0 {
		size.W = opts.W
	}
	if opts.H > 0 {
		size.H = opts.H
	}

	id, err := inv.store.CreateWidget(ctx, widgetType, []byte(opts.Config), ir.Position{X: opts.X, Y: opts.Y}, size)
	if err != nil {
		return classify("failed to add widget", err)
	}
	w, err := inv.store.Current(ctx, id)
	if err != nil {
		return classify("failed to read widget", err)
	}

	if opts.Format == "json" {
		return newFormatter(opts.RootOptions, cmd).Success(w)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added widget %d (%s) %s\n", w.ID, w.Type, w.Config)
	return nil
}

func newWidgetUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WidgetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <investigation> <widget-id>",
		Short: "Edit a widget, writing a new version",
		Long: `Edit a widget. Only the given flags change; everything else is copied
from the current version.

Examples:
  skop widget update "Azure Falcon" 1 --config '{"cmd":"df -h"}'
  skop widget update 3 2 --x 100 --y 40 --collapsed`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseWidgetID(args[1])
			if err != nil {
				return err
			}
			return runWidgetUpdate(cmd.Context(), opts, args[0], id, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "replacement config as a JSON object")
	cmd.Flags().BoolVar(&opts.Collapsed, "collapsed", false, "collapse (or --collapsed=false to expand) the widget")
	addGeometryFlags(cmd, opts)

	return cmd
}

// widgetPatch builds a patch from the flags the user actually set.
func widgetPatch(opts *WidgetOptions, cmd *cobra.Command, cur ir.WidgetVersion) (store.WidgetPatch, bool) {
	var patch store.WidgetPatch
	changed := false
	flags := cmd.Flags()

	if flags.Changed("config") {
		patch.Config = json.RawMessage(opts.Config)
		changed = true
	}
	if flags.Changed("x") || flags.Changed("y") {
		pos := cur.Position
		if flags.Changed("x") {
			pos.X = opts.X
		}
		if flags.Changed("y") {
			pos.Y = opts.Y
		}
		patch.Position = &pos
		changed = true
	}
	if flags.Changed("width") || flags.Changed("height") {
		size := cur.Size
		if flags.Changed("width") {
			size.W = opts.W
		}
		if flags.Changed("height") {
			size.H = opts.H
		}
		patch.Size = &size
		changed = true
	}
	if flags.Changed("collapsed") {
		collapsed := opts.Collapsed
		patch.Collapsed = &collapsed
		changed = true
	}
	return patch, changed
}

func runWidgetUpdate(ctx context.Context, opts *WidgetOptions, ref string, id ir.WidgetID, cmd *cobra.Command) error {
	inv, err := openInvestigation(ctx, opts.RootOptions, ref)
	if err != nil {
		return err
	}
	defer inv.Close()

	cur, err := inv.store.Current(ctx, id)
	if err != nil {
		return classify(fmt.Sprintf("cannot update widget %d", id), err)
	}
	patch, changed := widgetPatch(opts, cmd, cur)
	if !changed {
		return NewExitError(ExitCommandError, "nothing to update: pass --config, --x, --y, --width, --height or --collapsed")
	}

	w, _, err := inv.store.UpdateWithLines(ctx, id, patch, nil)
	if err != nil {
		return classify(fmt.Sprintf("failed to update widget %d", id), err)
	}

	if opts.Format == "json" {
		return newFormatter(opts.RootOptions, cmd).Success(w)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Widget %d is now at version %d\n", w.ID, w.Version)
	return nil
}

func newWidgetArchiveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <investigation> <widget-id>",
		Short: "Archive a widget",
		Long: `Archive a widget. It stops capturing and leaves the canvas, but its
history still replays.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseWidgetID(args[1])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			inv, err := openInvestigation(ctx, rootOpts, args[0])
			if err != nil {
				return err
			}
			defer inv.Close()

			if err := inv.store.Archive(ctx, id); err != nil {
				return classify(fmt.Sprintf("failed to archive widget %d", id), err)
			}
			if rootOpts.Format == "json" {
				return newFormatter(rootOpts, cmd).Success(map[string]any{"widget_id": id, "archived": true})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived widget %d\n", id)
			return nil
		},
	}
}

func newWidgetListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <investigation>",
		Short: "List active widgets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			inv, err := openInvestigation(ctx, rootOpts, args[0])
			if err != nil {
				return err
			}
			defer inv.Close()

			widgets, err := inv.store.ListActive(ctx)
			if err != nil {
				return classify("failed to list widgets", err)
			}
			if rootOpts.Format == "json" {
				return newFormatter(rootOpts, cmd).Success(widgets)
			}
			if len(widgets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No active widgets.")
				return nil
			}
			return outputWidgetTable(cmd.OutOrStdout(), widgets)
		},
	}
}

func newWidgetHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <investigation> <widget-id>",
		Short: "Show every version of a widget",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseWidgetID(args[1])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			inv, err := openInvestigation(ctx, rootOpts, args[0])
			if err != nil {
				return err
			}
			defer inv.Close()

			versions, err := inv.store.History(ctx, id)
			if err != nil {
				return classify(fmt.Sprintf("failed to read history of widget %d", id), err)
			}
			if rootOpts.Format == "json" {
				return newFormatter(rootOpts, cmd).Success(versions)
			}
			return outputWidgetTable(cmd.OutOrStdout(), versions)
		},
	}
}

func newWidgetTypesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List widget types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := widgetspec.New()
			if err != nil {
				return WrapExitError(ExitFailure, "failed to load widget catalog", err)
			}
			types := catalog.Types()
			if rootOpts.Format == "json" {
				return newFormatter(rootOpts, cmd).Success(types)
			}

			tbl := newTable(cmd.OutOrStdout(), "Type", "Title", "Captures", "Default size")
			for _, t := range types {
				tbl.AppendRow(table.Row{t.Type, t.Title, t.Produces, fmt.Sprintf("%gx%g", t.DefaultSize.W, t.DefaultSize.H)})
			}
			tbl.Render()
			return nil
		},
	}
}
