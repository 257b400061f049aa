package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/skop/internal/ir"
	"github.com/roach88/skop/internal/replay"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	From     time.Duration
	To       time.Duration
	Seek     time.Duration
	Rate     float64
	Widgets  []string
	Instant  bool
	Snapshot bool
}

// ReplayEvent is the JSON form of one replayed event.
type ReplayEvent struct {
	Kind      string            `json:"kind"`
	Timestamp int64             `json:"timestamp"` // µs
	Offset    int64             `json:"offset_us"` // µs since the first captured line
	WidgetID  ir.WidgetID       `json:"widget_id"`
	Version   int64             `json:"version"`
	Seq       *int64            `json:"seq,omitempty"`
	Text      *string           `json:"text,omitempty"`
	Widget    *ir.WidgetVersion `json:"widget,omitempty"`
	DelayUS   int64             `json:"delay_us"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <investigation>",
		Short: "Replay captured output in sync",
		Long: `Replay every widget's captured output and edits in capture order, paced
by the original gaps divided by --rate.

Times are offsets from the first captured line, where playback starts by
default. Widgets and edits from before that line appear in the opening
canvas (--snapshot), not as events.

Exit codes:
  0 - Replay finished or was interrupted
  1 - Reading the investigation failed
  2 - Command error (bad rate or range, investigation not found, etc.)

Examples:
  skop replay "Azure Falcon"
  skop replay 3 --rate 10 --from 2m --to 5m
  skop replay ./cases/prod.skop --widget 2 --instant --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if !cmd.Flags().Changed("rate") {
				opts.Rate = opts.Config.Replay.Rate
			}
			return runReplay(ctx, opts, args[0], cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.From, "from", 0, "start offset")
	cmd.Flags().DurationVar(&opts.To, "to", 0, "end offset (0: end of capture)")
	cmd.Flags().DurationVar(&opts.Seek, "seek", 0, "begin playback at this offset, keeping --from as the range start")
	cmd.Flags().Float64Var(&opts.Rate, "rate", 1, "playback speed multiplier (default from config)")
	cmd.Flags().StringSliceVar(&opts.Widgets, "widget", nil, "replay only these widget ids")
	cmd.Flags().BoolVar(&opts.Instant, "instant", false, "print events without waiting")
	cmd.Flags().BoolVar(&opts.Snapshot, "snapshot", false, "print the canvas at the start position first")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, ref string, cmd *cobra.Command) error {
	var filter []ir.WidgetID
	for _, s := range opts.Widgets {
		id, err := parseWidgetID(s)
		if err != nil {
			return err
		}
		filter = append(filter, id)
	}

	inv, err := openInvestigation(ctx, opts.RootOptions, ref)
	if err != nil {
		return err
	}
	defer inv.Close()

	first, _, ok, err := inv.store.Span(ctx)
	if err != nil {
		return classify("failed to read capture span", err)
	}
	if !ok {
		meta, err := inv.store.Metadata(ctx)
		if err != nil {
			return classify("failed to read metadata", err)
		}
		first = meta.CreatedAt
	}

	// Playback starts at the first captured line.
	rng := replay.All
	if ok {
		rng.From = first
	}
	if opts.From > 0 {
		rng.From = first + opts.From.Microseconds()
	}
	if opts.To > 0 {
		rng.To = first + opts.To.Microseconds()
	}

	seq, err := replay.Plan(ctx, inv.store, rng, opts.Rate, filter, replay.WithPageSize(opts.Config.Replay.PageSize))
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot plan replay", err)
	}
	if opts.Seek > 0 {
		if err := seq.Seek(ctx, first+opts.Seek.Microseconds()); err != nil {
			return WrapExitError(ExitFailure, "seek failed", err)
		}
	}

	out := cmd.OutOrStdout()
	if opts.Snapshot {
		widgets, err := seq.Snapshot(ctx)
		if err != nil {
			return classify("failed to read canvas", err)
		}
		if err := printSnapshot(out, opts.Format, widgets); err != nil {
			return err
		}
	}

	handler := eventPrinter(out, opts.Format, first)
	if opts.Instant {
		err = drain(ctx, seq, handler)
	} else {
		err = replay.NewPlayer(seq).Run(ctx, handler)
	}
	if err != nil && ctx.Err() == nil {
		return classify("replay failed", err)
	}
	return nil
}

// drain presents every event without pacing.
func drain(ctx context.Context, seq *replay.Sequence, h replay.Handler) error {
	for {
		ev, ok, err := seq.Next(ctx)
		if err != nil || !ok {
			return err
		}
		if err := h(ev); err != nil {
			return err
		}
	}
}

func printSnapshot(w io.Writer, format string, widgets []ir.WidgetVersion) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(map[string]any{"kind": "snapshot", "widgets": widgets})
	}
	fmt.Fprintf(w, "canvas: %d widget(s)\n", len(widgets))
	for _, v := range widgets {
		fmt.Fprintf(w, "  w%d v%d %s %s\n", v.ID, v.Version, v.Type, v.Config)
	}
	return nil
}

// eventPrinter renders events as text lines or JSON lines. Offsets are
// relative to origin.
func eventPrinter(w io.Writer, format string, origin int64) replay.Handler {
	enc := json.NewEncoder(w)
	return func(ev replay.Event) error {
		offset := ev.Timestamp - origin
		if format == "json" {
			out := ReplayEvent{
				Kind:      ev.Kind.String(),
				Timestamp: ev.Timestamp,
				Offset:    offset,
				WidgetID:  ev.WidgetID,
				Version:   ev.Version,
				Widget:    ev.Widget,
				DelayUS:   ev.Delay.Microseconds(),
			}
			if ev.Kind == replay.KindRawLine {
				seq, text := ev.Seq, ev.Text
				out.Seq, out.Text = &seq, &text
			}
			return enc.Encode(out)
		}

		stamp := formatOffset(offset)
		if ev.Kind == replay.KindVersionChange {
			_, err := fmt.Fprintf(w, "%s w%d -> v%d %s\n", stamp, ev.WidgetID, ev.Version, ev.Widget.Config)
			return err
		}
		_, err := fmt.Fprintf(w, "%s w%d %s\n", stamp, ev.WidgetID, ev.Text)
		return err
	}
}

// formatOffset renders a µs offset as [+m:ss.mmm].
func formatOffset(us int64) string {
	sign := "+"
	if us < 0 {
		sign = "-"
		us = -us
	}
	d := time.Duration(us) * time.Microsecond
	m := int64(d / time.Minute)
	s := d % time.Minute
	return fmt.Sprintf("[%s%d:%06.3f]", sign, m, s.Seconds())
}
