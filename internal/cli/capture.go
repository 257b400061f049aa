package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/skop/internal/ir"
	"github.com/roach88/skop/internal/producer"
	"github.com/roach88/skop/internal/widgetspec"
)

// CaptureOptions holds flags for the capture command.
type CaptureOptions struct {
	*RootOptions
	Widgets  []string
	Duration time.Duration
	Quiet    bool
}

// CaptureSummary reports lines captured per widget.
type CaptureSummary struct {
	WidgetID ir.WidgetID `json:"widget_id"`
	Version  int64       `json:"version"`
	Type     string      `json:"type"`
	Lines    int         `json:"lines"`
}

// NewCaptureCommand creates the capture command.
func NewCaptureCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CaptureOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "capture <investigation>",
		Short: "Run widgets and record their output",
		Long: `Run every active capturing widget (or those given with --widget) and
record each output line as it arrives. Oneshot widgets finish on their own;
continuous and periodic ones run until interrupted or --duration elapses.

Exit codes:
  0 - Capture finished or was interrupted
  1 - Recording failed (disk full, file unavailable, etc.)
  2 - Command error (investigation not found, etc.)

Examples:
  skop capture "Azure Falcon"
  skop capture 3 --widget 1 --widget 4 --duration 5m
  skop capture ./cases/prod.skop --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runCapture(ctx, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Widgets, "widget", nil, "capture only these widget ids")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0: run until interrupted)")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "do not echo captured lines")

	return cmd
}

func runCapture(ctx context.Context, opts *CaptureOptions, ref string, cmd *cobra.Command) error {
	var only []ir.WidgetID
	for _, s := range opts.Widgets {
		id, err := parseWidgetID(s)
		if err != nil {
			return err
		}
		only = append(only, id)
	}

	inv, err := openInvestigation(ctx, opts.RootOptions, ref)
	if err != nil {
		return err
	}
	defer inv.Close()

	widgets, err := inv.store.ListActive(ctx)
	if err != nil {
		return classify("failed to list widgets", err)
	}

	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	sessionOpts := []producer.SessionOption{producer.WithRestoreLines(opts.Config.Capture.RestoreLines)}
	if !opts.Quiet {
		sessionOpts = append(sessionOpts, producer.WithTee(lineEcho(cmd.OutOrStdout(), opts.Format)))
	}
	session := producer.NewSession(ctx, inv.store, sessionOpts...)

	var started []ir.WidgetVersion
	for _, w := range widgets {
		if len(only) > 0 && !slices.Contains(only, w.ID) {
			continue
		}
		p, err := inv.catalog.Producer(w)
		if errors.Is(err, widgetspec.ErrNotProducer) {
			continue
		}
		if err != nil {
			zap.L().Warn("widget skipped", zap.Int64("widget_id", int64(w.ID)), zap.Error(err))
			continue
		}
		session.Start(w.ID, w.Version, p)
		started = append(started, w)
	}
	if len(started) == 0 {
		_ = session.Stop()
		return NewExitError(ExitCommandError, "no widgets to capture")
	}
	newFormatter(opts.RootOptions, cmd).VerboseLog("capturing %d widget(s)", len(started))

	werr := session.Wait()

	summary := make([]CaptureSummary, len(started))
	for i, w := range started {
		summary[i] = CaptureSummary{WidgetID: w.ID, Version: w.Version, Type: string(w.Type), Lines: session.Captured(w.ID)}
	}
	if werr != nil {
		return classify("capture failed", werr)
	}

	if opts.Format == "json" {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(CLIResponse{Status: "ok", Data: summary})
	}
	w := cmd.ErrOrStderr()
	for _, s := range summary {
		fmt.Fprintf(w, "widget %d (%s) v%d: %d lines\n", s.WidgetID, s.Type, s.Version, s.Lines)
	}
	return nil
}

// lineEcho prints captured lines as they arrive. Producers run
// concurrently, so writes are serialized.
func lineEcho(w io.Writer, format string) func(ir.WidgetID, string) {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return func(id ir.WidgetID, line string) {
		mu.Lock()
		defer mu.Unlock()
		if format == "json" {
			_ = enc.Encode(map[string]any{"widget_id": id, "text": line})
			return
		}
		fmt.Fprintf(w, "[w%d] %s\n", id, line)
	}
}
