package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/skop/internal/ir"
	"github.com/roach88/skop/internal/registry"
	"github.com/roach88/skop/internal/store"
	"github.com/roach88/skop/internal/widgetspec"
)

// newFormatter builds the output formatter for a command.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// investigation is an open investigation file and, when known, its registry
// entry.
type investigation struct {
	store   *store.Store
	catalog *widgetspec.Catalog
	entry   *registry.Entry
}

func (inv *investigation) Close() error {
	return inv.store.Close()
}

func openRegistry(opts *RootOptions) (*registry.Registry, error) {
	reg, err := registry.Open(opts.Config.RegistryPath)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to open registry", err)
	}
	return reg, nil
}

// resolveRef finds the investigation file for ref: an existing file path,
// or a registry id, path or name.
func resolveRef(ctx context.Context, reg *registry.Registry, ref string) (string, *registry.Entry, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		path, err := filepath.Abs(ref)
		if err != nil {
			return "", nil, WrapExitError(ExitCommandError, "invalid path", err)
		}
		if e, err := reg.Resolve(ctx, path); err == nil && e.Path == path {
			return path, &e, nil
		}
		return path, nil, nil
	}

	e, err := reg.Resolve(ctx, ref)
	if err != nil {
		return "", nil, classify(fmt.Sprintf("cannot find investigation %q", ref), err)
	}
	return e.Path, &e, nil
}

// openInvestigation resolves ref and opens the file for writing. Registered
// investigations are marked as accessed.
func openInvestigation(ctx context.Context, opts *RootOptions, ref string) (*investigation, error) {
	reg, err := openRegistry(opts)
	if err != nil {
		return nil, err
	}
	defer reg.Close()

	path, entry, err := resolveRef(ctx, reg, ref)
	if err != nil {
		return nil, err
	}

	catalog, err := widgetspec.New()
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to load widget catalog", err)
	}

	st, err := store.Open(path, storeOptions(opts, catalog)...)
	if err != nil {
		return nil, classify(fmt.Sprintf("failed to open %s", path), err)
	}

	if entry != nil {
		if err := reg.Touch(ctx, entry.ID); err != nil {
			zap.L().Warn("registry touch failed", zap.Int64("id", entry.ID), zap.Error(err))
		}
	}
	return &investigation{store: st, catalog: catalog, entry: entry}, nil
}

func storeOptions(opts *RootOptions, catalog *widgetspec.Catalog) []store.Option {
	cfg := opts.Config.Store
	return []store.Option{
		store.WithBusyTimeout(time.Duration(cfg.BusyTimeoutMS) * time.Millisecond),
		store.WithSynchronous(cfg.Synchronous),
		store.WithValidator(catalog),
	}
}

// classify maps domain errors to exit codes: problems with what the user
// asked for are command errors, everything else is a failure.
func classify(message string, err error) *ExitError {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, store.ErrAlreadyOpen),
		errors.Is(err, store.ErrCorruptOrIncompatible),
		errors.Is(err, store.ErrInvalidConfig),
		errors.Is(err, store.ErrNoVersionYet),
		errors.Is(err, registry.ErrNotFound),
		errors.Is(err, registry.ErrAmbiguous),
		errors.Is(err, registry.ErrDuplicate),
		errors.Is(err, widgetspec.ErrUnknownType):
		return WrapExitError(ExitCommandError, message, err)
	default:
		return WrapExitError(ExitFailure, message, err)
	}
}

// errorCode is the JSON error code for err.
func errorCode(err error) string {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, registry.ErrNotFound):
		return "E_NOT_FOUND"
	case errors.Is(err, store.ErrInvalidConfig), errors.Is(err, widgetspec.ErrUnknownType):
		return "E_INVALID_CONFIG"
	case errors.Is(err, store.ErrAlreadyOpen):
		return "E_ALREADY_OPEN"
	case errors.Is(err, store.ErrCorruptOrIncompatible):
		return "E_INCOMPATIBLE"
	case errors.Is(err, store.ErrStoreUnavailable):
		return "E_UNAVAILABLE"
	default:
		return "E_FAILED"
	}
}

// parseWidgetID parses a widget id argument.
func parseWidgetID(s string) (ir.WidgetID, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "w"), 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid widget id %q", s))
	}
	return ir.WidgetID(id), nil
}

// parseColor accepts a palette name or an "r,g,b" triple.
func parseColor(s string) (ir.Color, error) {
	if c, ok := ir.LookupColor(s); ok {
		return c, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) == 3 {
		for _, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
			if err != nil || f < 0 || f > 1 {
				return ir.Color{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid colour %q", s))
			}
		}
		return ir.ParseColor(s), nil
	}
	return ir.Color{}, NewExitError(ExitCommandError, fmt.Sprintf("unknown colour %q", s))
}

// colorLabel names a colour for display.
func colorLabel(c ir.Color) string {
	if name, ok := ir.ColorName(c); ok {
		return name
	}
	return c.String()
}

// formatTime renders capture-clock microseconds for humans.
func formatTime(us int64) string {
	if us == 0 {
		return "-"
	}
	return ir.TimeOf(us).Local().Format("2006-01-02 15:04:05.000")
}
