package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/roach88/skop/internal/ir"
	"github.com/roach88/skop/internal/replay"
	"github.com/roach88/skop/internal/store"
	"github.com/roach88/skop/internal/testutil"
	"github.com/roach88/skop/internal/widgetspec"
)

// defaultSize is used for created widgets without an explicit size.
var defaultSize = ir.Size{W: 400, H: 300}

// Harness executes one scenario against a fresh investigation.
type Harness struct {
	store   *store.Store
	clock   *testutil.ManualClock
	catalog *widgetspec.Catalog
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a new investigation file in a temporary directory
// that is removed afterwards. Step failures and failed assertions are
// reported in the result; the error return is for harness faults.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "skop-scenario-*")
	if err != nil {
		return nil, eris.Wrap(err, "create scenario directory")
	}
	defer os.RemoveAll(dir)

	catalog, err := widgetspec.New()
	if err != nil {
		return nil, err
	}

	clock := testutil.NewManualClock(0)
	meta := ir.Metadata{Name: scenario.Name, Description: scenario.Description, Color: ir.DefaultColor}
	st, err := store.Create(filepath.Join(dir, "scenario"+ir.FileExtension), meta,
		store.WithClock(clock), store.WithValidator(catalog))
	if err != nil {
		return nil, eris.Wrap(err, "create scenario investigation")
	}
	defer st.Close()

	h := &Harness{store: st, clock: clock, catalog: catalog}
	result := NewResult()

	for i, step := range scenario.Steps {
		h.clock.Set(step.At)
		err := h.executeStep(ctx, step)
		switch {
		case step.ExpectError != "" && err == nil:
			result.AddError(fmt.Sprintf("steps[%d]: expected error containing %q, step succeeded", i, step.ExpectError))
		case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
			result.AddError(fmt.Sprintf("steps[%d]: expected error containing %q, got: %v", i, step.ExpectError, err))
		case step.ExpectError == "" && err != nil:
			result.AddError(fmt.Sprintf("steps[%d]: %v", i, err))
		}
	}
	if !result.Pass {
		return result, nil
	}

	if err := h.replay(ctx, scenario.Replay, result); err != nil {
		result.AddError(fmt.Sprintf("replay: %v", err))
		return result, nil
	}

	for _, a := range scenario.Assertions {
		if err := evaluate(result, a); err != nil {
			result.AddError(err.Error())
		}
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, step Step) error {
	switch {
	case step.Create != nil:
		c := step.Create
		config, err := marshalConfig(c.Config)
		if err != nil {
			return err
		}
		size := defaultSize
		if info, ok := h.catalog.Lookup(c.Type); ok {
			size = info.DefaultSize
		}
		if c.Size != nil {
			size = *c.Size
		}
		var pos ir.Position
		if c.Position != nil {
			pos = *c.Position
		}
		_, err = h.store.CreateWidget(ctx, c.Type, config, pos, size)
		return err

	case step.Append != nil:
		a := step.Append
		var version int64
		if a.Version != nil {
			version = *a.Version
		} else {
			cur, err := h.store.Current(ctx, a.Widget)
			if err != nil {
				return err
			}
			version = cur.Version
		}
		lines := a.Lines
		if a.Text != "" {
			lines = append([]string{a.Text}, lines...)
		}
		_, err := h.store.AppendBatch(ctx, a.Widget, version, lines)
		return err

	case step.Update != nil:
		u := step.Update
		patch := store.WidgetPatch{Position: u.Position, Size: u.Size, Collapsed: u.Collapsed}
		if u.Config != nil {
			config, err := marshalConfig(u.Config)
			if err != nil {
				return err
			}
			patch.Config = config
		}
		_, _, err := h.store.UpdateWithLines(ctx, u.Widget, patch, u.Lines)
		return err

	case step.Archive != nil:
		return h.store.Archive(ctx, step.Archive.Widget)
	}
	return fmt.Errorf("empty step")
}

func (h *Harness) replay(ctx context.Context, rs ReplaySpec, result *Result) error {
	rng := replay.All
	if rs.From != nil {
		rng.From = *rs.From
	}
	if rs.To != nil {
		rng.To = *rs.To
	}
	rate := rs.Rate
	if rate == 0 {
		rate = 1
	}
	var opts []replay.Option
	if rs.PageSize > 0 {
		opts = append(opts, replay.WithPageSize(rs.PageSize))
	}

	seq, err := replay.Plan(ctx, h.store, rng, rate, rs.Widgets, opts...)
	if err != nil {
		return err
	}
	if rs.Seek != nil {
		if err := seq.Seek(ctx, *rs.Seek); err != nil {
			return err
		}
	}

	if rs.Snapshot {
		widgets, err := seq.Snapshot(ctx)
		if err != nil {
			return err
		}
		for _, w := range widgets {
			result.Snapshot = append(result.Snapshot, FormatWidget(w))
		}
	}

	for {
		ev, ok, err := seq.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		result.AddEvent(ev)
	}
}

// marshalConfig encodes a YAML config map as JSON. A nil map is "{}".
func marshalConfig(config map[string]any) ([]byte, error) {
	if config == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(config)
	if err != nil {
		return nil, eris.Wrap(err, "encode config")
	}
	return b, nil
}
