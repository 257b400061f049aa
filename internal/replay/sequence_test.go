package replay

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skop/internal/ir"
	"github.com/roach88/skop/internal/store"
	"github.com/roach88/skop/internal/testutil"
)

func newStore(t *testing.T) (*store.Store, *testutil.ManualClock) {
	t.Helper()
	clock := testutil.NewManualClock(0)
	s, err := store.Create(filepath.Join(t.TempDir(), "replay.skop"), ir.Metadata{Name: "Jade Heron"}, store.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func appendAt(t *testing.T, s *store.Store, clock *testutil.ManualClock, ts int64, id ir.WidgetID, version int64, text string) {
	t.Helper()
	clock.Set(ts)
	_, err := s.Append(context.Background(), id, version, text)
	require.NoError(t, err)
}

// seedEditDuringCapture records a widget edited mid-capture: v0 lines at
// 100, 101 and 105, the edit at 110, then v1 lines at 120 and 121.
func seedEditDuringCapture(t *testing.T) (*store.Store, ir.WidgetID) {
	t.Helper()
	ctx := context.Background()
	s, clock := newStore(t)

	clock.Set(50)
	id, err := s.CreateWidget(ctx, "raw_command", []byte(`{"cmd":"uptime"}`), ir.Position{}, ir.Size{W: 100, H: 100})
	require.NoError(t, err)

	appendAt(t, s, clock, 100, id, 0, "a")
	appendAt(t, s, clock, 101, id, 0, "b")
	appendAt(t, s, clock, 105, id, 0, "c")

	clock.Set(110)
	v, err := s.UpdateWidget(ctx, id, store.WidgetPatch{Config: []byte(`{"cmd":"uptime -p"}`)})
	require.NoError(t, err)
	require.Equal(t, int64(1), v)

	appendAt(t, s, clock, 120, id, 1, "d")
	appendAt(t, s, clock, 121, id, 1, "e")
	return s, id
}

type step struct {
	kind    Kind
	ts      int64
	version int64
	text    string
	delay   time.Duration
}

func steps(events []Event) []step {
	out := make([]step, len(events))
	for i, ev := range events {
		out[i] = step{kind: ev.Kind, ts: ev.Timestamp, version: ev.Version, text: ev.Text, delay: ev.Delay}
	}
	return out
}

func TestPlan_EditDuringCapture(t *testing.T) {
	ctx := context.Background()
	s, _ := seedEditDuringCapture(t)

	seq, err := Plan(ctx, s, All, 1.0, nil)
	require.NoError(t, err)
	events, err := Collect(ctx, seq)
	require.NoError(t, err)

	us := time.Microsecond
	assert.Equal(t, []step{
		{KindRawLine, 100, 0, "a", 0},
		{KindRawLine, 101, 0, "b", 1 * us},
		{KindRawLine, 105, 0, "c", 4 * us},
		{KindVersionChange, 110, 1, "", 5 * us},
		{KindRawLine, 120, 1, "d", 10 * us},
		{KindRawLine, 121, 1, "e", 1 * us},
	}, steps(events))

	require.NotNil(t, events[3].Widget)
	assert.Equal(t, `{"cmd":"uptime -p"}`, string(events[3].Widget.Config))
}

func TestPlan_RateScalesDelays(t *testing.T) {
	ctx := context.Background()
	s, _ := seedEditDuringCapture(t)

	seq, err := Plan(ctx, s, All, 2.0, nil)
	require.NoError(t, err)
	events, err := Collect(ctx, seq)
	require.NoError(t, err)

	want := []time.Duration{0, 500 * time.Nanosecond, 2 * time.Microsecond, 2500 * time.Nanosecond, 5 * time.Microsecond, 500 * time.Nanosecond}
	got := make([]time.Duration, len(events))
	for i, ev := range events {
		got[i] = ev.Delay
	}
	assert.Equal(t, want, got)
}

func TestPlan_TieBreaksByWidgetID(t *testing.T) {
	ctx := context.Background()
	s, clock := newStore(t)

	clock.Set(10)
	w1, err := s.CreateWidget(ctx, "raw_command", nil, ir.Position{}, ir.Size{})
	require.NoError(t, err)
	w2, err := s.CreateWidget(ctx, "raw_command", nil, ir.Position{}, ir.Size{})
	require.NoError(t, err)

	// Widget 2 captured first in wall order.
	appendAt(t, s, clock, 500, w2, 0, "two")
	appendAt(t, s, clock, 500, w1, 0, "one")

	seq, err := Plan(ctx, s, All, 1.0, nil)
	require.NoError(t, err)
	events, err := Collect(ctx, seq)
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, w1, events[0].WidgetID)
	assert.Equal(t, w2, events[1].WidgetID)
	assert.Zero(t, events[1].Delay)
}

func TestPlan_VersionChangeBeforeLineOnTie(t *testing.T) {
	ctx := context.Background()
	s, clock := newStore(t)

	clock.Set(10)
	w1, err := s.CreateWidget(ctx, "raw_command", nil, ir.Position{}, ir.Size{})
	require.NoError(t, err)
	w2, err := s.CreateWidget(ctx, "raw_command", nil, ir.Position{}, ir.Size{})
	require.NoError(t, err)

	clock.Set(300)
	_, refs, err := s.UpdateWithLines(ctx, w2, store.WidgetPatch{Collapsed: ptr(true)}, []string{"after edit"})
	require.NoError(t, err)
	require.Equal(t, int64(300), refs[0].Timestamp)
	appendAt(t, s, clock, 300, w1, 0, "w1 line")

	seq, err := Plan(ctx, s, All, 1.0, nil)
	require.NoError(t, err)
	events, err := Collect(ctx, seq)
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, KindVersionChange, events[0].Kind)
	assert.Equal(t, w2, events[0].WidgetID)
	assert.Equal(t, "w1 line", events[1].Text)
	assert.Equal(t, "after edit", events[2].Text)
}

func TestPlan_ArchivedWidgetStillReplays(t *testing.T) {
	ctx := context.Background()
	s, id := seedEditDuringCapture(t)
	require.NoError(t, s.Archive(ctx, id))

	seq, err := Plan(ctx, s, All, 1.0, nil)
	require.NoError(t, err)
	events, err := Collect(ctx, seq)
	require.NoError(t, err)
	assert.Len(t, events, 6)
}

func TestPlan_WindowAndFilter(t *testing.T) {
	ctx := context.Background()
	s, clock := newStore(t)
	clock.Set(0)
	a, err := s.CreateWidget(ctx, "raw_command", nil, ir.Position{}, ir.Size{})
	require.NoError(t, err)
	b, err := s.CreateWidget(ctx, "raw_command", nil, ir.Position{}, ir.Size{})
	require.NoError(t, err)
	for _, ts := range []int64{100, 200, 300, 400} {
		appendAt(t, s, clock, ts, a, 0, "a")
		appendAt(t, s, clock, ts, b, 0, "b")
	}

	seq, err := Plan(ctx, s, Range{From: 200, To: 300}, 1.0, []ir.WidgetID{b})
	require.NoError(t, err)
	events, err := Collect(ctx, seq)
	require.NoError(t, err)

	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, b, ev.WidgetID)
	}
	assert.Equal(t, int64(200), events[0].Timestamp)
	assert.Equal(t, int64(300), events[1].Timestamp)
}

func TestPlan_EmptyIsExhausted(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	seq, err := Plan(ctx, s, Range{From: 0, To: 1000}, 1.0, nil)
	require.NoError(t, err)
	_, ok, err := seq.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPlan_InvalidArguments(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	for _, rate := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := Plan(ctx, s, All, rate, nil)
		assert.ErrorIs(t, err, ErrInvalidRate, "rate %v", rate)
	}

	_, err := Plan(ctx, s, Range{From: 10, To: 5}, 1.0, nil)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestSequence_RestartableAcrossPlans(t *testing.T) {
	ctx := context.Background()
	s, _ := seedEditDuringCapture(t)

	first, err := Plan(ctx, s, All, 1.0, nil, WithPageSize(2))
	require.NoError(t, err)
	a, err := Collect(ctx, first)
	require.NoError(t, err)

	second, err := Plan(ctx, s, All, 1.0, nil)
	require.NoError(t, err)
	b, err := Collect(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	first.Reset()
	c, err := Collect(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestSequence_SeekYieldsSuffix(t *testing.T) {
	ctx := context.Background()
	s, _ := seedEditDuringCapture(t)

	full, err := Plan(ctx, s, All, 1.0, nil)
	require.NoError(t, err)
	all, err := Collect(ctx, full)
	require.NoError(t, err)

	for _, target := range []int64{0, 100, 102, 110, 111, 121, 500} {
		seq, err := Plan(ctx, s, All, 1.0, nil, WithPageSize(2))
		require.NoError(t, err)
		// Consume a little first so Seek has to discard state.
		_, _, err = seq.Next(ctx)
		require.NoError(t, err)

		require.NoError(t, seq.Seek(ctx, target))
		got, err := Collect(ctx, seq)
		require.NoError(t, err)

		var want []Event
		for _, ev := range all {
			if ev.Timestamp >= target {
				want = append(want, ev)
			}
		}
		if len(want) > 0 {
			want[0].Delay = 0
		}
		assert.Equal(t, steps(want), steps(got), "seek to %d", target)
	}
}

func TestSequence_SetRate(t *testing.T) {
	ctx := context.Background()
	s, _ := seedEditDuringCapture(t)

	seq, err := Plan(ctx, s, All, 1.0, nil)
	require.NoError(t, err)
	_, _, err = seq.Next(ctx)
	require.NoError(t, err)

	require.NoError(t, seq.SetRate(0.5))
	ev, ok, err := seq.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2*time.Microsecond, ev.Delay)

	assert.ErrorIs(t, seq.SetRate(0), ErrInvalidRate)
	assert.Equal(t, 0.5, seq.Rate())
}

func TestSequence_Snapshot(t *testing.T) {
	ctx := context.Background()
	s, id := seedEditDuringCapture(t)

	seq, err := Plan(ctx, s, All, 1.0, nil)
	require.NoError(t, err)
	require.NoError(t, seq.Seek(ctx, 105))

	canvas, err := seq.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, canvas, 1)
	assert.Equal(t, id, canvas[0].ID)
	assert.Equal(t, int64(0), canvas[0].Version)

	require.NoError(t, seq.Seek(ctx, 115))
	canvas, err = seq.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, canvas, 1)
	assert.Equal(t, int64(1), canvas[0].Version)
}

type failingReader struct {
	Reader
}

var errDisk = errors.New("disk on fire")

func (failingReader) ReadLines(context.Context, store.LinePage) ([]ir.RawLine, error) {
	return nil, errDisk
}

func TestSequence_ReadErrorPropagates(t *testing.T) {
	ctx := context.Background()
	s, _ := seedEditDuringCapture(t)

	seq, err := Plan(ctx, failingReader{Reader: s}, All, 1.0, nil)
	require.NoError(t, err)
	_, _, err = seq.Next(ctx)
	assert.ErrorIs(t, err, errDisk)
}

func ptr[T any](v T) *T { return &v }
