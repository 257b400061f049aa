package replay

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/roach88/skop/internal/ir"
	"github.com/roach88/skop/internal/store"
)

// DefaultPageSize is the number of lines fetched per keyset page.
const DefaultPageSize = 512

// Reader is the read side of an investigation used by replay.
// *store.Store implements it.
type Reader interface {
	ReadLines(ctx context.Context, page store.LinePage) ([]ir.RawLine, error)
	VersionChanges(ctx context.Context, from, to int64, filter []ir.WidgetID) ([]ir.WidgetVersion, error)
	WidgetsAt(ctx context.Context, ts int64, filter []ir.WidgetID) ([]ir.WidgetVersion, error)
}

// Option configures Plan.
type Option func(*Sequence)

// WithPageSize sets how many lines are read per page. Values below 1 are
// ignored.
func WithPageSize(n int) Option {
	return func(s *Sequence) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// Sequence is a restartable, totally ordered stream of replay events.
//
// Thread-safety: methods are safe for concurrent use, but events are handed
// out one at a time so a Sequence has a single logical consumer.
type Sequence struct {
	reader   Reader
	rng      Range
	filter   []ir.WidgetID
	pageSize int

	mu   sync.Mutex
	rate float64

	changes []ir.WidgetVersion // sorted in replay order, loaded once
	ci      int                // next change to emit

	lineFrom  int64 // lower timestamp bound after the last Seek
	page      []ir.RawLine
	pi        int
	after     *store.LineKey // key of the last line fetched
	linesDone bool

	started bool
	lastTS  int64
	cursor  int64
}

// Plan prepares playback of rng at rate. A non-empty filter restricts the
// widgets replayed.
//
// Returns ErrInvalidRate for a rate that is not finite and positive, and
// ErrInvalidRange when rng.From > rng.To. An empty window yields a sequence
// that is immediately exhausted.
func Plan(ctx context.Context, reader Reader, rng Range, rate float64, filter []ir.WidgetID, opts ...Option) (*Sequence, error) {
	if !validRate(rate) {
		return nil, eris.Wrapf(ErrInvalidRate, "rate %v", rate)
	}
	if rng.From > rng.To {
		return nil, eris.Wrapf(ErrInvalidRange, "from %d to %d", rng.From, rng.To)
	}

	changes, err := reader.VersionChanges(ctx, rng.From, rng.To, filter)
	if err != nil {
		return nil, eris.Wrap(err, "load version changes")
	}
	sort.SliceStable(changes, func(i, j int) bool {
		return less(versionEvent(changes[i]), versionEvent(changes[j]))
	})

	s := &Sequence{
		reader:   reader,
		rng:      rng,
		filter:   append([]ir.WidgetID(nil), filter...),
		pageSize: DefaultPageSize,
		rate:     rate,
		changes:  changes,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reposition(rng.From)
	return s, nil
}

// Next returns the next event. ok is false once the sequence is exhausted.
func (s *Sequence) Next(ctx context.Context) (ev Event, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Event{}, false, err
	}

	line, haveLine, err := s.peekLine(ctx)
	if err != nil {
		return Event{}, false, err
	}
	haveChange := s.ci < len(s.changes)

	switch {
	case haveChange && (!haveLine || !less(lineEvent(line), versionEvent(s.changes[s.ci]))):
		ev = versionEvent(s.changes[s.ci])
		s.ci++
	case haveLine:
		ev = lineEvent(line)
		s.pi++
	default:
		return Event{}, false, nil
	}

	if s.started {
		ev.Delay = scaleDelay(ev.Timestamp-s.lastTS, s.rate)
	}
	s.started = true
	s.lastTS = ev.Timestamp
	s.cursor = ev.Timestamp
	return ev, true, nil
}

// Seek repositions the sequence at the first event with timestamp >= t.
// t is clamped to the planned range. The next event has no delay.
func (s *Sequence) Seek(ctx context.Context, t int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reposition(max(t, s.rng.From))
	return nil
}

// Reset restarts the sequence from the start of its range. The events that
// follow are identical to those of a fresh Plan with the same arguments.
func (s *Sequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reposition(s.rng.From)
}

// SetRate changes the playback rate for events not yet emitted.
func (s *Sequence) SetRate(rate float64) error {
	if !validRate(rate) {
		return eris.Wrapf(ErrInvalidRate, "rate %v", rate)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = rate
	return nil
}

// Rate returns the current playback rate.
func (s *Sequence) Rate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// Range returns the planned window.
func (s *Sequence) Range() Range {
	return s.rng
}

// Cursor returns the timestamp of the last emitted event, or the seek
// position if nothing has been emitted since.
func (s *Sequence) Cursor() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Snapshot returns the canvas at the cursor: every widget visible at that
// time in the version then in effect. It may already include version changes
// stamped exactly at the cursor that have not been emitted yet.
func (s *Sequence) Snapshot(ctx context.Context) ([]ir.WidgetVersion, error) {
	cursor := s.Cursor()
	widgets, err := s.reader.WidgetsAt(ctx, cursor, s.filter)
	if err != nil {
		return nil, eris.Wrapf(err, "snapshot at %d", cursor)
	}
	return widgets, nil
}

// reposition must be called with mu held.
func (s *Sequence) reposition(t int64) {
	s.ci = sort.Search(len(s.changes), func(i int) bool {
		return s.changes[i].CreatedAt >= t
	})
	s.lineFrom = t
	s.page = nil
	s.pi = 0
	s.after = nil
	s.linesDone = t > s.rng.To
	s.started = false
	s.lastTS = 0
	s.cursor = t
}

// peekLine returns the next unread line, fetching a page when needed.
func (s *Sequence) peekLine(ctx context.Context) (ir.RawLine, bool, error) {
	if s.pi < len(s.page) {
		return s.page[s.pi], true, nil
	}
	if s.linesDone {
		return ir.RawLine{}, false, nil
	}

	page, err := s.reader.ReadLines(ctx, store.LinePage{
		From:    s.lineFrom,
		To:      s.rng.To,
		After:   s.after,
		Widgets: s.filter,
		Limit:   s.pageSize,
	})
	if err != nil {
		return ir.RawLine{}, false, eris.Wrap(err, "read lines")
	}
	if len(page) < s.pageSize {
		s.linesDone = true
	}
	s.page = page
	s.pi = 0
	if len(page) == 0 {
		return ir.RawLine{}, false, nil
	}
	k := store.KeyOf(page[len(page)-1])
	s.after = &k
	return page[0], true, nil
}

// Collect drains the remaining events of a sequence.
func Collect(ctx context.Context, s *Sequence) ([]Event, error) {
	events := []Event{}
	for {
		ev, ok, err := s.Next(ctx)
		if err != nil {
			return events, err
		}
		if !ok {
			return events, nil
		}
		events = append(events, ev)
	}
}
