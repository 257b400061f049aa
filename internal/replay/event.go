package replay

import (
	"math"
	"time"

	"github.com/roach88/skop/internal/ir"
)

// Kind discriminates replay events. The numeric order is the tie-break order
// for events sharing a timestamp.
type Kind int

const (
	// KindVersionChange marks a widget edit taking effect.
	KindVersionChange Kind = iota
	// KindRawLine marks one captured output line.
	KindRawLine
)

func (k Kind) String() string {
	switch k {
	case KindVersionChange:
		return "version"
	case KindRawLine:
		return "line"
	default:
		return "unknown"
	}
}

// Event is one step of playback.
type Event struct {
	Kind      Kind
	Timestamp int64 // µs
	WidgetID  ir.WidgetID
	Version   int64

	// Seq and Text are set for KindRawLine.
	Seq  int64
	Text string

	// Widget is the new version for KindVersionChange.
	Widget *ir.WidgetVersion

	// Delay is the wait before presenting this event at the sequence rate.
	Delay time.Duration
}

// Range is an inclusive window of capture time in microseconds.
type Range struct {
	From int64
	To   int64
}

// All covers every representable timestamp.
var All = Range{From: math.MinInt64, To: math.MaxInt64}

func lineEvent(l ir.RawLine) Event {
	return Event{
		Kind:      KindRawLine,
		Timestamp: l.Timestamp,
		WidgetID:  l.WidgetID,
		Version:   l.WidgetVersion,
		Seq:       l.Seq,
		Text:      l.Text,
	}
}

func versionEvent(w ir.WidgetVersion) Event {
	return Event{
		Kind:      KindVersionChange,
		Timestamp: w.CreatedAt,
		WidgetID:  w.ID,
		Version:   w.Version,
		Widget:    &w,
	}
}

// less reports whether a orders before b in replay order.
func less(a, b Event) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	if a.WidgetID != b.WidgetID {
		return a.WidgetID < b.WidgetID
	}
	if a.Version != b.Version {
		return a.Version < b.Version
	}
	return a.Seq < b.Seq
}

// scaleDelay converts a capture-time gap to wall time at rate.
func scaleDelay(gap int64, rate float64) time.Duration {
	if gap <= 0 {
		return 0
	}
	d := float64(gap) * float64(time.Microsecond) / rate
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func validRate(rate float64) bool {
	return rate > 0 && !math.IsInf(rate, 0) && !math.IsNaN(rate)
}
