package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/skop/internal/ir"
	"github.com/roach88/skop/internal/replay"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step behaved as expected and every assertion
	// held.
	Pass bool `json:"pass"`

	// Snapshot lists the canvas at the replay start, when requested.
	Snapshot []string `json:"snapshot,omitempty"`

	// Trace holds one rendered line per replay event.
	Trace []string `json:"trace"`

	// Events are the raw replay events behind Trace.
	Events []replay.Event `json:"-"`

	// Errors contains validation error messages.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []string{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent renders ev into the trace.
func (r *Result) AddEvent(ev replay.Event) {
	r.Events = append(r.Events, ev)
	r.Trace = append(r.Trace, FormatEvent(ev))
}

// Render returns the golden-file form of the result.
func (r *Result) Render(name string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", name)
	for _, line := range r.Snapshot {
		fmt.Fprintf(&b, "snapshot %s\n", line)
	}
	for _, line := range r.Trace {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// FormatEvent renders one replay event as a trace line, e.g.
//
//	100 line w=1 v=0 seq=0 delay=0s "a"
//	110 version w=1 v=1 delay=5µs type=raw_command config={"cmd":"df"}
func FormatEvent(ev replay.Event) string {
	switch ev.Kind {
	case replay.KindRawLine:
		return fmt.Sprintf("%d %s w=%d v=%d seq=%d delay=%s %q",
			ev.Timestamp, ev.Kind, ev.WidgetID, ev.Version, ev.Seq, ev.Delay, ev.Text)
	default:
		s := fmt.Sprintf("%d %s w=%d v=%d delay=%s", ev.Timestamp, ev.Kind, ev.WidgetID, ev.Version, ev.Delay)
		if ev.Widget != nil {
			s += " " + formatWidget(*ev.Widget)
		}
		return s
	}
}

func formatWidget(w ir.WidgetVersion) string {
	s := fmt.Sprintf("type=%s config=%s", w.Type, w.Config)
	if w.Collapsed {
		s += " collapsed"
	}
	return s
}

// FormatWidget renders a canvas entry for snapshots.
func FormatWidget(w ir.WidgetVersion) string {
	return fmt.Sprintf("w=%d v=%d %s pos=%g,%g size=%gx%g", w.ID, w.Version, formatWidget(w),
		w.Position.X, w.Position.Y, w.Size.W, w.Size.H)
}
