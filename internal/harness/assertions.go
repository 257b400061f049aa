package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/skop/internal/replay"
)

// AssertionError is returned when an assertion fails.
// It includes the full trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, line := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
	}
	return buf.String()
}

func evaluate(r *Result, a Assertion) error {
	switch a.Type {
	case AssertEventCount:
		return assertEventCount(r, a)
	case AssertTraceContains:
		return assertTraceContains(r, a)
	case AssertTextOrder:
		return assertTextOrder(r, a)
	case AssertWidgetVersion:
		return assertWidgetVersion(r, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertEventCount checks the number of replayed events.
func assertEventCount(r *Result, a Assertion) error {
	if len(r.Trace) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventCount,
		Expected: fmt.Sprintf("%d events", a.Count),
		Actual:   fmt.Sprintf("%d events", len(r.Trace)),
		Trace:    r.Trace,
	}
}

// assertTraceContains checks that a rendered trace line matches exactly.
func assertTraceContains(r *Result, a Assertion) error {
	for _, line := range r.Trace {
		if line == a.Line {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: a.Line,
		Actual:   "not found in trace",
		Trace:    r.Trace,
	}
}

// assertTextOrder checks that line texts appear in the given order.
// Texts don't need to be consecutive.
func assertTextOrder(r *Result, a Assertion) error {
	next := 0
	for _, ev := range r.Events {
		if next == len(a.Texts) {
			break
		}
		if ev.Kind == replay.KindRawLine && ev.Text == a.Texts[next] {
			next++
		}
	}
	if next == len(a.Texts) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTextOrder,
		Expected: fmt.Sprintf("texts in order: %q", a.Texts),
		Actual:   fmt.Sprintf("%q not found after %q", a.Texts[next], a.Texts[:next]),
		Trace:    r.Trace,
	}
}

// assertWidgetVersion checks the version carried by a widget's last event.
func assertWidgetVersion(r *Result, a Assertion) error {
	for i := len(r.Events) - 1; i >= 0; i-- {
		ev := r.Events[i]
		if ev.WidgetID != a.Widget {
			continue
		}
		if ev.Version == a.Version {
			return nil
		}
		return &AssertionError{
			Type:     AssertWidgetVersion,
			Expected: fmt.Sprintf("widget %d ends at version %d", a.Widget, a.Version),
			Actual:   fmt.Sprintf("version %d", ev.Version),
			Trace:    r.Trace,
		}
	}
	return &AssertionError{
		Type:     AssertWidgetVersion,
		Expected: fmt.Sprintf("widget %d ends at version %d", a.Widget, a.Version),
		Actual:   "no events for widget",
		Trace:    r.Trace,
	}
}
