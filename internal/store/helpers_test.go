package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/skop/internal/ir"
	"github.com/roach88/skop/internal/testutil"
)

// createTestStore creates a new investigation in a temp dir driven by a
// manual clock starting at 1000µs.
func createTestStore(t *testing.T, opts ...Option) (*Store, *testutil.ManualClock) {
	t.Helper()
	clock := testutil.NewManualClock(1000)
	path := filepath.Join(t.TempDir(), "test.skop")
	s, err := Create(path, testMetadata(), append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func testMetadata() ir.Metadata {
	return ir.Metadata{
		Name:        "Azure Falcon",
		Description: "disk latency",
		Color:       ir.Color{R: 0.0, G: 0.5, B: 1.0},
	}
}

// createTestWidget creates a raw_command widget with an empty config.
func createTestWidget(t *testing.T, s *Store) ir.WidgetID {
	t.Helper()
	id, err := s.CreateWidget(context.Background(), "raw_command", []byte(`{"cmd":"uptime"}`),
		ir.Position{X: 10, Y: 20}, ir.Size{W: 400, H: 300})
	require.NoError(t, err)
	return id
}

func texts(lines []ir.RawLine) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}
