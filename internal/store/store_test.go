package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skop/internal/ir"
	"github.com/roach88/skop/internal/testutil"
)

func TestCreate_NewInvestigation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inv.skop")

	s, err := Create(path, testMetadata(), WithClock(testutil.NewManualClock(42)))
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	require.NoError(t, err, "database file was not created")

	tables := []string{"metadata", "widgets", "raw_data"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		assert.NoError(t, err, "table %q not found", table)
	}

	meta, err := s.Metadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Azure Falcon", meta.Name)
	assert.Equal(t, "disk latency", meta.Description)
	assert.Equal(t, ir.Color{R: 0.0, G: 0.5, B: 1.0}, meta.Color)
	assert.Equal(t, int64(42), meta.CreatedAt)
	assert.Equal(t, ir.SchemaVersion, meta.SchemaVersion)
	assert.Equal(t, ClockSourceSystem, meta.ClockSource)
	assert.Len(t, meta.UID, 36)
}

func TestCreate_ExistingPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inv.skop")
	require.NoError(t, os.WriteFile(path, []byte("occupied"), 0o644))

	_, err := Create(path, testMetadata())
	assert.ErrorIs(t, err, ErrAlreadyExists)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "occupied", string(data), "existing file must be untouched")
}

func TestCreate_InvalidPath(t *testing.T) {
	_, err := Create("/nonexistent/dir/inv.skop", testMetadata())
	assert.Error(t, err)
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.skop"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))
}

func TestOpen_NotADatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.skop")
	garbage := make([]byte, 4096)
	for i := range garbage {
		garbage[i] = byte('x')
	}
	require.NoError(t, os.WriteFile(path, garbage, 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrCorruptOrIncompatible)
}

func TestOpen_ForeignSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.db")
	s, err := Create(path, testMetadata())
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA application_id = 7")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.ErrorIs(t, err, ErrCorruptOrIncompatible)
	assert.Contains(t, err.Error(), "not a skop investigation")
}

func TestOpen_NewerSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.skop")
	s, err := Create(path, testMetadata())
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 7")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.ErrorIs(t, err, ErrCorruptOrIncompatible)
	assert.Contains(t, err.Error(), "schema version 7 is newer than supported 1")
}

func TestOpen_AlreadyOpen(t *testing.T) {
	s, _ := createTestStore(t)

	_, err := Open(s.Path())
	assert.ErrorIs(t, err, ErrAlreadyOpen)

	require.NoError(t, s.Close())

	s2, err := Open(s.Path())
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestOpen_Pragmas(t *testing.T) {
	s, _ := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "2"}, // FULL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"application_id", "1936420720"},
		{"user_version", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, s.verifyPragma(tt.name, tt.expected))
		})
	}
}

func TestOpen_CustomOptions(t *testing.T) {
	s, _ := createTestStore(t, WithBusyTimeout(250*time.Millisecond), WithSynchronous("normal"))

	assert.NoError(t, s.verifyPragma("busy_timeout", "250"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
}

func TestReopen_PreservesEverything(t *testing.T) {
	ctx := context.Background()
	s, clock := createTestStore(t)
	path := s.Path()

	id := createTestWidget(t, s)
	clock.Set(2000)
	_, err := s.Append(ctx, id, 0, "load average: 0.10")
	require.NoError(t, err)
	clock.Set(3000)
	v, err := s.UpdateWidget(ctx, id, WidgetPatch{Config: []byte(`{"cmd":"uptime -p"}`)})
	require.NoError(t, err)
	clock.Set(4000)
	_, err = s.Append(ctx, id, v, "up 3 days")
	require.NoError(t, err)

	before, err := s.LinesForWidget(ctx, id)
	require.NoError(t, err)
	history, err := s.History(ctx, id)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(path, WithClock(testutil.NewManualClock(5000)))
	require.NoError(t, err)
	defer reopened.Close()

	after, err := reopened.LinesForWidget(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	history2, err := reopened.History(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, history, history2)

	meta, err := reopened.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Azure Falcon", meta.Name)

	// Seq continues after reopen.
	ref, err := reopened.Append(ctx, id, v, "up 4 days")
	require.NoError(t, err)
	assert.Equal(t, int64(1), ref.Seq)
}

func TestReopen_SystemClockNeverGoesBackwards(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "inv.skop")
	future := time.Now().Add(time.Hour).UnixMicro()

	s, err := Create(path, testMetadata(), WithClock(testutil.NewManualClock(future)))
	require.NoError(t, err)
	id := createTestWidget(t, s)
	_, err = s.Append(ctx, id, 0, "from the future")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	ref, err := reopened.Append(ctx, id, 0, "now")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ref.Timestamp, future)
}

func TestClose_Idempotent(t *testing.T) {
	s, _ := createTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestClose_LaterCallsFail(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)
	id := createTestWidget(t, s)
	require.NoError(t, s.Close())

	_, err := s.Append(ctx, id, 0, "late")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Current(ctx, id)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Metadata(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.ReadLines(ctx, LinePage{From: 0, To: 1 << 62})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClose_WaitsForInFlightAppends(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)
	id := createTestWidget(t, s)

	const writers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := s.Append(ctx, id, 0, "line")
				if errors.Is(err, ErrClosed) {
					return
				}
				if err == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}
		}()
	}
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Close())
	wg.Wait()

	reopened, err := Open(s.Path())
	require.NoError(t, err)
	defer reopened.Close()

	n, err := reopened.CountLines(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(accepted), n, "every acknowledged append must be durable")
}

func TestMetadata_Update(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)

	red, ok := ir.LookupColor("red")
	require.True(t, ok)
	require.NoError(t, s.UpdateMetadata(ctx, "Red Otter", "network flaps", red))

	meta, err := s.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Red Otter", meta.Name)
	assert.Equal(t, "network flaps", meta.Description)
	assert.Equal(t, red, meta.Color)
}

func TestMetadata_MalformedColorFallsBack(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)
	_, err := s.db.Exec(`UPDATE metadata SET value = 'bogus' WHERE key = 'color'`)
	require.NoError(t, err)

	meta, err := s.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.DefaultColor, meta.Color)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s, clock := createTestStore(t)

	a := createTestWidget(t, s)
	b := createTestWidget(t, s)
	clock.Set(1500)
	_, err := s.AppendBatch(ctx, a, 0, []string{"x", "y"})
	require.NoError(t, err)
	clock.Set(1800)
	_, err = s.UpdateWidget(ctx, b, WidgetPatch{Collapsed: ptr(true)})
	require.NoError(t, err)
	require.NoError(t, s.Archive(ctx, b))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Widgets: 2, ActiveWidgets: 1, Versions: 3, Lines: 2, FirstLine: 1500, LastLine: 1500}, st)
}

func ptr[T any](v T) *T { return &v }
