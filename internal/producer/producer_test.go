package producer

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func collect(t *testing.T, ctx context.Context, p Producer) ([]string, error) {
	t.Helper()
	var lines []string
	err := p.Produce(ctx, func(line string) error {
		lines = append(lines, line)
		return nil
	})
	return lines, err
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"", ModeOneShot},
		{"oneshot", ModeOneShot},
		{"Continuous", ModeContinuous},
		{"periodic", ModePeriodic},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseMode("sometimes")
	assert.Error(t, err)
}

func TestCommand_OneShot(t *testing.T) {
	requireShell(t)

	lines, err := collect(t, context.Background(), Shell(`printf 'alpha\nbeta\n'; printf 'gamma'`, ModeOneShot, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, lines)
}

func TestCommand_NonZeroExit(t *testing.T) {
	requireShell(t)

	lines, err := collect(t, context.Background(), Shell(`echo partial; echo broken >&2; exit 3`, ModeOneShot, 0))
	assert.Equal(t, []string{"partial"}, lines)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, "broken", exitErr.Stderr)
}

func TestCommand_MissingProgram(t *testing.T) {
	_, err := collect(t, context.Background(), Command{Program: "definitely-not-a-real-program-skop"})
	assert.Error(t, err)

	_, err = collect(t, context.Background(), Command{})
	assert.Error(t, err)
}

func TestCommand_EmitErrorStopsProcess(t *testing.T) {
	requireShell(t)

	stop := errors.New("sink full")
	calls := 0
	err := Shell(`while true; do echo tick; done`, ModeContinuous, 0).Produce(context.Background(), func(string) error {
		calls++
		if calls == 3 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 3, calls)
}

func TestCommand_ContinuousCancelled(t *testing.T) {
	requireShell(t)

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan string, 16)
	done := make(chan error, 1)
	go func() {
		done <- Shell(`while true; do echo tick; sleep 0.01; done`, ModeContinuous, 0).Produce(ctx, func(line string) error {
			select {
			case got <- line:
			default:
			}
			return nil
		})
	}()

	assert.Equal(t, "tick", <-got)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("continuous command did not stop")
	}
}

func TestCommand_PeriodicReruns(t *testing.T) {
	requireShell(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := 0
	err := Shell(`echo run`, ModePeriodic, 5*time.Millisecond).Produce(ctx, func(string) error {
		runs++
		if runs == 3 {
			cancel()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, runs)
}

func TestCommand_PeriodicNeedsInterval(t *testing.T) {
	_, err := collect(t, context.Background(), Shell("true", ModePeriodic, 0))
	assert.Error(t, err)
}

func TestBuffer_KeepsNewest(t *testing.T) {
	b := NewBuffer(3)
	for _, l := range []string{"a", "b", "c", "d"} {
		b.Add(l)
	}
	assert.Equal(t, []string{"b", "c", "d"}, b.Lines())

	b.Restore([]string{"1", "2", "3", "4", "5"})
	assert.Equal(t, []string{"3", "4", "5"}, b.Lines())
	assert.Equal(t, 3, b.Len())
}

func TestBuffer_DefaultSize(t *testing.T) {
	b := NewBuffer(0)
	for i := 0; i < DefaultBufferLines+5; i++ {
		b.Add("x")
	}
	assert.Equal(t, DefaultBufferLines, b.Len())
}

func TestBuffer_WrapsAround(t *testing.T) {
	b := NewBuffer(3)
	for _, l := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		b.Add(l)
	}
	assert.Equal(t, []string{"e", "f", "g"}, b.Lines())

	b.Restore([]string{"1", "2"})
	b.Add("3")
	b.Add("4")
	assert.Equal(t, []string{"2", "3", "4"}, b.Lines())
	b.Add("5")
	assert.Equal(t, []string{"3", "4", "5"}, b.Lines())
}

func TestScanLines_SplitsOverlongLine(t *testing.T) {
	long := strings.Repeat("x", maxLineBytes+10)
	input := "first\r\n" + long + "\nafter\nlast"

	var lines []string
	err := scanLines(strings.NewReader(input), func(line string) error {
		lines = append(lines, line)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, lines, 5)
	assert.Equal(t, "first", lines[0])
	assert.Len(t, lines[1], maxLineBytes)
	assert.Equal(t, strings.Repeat("x", 10), lines[2])
	assert.Equal(t, "after", lines[3])
	assert.Equal(t, "last", lines[4])
}

func TestScanLines_ExactLimitIsOneLine(t *testing.T) {
	exact := strings.Repeat("y", maxLineBytes)

	var lines []string
	err := scanLines(strings.NewReader(exact+"\n\nend\n"), func(line string) error {
		lines = append(lines, line)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, exact, lines[0])
	assert.Equal(t, "", lines[1])
	assert.Equal(t, "end", lines[2])
}

func TestCommand_OverlongLineKeepsCapturing(t *testing.T) {
	requireShell(t)
	if _, err := exec.LookPath("head"); err != nil {
		t.Skip("head not available")
	}

	lines, err := collect(t, context.Background(),
		Shell(`echo first; head -c 1100000 /dev/zero | tr '\0' x; echo; echo after`, ModeOneShot, 0))
	require.NoError(t, err)
	require.NotEmpty(t, lines)
	assert.Equal(t, "first", lines[0])
	assert.Equal(t, "after", lines[len(lines)-1])

	total := 0
	for _, l := range lines[1 : len(lines)-1] {
		assert.LessOrEqual(t, len(l), maxLineBytes)
		total += len(l)
	}
	assert.Equal(t, 1100000, total)
}
