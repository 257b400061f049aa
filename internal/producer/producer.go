package producer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Producer emits output lines. Produce returns when the producer is done,
// emit fails, or ctx is cancelled. An emit error is returned unchanged.
type Producer interface {
	Produce(ctx context.Context, emit func(line string) error) error
}

// ProducerFunc adapts a function to Producer.
type ProducerFunc func(ctx context.Context, emit func(line string) error) error

// Produce calls f.
func (f ProducerFunc) Produce(ctx context.Context, emit func(line string) error) error {
	return f(ctx, emit)
}

// Mode is how a command is scheduled.
type Mode string

const (
	// ModeOneShot runs the command once.
	ModeOneShot Mode = "oneshot"
	// ModeContinuous runs a long-lived command and streams its output.
	ModeContinuous Mode = "continuous"
	// ModePeriodic reruns the command every Interval.
	ModePeriodic Mode = "periodic"
)

// ParseMode parses a mode name. The empty string is ModeOneShot.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeOneShot:
		return ModeOneShot, nil
	case ModeContinuous:
		return ModeContinuous, nil
	case ModePeriodic:
		return ModePeriodic, nil
	default:
		return "", fmt.Errorf("unknown execution mode %q", s)
	}
}

// maxLineBytes bounds a single output line.
const maxLineBytes = 1 << 20

// waitDelay bounds how long a cancelled command's children may hold its
// output pipe open.
const waitDelay = 2 * time.Second

// Command runs a subprocess and emits its stdout line by line.
type Command struct {
	Program  string
	Args     []string
	Mode     Mode
	Interval time.Duration // ModePeriodic only
	Dir      string
	Env      []string
}

// Shell returns a command that runs script with "sh -c".
func Shell(script string, mode Mode, interval time.Duration) Command {
	return Command{Program: "sh", Args: []string{"-c", script}, Mode: mode, Interval: interval}
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Program + " " + strings.Join(c.Args, " "))
}

// Produce runs the command according to its mode.
func (c Command) Produce(ctx context.Context, emit func(string) error) error {
	if c.Program == "" {
		return eris.New("command has no program")
	}
	if c.Mode != ModePeriodic {
		return c.runOnce(ctx, emit)
	}

	if c.Interval <= 0 {
		return eris.Errorf("periodic command %q needs a positive interval", c.String())
	}
	for {
		if err := c.runOnce(ctx, emit); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ee *ExitError
			if !eris.As(err, &ee) {
				return err
			}
			zap.L().Warn("periodic command failed",
				zap.String("command", c.String()),
				zap.Error(err))
		}

		timer := time.NewTimer(c.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ExitError reports a command that ran but exited unsuccessfully.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: exit status %d", e.Command, e.Code)
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.Code, e.Stderr)
}

func (c Command) runOnce(ctx context.Context, emit func(string) error) error {
	cmd := exec.CommandContext(ctx, c.Program, c.Args...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = waitDelay
	if len(c.Env) > 0 {
		cmd.Env = c.Env
	}
	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderr, n: 4096}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return eris.Wrapf(err, "pipe %q", c.String())
	}
	if err := cmd.Start(); err != nil {
		return eris.Wrapf(err, "start %q", c.String())
	}

	scanErr := scanLines(stdout, emit)
	if scanErr != nil {
		// Stop the process; its exit status no longer matters.
		cmd.Process.Kill()
		cmd.Wait()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return scanErr
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if eris.As(err, &exitErr) {
			return &ExitError{Command: c.String(), Code: exitErr.ExitCode(), Stderr: strings.TrimSpace(stderr.String())}
		}
		return eris.Wrapf(err, "wait %q", c.String())
	}
	return nil
}

// scanLines emits each line of r without its line ending. A line longer
// than maxLineBytes is emitted in maxLineBytes pieces and reading continues.
func scanLines(r io.Reader, emit func(string) error) error {
	br := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	for {
		frag, err := br.ReadSlice('\n')
		line = append(line, frag...)
		if err == nil {
			line = trimEOL(line)
		}
		for len(line) > maxLineBytes {
			if emitErr := emit(string(line[:maxLineBytes])); emitErr != nil {
				return emitErr
			}
			line = append(line[:0], line[maxLineBytes:]...)
		}

		switch {
		case err == nil:
			if emitErr := emit(string(line)); emitErr != nil {
				return emitErr
			}
			line = line[:0]
		case errors.Is(err, bufio.ErrBufferFull):
		case errors.Is(err, io.EOF):
			if len(line) > 0 {
				return emit(string(trimEOL(line)))
			}
			return nil
		default:
			return eris.Wrap(err, "read output")
		}
	}
}

func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte("\n"))
	return bytes.TrimSuffix(b, []byte("\r"))
}

type limitedWriter struct {
	w io.Writer
	n int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	size := len(p)
	if l.n <= 0 {
		return size, nil
	}
	if len(p) > l.n {
		p = p[:l.n]
	}
	n, err := l.w.Write(p)
	l.n -= n
	if err != nil {
		return n, err
	}
	return size, nil
}
