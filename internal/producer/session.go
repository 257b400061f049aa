package producer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/skop/internal/ir"
)

// Sink accepts captured lines. *store.Store implements it.
type Sink interface {
	Append(ctx context.Context, id ir.WidgetID, version int64, text string) (ir.LineRef, error)
}

// RecentReader is implemented by sinks that can return a widget's latest lines.
type RecentReader interface {
	RecentLines(ctx context.Context, id ir.WidgetID, limit int) ([]ir.RawLine, error)
}

// SinkError wraps a failure to persist a line. It is fatal to a Session.
type SinkError struct {
	WidgetID ir.WidgetID
	Err      error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("capture widget %d: %v", e.WidgetID, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// Pump runs p and appends every line it emits to sink under (id, version).
// Returns the number of lines captured. A sink failure is returned as a
// *SinkError and stops the producer.
func Pump(ctx context.Context, p Producer, sink Sink, id ir.WidgetID, version int64, tee func(string)) (int, error) {
	n := 0
	err := p.Produce(ctx, func(line string) error {
		if _, err := sink.Append(ctx, id, version, line); err != nil {
			return &SinkError{WidgetID: id, Err: err}
		}
		n++
		if tee != nil {
			tee(line)
		}
		return nil
	})
	return n, err
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithRestoreLines sets how many recent lines are restored into a widget's
// buffer when its capture starts.
func WithRestoreLines(n int) SessionOption {
	return func(s *Session) { s.restore = n }
}

// WithTee calls fn with every captured line. fn runs on the producer's
// goroutine and must be safe for concurrent use.
func WithTee(fn func(id ir.WidgetID, line string)) SessionOption {
	return func(s *Session) { s.tee = fn }
}

// Session captures several widgets concurrently into one sink.
type Session struct {
	sink    Sink
	restore int
	tee     func(ir.WidgetID, string)

	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group

	mu      sync.Mutex
	buffers map[ir.WidgetID]*Buffer
	counts  map[ir.WidgetID]int
}

// NewSession creates a session whose pumps stop when ctx is cancelled,
// Stop is called, or any sink write fails.
func NewSession(ctx context.Context, sink Sink, opts ...SessionOption) *Session {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	s := &Session{
		sink:    sink,
		restore: DefaultBufferLines,
		ctx:     gctx,
		cancel:  cancel,
		g:       g,
		buffers: make(map[ir.WidgetID]*Buffer),
		counts:  make(map[ir.WidgetID]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins capturing p into (id, version).
func (s *Session) Start(id ir.WidgetID, version int64, p Producer) {
	buf := s.buffer(id)
	if rc, ok := s.sink.(RecentReader); ok && s.restore > 0 {
		recent, err := rc.RecentLines(s.ctx, id, s.restore)
		if err != nil {
			zap.L().Warn("restore widget output failed", zap.Int64("widget_id", int64(id)), zap.Error(err))
		} else {
			lines := make([]string, len(recent))
			for i, l := range recent {
				lines[i] = l.Text
			}
			buf.Restore(lines)
		}
	}

	s.g.Go(func() error {
		zap.L().Info("producer started", zap.Int64("widget_id", int64(id)), zap.Int64("version", version))
		add := buf.Add
		if s.tee != nil {
			add = func(line string) {
				buf.Add(line)
				s.tee(id, line)
			}
		}
		n, err := Pump(s.ctx, p, s.sink, id, version, add)

		s.mu.Lock()
		s.counts[id] += n
		s.mu.Unlock()

		var sinkErr *SinkError
		switch {
		case errors.As(err, &sinkErr):
			zap.L().Error("capture failed", zap.Int64("widget_id", int64(id)), zap.Error(err))
			return err
		case err != nil && s.ctx.Err() == nil:
			zap.L().Warn("producer failed", zap.Int64("widget_id", int64(id)), zap.Error(err))
		default:
			zap.L().Info("producer stopped", zap.Int64("widget_id", int64(id)), zap.Int("lines", n))
		}
		return nil
	})
}

// Wait blocks until every producer has finished and returns the first sink
// error, if any.
func (s *Session) Wait() error {
	err := s.g.Wait()
	s.cancel()
	if err != nil {
		return eris.Wrap(err, "capture session")
	}
	return nil
}

// Stop cancels all producers and waits for them.
func (s *Session) Stop() error {
	s.cancel()
	return s.Wait()
}

// Output returns the buffered recent lines of a widget.
func (s *Session) Output(id ir.WidgetID) []string {
	return s.buffer(id).Lines()
}

// Captured returns how many lines were captured for a widget this session.
func (s *Session) Captured(id ir.WidgetID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[id]
}

func (s *Session) buffer(id ir.WidgetID) *Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[id]
	if !ok {
		b = NewBuffer(s.restore)
		s.buffers[id] = b
	}
	return b
}
