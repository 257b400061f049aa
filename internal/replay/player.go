package replay

import (
	"context"
	"time"
)

// Handler presents one event. Returning an error stops playback.
type Handler func(Event) error

// Player paces a Sequence in wall time, sleeping each event's delay before
// handing it to a Handler.
type Player struct {
	seq    *Sequence
	seekCh chan int64
}

// NewPlayer creates a player for seq.
func NewPlayer(seq *Sequence) *Player {
	return &Player{seq: seq, seekCh: make(chan int64, 1)}
}

// Sequence returns the underlying sequence.
func (p *Player) Sequence() *Sequence {
	return p.seq
}

// Seek asks a running player to jump to t. A pending delay is abandoned
// immediately; the event it was waiting for is dropped and playback resumes
// at the first event with timestamp >= t. Only the latest request is kept.
func (p *Player) Seek(t int64) {
	for {
		select {
		case p.seekCh <- t:
			return
		default:
		}
		select {
		case <-p.seekCh:
		default:
		}
	}
}

// SetRate changes the speed for events not yet emitted.
func (p *Player) SetRate(rate float64) error {
	return p.seq.SetRate(rate)
}

// Run plays the sequence until it is exhausted, ctx is cancelled, or h
// returns an error.
func (p *Player) Run(ctx context.Context, h Handler) error {
	for {
		select {
		case t := <-p.seekCh:
			if err := p.seq.Seek(ctx, t); err != nil {
				return err
			}
		default:
		}

		ev, ok, err := p.seq.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if ev.Delay > 0 {
			timer := time.NewTimer(ev.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case t := <-p.seekCh:
				timer.Stop()
				if err := p.seq.Seek(ctx, t); err != nil {
					return err
				}
				continue
			case <-timer.C:
			}
		}

		if err := h(ev); err != nil {
			return err
		}
	}
}
