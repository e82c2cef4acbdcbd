// Package ratelimit paces successive visits to politeness-flagged vendors.
package ratelimit

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Window bounds the randomized pause between two visits.
type Window struct {
	Min time.Duration
	Max time.Duration
}

func (w Window) pick(rng *rand.Rand) time.Duration {
	if w.Max <= w.Min {
		return w.Min
	}
	return w.Min + time.Duration(rng.Int63n(int64(w.Max-w.Min)))
}

func (w Window) scale(factor float64, ceiling time.Duration) Window {
	return Window{
		Min: capAt(time.Duration(float64(w.Min)*factor), ceiling/2),
		Max: capAt(time.Duration(float64(w.Max)*factor), ceiling),
	}
}

// Backoff widens the window once ErrorStreak consecutive items fail and
// restores the base window after RecoverAfter consecutive successes.
type Backoff struct {
	ErrorStreak  int
	RecoverAfter int
	Factor       float64
	Ceiling      time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{
		ErrorStreak:  3,
		RecoverAfter: 5,
		Factor:       1.5,
		Ceiling:      2 * time.Minute,
	}
}

// Pacer measures the pause from the previous visit, so time spent processing
// an item counts toward the next delay. The first visit never waits.
type Pacer struct {
	mu        sync.Mutex
	base      Window
	current   Window
	backoff   Backoff
	lastVisit time.Time
	failures  int
	successes int
	rng       *rand.Rand
	now       func() time.Time
	logger    *slog.Logger
}

func NewPacer(base Window, backoff Backoff, logger *slog.Logger) *Pacer {
	return &Pacer{
		base:    base,
		current: base,
		backoff: backoff,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
		logger:  logger.With("component", "pacer"),
	}
}

func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.lastVisit.IsZero() {
		remaining := p.current.pick(p.rng) - p.now().Sub(p.lastVisit)
		if remaining > 0 {
			timer := time.NewTimer(remaining)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	p.lastVisit = p.now()
	return nil
}

// Reset forgets the previous visit so the next Wait returns immediately. The
// current window and failure streaks are kept.
func (p *Pacer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastVisit = time.Time{}
}

func (p *Pacer) Window() Window {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Pacer) RecordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failures = 0
	p.successes++
	if p.successes < p.backoff.RecoverAfter {
		return
	}
	p.successes = 0
	if p.current != p.base {
		p.logger.Info("politeness window restored", "min", p.base.Min, "max", p.base.Max)
		p.current = p.base
	}
}

func (p *Pacer) RecordError() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.successes = 0
	p.failures++
	if p.failures < p.backoff.ErrorStreak {
		return
	}
	p.failures = 0
	p.current = p.current.scale(p.backoff.Factor, p.backoff.Ceiling)
	p.logger.Warn("politeness window widened", "min", p.current.Min, "max", p.current.Max)
}

func capAt(d, limit time.Duration) time.Duration {
	if d > limit {
		return limit
	}
	return d
}
