// Package ratelimit bounds outbound request rate to the shared provider
// account: at most N submissions per sliding window. Callers over the limit
// block in Acquire until a slot frees, which is the intended backpressure
// signal under sustained overload.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type Limiter struct {
	maxRequests int
	window      time.Duration
	log         *slog.Logger

	mu         sync.Mutex
	timestamps []time.Time

	queued atomic.Int64
}

// New creates a limiter admitting at most maxRequests per window.
func New(maxRequests int, window time.Duration, log *slog.Logger) *Limiter {
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		log:         log,
	}
}

// Queued returns how many callers are currently waiting in Acquire.
func (l *Limiter) Queued() int {
	return int(l.queued.Load())
}

// Acquire blocks until a rate-limit slot is available and reserves it.
// It returns early with ctx.Err() if the context is canceled while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.queued.Add(1)
	defer l.queued.Add(-1)

	for {
		wait, ok := l.tryReserve()
		if ok {
			return nil
		}

		if l.log != nil {
			l.log.Info("rate limit reached, waiting",
				"max", l.maxRequests,
				"window", l.window,
				"wait", wait,
				"queued", l.Queued(),
			)
		}

		timer := time.NewTimer(wait + 100*time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryReserve takes a slot if one is free. Otherwise it returns how long
// until the oldest timestamp leaves the window.
func (l *Limiter) tryReserve() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	live := l.timestamps[:0]
	for _, t := range l.timestamps {
		if now.Sub(t) < l.window {
			live = append(live, t)
		}
	}
	l.timestamps = live

	if len(l.timestamps) < l.maxRequests {
		l.timestamps = append(l.timestamps, now)
		return 0, true
	}

	return l.timestamps[0].Add(l.window).Sub(now), false
}
