// Package ratelimit bounds outbound request rate across all acquisition
// workers with a sliding 60-second window. Acquire never fails, it only
// delays; blocked callers are released in arrival order as the window slides.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits at most limit operations per rolling window, shared by any
// number of concurrent callers.
type Limiter struct {
	limit  int
	window time.Duration

	// Injectable clock for deterministic tests.
	now   func() time.Time
	timer func(d time.Duration) <-chan time.Time

	mu       sync.Mutex
	admitted []time.Time
	waiters  []*waiter
	pumping  bool
}

type waiter struct {
	ch        chan struct{}
	cancelled bool
}

// New creates a limiter admitting limit operations per window.
// A limit <= 0 disables limiting.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		timer:  func(d time.Duration) <-chan time.Time { return time.After(d) },
	}
}

// PerMinute creates a limiter admitting limit operations per rolling minute.
func PerMinute(limit int) *Limiter {
	return New(limit, time.Minute)
}

// Acquire blocks until an operation may proceed or ctx is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.limit <= 0 {
		return nil
	}

	l.mu.Lock()
	now := l.now()
	l.prune(now)
	if len(l.waiters) == 0 && len(l.admitted) < l.limit {
		l.admitted = append(l.admitted, now)
		l.mu.Unlock()
		return nil
	}

	w := &waiter{ch: make(chan struct{})}
	l.waiters = append(l.waiters, w)
	if !l.pumping {
		l.pumping = true
		go l.pump()
	}
	l.mu.Unlock()

	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		w.cancelled = true
		l.mu.Unlock()
		// The pump may have released us between Done and the lock; hand the
		// slot back is not needed then, the admission already happened.
		select {
		case <-w.ch:
			return nil
		default:
		}
		return ctx.Err()
	}
}

// prune drops admissions that have slid out of the window. Callers hold mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.admitted) && !l.admitted[i].After(cutoff) {
		i++
	}
	l.admitted = l.admitted[i:]
}

// pump releases queued waiters in FIFO order as admissions expire.
func (l *Limiter) pump() {
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)
		for len(l.waiters) > 0 && len(l.admitted) < l.limit {
			w := l.waiters[0]
			l.waiters = l.waiters[1:]
			if w.cancelled {
				continue
			}
			l.admitted = append(l.admitted, now)
			close(w.ch)
		}
		if len(l.waiters) == 0 {
			l.pumping = false
			l.mu.Unlock()
			return
		}
		wait := l.admitted[0].Add(l.window).Sub(now)
		l.mu.Unlock()
		if wait <= 0 {
			// Earliest admission already expired; loop to prune and admit.
			continue
		}
		<-l.timer(wait)
	}
}

// pending returns the current queue depth. Used by tests.
func (l *Limiter) pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, w := range l.waiters {
		if !w.cancelled {
			n++
		}
	}
	return n
}
