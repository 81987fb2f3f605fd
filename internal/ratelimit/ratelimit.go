// Package ratelimit implements a sliding-window rate limiter that admits a
// call only when it fits under both a request-count ceiling and a
// cumulative-cost ceiling within the same trailing window.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RequestLimitExceeded is returned by Allow when the request-count ceiling
// has been hit. RetryAfter is how long until the oldest admitted record
// ages out of the window and a slot frees up.
type RequestLimitExceeded struct {
	RetryAfter time.Duration
}

func (e *RequestLimitExceeded) Error() string {
	return fmt.Sprintf("ratelimit: request limit exceeded, retry after %s", e.RetryAfter)
}

// BudgetExceeded is returned by Allow when the cumulative-cost ceiling would
// be exceeded by admitting the call. RetryAfter is how long until enough
// cost ages out of the window to fit the call, or 0 if the call's cost
// alone exceeds the ceiling and can never be admitted.
type BudgetExceeded struct {
	RetryAfter time.Duration
}

func (e *BudgetExceeded) Error() string {
	return fmt.Sprintf("ratelimit: budget exceeded, retry after %s", e.RetryAfter)
}

type record struct {
	at        time.Time
	costCents float64
}

// Limiter bounds both the number of admitted calls and their cumulative cost
// within a trailing time window. One Limiter instance is meant to be shared
// across goroutines guarding a single rate-limited collaborator (e.g. an LLM
// provider).
type Limiter struct {
	window       time.Duration
	maxRequests  int
	maxCostCents float64

	mu      sync.Mutex
	history []record
}

// New constructs a Limiter. maxRequests <= 0 disables the request-count
// constraint; maxCostCents <= 0 disables the cost constraint.
func New(window time.Duration, maxRequests int, maxCostCents float64) *Limiter {
	return &Limiter{window: window, maxRequests: maxRequests, maxCostCents: maxCostCents}
}

// Allow reports whether a call costing costCents may proceed right now. On
// success it records the call and returns nil. On rejection it returns
// either a *RequestLimitExceeded or a *BudgetExceeded carrying a RetryAfter
// hint: the caller can use this to decide whether to wait (RetryAfter > 0)
// or give up outright (RetryAfter == 0, meaning no amount of waiting will
// ever admit this call — the cost alone exceeds the ceiling). It never
// blocks.
func (l *Limiter) Allow(costCents float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.prune(now)

	if l.maxCostCents > 0 && costCents > l.maxCostCents {
		return &BudgetExceeded{RetryAfter: 0}
	}

	if l.maxRequests > 0 && len(l.history) >= l.maxRequests {
		retryAfter := l.history[0].at.Add(l.window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &RequestLimitExceeded{RetryAfter: retryAfter}
	}

	if l.maxCostCents > 0 {
		total := l.totalCost() + costCents
		if total > l.maxCostCents {
			return &BudgetExceeded{RetryAfter: l.retryAfterBudgetFrees(costCents, now)}
		}
	}

	l.history = append(l.history, record{at: now, costCents: costCents})
	return nil
}

// retryAfterBudgetFrees finds the earliest point at which evicting the
// oldest records (as the window slides) frees enough budget for costCents
// to fit, and returns how long until then. Called only once costCents <=
// l.maxCostCents has already been established, so removing every current
// record is always sufficient and a retry time is always found.
func (l *Limiter) retryAfterBudgetFrees(costCents float64, now time.Time) time.Duration {
	total := l.totalCost()
	var removed float64
	for _, r := range l.history {
		removed += r.costCents
		if total-removed+costCents <= l.maxCostCents {
			retryAfter := r.at.Add(l.window).Sub(now)
			if retryAfter < 0 {
				retryAfter = 0
			}
			return retryAfter
		}
	}
	return 0
}

// Wait blocks, polling on a short interval, until Allow succeeds or ctx is
// cancelled, for callers that prefer waiting to failing outright under
// bursty load (the rerank router calls Allow instead and degrades on
// rejection). If the call can never be admitted (a BudgetExceeded
// with RetryAfter == 0), Wait returns that error immediately instead of
// polling until ctx expires.
func (l *Limiter) Wait(ctx context.Context, costCents float64) error {
	for {
		err := l.Allow(costCents)
		if err == nil {
			return nil
		}
		if budgetErr, ok := err.(*BudgetExceeded); ok && budgetErr.RetryAfter == 0 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Remaining reports how many more requests could be admitted right now
// under the request-count constraint alone (ignoring cost), or -1 if that
// constraint is disabled. Useful for callers that want to size a bounded
// fan-out to what the limiter can actually absorb.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.maxRequests <= 0 {
		return -1
	}
	l.prune(time.Now())
	n := l.maxRequests - len(l.history)
	if n < 0 {
		return 0
	}
	return n
}

func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for ; i < len(l.history); i++ {
		if l.history[i].at.After(cutoff) {
			break
		}
	}
	if i > 0 {
		l.history = l.history[i:]
	}
}

func (l *Limiter) totalCost() float64 {
	var sum float64
	for _, r := range l.history {
		sum += r.costCents
	}
	return sum
}
