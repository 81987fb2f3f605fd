// Package queue implements the bounded batch queue sitting between the
// event consumer and the document indexer: a mutex-guarded buffer flushed
// either when it reaches batch_size or on a timer, whichever comes first.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vectorlane/memquery/internal/document"
)

// ErrQueueFull is returned by Add when the buffer is already at MaxQueueSize.
var ErrQueueFull = errors.New("queue: full")

// FlushFunc is invoked with a swapped-out batch. Errors are logged by the
// queue and never stop the flush loop or propagate to the caller of Add.
type FlushFunc func(ctx context.Context, batch []document.Document) error

// ErrorHandler receives flush callback errors for logging; nil is treated
// as a no-op.
type ErrorHandler func(err error)

// Config sets the three knobs spec §4.8 names, with its defaults.
type Config struct {
	BatchSize       int // default 100
	FlushIntervalMS int // default 5000
	MaxQueueSize    int // default 1000
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushIntervalMS <= 0 {
		c.FlushIntervalMS = 5000
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 1000
	}
	return c
}

// Queue is the bounded producer/consumer buffer.
type Queue struct {
	cfg     Config
	flush   FlushFunc
	onError ErrorHandler

	mu      sync.Mutex
	buf     []document.Document
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a Queue. flush is called (synchronously, from the goroutine
// that triggered it) with each swapped-out batch.
func New(cfg Config, flush FlushFunc, onError ErrorHandler) *Queue {
	if onError == nil {
		onError = func(error) {}
	}
	return &Queue{cfg: cfg.withDefaults(), flush: flush, onError: onError}
}

// Start spawns the background flush timer. Calling Start twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	timerCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.mu.Unlock()

	q.wg.Add(1)
	go q.timerLoop(timerCtx)
}

func (q *Queue) timerLoop(ctx context.Context) {
	defer q.wg.Done()
	interval := time.Duration(q.cfg.FlushIntervalMS) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.doFlush(ctx)
		}
	}
}

// Add enqueues doc under the mutex. If the buffer is already at
// MaxQueueSize, it returns ErrQueueFull without enqueuing. If this add
// brings the buffer length to BatchSize, a flush is triggered synchronously
// before Add returns.
func (q *Queue) Add(ctx context.Context, doc document.Document) error {
	q.mu.Lock()
	if len(q.buf) >= q.cfg.MaxQueueSize {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.buf = append(q.buf, doc)
	triggerFlush := len(q.buf) >= q.cfg.BatchSize
	q.mu.Unlock()

	if triggerFlush {
		q.doFlush(ctx)
	}
	return nil
}

// doFlush implements the swap-then-flush protocol: swap the buffer with an
// empty one under the mutex, release the mutex, then invoke the callback
// with the swapped batch outside the lock.
func (q *Queue) doFlush(ctx context.Context) {
	q.mu.Lock()
	if len(q.buf) == 0 {
		q.mu.Unlock()
		return
	}
	batch := q.buf
	q.buf = make([]document.Document, 0, q.cfg.BatchSize)
	q.mu.Unlock()

	if err := q.flush(ctx, batch); err != nil {
		q.onError(fmt.Errorf("queue: flush callback: %w", err))
	}
}

// Stop cancels the timer and performs one final flush, draining anything
// still buffered.
func (q *Queue) Stop(ctx context.Context) {
	q.mu.Lock()
	cancel := q.cancel
	started := q.started
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if started {
		q.wg.Wait()
	}
	q.doFlush(ctx)
}

// Len reports the current buffered length, for tests and observability.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}
