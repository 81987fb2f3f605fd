package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vectorlane/memquery/internal/document"
)

func TestAddTriggersSizeBasedFlush(t *testing.T) {
	var mu sync.Mutex
	var flushed [][]document.Document
	q := New(Config{BatchSize: 2, FlushIntervalMS: 60000, MaxQueueSize: 10}, func(_ context.Context, batch []document.Document) error {
		mu.Lock()
		defer mu.Unlock()
		flushed = append(flushed, batch)
		return nil
	}, nil)

	require.NoError(t, q.Add(context.Background(), document.Document{ID: "1"}))
	require.Equal(t, 1, q.Len())
	require.NoError(t, q.Add(context.Background(), document.Document{ID: "2"}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, flushed, 1)
	require.Len(t, flushed[0], 2)
	require.Equal(t, 0, q.Len())
}

func TestAddReturnsQueueFullWhenAtCapacity(t *testing.T) {
	q := New(Config{BatchSize: 100, FlushIntervalMS: 60000, MaxQueueSize: 1}, func(context.Context, []document.Document) error {
		return nil
	}, nil)

	require.NoError(t, q.Add(context.Background(), document.Document{ID: "1"}))
	err := q.Add(context.Background(), document.Document{ID: "2"})
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestStopPerformsFinalFlush(t *testing.T) {
	var mu sync.Mutex
	var flushed []document.Document
	q := New(Config{BatchSize: 100, FlushIntervalMS: 60000, MaxQueueSize: 10}, func(_ context.Context, batch []document.Document) error {
		mu.Lock()
		defer mu.Unlock()
		flushed = append(flushed, batch...)
		return nil
	}, nil)

	require.NoError(t, q.Add(context.Background(), document.Document{ID: "1"}))
	q.Stop(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, flushed, 1)
}

func TestTimerFlushesOnInterval(t *testing.T) {
	var mu sync.Mutex
	var flushCount int
	q := New(Config{BatchSize: 100, FlushIntervalMS: 20, MaxQueueSize: 10}, func(context.Context, []document.Document) error {
		mu.Lock()
		defer mu.Unlock()
		flushCount++
		return nil
	}, nil)

	require.NoError(t, q.Add(context.Background(), document.Document{ID: "1"}))
	q.Start(context.Background())
	time.Sleep(80 * time.Millisecond)
	q.Stop(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, flushCount, 1)
}

func TestFlushCallbackErrorDoesNotStopQueue(t *testing.T) {
	var loggedErr error
	q := New(Config{BatchSize: 1, FlushIntervalMS: 60000, MaxQueueSize: 10}, func(context.Context, []document.Document) error {
		return errors.New("upsert failed")
	}, func(err error) { loggedErr = err })

	require.NoError(t, q.Add(context.Background(), document.Document{ID: "1"}))
	require.Error(t, loggedErr)
	require.NoError(t, q.Add(context.Background(), document.Document{ID: "2"}))
}

func TestStartIsIdempotent(t *testing.T) {
	q := New(Config{}, func(context.Context, []document.Document) error { return nil }, nil)
	q.Start(context.Background())
	q.Start(context.Background())
	q.Stop(context.Background())
}
