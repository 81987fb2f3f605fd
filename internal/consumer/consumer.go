// Package consumer implements the durable event-stream consumer: a state
// machine (idle -> starting -> running -> stopping) over a
// segmentio/kafka-go Reader, grounded on the teacher's orchestrator Kafka
// consumer loop (internal/orchestrator/kafka.go) adapted to ack-iff-queued
// semantics and a heartbeat loop.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kafka "github.com/segmentio/kafka-go"

	"github.com/vectorlane/memquery/internal/document"
	"github.com/vectorlane/memquery/internal/queue"
	"github.com/vectorlane/memquery/internal/statusbus"
)

// State names a point in the consumer's lifecycle.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "idle"
	}
}

// Reader is the narrow fetch/commit contract the consumer depends on.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Queue is the batch-queue contract the consumer hands parsed Documents to,
// satisfied by *queue.Queue.
type Queue interface {
	Add(ctx context.Context, doc document.Document) error
}

var _ Queue = (*queue.Queue)(nil)

// rawEvent is the wire shape the fetch loop decodes per message, matching
// the message parsing contract: id and content required, type/sessionId/
// metadata optional.
type rawEvent struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Type      string            `json:"type,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Config configures the Consumer's loops.
type Config struct {
	FetchBatchSize    int           // default 10
	FetchTimeout      time.Duration // default 2s
	HeartbeatInterval time.Duration // default 30s
}

func (c Config) withDefaults() Config {
	if c.FetchBatchSize <= 0 {
		c.FetchBatchSize = 10
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 2 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	return c
}

// Consumer runs the fetch and heartbeat loops over a Reader and a Queue.
type Consumer struct {
	cfg    Config
	reader Reader
	queue  Queue
	bus    *statusbus.Bus
	log    zerolog.Logger

	mu    sync.Mutex
	state State

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Consumer.
type Option func(*Consumer)

func WithLogger(l zerolog.Logger) Option { return func(c *Consumer) { c.log = l } }

func New(cfg Config, reader Reader, q Queue, bus *statusbus.Bus, opts ...Option) *Consumer {
	c := &Consumer{cfg: cfg.withDefaults(), reader: reader, queue: q, bus: bus, state: StateIdle, log: zerolog.Nop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State reports the current lifecycle state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start transitions idle -> starting -> running, spawning the fetch and
// heartbeat loops. Re-entry while already started is a logged no-op.
func (c *Consumer) Start(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		c.log.Info().Str("state", c.state.String()).Msg("consumer: start called while not idle, ignoring")
		return
	}
	c.state = StateStarting
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.bus.Publish(runCtx, statusbus.EventConsumerReady)

	c.mu.Lock()
	c.state = StateRunning
	c.mu.Unlock()

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.fetchLoop(runCtx)
	}()
	go func() {
		defer c.wg.Done()
		c.heartbeatLoop(runCtx)
	}()
}

// Stop transitions running -> stopping: cancels both loops, waits for them
// to exit, closes the reader, and emits consumer_disconnected.
func (c *Consumer) Stop(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateRunning && c.state != StateStarting {
		c.mu.Unlock()
		return
	}
	c.state = StateStopping
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	if err := c.reader.Close(); err != nil {
		c.log.Warn().Err(err).Msg("consumer: reader close failed")
	}
	c.bus.Publish(ctx, statusbus.EventConsumerDisconnected)

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
}

func (c *Consumer) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.bus.Publish(ctx, statusbus.EventConsumerHeartbeat)
		}
	}
}

func (c *Consumer) fetchLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := c.fetchOne(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return
				}
				continue // fetch timed out with nothing available; try again
			}
			c.log.Error().Err(err).Msg("consumer: fetch error")
			continue
		}
		c.handleMessage(ctx, msg)
	}
}

func (c *Consumer) fetchOne(ctx context.Context) (kafka.Message, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()
	return c.reader.FetchMessage(fetchCtx)
}

func (c *Consumer) handleMessage(ctx context.Context, msg kafka.Message) {
	var ev rawEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.log.Warn().Err(err).Msg("consumer: dropping undecodable message")
		c.ack(ctx, msg)
		return
	}
	if ev.ID == "" || ev.Content == "" {
		c.log.Warn().Str("id", ev.ID).Msg("consumer: dropping message missing required fields")
		c.ack(ctx, msg)
		return
	}

	meta := ev.Metadata
	if ev.Type != "" {
		if meta == nil {
			meta = map[string]string{}
		}
		meta["type"] = ev.Type
	}

	doc := document.Document{ID: ev.ID, Content: ev.Content, Metadata: meta, SessionID: ev.SessionID}
	if orgID, ok := meta["org_id"]; ok {
		doc.OrgID = orgID
	}

	if err := c.queue.Add(ctx, doc); err != nil {
		c.log.Warn().Err(err).Str("id", ev.ID).Msg("consumer: queue full, applying backpressure")
		return // do not ack; let the broker redeliver
	}
	c.ack(ctx, msg)
}

func (c *Consumer) ack(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.log.Error().Err(err).Msg("consumer: commit failed")
	}
}
