// Package statusbus publishes best-effort consumer lifecycle/heartbeat
// status records, grounded on the teacher's Kafka producer wrapper
// (internal/tools/kafka): a thin Writer interface over *kafka.Writer so
// callers never depend on the concrete client.
package statusbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	kafka "github.com/segmentio/kafka-go"
)

// EventType names one of the three lifecycle records the event consumer
// publishes.
type EventType string

const (
	EventConsumerReady        EventType = "consumer_ready"
	EventConsumerHeartbeat    EventType = "consumer_heartbeat"
	EventConsumerDisconnected EventType = "consumer_disconnected"
)

// Record is one status event body.
type Record struct {
	Event     EventType `json:"event"`
	GroupID   string    `json:"group_id"`
	ServiceID string    `json:"service_id"`
	Timestamp int64     `json:"timestamp"`
}

// Writer is the narrow producer contract statusbus depends on.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Bus publishes Records to a fixed status topic. Publication is best-effort:
// a failure is logged and swallowed, never propagated to the caller, since a
// missed heartbeat must not interrupt message processing.
type Bus struct {
	writer    Writer
	topic     string
	groupID   string
	serviceID string
	log       zerolog.Logger
	now       func() int64
}

// Option configures a Bus.
type Option func(*Bus)

func WithLogger(l zerolog.Logger) Option { return func(b *Bus) { b.log = l } }

// WithClock overrides the timestamp source for tests.
func WithClock(now func() int64) Option { return func(b *Bus) { b.now = now } }

func New(w Writer, topic, groupID, serviceID string, opts ...Option) *Bus {
	b := &Bus{
		writer:    w,
		topic:     topic,
		groupID:   groupID,
		serviceID: serviceID,
		log:       zerolog.Nop(),
		now:       func() int64 { return time.Now().UnixMilli() },
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Bus) Publish(ctx context.Context, event EventType) {
	rec := Record{Event: event, GroupID: b.groupID, ServiceID: b.serviceID, Timestamp: b.now()}
	payload, err := json.Marshal(rec)
	if err != nil {
		b.log.Error().Err(err).Str("event", string(event)).Msg("statusbus: marshal failed")
		return
	}
	if err := b.writer.WriteMessages(ctx, kafka.Message{Topic: b.topic, Key: []byte(b.groupID), Value: payload}); err != nil {
		b.log.Warn().Err(err).Str("event", string(event)).Msg("statusbus: publish failed, ignoring")
	}
}
