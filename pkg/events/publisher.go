package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-health-api/pkg/config"
)

// Event types emitted by the service.
const (
	TypeReportSubmitted     = "report.submitted"
	TypeReportStatusChanged = "report.status_changed"
	TypeHotspotDetected     = "hotspot.detected"
	TypeActionCreated       = "action.created"
	TypeActionStatusChanged = "action.status_changed"
)

// Event is a domain event envelope.
type Event struct {
	Type       string      `json:"type"`
	Key        string      `json:"key"`
	OccurredAt time.Time   `json:"occurredAt"`
	Payload    interface{} `json:"payload"`
}

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a single topic keyed by Event.Key.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
	logger  *zap.Logger
}

// NewKafkaPublisher constructs a publisher from config. A disabled config yields a NoopPublisher.
func NewKafkaPublisher(cfg config.EventsConfig, logger *zap.Logger) Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		return NoopPublisher{}
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		// Async keeps request latency independent of broker health; delivery errors surface here.
		Async: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("event delivery failed", zap.Int("count", len(messages)), zap.Error(err))
			}
		},
	}
	return newKafkaPublisher(writer, logger)
}

func newKafkaPublisher(writer messageWriter, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{writer: writer, timeout: 5 * time.Second, logger: logger}
}

// Publish encodes and writes events. Callers treat failures as best effort.
func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, evt := range events {
		if evt.OccurredAt.IsZero() {
			evt.OccurredAt = time.Now().UTC()
		}
		body, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", evt.Type, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(evt.Key),
			Value: body,
			Time:  evt.OccurredAt,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(evt.Type)},
			},
		})
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Warn("publish events failed", zap.Int("count", len(msgs)), zap.Error(err))
		return fmt.Errorf("publish events: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher discards events.
type NoopPublisher struct{}

// Publish implements Publisher.
func (NoopPublisher) Publish(context.Context, ...Event) error { return nil }

// Close implements Publisher.
func (NoopPublisher) Close() error { return nil }
