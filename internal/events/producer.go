package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"geo_gate/internal/dataType"
)

// Publisher fans accepted analytics events out to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event dataType.AnalyticsEvent) error
	Close() error
}

// Producer writes events to a Kafka topic keyed by shop, so the events of
// one shop stay ordered within a partition.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil && logger != nil {
				logger.Error("failed to publish analytics events", zap.Int("count", len(messages)), zap.Error(err))
			}
		},
	}

	return &Producer{writer: writer}
}

func (p *Producer) Publish(ctx context.Context, event dataType.AnalyticsEvent) error {
	msg, err := eventMessage(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func eventMessage(event dataType.AnalyticsEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(event.Shop),
		Value: data,
		Time:  time.UnixMilli(event.Timestamp),
	}, nil
}

// MemoryPublisher keeps published events in order; used when no brokers are
// configured and in tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []dataType.AnalyticsEvent
	limit  int
}

func NewMemoryPublisher(limit int) *MemoryPublisher {
	if limit <= 0 {
		limit = 1000
	}
	return &MemoryPublisher{limit: limit}
}

func (m *MemoryPublisher) Publish(_ context.Context, event dataType.AnalyticsEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) >= m.limit {
		m.events = m.events[1:]
	}
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of the retained events, oldest first.
func (m *MemoryPublisher) Events() []dataType.AnalyticsEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dataType.AnalyticsEvent(nil), m.events...)
}

func (m *MemoryPublisher) Close() error {
	return nil
}
