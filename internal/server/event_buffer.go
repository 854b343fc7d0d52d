package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"geo_gate/internal/dataType"
	"geo_gate/internal/events"
)

const maxBufferedEvents = 10000

// EventBuffer decouples analytics ingestion from the event publisher. Events
// are collected under a mutex and handed to the publisher in batches.
type EventBuffer struct {
	mu        sync.Mutex
	entries   []dataType.AnalyticsEvent
	dropped   int64
	publisher events.Publisher
	interval  time.Duration
	logger    *zap.Logger
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
}

func NewEventBuffer(publisher events.Publisher, interval time.Duration, logger *zap.Logger) *EventBuffer {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBuffer{
		entries:   make([]dataType.AnalyticsEvent, 0, 1000),
		publisher: publisher,
		interval:  interval,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Add queues an event; when the buffer is full the event is dropped.
func (eb *EventBuffer) Add(event dataType.AnalyticsEvent) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if len(eb.entries) >= maxBufferedEvents {
		eb.dropped++
		return false
	}
	eb.entries = append(eb.entries, event)
	return true
}

func (eb *EventBuffer) Swap() []dataType.AnalyticsEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	current := eb.entries
	eb.entries = make([]dataType.AnalyticsEvent, 0, 1000)
	return current
}

func (eb *EventBuffer) Start() {
	ticker := time.NewTicker(eb.interval)
	go func() {
		defer close(eb.doneCh)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				eb.Flush(context.Background())
			case <-eb.stopCh:
				eb.Flush(context.Background())
				return
			}
		}
	}()
	eb.logger.Info("analytics event buffer started", zap.Duration("interval", eb.interval))
}

// Stop flushes what is left and waits for the flusher to exit.
func (eb *EventBuffer) Stop() {
	eb.stopOnce.Do(func() {
		close(eb.stopCh)
		<-eb.doneCh
	})
}

// Flush publishes the buffered events and returns how many were accepted by
// the publisher.
func (eb *EventBuffer) Flush(ctx context.Context) int {
	batch := eb.Swap()
	if len(batch) == 0 || eb.publisher == nil {
		return 0
	}
	published := 0
	for _, event := range batch {
		if err := eb.publisher.Publish(ctx, event); err != nil {
			eb.logger.Error("failed to publish analytics event",
				zap.String("shop", event.Shop), zap.String("type", string(event.Type)), zap.Error(err))
			continue
		}
		published++
	}

	eb.mu.Lock()
	dropped := eb.dropped
	eb.dropped = 0
	eb.mu.Unlock()
	if dropped > 0 {
		eb.logger.Warn("analytics events dropped, buffer full", zap.Int64("count", dropped))
	}
	return published
}
