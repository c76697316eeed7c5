package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/unclebandit/mailcampaign-backend/internal/logger"
	"github.com/unclebandit/mailcampaign-backend/internal/metrics"
)

// Handler processes one JSON-encoded message.
type Handler func(ctx context.Context, body []byte) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, payload any) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

// InMemoryQueue delivers to in-process subscribers. Every message is handed
// to each handler exactly once; a failing handler is logged, not retried,
// because a redelivered resend job would dispatch a campaign twice.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	wg       sync.WaitGroup
	log      *zap.Logger
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(log *zap.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]Handler),
		log:      logger.OrNop(log),
	}
}

// Publish sends a message to all subscribers. Publishing to a topic without
// subscribers drops the message.
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		metrics.RecordPublish(topic, err)
		return fmt.Errorf("queue: encode %s payload: %w", topic, err)
	}

	q.mu.Lock()
	handlers := append([]Handler(nil), q.handlers[topic]...)
	q.mu.Unlock()

	if len(handlers) == 0 {
		q.log.Debug("no subscribers, message dropped", zap.String("topic", topic))
	}
	for _, handler := range handlers {
		q.wg.Add(1)
		go q.process(context.WithoutCancel(ctx), topic, handler, body)
	}
	metrics.RecordPublish(topic, nil)
	return nil
}

func (q *InMemoryQueue) process(ctx context.Context, topic string, handler Handler, body []byte) {
	defer q.wg.Done()
	if err := handler(ctx, body); err != nil {
		q.log.Warn("message handler failed", zap.String("topic", topic), zap.Error(err))
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close waits for in-flight handlers.
func (q *InMemoryQueue) Close() error {
	q.wg.Wait()
	return nil
}
