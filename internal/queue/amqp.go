package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/unclebandit/mailcampaign-backend/internal/logger"
	"github.com/unclebandit/mailcampaign-backend/internal/metrics"
)

// AMQPQueue publishes to and consumes from durable RabbitMQ queues named
// after the topic, through the default exchange.
type AMQPQueue struct {
	conn *amqp.Connection
	log  *zap.Logger

	mu       sync.Mutex
	ch       *amqp.Channel
	declared map[string]bool
}

func DialAMQP(url string, log *zap.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("queue: connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: open channel: %w", err)
	}
	return &AMQPQueue{conn: conn, ch: ch, log: logger.OrNop(log), declared: map[string]bool{}}, nil
}

func (q *AMQPQueue) declare(ch *amqp.Channel, topic string) error {
	if q.declared[topic] {
		return nil
	}
	_, err := ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("queue: declare %s: %w", topic, err)
	}
	q.declared[topic] = true
	return nil
}

func (q *AMQPQueue) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: encode %s payload: %w", topic, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.declare(q.ch, topic); err != nil {
		metrics.RecordPublish(topic, err)
		return err
	}
	err = q.ch.Publish(
		"",
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	metrics.RecordPublish(topic, err)
	if err != nil {
		return fmt.Errorf("queue: publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe consumes on a dedicated channel with prefetch 1. Messages are
// acked after the handler returns, whether or not it failed; failed messages
// are not requeued.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("queue: open consumer channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("queue: set prefetch: %w", err)
	}
	q.mu.Lock()
	err = q.declare(ch, topic)
	q.mu.Unlock()
	if err != nil {
		ch.Close()
		return err
	}

	msgs, err := ch.Consume(
		topic,
		"",
		false, // autoAck = false
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("queue: consume %s: %w", topic, err)
	}

	go func() {
		for d := range msgs {
			if err := handler(context.Background(), d.Body); err != nil {
				q.log.Warn("message handler failed", zap.String("topic", topic), zap.Error(err))
			}
			if err := d.Ack(false); err != nil {
				q.log.Warn("ack failed", zap.String("topic", topic), zap.Error(err))
			}
		}
		q.log.Info("consumer stopped", zap.String("topic", topic))
	}()
	return nil
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch != nil {
		q.ch.Close()
	}
	return q.conn.Close()
}
