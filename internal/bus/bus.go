package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/invigilo/invigilo-backend/internal/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Bus wraps the AMQP connection and the proctoring topology. One connection
// serves both publishing (on a mutex-guarded channel) and consuming (each
// consumer opens its own channel).
type Bus struct {
	conn *amqp.Connection
	log  zerolog.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

// Connect dials the broker and declares the full topology.
func Connect(cfg *config.Config, log zerolog.Logger) (*Bus, error) {
	conn, err := amqp.Dial(cfg.AmqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	b := &Bus{
		conn: conn,
		ch:   ch,
		log:  log.With().Str("component", "bus").Logger(),
	}

	if err := b.declareTopology(); err != nil {
		conn.Close()
		return nil, err
	}

	b.log.Info().Msg("AMQP connected")
	return b, nil
}

// declareTopology sets up the proctoring exchange, the work queues and both
// dead-letter pairs. Declarations are idempotent.
func (b *Bus) declareTopology() error {
	if err := b.ch.ExchangeDeclare(config.BusKey.ProctoringExchange, "topic",
		true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// AI-bound work queues dead-letter into a shared fanout.
	if err := b.ch.ExchangeDeclare(config.BusKey.AIDeadLetterExchange, "fanout",
		true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare ai dlx: %w", err)
	}
	if _, err := b.ch.QueueDeclare(config.BusKey.AIDeadLetterQueue,
		true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare ai dlq: %w", err)
	}
	if err := b.ch.QueueBind(config.BusKey.AIDeadLetterQueue, "",
		config.BusKey.AIDeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind ai dlq: %w", err)
	}

	aiArgs := amqp.Table{"x-dead-letter-exchange": config.BusKey.AIDeadLetterExchange}
	for _, queue := range []string{
		config.BusKey.FrameAnalysisQueue,
		config.BusKey.AudioAnalysisQueue,
		config.BusKey.BehaviorEventsQueue,
	} {
		if _, err := b.ch.QueueDeclare(queue, true, false, false, false, aiArgs); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		if err := b.ch.QueueBind(queue, queue, config.BusKey.ProctoringExchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}

	// The results queue dead-letters into its own direct exchange so poison
	// messages stay inspectable.
	if err := b.ch.ExchangeDeclare(config.BusKey.ResultsDeadLetterExchange, "direct",
		true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare results dlx: %w", err)
	}
	if _, err := b.ch.QueueDeclare(config.BusKey.ResultsDeadLetterQueue,
		true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare results dlq: %w", err)
	}
	if err := b.ch.QueueBind(config.BusKey.ResultsDeadLetterQueue, config.BusKey.ResultsQueue,
		config.BusKey.ResultsDeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind results dlq: %w", err)
	}

	resultArgs := amqp.Table{"x-dead-letter-exchange": config.BusKey.ResultsDeadLetterExchange}
	if _, err := b.ch.QueueDeclare(config.BusKey.ResultsQueue,
		true, false, false, false, resultArgs); err != nil {
		return fmt.Errorf("declare results queue: %w", err)
	}
	if err := b.ch.QueueBind(config.BusKey.ResultsQueue, config.BusKey.ResultsQueue,
		config.BusKey.ProctoringExchange, false, nil); err != nil {
		return fmt.Errorf("bind results queue: %w", err)
	}

	return nil
}

// Publish sends a persistent JSON message to the proctoring exchange.
func (b *Bus) Publish(ctx context.Context, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.ch.PublishWithContext(ctx, config.BusKey.ProctoringExchange, routingKey,
		false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		})
}

// Consume opens a dedicated channel with prefetch 1 and returns its delivery
// stream. The caller acks or nacks every delivery.
func (b *Bus) Consume(queue, consumerTag string) (<-chan amqp.Delivery, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}
	return deliveries, nil
}

// QueueDepth reports the ready-message count of a queue.
func (b *Bus) QueueDepth(queue string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, err := b.ch.QueueInspect(queue)
	if err != nil {
		return 0, err
	}
	return q.Messages, nil
}

// Close shuts the connection down.
func (b *Bus) Close() error {
	return b.conn.Close()
}
