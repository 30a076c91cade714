package worker

import (
	"context"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/invigilo/invigilo-backend/internal/bus"
	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/service"
	"github.com/rs/zerolog"
)

const consumerRetryDelay = 5 * time.Second

// ResultConsumer drains the AI results queue into the proctoring pipeline.
// Malformed or unknown messages are dead-lettered via nack; transient
// failures are requeued so nothing is lost while the database is down.
type ResultConsumer struct {
	bus        *bus.Bus
	proctoring *service.ProctoringService
	log        zerolog.Logger
}

// NewResultConsumer creates a new ResultConsumer.
func NewResultConsumer(b *bus.Bus, proctoring *service.ProctoringService, log zerolog.Logger) *ResultConsumer {
	return &ResultConsumer{
		bus:        b,
		proctoring: proctoring,
		log:        log.With().Str("component", "result_consumer").Logger(),
	}
}

// Start consumes until the context ends, re-attaching when the delivery
// stream drops.
func (w *ResultConsumer) Start(ctx context.Context) {
	w.log.Info().Msg("ResultConsumer started")

	for {
		deliveries, err := w.bus.Consume(config.BusKey.ResultsQueue, "result-consumer")
		if err != nil {
			w.log.Error().Err(err).Msg("Consume attach failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(consumerRetryDelay):
				continue
			}
		}

		if done := w.drain(ctx, deliveries); done {
			return
		}
		w.log.Warn().Msg("Delivery stream closed, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(consumerRetryDelay):
		}
	}
}

// drain processes deliveries until the stream closes. Reports true when the
// context ended and the consumer should stop for good.
func (w *ResultConsumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case d, ok := <-deliveries:
			if !ok {
				return false
			}
			w.handle(ctx, d)
		}
	}
}

func (w *ResultConsumer) handle(ctx context.Context, d amqp.Delivery) {
	err := w.proctoring.ProcessResult(ctx, d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)

	case errors.Is(err, service.ErrMalformedResult),
		errors.Is(err, service.ErrUnknownEventType):
		// Poison message: dead-letter it, never requeue.
		w.log.Warn().Err(err).Msg("Dead-lettering unprocessable result")
		_ = d.Nack(false, false)

	default:
		// Transient (database, Redis): requeue and back off so a hard
		// outage does not spin the queue.
		w.log.Error().Err(err).Msg("Result processing failed, requeueing")
		_ = d.Nack(false, true)
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
	}
}
