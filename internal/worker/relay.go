// Package worker hosts the background loops the server runs next to
// the HTTP API: the AMQP relay draining the in-process event bus and
// the scheduler driving recurrence materialization and budget
// evaluation.
package worker

import (
	"context"
	"log/slog"

	"bilancio/internal/events"
)

// Publisher pushes one event to the broker.
type Publisher interface {
	PublishEvent(ctx context.Context, e events.Event) error
}

// Relay drains a bus subscription into an AMQP publisher. Publish
// failures are logged and the event dropped; consumers dedup on event
// identity, so redelivery after reconnect is safe but not guaranteed.
type Relay struct {
	sub       *events.Subscription
	publisher Publisher
	log       *slog.Logger
}

func NewRelay(sub *events.Subscription, publisher Publisher) *Relay {
	return &Relay{
		sub:       sub,
		publisher: publisher,
		log:       slog.With("component", "relay"),
	}
}

// Run pumps events until the context is cancelled or the subscription
// channel closes.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-r.sub.Events():
			if !ok {
				r.log.Info("event bus closed, relay stopping")
				return nil
			}
			if err := r.publisher.PublishEvent(ctx, e); err != nil {
				r.log.Error("failed to publish event",
					"routing_key", e.RoutingKey(),
					"identity", e.Identity(),
					"error", err)
				continue
			}
			r.log.Debug("event relayed",
				"routing_key", e.RoutingKey(),
				"identity", e.Identity())
		}
	}
}
