// AngelaMos | 2026
// consumer.go

package outbox

import (
	"context"
	"log/slog"
	"time"
)

type Handler func(ctx context.Context, event Event) error

// Consumer polls the outbox and dispatches events to handlers by type.
// An event is marked processed only after its handler returns nil, so a
// crash between handle and mark re-delivers on the next poll.
type Consumer struct {
	repo      Repository
	handlers  map[string]Handler
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewConsumer(
	repo Repository,
	interval time.Duration,
	batchSize int,
	logger *slog.Logger,
) *Consumer {
	return &Consumer{
		repo:      repo,
		handlers:  make(map[string]Handler),
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Register must be called before Run; the handler map is not locked.
func (c *Consumer) Register(eventType string, handler Handler) {
	c.handlers[eventType] = handler
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("outbox consumer started",
		"interval", c.interval,
		"batch_size", c.batchSize,
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("outbox consumer stopped")
			return
		case <-ticker.C:
			if _, err := c.DrainOnce(ctx); err != nil {
				c.logger.Error("outbox poll failed", "error", err)
			}
		}
	}
}

// DrainOnce processes one batch and reports how many events were
// handled. A failing event stays unprocessed and is retried on a later
// poll; it does not block the rest of the batch.
func (c *Consumer) DrainOnce(ctx context.Context) (int, error) {
	events, err := c.repo.FetchUnprocessed(ctx, c.batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, event := range events {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}

		handler, ok := c.handlers[event.EventType]
		if !ok {
			// No handler will ever appear for this type; drop it so it
			// does not poison the queue.
			c.logger.Warn("dropping event with no handler",
				"event_id", event.ID,
				"event_type", event.EventType,
			)
			if err := c.repo.MarkProcessed(ctx, event.ID); err != nil {
				c.logger.Error("mark dropped event failed",
					"event_id", event.ID,
					"error", err,
				)
			}
			continue
		}

		if err := handler(ctx, event); err != nil {
			c.logger.Error("event handler failed, will retry",
				"event_id", event.ID,
				"event_type", event.EventType,
				"error", err,
			)
			continue
		}

		if err := c.repo.MarkProcessed(ctx, event.ID); err != nil {
			c.logger.Error("mark processed failed",
				"event_id", event.ID,
				"error", err,
			)
			continue
		}
		processed++
	}

	return processed, nil
}
