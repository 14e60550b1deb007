package service

import (
	"context"

	"github.com/ikkim/delivery-tracker/internal/broker/kafka"
	"github.com/ikkim/delivery-tracker/internal/worker"
	"github.com/ikkim/delivery-tracker/pkg/logger"
)

// StatusEvents receives committed status changes for publication.
type StatusEvents interface {
	StatusChanged(event kafka.AttemptStatusChanged)
}

type kafkaStatusEvents struct {
	publisher *kafka.StatusPublisher
	pool      *worker.Pool
}

// NewKafkaStatusEvents publishes status changes on pool, logging failures.
func NewKafkaStatusEvents(publisher *kafka.StatusPublisher, pool *worker.Pool) StatusEvents {
	return &kafkaStatusEvents{publisher: publisher, pool: pool}
}

func (k *kafkaStatusEvents) StatusChanged(event kafka.AttemptStatusChanged) {
	k.pool.Submit(func(ctx context.Context) {
		if err := k.publisher.PublishStatusChanged(ctx, event); err != nil {
			logger.Error("Failed to publish status change", err, map[string]interface{}{
				"attempt_id": event.AttemptID,
				"to_status":  event.ToStatus,
			})
		}
	})
}

type fanOutStatusEvents []StatusEvents

// FanOutStatusEvents delivers each change to every non-nil sink. It returns
// nil when no sink is given.
func FanOutStatusEvents(sinks ...StatusEvents) StatusEvents {
	var out fanOutStatusEvents
	for _, sink := range sinks {
		if sink != nil {
			out = append(out, sink)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (f fanOutStatusEvents) StatusChanged(event kafka.AttemptStatusChanged) {
	for _, sink := range f {
		sink.StatusChanged(event)
	}
}
