package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// AttemptStatusChanged is published after a delivery attempt changes status.
type AttemptStatusChanged struct {
	AttemptID  uint      `json:"attempt_id"`
	OrderID    uint      `json:"order_id"`
	StoreID    uint      `json:"store_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	ChangedBy  uint      `json:"changed_by,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}

// StatusPublisher publishes status changes keyed by order id so that all
// events of one order land on the same partition.
type StatusPublisher struct {
	producer *Producer
	topic    string
}

func NewStatusPublisher(producer *Producer, topic string) *StatusPublisher {
	return &StatusPublisher{producer: producer, topic: topic}
}

func (p *StatusPublisher) PublishStatusChanged(ctx context.Context, event AttemptStatusChanged) error {
	value, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal status change")
	}
	key := []byte(strconv.FormatUint(uint64(event.OrderID), 10))
	return p.producer.Publish(ctx, p.topic, key, value)
}
