package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	last []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.last = append([]kafka.Message{}, msgs...)
	return w.err
}

func TestProducer_Publish(t *testing.T) {
	fw := &fakeWriter{}
	p := newProducerWithWriter(fw)

	require.NoError(t, p.Publish(context.Background(), "t", []byte("k"), []byte("v")))
	require.Len(t, fw.last, 1)
	require.Equal(t, "t", fw.last[0].Topic)
	require.Equal(t, []byte("k"), fw.last[0].Key)
	require.Equal(t, []byte("v"), fw.last[0].Value)
}

func TestProducer_PublishError(t *testing.T) {
	fw := &fakeWriter{err: errors.New("broker down")}
	p := newProducerWithWriter(fw)

	err := p.Publish(context.Background(), "t", nil, []byte("v"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "kafka publish")
	require.Contains(t, err.Error(), "broker down")
}

func TestStatusPublisher_PublishStatusChanged(t *testing.T) {
	fw := &fakeWriter{}
	pub := NewStatusPublisher(newProducerWithWriter(fw), "delivery-attempt-status-changed")

	changedAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	err := pub.PublishStatusChanged(context.Background(), AttemptStatusChanged{
		AttemptID:  7,
		OrderID:    42,
		StoreID:    3,
		FromStatus: "order_placed",
		ToStatus:   "en_route",
		ChangedBy:  5,
		ChangedAt:  changedAt,
	})
	require.NoError(t, err)
	require.Len(t, fw.last, 1)
	require.Equal(t, "delivery-attempt-status-changed", fw.last[0].Topic)
	require.Equal(t, []byte("42"), fw.last[0].Key)

	var decoded AttemptStatusChanged
	require.NoError(t, json.Unmarshal(fw.last[0].Value, &decoded))
	require.Equal(t, uint(7), decoded.AttemptID)
	require.Equal(t, "en_route", decoded.ToStatus)
	require.True(t, changedAt.Equal(decoded.ChangedAt))
}

func TestNewProducer(t *testing.T) {
	p := NewProducer([]string{"localhost:0"})
	require.NotNil(t, p)
	require.NoError(t, p.Close())
}
