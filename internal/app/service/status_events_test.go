package service

import (
	"testing"

	"github.com/ikkim/delivery-tracker/internal/broker/kafka"
	"github.com/stretchr/testify/assert"
)

func TestFanOutStatusEvents(t *testing.T) {
	assert.Nil(t, FanOutStatusEvents())
	assert.Nil(t, FanOutStatusEvents(nil, nil))

	first := &recordingEvents{}
	second := &recordingEvents{}
	sink := FanOutStatusEvents(first, nil, second)

	sink.StatusChanged(kafka.AttemptStatusChanged{AttemptID: 4, ToStatus: "complete"})

	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 1)
	assert.Equal(t, uint(4), second.events[0].AttemptID)
}
