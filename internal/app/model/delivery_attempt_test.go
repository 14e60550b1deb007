package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeliveryStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from DeliveryStatus
		to   DeliveryStatus
		want bool
	}{
		{StatusOrderPlaced, StatusAssignedToDriver, true},
		{StatusOrderPlaced, StatusEnRoute, true},
		{StatusOrderPlaced, StatusComplete, true},
		{StatusAssignedToDriver, StatusAcceptedByDriver, true},
		{StatusEnRoute, StatusComplete, true},
		{StatusEnRoute, StatusAssignedToDriver, false},
		{StatusAcceptedByDriver, StatusOrderPlaced, false},
		{StatusEnRoute, StatusEnRoute, true},
		{StatusOrderPlaced, StatusMisdelivery, true},
		{StatusEnRoute, StatusRescheduled, true},
		{StatusAssignedToDriver, StatusCanceled, true},
		{StatusMisdelivery, StatusCanceled, true},
		{StatusMisdelivery, StatusEnRoute, false},
		{StatusRescheduled, StatusComplete, false},
		{StatusRescheduled, StatusMisdelivery, false},
		{StatusComplete, StatusCanceled, false},
		{StatusComplete, StatusComplete, true},
		{StatusCanceled, StatusOrderPlaced, false},
		{StatusOrderPlaced, DeliveryStatus("lost"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestDeliveryStatus_Event(t *testing.T) {
	event, ok := StatusAcceptedByDriver.Event()
	assert.True(t, ok)
	assert.Equal(t, EventDriverPreparing, event)

	_, ok = DeliveryStatus("lost").Event()
	assert.False(t, ok)

	assert.Len(t, Events(), 8)
	assert.True(t, EventDriverEnRoute.IsValid())
	assert.False(t, EventType("driver_lost").IsValid())
}

func TestDeliveryAttempt_Drivers(t *testing.T) {
	attempt := DeliveryAttempt{Drivers: []User{{ID: 3}, {ID: 7}}}
	assert.Equal(t, []uint{3, 7}, attempt.DriverIDs())
	assert.True(t, attempt.HasDriver(7))
	assert.False(t, attempt.HasDriver(4))
}

func TestOrder_CurrentAttemptAndName(t *testing.T) {
	order := Order{
		FirstName:        "Jane",
		DeliveryAttempts: []DeliveryAttempt{{ID: 4}, {ID: 9}, {ID: 2}},
	}
	assert.Equal(t, uint(9), order.CurrentAttempt().ID)
	assert.Equal(t, "Jane", order.CustomerName())

	order.LastName = "Doe"
	assert.Equal(t, "Jane Doe", order.CustomerName())
}

func TestUser_FullName(t *testing.T) {
	assert.Equal(t, "jdoe", (&User{Username: "jdoe"}).FullName())
	assert.Equal(t, "Jane Doe", (&User{Username: "jdoe", FirstName: "Jane", LastName: "Doe"}).FullName())
	assert.Equal(t, "Doe", (&User{Username: "jdoe", LastName: "Doe"}).FullName())
}
