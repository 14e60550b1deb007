package model

import (
	"time"
)

type DeliveryStatus string

const (
	StatusOrderPlaced      DeliveryStatus = "order_placed"
	StatusAssignedToDriver DeliveryStatus = "assigned_to_driver"
	StatusAcceptedByDriver DeliveryStatus = "accepted_by_driver"
	StatusEnRoute          DeliveryStatus = "en_route"
	StatusComplete         DeliveryStatus = "complete"
	StatusMisdelivery      DeliveryStatus = "misdelivery"
	StatusRescheduled      DeliveryStatus = "rescheduled"
	StatusCanceled         DeliveryStatus = "canceled"
)

// forward progression; a status may only move to a later one (skipping is allowed)
var progression = []DeliveryStatus{
	StatusOrderPlaced,
	StatusAssignedToDriver,
	StatusAcceptedByDriver,
	StatusEnRoute,
	StatusComplete,
}

func progressionIndex(s DeliveryStatus) int {
	for i, p := range progression {
		if p == s {
			return i
		}
	}
	return -1
}

// IsValid reports whether s is one of the known statuses.
func (s DeliveryStatus) IsValid() bool {
	switch s {
	case StatusOrderPlaced, StatusAssignedToDriver, StatusAcceptedByDriver, StatusEnRoute,
		StatusComplete, StatusMisdelivery, StatusRescheduled, StatusCanceled:
		return true
	}
	return false
}

func (s DeliveryStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusCanceled
}

// CanTransitionTo reports whether the fixed transition table allows s -> next.
// Re-applying the current status is always allowed.
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	if !next.IsValid() {
		return false
	}
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusMisdelivery, StatusRescheduled:
		return next == StatusCanceled
	}
	switch next {
	case StatusMisdelivery, StatusRescheduled, StatusCanceled:
		return true
	}
	return progressionIndex(next) > progressionIndex(s)
}

type EventType string

const (
	EventOrderPlaced       EventType = "order_placed"
	EventAssignedToDriver  EventType = "assigned_to_driver"
	EventDriverPreparing   EventType = "driver_preparing"
	EventDriverEnRoute     EventType = "driver_en_route"
	EventDriverComplete    EventType = "driver_complete"
	EventDriverMisdelivery EventType = "driver_misdelivery"
	EventDriverRescheduled EventType = "driver_rescheduled"
	EventDriverCanceled    EventType = "driver_canceled"
)

var statusEvents = map[DeliveryStatus]EventType{
	StatusOrderPlaced:      EventOrderPlaced,
	StatusAssignedToDriver: EventAssignedToDriver,
	StatusAcceptedByDriver: EventDriverPreparing,
	StatusEnRoute:          EventDriverEnRoute,
	StatusComplete:         EventDriverComplete,
	StatusMisdelivery:      EventDriverMisdelivery,
	StatusRescheduled:      EventDriverRescheduled,
	StatusCanceled:         EventDriverCanceled,
}

// Event returns the notification event raised on entering s.
func (s DeliveryStatus) Event() (EventType, bool) {
	e, ok := statusEvents[s]
	return e, ok
}

// Events lists every notification event in status order.
func Events() []EventType {
	return []EventType{
		EventOrderPlaced,
		EventAssignedToDriver,
		EventDriverPreparing,
		EventDriverEnRoute,
		EventDriverComplete,
		EventDriverMisdelivery,
		EventDriverRescheduled,
		EventDriverCanceled,
	}
}

func (e EventType) IsValid() bool {
	for _, known := range Events() {
		if e == known {
			return true
		}
	}
	return false
}

type DeliveryAttempt struct {
	ID             uint           `gorm:"primarykey" json:"id"`
	OrderID        uint           `gorm:"not null;index" json:"order_id"`
	Status         DeliveryStatus `gorm:"type:varchar(20);not null;default:'order_placed';index" json:"status"`
	DeliveryDate   string         `gorm:"size:10" json:"delivery_date"` // YYYY-MM-DD
	DeliveryTime   string         `gorm:"size:5" json:"delivery_time"`  // HH:MM
	MinsToArrival  *int           `json:"mins_to_arrival"`
	MilesToArrival *float64       `json:"miles_to_arrival"`
	Result         string         `gorm:"type:text" json:"result"`
	Notes          string         `gorm:"type:text" json:"notes"`

	ArrivalSMSSent    bool `gorm:"default:false" json:"arrival_sms_sent"`
	CompletionSMSSent bool `gorm:"default:false" json:"completion_sms_sent"`

	// incremented on every update; updates are conditional on the version read
	Version int `gorm:"not null;default:1" json:"version"`

	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	StatusChangedAt time.Time `json:"status_changed_at"`

	Order          Order           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"-"`
	Drivers        []User          `gorm:"many2many:delivery_attempt_drivers;" json:"drivers"`
	ScheduledItems []ScheduledItem `gorm:"foreignKey:DeliveryAttemptID;constraint:OnDelete:CASCADE" json:"scheduled_items"`
	Photos         []DeliveryPhoto `gorm:"foreignKey:DeliveryAttemptID;constraint:OnDelete:CASCADE" json:"photos"`
}

func (DeliveryAttempt) TableName() string {
	return "delivery_attempts"
}

// DriverIDs returns the ids of the preloaded Drivers association.
func (a *DeliveryAttempt) DriverIDs() []uint {
	ids := make([]uint, 0, len(a.Drivers))
	for _, d := range a.Drivers {
		ids = append(ids, d.ID)
	}
	return ids
}

// HasDriver reports whether userID is among the preloaded drivers.
func (a *DeliveryAttempt) HasDriver(userID uint) bool {
	for _, d := range a.Drivers {
		if d.ID == userID {
			return true
		}
	}
	return false
}

// ScheduledItem allocates a quantity of one order line to an attempt.
type ScheduledItem struct {
	ID                uint      `gorm:"primarykey" json:"id"`
	DeliveryAttemptID uint      `gorm:"not null;index" json:"delivery_attempt_id"`
	OrderItemID       uint      `gorm:"not null;index" json:"order_item_id"`
	Quantity          int       `gorm:"not null" json:"quantity"`
	CreatedAt         time.Time `json:"created_at"`

	OrderItem OrderItem `gorm:"foreignKey:OrderItemID;constraint:OnDelete:CASCADE" json:"order_item,omitempty"`
}

func (ScheduledItem) TableName() string {
	return "scheduled_items"
}

// AttemptStatusChange is one row of an attempt's status history.
type AttemptStatusChange struct {
	ID                uint           `gorm:"primarykey" json:"id"`
	DeliveryAttemptID uint           `gorm:"not null;index" json:"delivery_attempt_id"`
	FromStatus        DeliveryStatus `gorm:"type:varchar(20)" json:"from_status"`
	ToStatus          DeliveryStatus `gorm:"type:varchar(20);not null" json:"to_status"`
	ChangedByID       *uint          `json:"changed_by_id"`
	ChangedAt         time.Time      `gorm:"not null" json:"changed_at"`
}

func (AttemptStatusChange) TableName() string {
	return "attempt_status_changes"
}
