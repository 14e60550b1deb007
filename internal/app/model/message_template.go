package model

import (
	"time"
)

// MessageTemplate is keyed by (store, event). Content uses {{ name }} placeholders.
type MessageTemplate struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	StoreID   uint      `gorm:"not null;uniqueIndex:idx_template_store_event" json:"store_id"`
	Event     EventType `gorm:"type:varchar(50);not null;uniqueIndex:idx_template_store_event" json:"event"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Active    bool      `gorm:"not null" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Store Store `gorm:"foreignKey:StoreID;constraint:OnDelete:CASCADE" json:"-"`
}

func (MessageTemplate) TableName() string {
	return "message_templates"
}
