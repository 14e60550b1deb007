package model

import (
	"time"
)

type DeliveryPhoto struct {
	ID                uint       `gorm:"primarykey" json:"id"`
	DeliveryAttemptID uint       `gorm:"not null;index" json:"delivery_attempt_id"`
	StorageKey        string     `gorm:"size:255;not null" json:"-"`
	Caption           string     `gorm:"size:255" json:"caption"`
	UploadedByID      *uint      `json:"uploaded_by_id"`
	SignedURL         string     `gorm:"type:text" json:"signed_url,omitempty"`
	SignedURLExpiry   *time.Time `json:"signed_url_expiry,omitempty"`
	CreatedAt         time.Time  `json:"uploaded_at"`
}

func (DeliveryPhoto) TableName() string {
	return "delivery_photos"
}

// SignedURLValid reports whether the cached signed url is usable at now.
func (p *DeliveryPhoto) SignedURLValid(now time.Time) bool {
	return p.SignedURL != "" && p.SignedURLExpiry != nil && now.Before(*p.SignedURLExpiry)
}
