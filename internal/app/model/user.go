package model

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID           uint   `gorm:"primarykey" json:"id"`
	Username     string `gorm:"uniqueIndex;not null;size:32" json:"username"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	PhoneNumber  string `gorm:"size:20;index" json:"phone_number"`
	IsActive     bool   `gorm:"default:true" json:"is_active"`

	// role flags; combined into a RoleSet at authentication time
	IsSuperuser       bool `gorm:"default:false" json:"is_superuser"`
	IsManager         bool `gorm:"default:false" json:"is_manager"`
	IsDriver          bool `gorm:"default:false" json:"is_driver"`
	IsCustomerService bool `gorm:"default:false" json:"is_customer_service"`

	IsPhoneVerified        bool   `gorm:"default:false" json:"is_phone_verified"`
	PhoneVerificationToken string `gorm:"size:64;index" json:"-"`

	Stores []Store `gorm:"many2many:user_stores;" json:"stores,omitempty"`

	CreatedAt time.Time      `json:"date_joined"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// StoreIDs returns the ids of the preloaded Stores association.
func (u *User) StoreIDs() []uint {
	ids := make([]uint, 0, len(u.Stores))
	for _, s := range u.Stores {
		ids = append(ids, s.ID)
	}
	return ids
}

// FullName falls back to the username when no name is set.
func (u *User) FullName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Username
	}
	return name
}
