package model

import (
	"time"

	"gorm.io/gorm"
)

type Store struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	Name      string         `gorm:"not null;uniqueIndex" json:"name"`
	Address   string         `gorm:"type:text" json:"address"`
	Phone     string         `gorm:"type:varchar(20)" json:"phone"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Store) TableName() string {
	return "stores"
}

// DefaultStores are created on first migration when the table is empty.
var DefaultStores = []Store{
	{Name: "McKinney"},
	{Name: "Frisco"},
	{Name: "Prosper"},
	{Name: "Denton"},
}
