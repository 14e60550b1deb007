package model

import (
	"time"

	"gorm.io/gorm"
)

type Order struct {
	ID                    uint   `gorm:"primarykey" json:"id"`
	StoreID               uint   `gorm:"not null;index" json:"store_id"`
	InvoiceNum            string `gorm:"size:30;index" json:"invoice_num"`
	FirstName             string `gorm:"size:50" json:"first_name"`
	LastName              string `gorm:"size:50" json:"last_name"`
	PhoneNum              string `gorm:"size:20" json:"phone_num"`
	Address               string `gorm:"size:150" json:"address"`
	CustomerEmail         string `gorm:"size:150" json:"customer_email"`
	CustomerNum           string `gorm:"size:20" json:"customer_num"`
	Notes                 string `gorm:"type:text" json:"notes"`
	DeliveryDate          string `gorm:"size:10" json:"delivery_date"`          // YYYY-MM-DD
	PreferredDeliveryTime string `gorm:"size:5" json:"preferred_delivery_time"` // HH:MM

	CreatedAt time.Time      `json:"creation_date"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Store            Store             `gorm:"foreignKey:StoreID;constraint:OnDelete:CASCADE" json:"store,omitempty"`
	Items            []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	PreferredDrivers []User            `gorm:"many2many:order_drivers;" json:"preferred_drivers,omitempty"`
	DeliveryAttempts []DeliveryAttempt `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"delivery_attempts,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}

// CurrentAttempt is the attempt with the highest id among the preloaded attempts.
func (o *Order) CurrentAttempt() *DeliveryAttempt {
	var current *DeliveryAttempt
	for i := range o.DeliveryAttempts {
		if current == nil || o.DeliveryAttempts[i].ID > current.ID {
			current = &o.DeliveryAttempts[i]
		}
	}
	return current
}

// CustomerName joins first and last name.
func (o *Order) CustomerName() string {
	if o.LastName == "" {
		return o.FirstName
	}
	if o.FirstName == "" {
		return o.LastName
	}
	return o.FirstName + " " + o.LastName
}

type OrderItem struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	OrderID      uint      `gorm:"not null;index" json:"order_id"`
	ProductName  string    `gorm:"size:255" json:"product_name"`
	ProductMPN   string    `gorm:"size:100" json:"product_mpn"`
	Quantity     int       `gorm:"not null;default:1" json:"quantity"`
	PriceAtOrder float64   `gorm:"not null" json:"price_at_order"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (OrderItem) TableName() string {
	return "order_items"
}
