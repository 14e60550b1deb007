package db

import (
	"fmt"

	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/pkg/logger"
	"gorm.io/gorm"
)

// Models lists every persisted model in dependency order.
func Models() []interface{} {
	return []interface{}{
		&model.Store{},
		&model.User{},
		&model.PasswordReset{},
		&model.Order{},
		&model.OrderItem{},
		&model.DeliveryAttempt{},
		&model.ScheduledItem{},
		&model.AttemptStatusChange{},
		&model.DeliveryPhoto{},
		&model.MessageTemplate{},
	}
}

// Migrate runs database migrations
func Migrate() error {
	logger.Info("Running database migrations...")

	models := Models()
	if err := DB.AutoMigrate(models...); err != nil {
		logger.Error("Failed to run migrations", err)
		return err
	}

	if err := Seed(DB); err != nil {
		logger.Error("Failed to seed initial data during migration", err)
		return err
	}

	logger.Info("Database migrations completed successfully", map[string]interface{}{
		"models_count": len(models),
	})
	return nil
}

// Seed creates the default stores and their message templates when missing.
func Seed(db *gorm.DB) error {
	if err := seedStores(db); err != nil {
		logger.Error("Failed to seed stores", err)
		return err
	}
	if err := seedMessageTemplates(db); err != nil {
		logger.Error("Failed to seed message templates", err)
		return err
	}
	return nil
}

func seedStores(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.Store{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		logger.Info("Stores already seeded, skipping...", map[string]interface{}{
			"existing_count": count,
		})
		return nil
	}

	for _, store := range model.DefaultStores {
		store := store
		if err := db.Create(&store).Error; err != nil {
			return fmt.Errorf("create store %s: %w", store.Name, err)
		}
	}

	logger.Info("Stores seeded successfully", map[string]interface{}{
		"total_records": len(model.DefaultStores),
	})
	return nil
}

// default template bodies; stores customise them afterwards
var defaultTemplates = map[model.EventType]string{
	model.EventOrderPlaced:       "Hi {{ customer_name }}, we received order {{ order_id }} from {{ store_name }}. Delivery is planned for {{ delivery_date }}.",
	model.EventAssignedToDriver:  "Hi {{ customer_name }}, a driver has been assigned to order {{ order_id }} for {{ delivery_date }}.",
	model.EventDriverPreparing:   "Hi {{ customer_name }}, your driver is preparing order {{ order_id }}.",
	model.EventDriverEnRoute:     "Hi {{ customer_name }}, your driver is on the way with order {{ order_id }}. About {{ mins_to_arrival }} minutes ({{ miles_to_arrival }} miles) away.",
	model.EventDriverComplete:    "Hi {{ customer_name }}, order {{ order_id }} has been delivered.\n{{ photo_links }}",
	model.EventDriverMisdelivery: "Hi {{ customer_name }}, we could not deliver order {{ order_id }}. {{ store_name }} will contact you to reschedule.",
	model.EventDriverRescheduled: "Hi {{ customer_name }}, order {{ order_id }} has been rescheduled. {{ store_name }} will confirm the new date.",
	model.EventDriverCanceled:    "Hi {{ customer_name }}, the delivery of order {{ order_id }} has been canceled.",
}

func seedMessageTemplates(db *gorm.DB) error {
	var stores []model.Store
	if err := db.Find(&stores).Error; err != nil {
		return err
	}

	inserted := 0
	for _, store := range stores {
		for _, event := range model.Events() {
			var count int64
			if err := db.Model(&model.MessageTemplate{}).
				Where("store_id = ? AND event = ?", store.ID, event).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}

			template := model.MessageTemplate{
				StoreID: store.ID,
				Event:   event,
				Content: defaultTemplates[event],
				Active:  true,
			}
			if err := db.Omit("Store").Create(&template).Error; err != nil {
				return fmt.Errorf("create template %s for store %d: %w", event, store.ID, err)
			}
			inserted++
		}
	}

	if inserted > 0 {
		logger.Info("Message templates seeded successfully", map[string]interface{}{
			"total_records": inserted,
		})
	}
	return nil
}
