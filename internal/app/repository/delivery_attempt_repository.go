package repository

import (
	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeliveryAttemptRepository interface {
	// WithTx returns a repository bound to tx.
	WithTx(tx *gorm.DB) DeliveryAttemptRepository

	Create(attempt *model.DeliveryAttempt) error
	FindByID(id uint) (*model.DeliveryAttempt, error)
	FindByOrderID(orderID uint) ([]model.DeliveryAttempt, error)
	CountByOrderID(orderID uint) (int64, error)

	// UpdateIfVersion applies updates only when the stored version still
	// equals version, bumping it. It reports whether a row was updated.
	UpdateIfVersion(id uint, version int, updates map[string]interface{}) (bool, error)

	ReplaceDrivers(attempt *model.DeliveryAttempt, drivers []model.User) error
	ReplaceScheduledItems(attemptID uint, items []model.ScheduledItem) error

	CreateStatusChange(change *model.AttemptStatusChange) error
	FindStatusChanges(attemptID uint) ([]model.AttemptStatusChange, error)
}

type deliveryAttemptRepository struct {
	db *gorm.DB
}

func NewDeliveryAttemptRepository(db *gorm.DB) DeliveryAttemptRepository {
	return &deliveryAttemptRepository{db: db}
}

func (r *deliveryAttemptRepository) WithTx(tx *gorm.DB) DeliveryAttemptRepository {
	return &deliveryAttemptRepository{db: tx}
}

func (r *deliveryAttemptRepository) preloadAttempt() *gorm.DB {
	return r.db.Preload("Drivers", func(db *gorm.DB) *gorm.DB {
		return db.Order("users.id")
	}).
		Preload("ScheduledItems.OrderItem").
		Preload("Photos", func(db *gorm.DB) *gorm.DB {
			return db.Order("delivery_photos.id")
		})
}

func (r *deliveryAttemptRepository) Create(attempt *model.DeliveryAttempt) error {
	logger.Debug("Creating delivery attempt in database", map[string]interface{}{
		"order_id": attempt.OrderID,
		"status":   attempt.Status,
	})

	if err := r.db.Omit(clause.Associations).Create(attempt).Error; err != nil {
		logger.Error("Failed to create delivery attempt in database", err, map[string]interface{}{
			"order_id": attempt.OrderID,
		})
		return err
	}

	logger.Debug("Delivery attempt created in database", map[string]interface{}{
		"attempt_id": attempt.ID,
		"order_id":   attempt.OrderID,
	})
	return nil
}

func (r *deliveryAttemptRepository) FindByID(id uint) (*model.DeliveryAttempt, error) {
	logger.Debug("Finding delivery attempt by ID in database", map[string]interface{}{
		"attempt_id": id,
	})

	var attempt model.DeliveryAttempt
	if err := r.preloadAttempt().Preload("Order.Store").First(&attempt, id).Error; err != nil {
		logger.Error("Failed to find delivery attempt by ID in database", err, map[string]interface{}{
			"attempt_id": id,
		})
		return nil, err
	}

	logger.Debug("Delivery attempt found by ID in database", map[string]interface{}{
		"attempt_id": attempt.ID,
		"status":     attempt.Status,
		"version":    attempt.Version,
	})
	return &attempt, nil
}

func (r *deliveryAttemptRepository) FindByOrderID(orderID uint) ([]model.DeliveryAttempt, error) {
	logger.Debug("Finding delivery attempts by order ID in database", map[string]interface{}{
		"order_id": orderID,
	})

	var attempts []model.DeliveryAttempt
	if err := r.preloadAttempt().Where("order_id = ?", orderID).Order("id").Find(&attempts).Error; err != nil {
		logger.Error("Failed to find delivery attempts by order ID in database", err, map[string]interface{}{
			"order_id": orderID,
		})
		return nil, err
	}

	logger.Debug("Delivery attempts found by order ID in database", map[string]interface{}{
		"order_id": orderID,
		"count":    len(attempts),
	})
	return attempts, nil
}

func (r *deliveryAttemptRepository) CountByOrderID(orderID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&model.DeliveryAttempt{}).Where("order_id = ?", orderID).Count(&count).Error; err != nil {
		logger.Error("Failed to count delivery attempts in database", err, map[string]interface{}{
			"order_id": orderID,
		})
		return 0, err
	}
	return count, nil
}

func (r *deliveryAttemptRepository) UpdateIfVersion(id uint, version int, updates map[string]interface{}) (bool, error) {
	logger.Debug("Updating delivery attempt in database", map[string]interface{}{
		"attempt_id": id,
		"version":    version,
		"fields":     len(updates),
	})

	updates["version"] = version + 1
	result := r.db.Model(&model.DeliveryAttempt{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	if result.Error != nil {
		logger.Error("Failed to update delivery attempt in database", result.Error, map[string]interface{}{
			"attempt_id": id,
		})
		return false, result.Error
	}

	if result.RowsAffected == 0 {
		logger.Debug("Delivery attempt version changed concurrently", map[string]interface{}{
			"attempt_id": id,
			"version":    version,
		})
		return false, nil
	}
	return true, nil
}

func (r *deliveryAttemptRepository) ReplaceDrivers(attempt *model.DeliveryAttempt, drivers []model.User) error {
	logger.Debug("Replacing delivery attempt drivers in database", map[string]interface{}{
		"attempt_id":   attempt.ID,
		"driver_count": len(drivers),
	})

	if err := r.db.Model(attempt).Association("Drivers").Replace(drivers); err != nil {
		logger.Error("Failed to replace delivery attempt drivers in database", err, map[string]interface{}{
			"attempt_id": attempt.ID,
		})
		return err
	}
	attempt.Drivers = drivers
	return nil
}

func (r *deliveryAttemptRepository) ReplaceScheduledItems(attemptID uint, items []model.ScheduledItem) error {
	if err := r.db.Where("delivery_attempt_id = ?", attemptID).Delete(&model.ScheduledItem{}).Error; err != nil {
		logger.Error("Failed to delete scheduled items in database", err, map[string]interface{}{
			"attempt_id": attemptID,
		})
		return err
	}
	if len(items) == 0 {
		return nil
	}

	for i := range items {
		items[i].DeliveryAttemptID = attemptID
	}
	if err := r.db.Omit("OrderItem").Create(&items).Error; err != nil {
		logger.Error("Failed to create scheduled items in database", err, map[string]interface{}{
			"attempt_id": attemptID,
		})
		return err
	}
	return nil
}

func (r *deliveryAttemptRepository) CreateStatusChange(change *model.AttemptStatusChange) error {
	if err := r.db.Create(change).Error; err != nil {
		logger.Error("Failed to record status change in database", err, map[string]interface{}{
			"attempt_id": change.DeliveryAttemptID,
			"to_status":  change.ToStatus,
		})
		return err
	}
	return nil
}

func (r *deliveryAttemptRepository) FindStatusChanges(attemptID uint) ([]model.AttemptStatusChange, error) {
	var changes []model.AttemptStatusChange
	if err := r.db.Where("delivery_attempt_id = ?", attemptID).Order("id").Find(&changes).Error; err != nil {
		logger.Error("Failed to find status changes in database", err, map[string]interface{}{
			"attempt_id": attemptID,
		})
		return nil, err
	}
	return changes, nil
}
