package repository

import (
	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/pkg/logger"
	"gorm.io/gorm"
)

// OrderFilter scopes order listings. Unless AllStores is set, only orders of
// StoreIDs are returned, plus (when DriverID is set) orders with an attempt
// assigning that driver.
type OrderFilter struct {
	StoreID   *uint
	StoreIDs  []uint
	AllStores bool
	DriverID  uint
}

type OrderRepository interface {
	WithTx(tx *gorm.DB) OrderRepository
	Create(order *model.Order) error
	FindByID(id uint) (*model.Order, error)
	FindAll(filter OrderFilter) ([]model.Order, error)
	IsVisible(orderID uint, filter OrderFilter) (bool, error)
	FindItemsByOrderID(orderID uint) ([]model.OrderItem, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) WithTx(tx *gorm.DB) OrderRepository {
	return &orderRepository{db: tx}
}

func (r *orderRepository) preloadOrder() *gorm.DB {
	return r.db.Preload("Store").
		Preload("Items").
		Preload("PreferredDrivers").
		Preload("DeliveryAttempts", func(db *gorm.DB) *gorm.DB {
			return db.Order("delivery_attempts.id")
		}).
		Preload("DeliveryAttempts.Drivers")
}

func (r *orderRepository) Create(order *model.Order) error {
	logger.Debug("Creating order in database", map[string]interface{}{
		"store_id":    order.StoreID,
		"invoice_num": order.InvoiceNum,
		"item_count":  len(order.Items),
	})

	if err := r.db.Omit("Store", "PreferredDrivers.*", "DeliveryAttempts").Create(order).Error; err != nil {
		logger.Error("Failed to create order in database", err, map[string]interface{}{
			"store_id":    order.StoreID,
			"invoice_num": order.InvoiceNum,
		})
		return err
	}

	logger.Debug("Order created in database", map[string]interface{}{
		"order_id":    order.ID,
		"store_id":    order.StoreID,
		"invoice_num": order.InvoiceNum,
	})
	return nil
}

func (r *orderRepository) FindByID(id uint) (*model.Order, error) {
	logger.Debug("Finding order by ID in database", map[string]interface{}{
		"order_id": id,
	})

	var order model.Order
	if err := r.preloadOrder().First(&order, id).Error; err != nil {
		logger.Error("Failed to find order by ID in database", err, map[string]interface{}{
			"order_id": id,
		})
		return nil, err
	}

	logger.Debug("Order found by ID in database", map[string]interface{}{
		"order_id":      order.ID,
		"attempt_count": len(order.DeliveryAttempts),
	})
	return &order, nil
}

func (r *orderRepository) scoped(filter OrderFilter) *gorm.DB {
	query := r.db.Model(&model.Order{})
	if filter.StoreID != nil {
		query = query.Where("orders.store_id = ?", *filter.StoreID)
	}
	if filter.AllStores {
		return query
	}

	if filter.DriverID == 0 {
		return query.Where("orders.store_id IN ?", filter.StoreIDs)
	}

	assigned := r.db.Table("delivery_attempts").
		Select("delivery_attempts.order_id").
		Joins("JOIN delivery_attempt_drivers ON delivery_attempt_drivers.delivery_attempt_id = delivery_attempts.id").
		Where("delivery_attempt_drivers.user_id = ?", filter.DriverID)

	return query.Where(
		r.db.Where("orders.store_id IN ?", filter.StoreIDs).
			Or("orders.id IN (?)", assigned),
	)
}

func (r *orderRepository) FindAll(filter OrderFilter) ([]model.Order, error) {
	logger.Debug("Listing orders from database", map[string]interface{}{
		"store_ids":  filter.StoreIDs,
		"all_stores": filter.AllStores,
		"driver_id":  filter.DriverID,
	})

	var ids []uint
	if err := r.scoped(filter).Order("orders.id DESC").Pluck("orders.id", &ids).Error; err != nil {
		logger.Error("Failed to list order IDs from database", err, nil)
		return nil, err
	}

	orders := []model.Order{}
	if len(ids) == 0 {
		return orders, nil
	}

	if err := r.preloadOrder().Where("id IN ?", ids).Order("id DESC").Find(&orders).Error; err != nil {
		logger.Error("Failed to list orders from database", err, nil)
		return nil, err
	}

	logger.Debug("Orders listed from database", map[string]interface{}{
		"count": len(orders),
	})
	return orders, nil
}

func (r *orderRepository) IsVisible(orderID uint, filter OrderFilter) (bool, error) {
	var count int64
	if err := r.scoped(filter).Where("orders.id = ?", orderID).Count(&count).Error; err != nil {
		logger.Error("Failed to check order visibility in database", err, map[string]interface{}{
			"order_id": orderID,
		})
		return false, err
	}
	return count > 0, nil
}

func (r *orderRepository) FindItemsByOrderID(orderID uint) ([]model.OrderItem, error) {
	var items []model.OrderItem
	if err := r.db.Where("order_id = ?", orderID).Order("id").Find(&items).Error; err != nil {
		logger.Error("Failed to find order items in database", err, map[string]interface{}{
			"order_id": orderID,
		})
		return nil, err
	}
	return items, nil
}
