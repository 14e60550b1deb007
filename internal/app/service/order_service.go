package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/internal/app/repository"
	"github.com/ikkim/delivery-tracker/pkg/logger"
	"gorm.io/gorm"
)

type OrderItemInput struct {
	ProductName  string  `json:"product_name"`
	ProductMPN   string  `json:"product_mpn"`
	Quantity     int     `json:"quantity"`
	PriceAtOrder float64 `json:"price_at_order"`
}

type OrderInput struct {
	StoreID               uint             `json:"store"`
	InvoiceNum            string           `json:"invoice_num"`
	FirstName             string           `json:"first_name"`
	LastName              string           `json:"last_name"`
	PhoneNum              string           `json:"phone_num"`
	Address               string           `json:"address"`
	CustomerEmail         string           `json:"customer_email"`
	CustomerNum           string           `json:"customer_num"`
	Notes                 string           `json:"notes"`
	DeliveryDate          string           `json:"delivery_date"`
	PreferredDeliveryTime string           `json:"preferred_delivery_time"`
	PreferredDriverIDs    []uint           `json:"preferred_drivers"`
	Items                 []OrderItemInput `json:"items"`
}

type OrderService interface {
	CreateOrder(ctx context.Context, principal Principal, input OrderInput) (*model.Order, error)
	ListOrders(principal Principal, storeID *uint) ([]model.Order, error)
	GetOrder(principal Principal, orderID uint) (*model.Order, error)
}

type orderService struct {
	db        *gorm.DB
	orderRepo repository.OrderRepository
	storeRepo repository.StoreRepository
	userRepo  repository.UserRepository
	attempts  DeliveryAttemptService
}

func NewOrderService(
	db *gorm.DB,
	orderRepo repository.OrderRepository,
	storeRepo repository.StoreRepository,
	userRepo repository.UserRepository,
	attempts DeliveryAttemptService,
) OrderService {
	return &orderService{
		db:        db,
		orderRepo: orderRepo,
		storeRepo: storeRepo,
		userRepo:  userRepo,
		attempts:  attempts,
	}
}

// CreateOrder places the order and its first delivery attempt in one
// transaction. The attempt starts at order_placed with the order's schedule
// and preferred drivers.
func (s *orderService) CreateOrder(ctx context.Context, principal Principal, input OrderInput) (*model.Order, error) {
	logger.Info("Creating order", map[string]interface{}{
		"store_id":    input.StoreID,
		"invoice_num": input.InvoiceNum,
		"user_id":     principal.UserID,
	})

	if !principal.CanManageStore(input.StoreID) {
		logger.Warn("Order creation denied", map[string]interface{}{
			"store_id": input.StoreID,
			"user_id":  principal.UserID,
		})
		return nil, permissionDenied("you cannot place orders for this store")
	}

	store, err := s.storeRepo.FindByID(input.StoreID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	verr := newValidationError()
	requireField(verr, "first_name", input.FirstName)
	requireField(verr, "last_name", input.LastName)
	requireField(verr, "phone_num", input.PhoneNum)
	requireField(verr, "address", input.Address)
	requireField(verr, "delivery_date", input.DeliveryDate)
	validateSchedule(verr, input.DeliveryDate, input.PreferredDeliveryTime)

	if len(input.Items) == 0 {
		verr.Add("items", "An order needs at least one item.")
	}
	items := make([]model.OrderItem, 0, len(input.Items))
	for i, item := range input.Items {
		switch {
		case item.ProductName == "":
			verr.Add("items", fmt.Sprintf("Item %d: product name is required.", i+1))
		case item.Quantity < 1:
			verr.Add("items", fmt.Sprintf("Item %d: quantity must be at least 1.", i+1))
		case item.PriceAtOrder < 0:
			verr.Add("items", fmt.Sprintf("Item %d: price cannot be negative.", i+1))
		}
		items = append(items, model.OrderItem{
			ProductName:  item.ProductName,
			ProductMPN:   item.ProductMPN,
			Quantity:     item.Quantity,
			PriceAtOrder: item.PriceAtOrder,
		})
	}

	var drivers []model.User
	if len(input.PreferredDriverIDs) > 0 {
		drivers, err = resolveDrivers(s.userRepo, verr, "preferred_drivers", input.PreferredDriverIDs)
		if err != nil {
			return nil, err
		}
	}

	if err := verr.errOrNil(); err != nil {
		logger.Warn("Order rejected", map[string]interface{}{
			"store_id": input.StoreID,
			"error":    err.Error(),
		})
		return nil, err
	}

	order := &model.Order{
		StoreID:               input.StoreID,
		InvoiceNum:            input.InvoiceNum,
		FirstName:             input.FirstName,
		LastName:              input.LastName,
		PhoneNum:              input.PhoneNum,
		Address:               input.Address,
		CustomerEmail:         input.CustomerEmail,
		CustomerNum:           input.CustomerNum,
		Notes:                 input.Notes,
		DeliveryDate:          input.DeliveryDate,
		PreferredDeliveryTime: input.PreferredDeliveryTime,
		Store:                 *store,
		Items:                 items,
		PreferredDrivers:      drivers,
	}

	plan, err := s.attempts.planAttempt(order, true, AttemptInput{})
	if err != nil {
		return nil, err
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			logger.Error("Panic during order creation, rolling back", fmt.Errorf("panic: %v", r), map[string]interface{}{
				"store_id": input.StoreID,
			})
		}
	}()

	if err := s.orderRepo.WithTx(tx).Create(order); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := s.attempts.persistAttempt(tx, principal, plan); err != nil {
		tx.Rollback()
		logger.Error("Failed to create first delivery attempt", err, map[string]interface{}{
			"order_id": order.ID,
		})
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		logger.Error("Failed to commit order", err, map[string]interface{}{
			"store_id": input.StoreID,
		})
		return nil, err
	}

	s.attempts.afterCreate(ctx, principal, plan)

	logger.Info("Order created", map[string]interface{}{
		"order_id":   order.ID,
		"attempt_id": plan.attempt.ID,
		"store_id":   order.StoreID,
	})

	return s.orderRepo.FindByID(order.ID)
}

func (s *orderService) ListOrders(principal Principal, storeID *uint) ([]model.Order, error) {
	return s.orderRepo.FindAll(principal.OrderFilter(storeID))
}

func (s *orderService) GetOrder(principal Principal, orderID uint) (*model.Order, error) {
	visible, err := s.orderRepo.IsVisible(orderID, principal.OrderFilter(nil))
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrNotFound
	}

	order, err := s.orderRepo.FindByID(orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

func requireField(verr *ValidationError, field, value string) {
	if value == "" {
		verr.Add(field, "This field is required.")
	}
}
