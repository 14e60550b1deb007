package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/internal/app/repository"
	"github.com/ikkim/delivery-tracker/internal/broker/kafka"
	"github.com/ikkim/delivery-tracker/pkg/logger"
	"gorm.io/gorm"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"

	maxUpdateTries = 3
)

var errStaleAttempt = errors.New("delivery attempt version changed")

// AttemptInput carries the fields of a create or patch request; nil means
// the field was not supplied.
type AttemptInput struct {
	Status         *model.DeliveryStatus `json:"status"`
	DeliveryDate   *string               `json:"delivery_date"`
	DeliveryTime   *string               `json:"delivery_time"`
	DriverIDs      *[]uint               `json:"drivers"`
	MinsToArrival  *int                  `json:"mins_to_arrival"`
	MilesToArrival *float64              `json:"miles_to_arrival"`
	Result         *string               `json:"result"`
	Notes          *string               `json:"notes"`
	ScheduledItems *[]ScheduledItemInput `json:"scheduled_items"`
}

type ScheduledItemInput struct {
	OrderItemID uint `json:"order_item_id"`
	Quantity    int  `json:"quantity"`
}

type DeliveryAttemptService interface {
	CreateAttempt(ctx context.Context, principal Principal, orderID uint, input AttemptInput) (*model.DeliveryAttempt, error)
	UpdateAttempt(ctx context.Context, principal Principal, attemptID uint, input AttemptInput) (*model.DeliveryAttempt, error)
	GetAttempt(principal Principal, attemptID uint) (*model.DeliveryAttempt, error)
	ListAttempts(principal Principal, orderID uint) ([]model.DeliveryAttempt, error)
	StatusHistory(principal Principal, attemptID uint) ([]model.AttemptStatusChange, error)

	// used by order placement to create the first attempt in its transaction
	planAttempt(order *model.Order, first bool, input AttemptInput) (*attemptPlan, error)
	persistAttempt(tx *gorm.DB, actor Principal, plan *attemptPlan) error
	afterCreate(ctx context.Context, actor Principal, plan *attemptPlan)
}

type attemptPlan struct {
	order   *model.Order
	attempt *model.DeliveryAttempt
	drivers []model.User
	items   []model.ScheduledItem
	notify  bool
}

type deliveryAttemptService struct {
	db          *gorm.DB
	attemptRepo repository.DeliveryAttemptRepository
	orderRepo   repository.OrderRepository
	userRepo    repository.UserRepository
	photos      PhotoService
	notifier    Notifier
	events      StatusEvents
	now         func() time.Time
}

// NewDeliveryAttemptService wires the attempt state machine. events may be nil
// when status changes are not published.
func NewDeliveryAttemptService(
	db *gorm.DB,
	attemptRepo repository.DeliveryAttemptRepository,
	orderRepo repository.OrderRepository,
	userRepo repository.UserRepository,
	photos PhotoService,
	notifier Notifier,
	events StatusEvents,
) DeliveryAttemptService {
	return &deliveryAttemptService{
		db:          db,
		attemptRepo: attemptRepo,
		orderRepo:   orderRepo,
		userRepo:    userRepo,
		photos:      photos,
		notifier:    notifier,
		events:      events,
		now:         time.Now,
	}
}

func (s *deliveryAttemptService) CreateAttempt(ctx context.Context, principal Principal, orderID uint, input AttemptInput) (*model.DeliveryAttempt, error) {
	logger.Info("Creating delivery attempt", map[string]interface{}{
		"order_id": orderID,
		"user_id":  principal.UserID,
	})

	order, err := s.orderRepo.FindByID(orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if !principal.CanManageStore(order.StoreID) {
		logger.Warn("Delivery attempt creation denied", map[string]interface{}{
			"order_id": orderID,
			"store_id": order.StoreID,
			"user_id":  principal.UserID,
		})
		return nil, permissionDenied("you cannot schedule deliveries for this store")
	}

	count, err := s.attemptRepo.CountByOrderID(order.ID)
	if err != nil {
		return nil, err
	}

	plan, err := s.planAttempt(order, count == 0, input)
	if err != nil {
		logger.Warn("Delivery attempt rejected", map[string]interface{}{
			"order_id": orderID,
			"error":    err.Error(),
		})
		return nil, err
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.persistAttempt(tx, principal, plan)
	}); err != nil {
		logger.Error("Failed to create delivery attempt", err, map[string]interface{}{
			"order_id": orderID,
		})
		return nil, err
	}

	s.afterCreate(ctx, principal, plan)

	logger.Info("Delivery attempt created", map[string]interface{}{
		"attempt_id": plan.attempt.ID,
		"order_id":   orderID,
		"status":     plan.attempt.Status,
		"redelivery": count > 0,
	})
	return s.attemptRepo.FindByID(plan.attempt.ID)
}

// planAttempt validates input for a new attempt of order and fills defaults.
// A first attempt inherits the order's date, preferred time and preferred
// drivers; later attempts must be scheduled explicitly.
func (s *deliveryAttemptService) planAttempt(order *model.Order, first bool, input AttemptInput) (*attemptPlan, error) {
	verr := newValidationError()

	date := stringValue(input.DeliveryDate)
	deliveryTime := stringValue(input.DeliveryTime)
	if first {
		if date == "" {
			date = order.DeliveryDate
		}
		if deliveryTime == "" {
			deliveryTime = order.PreferredDeliveryTime
		}
	} else {
		if date == "" {
			verr.Add("delivery_date", "This field is required.")
		}
		if deliveryTime == "" {
			verr.Add("delivery_time", "This field is required.")
		}
	}
	validateSchedule(verr, date, deliveryTime)
	validateETA(verr, input)

	status := model.StatusOrderPlaced
	if input.Status != nil {
		if input.Status.IsValid() {
			status = *input.Status
		} else {
			verr.Add("status", fmt.Sprintf("%q is not a valid status.", *input.Status))
		}
	}

	var drivers []model.User
	if input.DriverIDs != nil {
		resolved, err := resolveDrivers(s.userRepo, verr, "drivers", *input.DriverIDs)
		if err != nil {
			return nil, err
		}
		drivers = resolved
	} else if first {
		drivers = order.PreferredDrivers
	}

	var items []model.ScheduledItem
	if input.ScheduledItems != nil {
		items = resolveScheduledItems(verr, order.Items, *input.ScheduledItems)
	}

	if err := verr.errOrNil(); err != nil {
		return nil, err
	}

	switch status {
	case model.StatusComplete:
		// a new attempt has no photos yet
		return nil, &PreconditionError{Code: PreconditionPhotosRequired, Reason: "Cannot mark as complete: delivery photos are required."}
	case model.StatusEnRoute:
		if input.MinsToArrival == nil || input.MilesToArrival == nil {
			return nil, &PreconditionError{Code: PreconditionETARequired, Reason: "Cannot mark as en route: arrival time and distance must be provided."}
		}
	}

	// a redelivery that starts over at order_placed does not re-announce the order
	_, hasEvent := status.Event()
	notify := hasEvent && (first || status != model.StatusOrderPlaced)

	now := s.now()
	attempt := &model.DeliveryAttempt{
		OrderID:         order.ID,
		Status:          status,
		DeliveryDate:    date,
		DeliveryTime:    deliveryTime,
		MinsToArrival:   input.MinsToArrival,
		MilesToArrival:  input.MilesToArrival,
		Result:          stringValue(input.Result),
		Notes:           stringValue(input.Notes),
		ArrivalSMSSent:  notify && status == model.StatusEnRoute,
		Version:         1,
		StatusChangedAt: now,
	}

	return &attemptPlan{order: order, attempt: attempt, drivers: drivers, items: items, notify: notify}, nil
}

func (s *deliveryAttemptService) persistAttempt(tx *gorm.DB, actor Principal, plan *attemptPlan) error {
	repo := s.attemptRepo.WithTx(tx)
	attempt := plan.attempt
	// the order may have been inserted in the same transaction
	attempt.OrderID = plan.order.ID
	attempt.Order = *plan.order

	if err := repo.Create(attempt); err != nil {
		return err
	}
	if len(plan.drivers) > 0 {
		if err := repo.ReplaceDrivers(attempt, plan.drivers); err != nil {
			return err
		}
	}
	if len(plan.items) > 0 {
		if err := repo.ReplaceScheduledItems(attempt.ID, plan.items); err != nil {
			return err
		}
	}

	return repo.CreateStatusChange(&model.AttemptStatusChange{
		DeliveryAttemptID: attempt.ID,
		ToStatus:          attempt.Status,
		ChangedByID:       actorID(actor),
		ChangedAt:         attempt.StatusChangedAt,
	})
}

func (s *deliveryAttemptService) afterCreate(ctx context.Context, actor Principal, plan *attemptPlan) {
	attempt := plan.attempt
	s.publishStatusChange(attempt, "", actor)

	if !plan.notify {
		return
	}
	event, _ := attempt.Status.Event()
	s.notify(ctx, attempt, event)
}

// UpdateAttempt applies a patch to the attempt as one guarded transition.
// The attempt row is updated with a compare-and-swap on its version; when a
// concurrent update wins, the patch is re-validated against the fresh row.
func (s *deliveryAttemptService) UpdateAttempt(ctx context.Context, principal Principal, attemptID uint, input AttemptInput) (*model.DeliveryAttempt, error) {
	for try := 1; try <= maxUpdateTries; try++ {
		attempt, err := s.loadAttempt(attemptID)
		if err != nil {
			return nil, err
		}

		if err := authorizeAttemptUpdate(principal, attempt, input); err != nil {
			logger.Warn("Delivery attempt update denied", map[string]interface{}{
				"attempt_id": attemptID,
				"user_id":    principal.UserID,
			})
			return nil, err
		}

		updated, err := s.applyUpdate(ctx, principal, attempt, input)
		if errors.Is(err, errStaleAttempt) {
			logger.Warn("Concurrent delivery attempt update, retrying", map[string]interface{}{
				"attempt_id": attemptID,
				"try":        try,
			})
			continue
		}
		return updated, err
	}

	logger.Warn("Delivery attempt update abandoned after conflicts", map[string]interface{}{
		"attempt_id": attemptID,
	})
	return nil, ErrConflict
}

func authorizeAttemptUpdate(principal Principal, attempt *model.DeliveryAttempt, input AttemptInput) error {
	switch accessToAttempt(principal, attempt.Order.StoreID, attempt) {
	case attemptAccessManage:
		return nil
	case attemptAccessDriver:
		if input.DriverIDs != nil || input.DeliveryDate != nil || input.DeliveryTime != nil || input.ScheduledItems != nil {
			return permissionDenied("drivers may only update status, arrival estimate and result")
		}
		return nil
	default:
		return permissionDenied("you cannot update this delivery attempt")
	}
}

func (s *deliveryAttemptService) applyUpdate(ctx context.Context, principal Principal, attempt *model.DeliveryAttempt, input AttemptInput) (*model.DeliveryAttempt, error) {
	verr := newValidationError()

	if input.DeliveryDate != nil && *input.DeliveryDate == "" {
		verr.Add("delivery_date", "This field may not be blank.")
	}
	if input.DeliveryTime != nil && *input.DeliveryTime == "" {
		verr.Add("delivery_time", "This field may not be blank.")
	}
	validateSchedule(verr, stringValue(input.DeliveryDate), stringValue(input.DeliveryTime))
	validateETA(verr, input)

	previous := attempt.Status
	status := previous
	if input.Status != nil {
		if input.Status.IsValid() {
			status = *input.Status
		} else {
			verr.Add("status", fmt.Sprintf("%q is not a valid status.", *input.Status))
		}
	}

	var drivers []model.User
	if input.DriverIDs != nil {
		resolved, err := resolveDrivers(s.userRepo, verr, "drivers", *input.DriverIDs)
		if err != nil {
			return nil, err
		}
		drivers = resolved
	}

	var items []model.ScheduledItem
	if input.ScheduledItems != nil {
		orderItems, err := s.orderRepo.FindItemsByOrderID(attempt.OrderID)
		if err != nil {
			return nil, err
		}
		items = resolveScheduledItems(verr, orderItems, *input.ScheduledItems)
	}

	if err := verr.errOrNil(); err != nil {
		return nil, err
	}

	if !previous.CanTransitionTo(status) {
		return nil, &PreconditionError{Reason: fmt.Sprintf("Cannot change status from %s to %s.", previous, status)}
	}
	if err := s.checkGuards(attempt, status, input); err != nil {
		logger.Warn("Delivery attempt transition blocked", map[string]interface{}{
			"attempt_id": attempt.ID,
			"from":       previous,
			"to":         status,
			"reason":     err.Error(),
		})
		return nil, err
	}

	now := s.now()
	changed := status != previous
	updates := map[string]interface{}{}
	if changed {
		updates["status"] = status
		updates["status_changed_at"] = now
	}
	if input.DeliveryDate != nil {
		updates["delivery_date"] = *input.DeliveryDate
	}
	if input.DeliveryTime != nil {
		updates["delivery_time"] = *input.DeliveryTime
	}
	if input.MinsToArrival != nil {
		updates["mins_to_arrival"] = *input.MinsToArrival
	}
	if input.MilesToArrival != nil {
		updates["miles_to_arrival"] = *input.MilesToArrival
	}
	if input.Result != nil {
		updates["result"] = *input.Result
	}
	if input.Notes != nil {
		updates["notes"] = *input.Notes
	}

	event, hasEvent := status.Event()
	notify := changed && hasEvent
	// the flags are claimed in the same conditional update as the status so
	// that only one request can win the right to send
	switch status {
	case model.StatusEnRoute:
		if attempt.ArrivalSMSSent {
			notify = false
		} else if notify {
			updates["arrival_sms_sent"] = true
		}
	case model.StatusComplete:
		if attempt.CompletionSMSSent {
			notify = false
		} else if notify {
			updates["completion_sms_sent"] = true
		}
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		repo := s.attemptRepo.WithTx(tx)

		ok, err := repo.UpdateIfVersion(attempt.ID, attempt.Version, updates)
		if err != nil {
			return err
		}
		if !ok {
			return errStaleAttempt
		}

		if changed {
			if err := repo.CreateStatusChange(&model.AttemptStatusChange{
				DeliveryAttemptID: attempt.ID,
				FromStatus:        previous,
				ToStatus:          status,
				ChangedByID:       actorID(principal),
				ChangedAt:         now,
			}); err != nil {
				return err
			}
		}

		if input.ScheduledItems != nil {
			return repo.ReplaceScheduledItems(attempt.ID, items)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, errStaleAttempt) {
			logger.Error("Failed to update delivery attempt", err, map[string]interface{}{
				"attempt_id": attempt.ID,
			})
		}
		return nil, err
	}

	// the driver set lives in a join table and is replaced after the attempt
	// row is committed; a failure here leaves the previous drivers in place
	if input.DriverIDs != nil {
		if err := s.attemptRepo.ReplaceDrivers(attempt, drivers); err != nil {
			logger.Warn("Driver assignment failed after attempt update, driver set is stale", map[string]interface{}{
				"attempt_id": attempt.ID,
				"driver_ids": *input.DriverIDs,
				"error":      err.Error(),
			})
		}
	}

	updated, err := s.attemptRepo.FindByID(attempt.ID)
	if err != nil {
		return nil, err
	}

	logger.Info("Delivery attempt updated", map[string]interface{}{
		"attempt_id": attempt.ID,
		"from":       previous,
		"to":         status,
		"user_id":    principal.UserID,
		"notify":     notify,
	})

	if changed {
		s.publishStatusChange(updated, previous, principal)
	}
	if notify {
		s.notify(ctx, updated, event)
	}
	return updated, nil
}

func (s *deliveryAttemptService) checkGuards(attempt *model.DeliveryAttempt, status model.DeliveryStatus, input AttemptInput) error {
	switch status {
	case model.StatusComplete:
		ok, err := s.photos.HasRequiredPhotos(attempt.ID)
		if err != nil {
			return err
		}
		if !ok {
			return &PreconditionError{Code: PreconditionPhotosRequired, Reason: "Cannot mark as complete: delivery photos are required."}
		}
	case model.StatusEnRoute:
		mins := input.MinsToArrival
		if mins == nil {
			mins = attempt.MinsToArrival
		}
		miles := input.MilesToArrival
		if miles == nil {
			miles = attempt.MilesToArrival
		}
		if mins == nil || miles == nil {
			return &PreconditionError{Code: PreconditionETARequired, Reason: "Cannot mark as en route: arrival time and distance must be provided."}
		}
	}
	return nil
}

// notify builds the event context from the committed attempt and hands it to
// the notifier. The guards are re-checked against the stored state.
func (s *deliveryAttemptService) notify(ctx context.Context, attempt *model.DeliveryAttempt, event model.EventType) {
	switch event {
	case model.EventDriverEnRoute:
		if attempt.MinsToArrival == nil || attempt.MilesToArrival == nil {
			return
		}
	case model.EventDriverComplete:
		if ok, err := s.photos.HasRequiredPhotos(attempt.ID); err != nil || !ok {
			return
		}
	}

	order := attempt.Order
	eventCtx := EventContext{
		CtxCustomerName: order.CustomerName(),
		CtxOrderID:      order.InvoiceNum,
		CtxPhoneNumber:  order.PhoneNum,
		CtxDeliveryDate: attempt.DeliveryDate,
		CtxStoreName:    order.Store.Name,
	}
	if eventCtx[CtxOrderID] == "" {
		eventCtx[CtxOrderID] = strconv.FormatUint(uint64(order.ID), 10)
	}

	switch event {
	case model.EventDriverEnRoute:
		eventCtx[CtxMinsToArrival] = strconv.Itoa(*attempt.MinsToArrival)
		eventCtx[CtxMilesToArrival] = strconv.FormatFloat(*attempt.MilesToArrival, 'f', -1, 64)
	case model.EventDriverComplete:
		eventCtx[CtxPhotoLinks] = s.photos.PhotoLinks(ctx, attempt.ID)
	}

	s.notifier.Trigger(event, order.StoreID, eventCtx)
}

func (s *deliveryAttemptService) publishStatusChange(attempt *model.DeliveryAttempt, from model.DeliveryStatus, actor Principal) {
	if s.events == nil {
		return
	}
	s.events.StatusChanged(kafka.AttemptStatusChanged{
		AttemptID:  attempt.ID,
		OrderID:    attempt.OrderID,
		StoreID:    attempt.Order.StoreID,
		FromStatus: string(from),
		ToStatus:   string(attempt.Status),
		ChangedBy:  actor.UserID,
		ChangedAt:  attempt.StatusChangedAt,
	})
}

func (s *deliveryAttemptService) GetAttempt(principal Principal, attemptID uint) (*model.DeliveryAttempt, error) {
	attempt, err := s.loadAttempt(attemptID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOrderVisible(principal, attempt.OrderID); err != nil {
		return nil, err
	}
	return attempt, nil
}

func (s *deliveryAttemptService) ListAttempts(principal Principal, orderID uint) ([]model.DeliveryAttempt, error) {
	if err := s.ensureOrderVisible(principal, orderID); err != nil {
		return nil, err
	}
	return s.attemptRepo.FindByOrderID(orderID)
}

func (s *deliveryAttemptService) StatusHistory(principal Principal, attemptID uint) ([]model.AttemptStatusChange, error) {
	attempt, err := s.loadAttempt(attemptID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOrderVisible(principal, attempt.OrderID); err != nil {
		return nil, err
	}
	return s.attemptRepo.FindStatusChanges(attemptID)
}

// ensureOrderVisible reports invisible orders as missing.
func (s *deliveryAttemptService) ensureOrderVisible(principal Principal, orderID uint) error {
	visible, err := s.orderRepo.IsVisible(orderID, principal.OrderFilter(nil))
	if err != nil {
		return err
	}
	if !visible {
		return ErrNotFound
	}
	return nil
}

func (s *deliveryAttemptService) loadAttempt(attemptID uint) (*model.DeliveryAttempt, error) {
	attempt, err := s.attemptRepo.FindByID(attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return attempt, nil
}

// resolveDrivers loads the users behind ids, recording unknown ids and users
// without the driver flag on verr under field.
func resolveDrivers(userRepo repository.UserRepository, verr *ValidationError, field string, ids []uint) ([]model.User, error) {
	unique := make([]uint, 0, len(ids))
	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	users, err := userRepo.FindByIDs(unique)
	if err != nil {
		return nil, err
	}

	byID := make(map[uint]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	drivers := make([]model.User, 0, len(unique))
	for _, id := range unique {
		u, ok := byID[id]
		if !ok {
			verr.Add(field, fmt.Sprintf("User %d does not exist.", id))
			continue
		}
		if !u.IsDriver {
			verr.Add(field, fmt.Sprintf("User %d is not a driver.", id))
			continue
		}
		drivers = append(drivers, u)
	}
	return drivers, nil
}

func resolveScheduledItems(verr *ValidationError, orderItems []model.OrderItem, inputs []ScheduledItemInput) []model.ScheduledItem {
	byID := make(map[uint]model.OrderItem, len(orderItems))
	for _, item := range orderItems {
		byID[item.ID] = item
	}

	seen := make(map[uint]bool, len(inputs))
	items := make([]model.ScheduledItem, 0, len(inputs))
	for _, in := range inputs {
		item, ok := byID[in.OrderItemID]
		switch {
		case !ok:
			verr.Add("scheduled_items", fmt.Sprintf("Order item %d does not belong to this order.", in.OrderItemID))
			continue
		case seen[in.OrderItemID]:
			verr.Add("scheduled_items", fmt.Sprintf("Order item %d is listed more than once.", in.OrderItemID))
			continue
		case in.Quantity < 1 || in.Quantity > item.Quantity:
			verr.Add("scheduled_items", fmt.Sprintf("Quantity for order item %d must be between 1 and %d.", in.OrderItemID, item.Quantity))
			continue
		}
		seen[in.OrderItemID] = true
		items = append(items, model.ScheduledItem{OrderItemID: in.OrderItemID, Quantity: in.Quantity})
	}
	return items
}

func validateSchedule(verr *ValidationError, date, deliveryTime string) {
	if date != "" {
		if _, err := time.Parse(dateLayout, date); err != nil {
			verr.Add("delivery_date", "Date has wrong format. Use YYYY-MM-DD.")
		}
	}
	if deliveryTime != "" {
		if _, err := time.Parse(timeLayout, deliveryTime); err != nil {
			verr.Add("delivery_time", "Time has wrong format. Use HH:MM.")
		}
	}
}

func validateETA(verr *ValidationError, input AttemptInput) {
	if input.MinsToArrival != nil && *input.MinsToArrival < 0 {
		verr.Add("mins_to_arrival", "Ensure this value is greater than or equal to 0.")
	}
	if input.MilesToArrival != nil && *input.MilesToArrival < 0 {
		verr.Add("miles_to_arrival", "Ensure this value is greater than or equal to 0.")
	}
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func actorID(p Principal) *uint {
	if p.UserID == 0 {
		return nil
	}
	id := p.UserID
	return &id
}
