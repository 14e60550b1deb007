package service

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/internal/app/repository"
	"github.com/ikkim/delivery-tracker/internal/worker"
	"github.com/ikkim/delivery-tracker/pkg/logger"
	"github.com/ikkim/delivery-tracker/pkg/sms"
	"gorm.io/gorm"
)

// EventContext holds the values substituted into a message template.
type EventContext map[string]string

// Context keys available to templates.
const (
	CtxCustomerName   = "customer_name"
	CtxOrderID        = "order_id"
	CtxPhoneNumber    = "phone_number"
	CtxDeliveryDate   = "delivery_date"
	CtxStoreName      = "store_name"
	CtxMinsToArrival  = "mins_to_arrival"
	CtxMilesToArrival = "miles_to_arrival"
	CtxPhotoLinks     = "photo_links"
)

// TemplateVariables lists the placeholders filled for each event.
func TemplateVariables() map[model.EventType][]string {
	base := []string{CtxCustomerName, CtxOrderID, CtxPhoneNumber, CtxDeliveryDate, CtxStoreName}
	vars := make(map[model.EventType][]string, len(model.Events()))
	for _, event := range model.Events() {
		v := append([]string{}, base...)
		switch event {
		case model.EventDriverEnRoute:
			v = append(v, CtxMinsToArrival, CtxMilesToArrival)
		case model.EventDriverComplete:
			v = append(v, CtxPhotoLinks)
		}
		vars[event] = v
	}
	return vars
}

// Notifier accepts notifications for detached, best-effort delivery.
type Notifier interface {
	Trigger(event model.EventType, storeID uint, eventCtx EventContext)
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// RenderTemplate substitutes {{ name }} placeholders; unknown names render empty.
func RenderTemplate(content string, eventCtx EventContext) string {
	return placeholderPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		return eventCtx[name]
	})
}

// NotificationDispatcher renders per-store templates and hands them to the SMS
// sender on a worker pool. Failures are logged and never returned.
type NotificationDispatcher struct {
	templates   repository.MessageTemplateRepository
	sender      sms.Sender
	pool        *worker.Pool
	sendTimeout time.Duration
}

func NewNotificationDispatcher(
	templates repository.MessageTemplateRepository,
	sender sms.Sender,
	pool *worker.Pool,
) *NotificationDispatcher {
	return &NotificationDispatcher{
		templates:   templates,
		sender:      sender,
		pool:        pool,
		sendTimeout: 15 * time.Second,
	}
}

// Trigger enqueues the notification and returns immediately.
func (d *NotificationDispatcher) Trigger(event model.EventType, storeID uint, eventCtx EventContext) {
	queued := d.pool.Submit(func(ctx context.Context) {
		d.Dispatch(ctx, event, storeID, eventCtx)
	})
	if !queued {
		logger.Warn("Notification dropped", map[string]interface{}{
			"event":    event,
			"store_id": storeID,
		})
	}
}

// Dispatch sends the notification synchronously and reports whether a
// message was handed to the sender successfully.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, event model.EventType, storeID uint, eventCtx EventContext) bool {
	fields := map[string]interface{}{
		"event":    event,
		"store_id": storeID,
		"order_id": eventCtx[CtxOrderID],
	}

	template, err := d.templates.FindByStoreAndEvent(storeID, event)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Debug("No message template for event, skipping notification", fields)
		} else {
			logger.Error("Failed to load message template", err, fields)
		}
		return false
	}
	if !template.Active {
		logger.Debug("Message template inactive, skipping notification", fields)
		return false
	}

	to := eventCtx[CtxPhoneNumber]
	if to == "" {
		logger.Warn("No phone number for notification", fields)
		return false
	}

	body := RenderTemplate(template.Content, eventCtx)

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	if err := d.sender.Send(sendCtx, to, body); err != nil {
		logger.Error("Failed to send notification", err, fields)
		return false
	}

	logger.Info("Notification sent", fields)
	return true
}
