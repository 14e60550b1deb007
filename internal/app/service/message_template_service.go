package service

import (
	"errors"
	"fmt"

	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/internal/app/repository"
	"github.com/ikkim/delivery-tracker/pkg/logger"
	"gorm.io/gorm"
)

type TemplateInput struct {
	Content string `json:"content"`
	Active  *bool  `json:"active"`
}

type MessageTemplateService interface {
	ListTemplates(principal Principal, storeID uint) ([]model.MessageTemplate, error)
	UpsertTemplate(principal Principal, storeID uint, event model.EventType, input TemplateInput) (*model.MessageTemplate, error)
	Variables() map[model.EventType][]string
}

type messageTemplateService struct {
	templateRepo repository.MessageTemplateRepository
	storeRepo    repository.StoreRepository
}

func NewMessageTemplateService(
	templateRepo repository.MessageTemplateRepository,
	storeRepo repository.StoreRepository,
) MessageTemplateService {
	return &messageTemplateService{
		templateRepo: templateRepo,
		storeRepo:    storeRepo,
	}
}

func (s *messageTemplateService) ListTemplates(principal Principal, storeID uint) ([]model.MessageTemplate, error) {
	if !principal.CanManageTemplates(storeID) {
		return nil, permissionDenied("you cannot manage templates for this store")
	}
	if err := s.ensureStore(storeID); err != nil {
		return nil, err
	}
	return s.templateRepo.FindByStoreID(storeID)
}

// UpsertTemplate sets the store's template for event. A missing active flag
// keeps an existing template's state and activates a new one.
func (s *messageTemplateService) UpsertTemplate(principal Principal, storeID uint, event model.EventType, input TemplateInput) (*model.MessageTemplate, error) {
	if !principal.CanManageTemplates(storeID) {
		logger.Warn("Template update denied", map[string]interface{}{
			"store_id": storeID,
			"user_id":  principal.UserID,
		})
		return nil, permissionDenied("you cannot manage templates for this store")
	}
	if err := s.ensureStore(storeID); err != nil {
		return nil, err
	}

	verr := newValidationError()
	if !event.IsValid() {
		verr.Add("event", fmt.Sprintf("%q is not a valid event.", event))
	}
	requireField(verr, "content", input.Content)
	if err := verr.errOrNil(); err != nil {
		return nil, err
	}

	active := true
	if input.Active != nil {
		active = *input.Active
	} else if existing, err := s.templateRepo.FindByStoreAndEvent(storeID, event); err == nil {
		active = existing.Active
	}

	template := &model.MessageTemplate{
		StoreID: storeID,
		Event:   event,
		Content: input.Content,
		Active:  active,
	}
	if err := s.templateRepo.Upsert(template); err != nil {
		return nil, err
	}

	logger.Info("Message template saved", map[string]interface{}{
		"store_id": storeID,
		"event":    event,
		"active":   active,
		"user_id":  principal.UserID,
	})
	return template, nil
}

func (s *messageTemplateService) Variables() map[model.EventType][]string {
	return TemplateVariables()
}

func (s *messageTemplateService) ensureStore(storeID uint) error {
	if _, err := s.storeRepo.FindByID(storeID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
