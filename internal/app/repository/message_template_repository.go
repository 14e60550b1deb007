package repository

import (
	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MessageTemplateRepository interface {
	FindByStoreAndEvent(storeID uint, event model.EventType) (*model.MessageTemplate, error)
	FindByStoreID(storeID uint) ([]model.MessageTemplate, error)
	Upsert(template *model.MessageTemplate) error
}

type messageTemplateRepository struct {
	db *gorm.DB
}

func NewMessageTemplateRepository(db *gorm.DB) MessageTemplateRepository {
	return &messageTemplateRepository{db: db}
}

func (r *messageTemplateRepository) FindByStoreAndEvent(storeID uint, event model.EventType) (*model.MessageTemplate, error) {
	var template model.MessageTemplate
	err := r.db.Where("store_id = ? AND event = ?", storeID, event).First(&template).Error
	if err != nil {
		return nil, err
	}
	return &template, nil
}

func (r *messageTemplateRepository) FindByStoreID(storeID uint) ([]model.MessageTemplate, error) {
	var templates []model.MessageTemplate
	if err := r.db.Where("store_id = ?", storeID).Order("event").Find(&templates).Error; err != nil {
		logger.Error("Failed to list message templates from database", err, map[string]interface{}{
			"store_id": storeID,
		})
		return nil, err
	}
	return templates, nil
}

// Upsert inserts the template or overwrites content/active of the existing
// (store, event) row.
func (r *messageTemplateRepository) Upsert(template *model.MessageTemplate) error {
	logger.Debug("Upserting message template in database", map[string]interface{}{
		"store_id": template.StoreID,
		"event":    template.Event,
	})

	err := r.db.Omit("Store").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "store_id"}, {Name: "event"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "active", "updated_at"}),
	}).Create(template).Error
	if err != nil {
		logger.Error("Failed to upsert message template in database", err, map[string]interface{}{
			"store_id": template.StoreID,
			"event":    template.Event,
		})
		return err
	}

	var stored model.MessageTemplate
	if err := r.db.Where("store_id = ? AND event = ?", template.StoreID, template.Event).First(&stored).Error; err != nil {
		return err
	}
	*template = stored
	return nil
}
