package repository

import (
	"time"

	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/pkg/logger"
	"gorm.io/gorm"
)

type DeliveryPhotoRepository interface {
	Create(photo *model.DeliveryPhoto) error
	FindByID(id uint) (*model.DeliveryPhoto, error)
	FindByAttemptID(attemptID uint) ([]model.DeliveryPhoto, error)
	CountByAttemptID(attemptID uint) (int64, error)
	UpdateSignedURL(id uint, url string, expiry time.Time) error
}

type deliveryPhotoRepository struct {
	db *gorm.DB
}

func NewDeliveryPhotoRepository(db *gorm.DB) DeliveryPhotoRepository {
	return &deliveryPhotoRepository{db: db}
}

func (r *deliveryPhotoRepository) Create(photo *model.DeliveryPhoto) error {
	logger.Debug("Creating delivery photo in database", map[string]interface{}{
		"attempt_id":  photo.DeliveryAttemptID,
		"storage_key": photo.StorageKey,
	})

	if err := r.db.Create(photo).Error; err != nil {
		logger.Error("Failed to create delivery photo in database", err, map[string]interface{}{
			"attempt_id": photo.DeliveryAttemptID,
		})
		return err
	}

	logger.Debug("Delivery photo created in database", map[string]interface{}{
		"photo_id":   photo.ID,
		"attempt_id": photo.DeliveryAttemptID,
	})
	return nil
}

func (r *deliveryPhotoRepository) FindByID(id uint) (*model.DeliveryPhoto, error) {
	var photo model.DeliveryPhoto
	if err := r.db.First(&photo, id).Error; err != nil {
		logger.Error("Failed to find delivery photo by ID in database", err, map[string]interface{}{
			"photo_id": id,
		})
		return nil, err
	}
	return &photo, nil
}

func (r *deliveryPhotoRepository) FindByAttemptID(attemptID uint) ([]model.DeliveryPhoto, error) {
	var photos []model.DeliveryPhoto
	if err := r.db.Where("delivery_attempt_id = ?", attemptID).Order("id").Find(&photos).Error; err != nil {
		logger.Error("Failed to find delivery photos in database", err, map[string]interface{}{
			"attempt_id": attemptID,
		})
		return nil, err
	}
	return photos, nil
}

func (r *deliveryPhotoRepository) CountByAttemptID(attemptID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&model.DeliveryPhoto{}).Where("delivery_attempt_id = ?", attemptID).Count(&count).Error; err != nil {
		logger.Error("Failed to count delivery photos in database", err, map[string]interface{}{
			"attempt_id": attemptID,
		})
		return 0, err
	}
	return count, nil
}

func (r *deliveryPhotoRepository) UpdateSignedURL(id uint, url string, expiry time.Time) error {
	err := r.db.Model(&model.DeliveryPhoto{}).Where("id = ?", id).Updates(map[string]interface{}{
		"signed_url":        url,
		"signed_url_expiry": expiry,
	}).Error
	if err != nil {
		logger.Error("Failed to cache signed URL in database", err, map[string]interface{}{
			"photo_id": id,
		})
		return err
	}
	return nil
}
