package repository

import (
	"time"

	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/pkg/logger"
	"gorm.io/gorm"
)

type PasswordResetRepository interface {
	Create(reset *model.PasswordReset) error
	FindByToken(token string) (*model.PasswordReset, error)
	// Claim marks the reset used if it is still unused and unexpired at now.
	// It reports whether this call consumed it.
	Claim(id uint, now time.Time) (bool, error)
	RevokeForUser(userID uint) (int64, error)
	DeleteExpired(now time.Time) (int64, error)
}

type passwordResetRepository struct {
	db *gorm.DB
}

func NewPasswordResetRepository(db *gorm.DB) PasswordResetRepository {
	return &passwordResetRepository{db: db}
}

func (r *passwordResetRepository) Create(reset *model.PasswordReset) error {
	if err := r.db.Create(reset).Error; err != nil {
		logger.Error("Failed to store reset token", err, map[string]interface{}{
			"user_id": reset.UserID,
		})
		return err
	}
	logger.Debug("Reset token stored", map[string]interface{}{
		"id":         reset.ID,
		"user_id":    reset.UserID,
		"expires_at": reset.ExpiresAt,
	})
	return nil
}

func (r *passwordResetRepository) FindByToken(token string) (*model.PasswordReset, error) {
	var reset model.PasswordReset
	if err := r.db.Where("token = ?", token).First(&reset).Error; err != nil {
		// tokens come from user input; a miss is routine
		logger.Debug("Reset token lookup missed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}
	return &reset, nil
}

func (r *passwordResetRepository) Claim(id uint, now time.Time) (bool, error) {
	result := r.db.Model(&model.PasswordReset{}).
		Where("id = ? AND used = ? AND expires_at > ?", id, false, now).
		Update("used", true)
	if result.Error != nil {
		logger.Error("Failed to claim reset token", result.Error, map[string]interface{}{
			"id": id,
		})
		return false, result.Error
	}

	claimed := result.RowsAffected == 1
	logger.Debug("Reset token claim", map[string]interface{}{
		"id":      id,
		"claimed": claimed,
	})
	return claimed, nil
}

// RevokeForUser consumes every outstanding token of the user, so only the most
// recently issued link works.
func (r *passwordResetRepository) RevokeForUser(userID uint) (int64, error) {
	result := r.db.Model(&model.PasswordReset{}).
		Where("user_id = ? AND used = ?", userID, false).
		Update("used", true)
	if result.Error != nil {
		logger.Error("Failed to revoke reset tokens", result.Error, map[string]interface{}{
			"user_id": userID,
		})
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// DeleteExpired removes tokens that expired before now or were already used.
func (r *passwordResetRepository) DeleteExpired(now time.Time) (int64, error) {
	result := r.db.Where("expires_at < ? OR used = ?", now, true).Delete(&model.PasswordReset{})
	if result.Error != nil {
		logger.Error("Failed to purge reset tokens", result.Error, nil)
		return 0, result.Error
	}

	logger.Debug("Reset tokens purged", map[string]interface{}{
		"count": result.RowsAffected,
	})
	return result.RowsAffected, nil
}
