package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/internal/app/repository"
	"github.com/ikkim/delivery-tracker/pkg/logger"
	"github.com/ikkim/delivery-tracker/pkg/sms"
	"github.com/ikkim/delivery-tracker/pkg/util"
	"gorm.io/gorm"
)

var (
	ErrInvalidResetToken = errors.New("invalid or expired reset token")
	ErrResetTokenExpired = errors.New("reset token has expired")
	ErrResetTokenUsed    = errors.New("reset token has already been used")
	ErrTooManyRequests   = errors.New("too many requests, try again later")
	ErrPasswordUnchanged = errors.New("new password must be different from the current password")
)

const (
	ResetTokenExpiry = 1 * time.Hour

	resetRequestLimit  = 5
	resetRequestWindow = time.Hour
)

// RateLimiter counts requests per key within a window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type PasswordResetService interface {
	RequestReset(ctx context.Context, phone string) error
	ResetPassword(token, newPassword string) error
	PurgeExpired() (int64, error)
}

type passwordResetService struct {
	resetRepo repository.PasswordResetRepository
	userRepo  repository.UserRepository
	sender    sms.Sender
	limiter   RateLimiter
	siteURL   string
	now       func() time.Time
}

// NewPasswordResetService builds the reset flow. limiter may be nil, in which
// case requests are not throttled.
func NewPasswordResetService(
	resetRepo repository.PasswordResetRepository,
	userRepo repository.UserRepository,
	sender sms.Sender,
	limiter RateLimiter,
	siteURL string,
) PasswordResetService {
	return &passwordResetService{
		resetRepo: resetRepo,
		userRepo:  userRepo,
		sender:    sender,
		limiter:   limiter,
		siteURL:   siteURL,
		now:       time.Now,
	}
}

// RequestReset texts a reset link to the account registered for phone.
// Unknown numbers succeed silently so accounts cannot be enumerated.
func (s *passwordResetService) RequestReset(ctx context.Context, phone string) error {
	logger.Info("Processing password reset request", map[string]interface{}{
		"phone": phone,
	})

	if s.limiter != nil {
		allowed, count, err := s.limiter.Allow(ctx, "password_reset:"+phone, resetRequestLimit, resetRequestWindow)
		if err != nil {
			// throttling is unavailable; keep serving resets
			logger.Warn("Password reset rate limit check failed", map[string]interface{}{
				"error": err.Error(),
			})
		} else if !allowed {
			logger.Warn("Password reset rate limit exceeded", map[string]interface{}{
				"phone": phone,
				"count": count,
			})
			return ErrTooManyRequests
		}
	}

	user, err := s.userRepo.FindByPhone(phone)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Password reset requested for unknown phone number", map[string]interface{}{
				"phone": phone,
			})
			return nil
		}
		return err
	}

	if revoked, err := s.resetRepo.RevokeForUser(user.ID); err != nil {
		return err
	} else if revoked > 0 {
		logger.Info("Superseded earlier reset tokens", map[string]interface{}{
			"user_id": user.ID,
			"revoked": revoked,
		})
	}

	reset := &model.PasswordReset{
		UserID:    user.ID,
		Token:     uuid.NewString(),
		ExpiresAt: s.now().Add(ResetTokenExpiry),
	}
	if err := s.resetRepo.Create(reset); err != nil {
		return err
	}

	body := fmt.Sprintf("Reset your password: %s/reset-password?token=%s (valid for 1 hour)", s.siteURL, reset.Token)
	sendBestEffort(ctx, s.sender, user.PhoneNumber, body, "password_reset")

	logger.Info("Password reset token issued", map[string]interface{}{
		"user_id":    user.ID,
		"expires_at": reset.ExpiresAt,
	})
	return nil
}

func (s *passwordResetService) ResetPassword(token, newPassword string) error {
	logger.Info("Processing password reset with token")

	reset, err := s.resetRepo.FindByToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Invalid reset token provided", nil)
			return ErrInvalidResetToken
		}
		return err
	}

	if s.now().After(reset.ExpiresAt) {
		logger.Warn("Reset token has expired", map[string]interface{}{
			"user_id":    reset.UserID,
			"expires_at": reset.ExpiresAt,
		})
		return ErrResetTokenExpired
	}
	if reset.Used {
		logger.Warn("Reset token has already been used", map[string]interface{}{
			"user_id": reset.UserID,
		})
		return ErrResetTokenUsed
	}

	if err := util.ValidatePassword(newPassword); err != nil {
		verr := newValidationError()
		verr.Add("new_password", err.Error())
		return verr
	}

	user, err := s.userRepo.FindByID(reset.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}

	if util.VerifyPassword(user.PasswordHash, newPassword) {
		return ErrPasswordUnchanged
	}

	hashedPassword, err := util.HashPassword(newPassword)
	if err != nil {
		logger.Error("Failed to hash new password", err, map[string]interface{}{
			"user_id": user.ID,
		})
		return err
	}

	// a concurrent confirm may have consumed the token since it was read
	claimed, err := s.resetRepo.Claim(reset.ID, s.now())
	if err != nil {
		return err
	}
	if !claimed {
		logger.Warn("Reset token consumed concurrently", map[string]interface{}{
			"user_id": user.ID,
		})
		return ErrResetTokenUsed
	}

	user.PasswordHash = hashedPassword
	if err := s.userRepo.Update(user); err != nil {
		logger.Error("Failed to store new password after claiming reset token", err, map[string]interface{}{
			"user_id": user.ID,
		})
		return err
	}

	logger.Info("Password reset successful", map[string]interface{}{
		"user_id": user.ID,
	})
	return nil
}

// PurgeExpired removes expired and consumed reset tokens.
func (s *passwordResetService) PurgeExpired() (int64, error) {
	return s.resetRepo.DeleteExpired(s.now())
}

const accountSMSTimeout = 10 * time.Second

// sendBestEffort sends an account SMS, logging instead of failing.
func sendBestEffort(ctx context.Context, sender sms.Sender, to, body, purpose string) {
	if sender == nil || to == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, accountSMSTimeout)
	defer cancel()

	if err := sender.Send(ctx, to, body); err != nil {
		logger.Error("Failed to send account SMS", err, map[string]interface{}{
			"purpose": purpose,
			"to":      to,
		})
	}
}
