package service

import (
	"context"
	"errors"
	"time"

	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/internal/app/repository"
	"github.com/ikkim/delivery-tracker/pkg/logger"
	"github.com/ikkim/delivery-tracker/pkg/util"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrUserNotFound       = errors.New("user not found")
)

// TokenBlacklist records revoked tokens until they expire.
type TokenBlacklist interface {
	BlacklistToken(ctx context.Context, token string, expiry time.Duration) error
	IsTokenBlacklisted(ctx context.Context, token string) (bool, error)
}

type AuthService interface {
	Login(identifier, password string) (*model.User, *util.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*util.TokenPair, error)
	Logout(ctx context.Context, tokens ...string) error
	GetMe(userID uint) (*model.User, error)
}

type authService struct {
	userRepo      repository.UserRepository
	blacklist     TokenBlacklist
	jwtSecret     string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

// NewAuthService builds the session service. blacklist may be nil, which makes
// Logout a no-op.
func NewAuthService(
	userRepo repository.UserRepository,
	blacklist TokenBlacklist,
	jwtSecret string,
	accessExpiry, refreshExpiry time.Duration,
) AuthService {
	return &authService{
		userRepo:      userRepo,
		blacklist:     blacklist,
		jwtSecret:     jwtSecret,
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

// Login authenticates by username or email. The issued tokens carry the
// user's role set and store ids as of now.
func (s *authService) Login(identifier, password string) (*model.User, *util.TokenPair, error) {
	logger.Info("Login attempt", map[string]interface{}{
		"identifier": identifier,
	})

	user, err := s.userRepo.FindByIdentifier(identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Login failed: user not found", map[string]interface{}{
				"identifier": identifier,
			})
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if !util.VerifyPassword(user.PasswordHash, password) {
		logger.Warn("Login failed: invalid password", map[string]interface{}{
			"user_id": user.ID,
		})
		return nil, nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		logger.Warn("Login failed: account disabled", map[string]interface{}{
			"user_id": user.ID,
		})
		return nil, nil, ErrAccountDisabled
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("User logged in successfully", map[string]interface{}{
		"user_id": user.ID,
		"roles":   RolesForUser(user).Names(),
	})
	return user, tokens, nil
}

// Refresh exchanges a refresh token for a new pair. The old refresh token is
// revoked and the roles are recomputed from the current user record.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*util.TokenPair, error) {
	claims, err := util.ValidateToken(refreshToken, s.jwtSecret)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != util.TokenTypeRefresh {
		return nil, util.ErrInvalidToken
	}

	if s.blacklist != nil {
		revoked, err := s.blacklist.IsTokenBlacklisted(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
		if revoked {
			logger.Warn("Refresh with revoked token", map[string]interface{}{
				"user_id": claims.UserID,
			})
			return nil, util.ErrInvalidToken
		}
	}

	user, err := s.userRepo.FindByIDWithStores(claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrInvalidToken
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}

	if err := s.Logout(ctx, refreshToken); err != nil {
		logger.Warn("Failed to revoke rotated refresh token", map[string]interface{}{
			"user_id": user.ID,
			"error":   err.Error(),
		})
	}
	return tokens, nil
}

// Logout revokes each token for the rest of its lifetime. Tokens that do not
// validate are skipped.
func (s *authService) Logout(ctx context.Context, tokens ...string) error {
	if s.blacklist == nil {
		logger.Debug("Token blacklist not configured, logout is a no-op")
		return nil
	}

	for _, token := range tokens {
		if token == "" {
			continue
		}
		claims, err := util.ValidateToken(token, s.jwtSecret)
		if err != nil {
			continue
		}
		ttl := time.Until(claims.ExpiresAt.Time)
		if err := s.blacklist.BlacklistToken(ctx, token, ttl); err != nil {
			return err
		}
		logger.Info("Token revoked", map[string]interface{}{
			"user_id":    claims.UserID,
			"token_type": claims.TokenType,
		})
	}
	return nil
}

func (s *authService) GetMe(userID uint) (*model.User, error) {
	user, err := s.userRepo.FindByIDWithStores(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *authService) issueTokens(user *model.User) (*util.TokenPair, error) {
	principal := PrincipalForUser(user)
	tokens, err := util.GenerateTokenPair(util.TokenSubject{
		UserID:   user.ID,
		Username: user.Username,
		Roles:    principal.Roles.Names(),
		StoreIDs: principal.StoreIDs,
	}, s.jwtSecret, s.accessExpiry, s.refreshExpiry)
	if err != nil {
		logger.Error("Failed to generate tokens", err, map[string]interface{}{
			"user_id": user.ID,
		})
		return nil, err
	}
	return tokens, nil
}
