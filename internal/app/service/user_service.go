package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/internal/app/repository"
	"github.com/ikkim/delivery-tracker/pkg/logger"
	"github.com/ikkim/delivery-tracker/pkg/sms"
	"github.com/ikkim/delivery-tracker/pkg/util"
	"gorm.io/gorm"
)

var ErrInvalidVerificationToken = errors.New("invalid verification token")

type CreateUserInput struct {
	Username          string `json:"username"`
	Email             string `json:"email"`
	Password          string `json:"password"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	PhoneNumber       string `json:"phone_number"`
	IsSuperuser       bool   `json:"is_superuser"`
	IsManager         bool   `json:"is_manager"`
	IsDriver          bool   `json:"is_driver"`
	IsCustomerService bool   `json:"is_customer_service"`
	StoreIDs          []uint `json:"stores"`
}

func (in CreateUserInput) flags() RoleFlags {
	return RoleFlags{
		IsSuperuser:       in.IsSuperuser,
		IsManager:         in.IsManager,
		IsDriver:          in.IsDriver,
		IsCustomerService: in.IsCustomerService,
	}
}

// UpdateUserInput is a partial update; nil fields are left alone.
type UpdateUserInput struct {
	Email             *string `json:"email"`
	FirstName         *string `json:"first_name"`
	LastName          *string `json:"last_name"`
	PhoneNumber       *string `json:"phone_number"`
	IsActive          *bool   `json:"is_active"`
	IsSuperuser       *bool   `json:"is_superuser"`
	IsManager         *bool   `json:"is_manager"`
	IsDriver          *bool   `json:"is_driver"`
	IsCustomerService *bool   `json:"is_customer_service"`
	StoreIDs          *[]uint `json:"stores"`
}

func (in UpdateUserInput) touchesRoles() bool {
	return in.IsSuperuser != nil || in.IsManager != nil || in.IsDriver != nil || in.IsCustomerService != nil
}

type UserService interface {
	CreateUser(ctx context.Context, principal Principal, input CreateUserInput) (*model.User, error)
	GetUser(principal Principal, userID uint) (*model.User, error)
	UpdateUser(ctx context.Context, principal Principal, userID uint, input UpdateUserInput) (*model.User, error)
	VerifyPhone(token string) (*model.User, error)
	ResendVerification(ctx context.Context, principal Principal, userID uint) error
}

type userService struct {
	userRepo  repository.UserRepository
	storeRepo repository.StoreRepository
	sender    sms.Sender
	siteURL   string
}

func NewUserService(
	userRepo repository.UserRepository,
	storeRepo repository.StoreRepository,
	sender sms.Sender,
	siteURL string,
) UserService {
	return &userService{
		userRepo:  userRepo,
		storeRepo: storeRepo,
		sender:    sender,
		siteURL:   siteURL,
	}
}

// CreateUser creates an account on behalf of principal and texts the new user
// a phone verification link.
func (s *userService) CreateUser(ctx context.Context, principal Principal, input CreateUserInput) (*model.User, error) {
	logger.Info("Creating user", map[string]interface{}{
		"username":   input.Username,
		"created_by": principal.UserID,
		"stores":     input.StoreIDs,
	})

	if err := AuthorizeUserCreation(principal, input.flags(), input.StoreIDs); err != nil {
		logger.Warn("User creation denied", map[string]interface{}{
			"created_by": principal.UserID,
			"reason":     err.Error(),
		})
		return nil, err
	}

	verr := newValidationError()
	requireField(verr, "username", input.Username)
	requireField(verr, "email", input.Email)
	requireField(verr, "phone_number", input.PhoneNumber)
	if input.Email != "" {
		validateEmail(verr, input.Email)
	}
	if err := util.ValidatePassword(input.Password); err != nil {
		verr.Add("password", err.Error())
	}
	if err := s.checkUnique(verr, input.Username, input.Email, 0); err != nil {
		return nil, err
	}

	stores, err := s.resolveStores(verr, input.StoreIDs)
	if err != nil {
		return nil, err
	}
	if err := verr.errOrNil(); err != nil {
		return nil, err
	}

	hashedPassword, err := util.HashPassword(input.Password)
	if err != nil {
		logger.Error("Failed to hash password", err, map[string]interface{}{
			"username": input.Username,
		})
		return nil, err
	}

	user := &model.User{
		Username:               input.Username,
		Email:                  strings.ToLower(input.Email),
		PasswordHash:           hashedPassword,
		FirstName:              input.FirstName,
		LastName:               input.LastName,
		PhoneNumber:            input.PhoneNumber,
		IsActive:               true,
		IsSuperuser:            input.IsSuperuser,
		IsManager:              input.IsManager,
		IsDriver:               input.IsDriver,
		IsCustomerService:      input.IsCustomerService,
		PhoneVerificationToken: uuid.NewString(),
		Stores:                 stores,
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}

	s.sendVerification(ctx, user)

	logger.Info("User created", map[string]interface{}{
		"user_id":    user.ID,
		"created_by": principal.UserID,
		"roles":      RolesForUser(user).Names(),
	})
	return user, nil
}

// GetUser returns the user when principal is the user, a superuser, or a
// manager sharing a store with them.
func (s *userService) GetUser(principal Principal, userID uint) (*model.User, error) {
	user, err := s.loadUser(userID)
	if err != nil {
		return nil, err
	}
	if principal.UserID == user.ID || principal.Roles.IsSuperuser() {
		return user, nil
	}
	if principal.Roles.IsManager() && principal.SharesStore(user.StoreIDs()) {
		return user, nil
	}
	return nil, ErrNotFound
}

func (s *userService) UpdateUser(ctx context.Context, principal Principal, userID uint, input UpdateUserInput) (*model.User, error) {
	user, err := s.loadUser(userID)
	if err != nil {
		return nil, err
	}

	change := UserChange{StoreIDs: input.StoreIDs}
	if input.touchesRoles() || input.IsActive != nil {
		flags := roleFlagsOf(user)
		applyBool(&flags.IsSuperuser, input.IsSuperuser)
		applyBool(&flags.IsManager, input.IsManager)
		applyBool(&flags.IsDriver, input.IsDriver)
		applyBool(&flags.IsCustomerService, input.IsCustomerService)
		change.Flags = &flags
	}
	if input.IsActive != nil && *input.IsActive != user.IsActive && principal.UserID == user.ID {
		return nil, permissionDenied("you cannot change your own active status")
	}
	if err := AuthorizeUserUpdate(principal, user, change); err != nil {
		logger.Warn("User update denied", map[string]interface{}{
			"user_id":    userID,
			"updated_by": principal.UserID,
			"reason":     err.Error(),
		})
		return nil, err
	}

	verr := newValidationError()
	if input.Email != nil {
		requireField(verr, "email", *input.Email)
		if *input.Email != "" {
			validateEmail(verr, *input.Email)
			if err := s.checkUnique(verr, "", *input.Email, user.ID); err != nil {
				return nil, err
			}
		}
	}
	if input.PhoneNumber != nil {
		requireField(verr, "phone_number", *input.PhoneNumber)
	}

	var stores []model.Store
	if input.StoreIDs != nil {
		stores, err = s.resolveStores(verr, *input.StoreIDs)
		if err != nil {
			return nil, err
		}
	}
	if err := verr.errOrNil(); err != nil {
		return nil, err
	}

	if input.Email != nil {
		user.Email = strings.ToLower(*input.Email)
	}
	applyString(&user.FirstName, input.FirstName)
	applyString(&user.LastName, input.LastName)
	phoneChanged := input.PhoneNumber != nil && *input.PhoneNumber != user.PhoneNumber
	if phoneChanged {
		user.PhoneNumber = *input.PhoneNumber
		user.IsPhoneVerified = false
		user.PhoneVerificationToken = uuid.NewString()
	}
	applyBool(&user.IsActive, input.IsActive)
	if change.Flags != nil {
		user.IsSuperuser = change.Flags.IsSuperuser
		user.IsManager = change.Flags.IsManager
		user.IsDriver = change.Flags.IsDriver
		user.IsCustomerService = change.Flags.IsCustomerService
	}

	if err := s.userRepo.Update(user); err != nil {
		return nil, err
	}
	if input.StoreIDs != nil {
		if err := s.userRepo.ReplaceStores(user, stores); err != nil {
			return nil, err
		}
	}

	if phoneChanged {
		s.sendVerification(ctx, user)
	}

	logger.Info("User updated", map[string]interface{}{
		"user_id":    user.ID,
		"updated_by": principal.UserID,
	})
	return user, nil
}

func (s *userService) VerifyPhone(token string) (*model.User, error) {
	if token == "" {
		return nil, ErrInvalidVerificationToken
	}

	user, err := s.userRepo.FindByVerificationToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidVerificationToken
		}
		return nil, err
	}

	user.IsPhoneVerified = true
	user.PhoneVerificationToken = ""
	if err := s.userRepo.Update(user); err != nil {
		return nil, err
	}

	logger.Info("Phone number verified", map[string]interface{}{
		"user_id": user.ID,
	})
	return user, nil
}

// ResendVerification issues a fresh verification token. Superusers and
// managers may request it for any user they can see.
func (s *userService) ResendVerification(ctx context.Context, principal Principal, userID uint) error {
	if !principal.Roles.IsSuperuser() && !principal.Roles.IsManager() {
		return permissionDenied("only managers can resend verification messages")
	}

	user, err := s.GetUser(principal, userID)
	if err != nil {
		return err
	}
	if user.IsPhoneVerified {
		return &PreconditionError{Reason: "Phone number is already verified."}
	}

	user.PhoneVerificationToken = uuid.NewString()
	if err := s.userRepo.Update(user); err != nil {
		return err
	}
	s.sendVerification(ctx, user)
	return nil
}

func (s *userService) sendVerification(ctx context.Context, user *model.User) {
	body := fmt.Sprintf("Hi %s, verify your phone number: %s/verify-phone?token=%s",
		user.FullName(), s.siteURL, user.PhoneVerificationToken)
	sendBestEffort(ctx, s.sender, user.PhoneNumber, body, "phone_verification")
}

func (s *userService) loadUser(userID uint) (*model.User, error) {
	user, err := s.userRepo.FindByIDWithStores(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// checkUnique records username/email collisions with users other than self.
func (s *userService) checkUnique(verr *ValidationError, username, email string, self uint) error {
	for field, value := range map[string]string{"username": username, "email": strings.ToLower(email)} {
		if value == "" {
			continue
		}
		existing, err := s.userRepo.FindByIdentifier(value)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return err
		}
		if existing.ID != self {
			verr.Add(field, fmt.Sprintf("A user with that %s already exists.", field))
		}
	}
	return nil
}

func (s *userService) resolveStores(verr *ValidationError, ids []uint) ([]model.Store, error) {
	if len(ids) == 0 {
		return []model.Store{}, nil
	}
	stores, err := s.storeRepo.FindByIDs(ids)
	if err != nil {
		return nil, err
	}

	found := make(map[uint]bool, len(stores))
	for _, st := range stores {
		found[st.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			verr.Add("stores", fmt.Sprintf("Store %d does not exist.", id))
		}
	}
	return stores, nil
}

func validateEmail(verr *ValidationError, email string) {
	if _, err := mail.ParseAddress(email); err != nil {
		verr.Add("email", "Enter a valid email address.")
	}
}

func applyString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func applyBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
