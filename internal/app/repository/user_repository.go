package repository

import (
	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/pkg/logger"
	"gorm.io/gorm"
)

type UserRepository interface {
	Create(user *model.User) error
	FindByID(id uint) (*model.User, error)
	FindByIDWithStores(id uint) (*model.User, error)
	FindByIDs(ids []uint) ([]model.User, error)
	FindByEmail(email string) (*model.User, error)
	FindByIdentifier(identifier string) (*model.User, error)
	FindByPhone(phone string) (*model.User, error)
	FindByVerificationToken(token string) (*model.User, error)
	Update(user *model.User) error
	ReplaceStores(user *model.User, stores []model.Store) error
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(user *model.User) error {
	logger.Debug("Creating user in database", map[string]interface{}{
		"username": user.Username,
		"email":    user.Email,
	})

	if err := r.db.Omit("Stores.*").Create(user).Error; err != nil {
		logger.Error("Failed to create user in database", err, map[string]interface{}{
			"username": user.Username,
			"email":    user.Email,
		})
		return err
	}

	logger.Debug("User created in database", map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
	})
	return nil
}

func (r *userRepository) FindByID(id uint) (*model.User, error) {
	logger.Debug("Finding user by ID in database", map[string]interface{}{
		"user_id": id,
	})

	var user model.User
	if err := r.db.First(&user, id).Error; err != nil {
		logger.Error("Failed to find user by ID in database", err, map[string]interface{}{
			"user_id": id,
		})
		return nil, err
	}

	return &user, nil
}

func (r *userRepository) FindByIDWithStores(id uint) (*model.User, error) {
	logger.Debug("Finding user by ID with stores in database", map[string]interface{}{
		"user_id": id,
	})

	var user model.User
	if err := r.db.Preload("Stores").First(&user, id).Error; err != nil {
		logger.Error("Failed to find user by ID with stores in database", err, map[string]interface{}{
			"user_id": id,
		})
		return nil, err
	}

	logger.Debug("User with stores found by ID in database", map[string]interface{}{
		"user_id":     user.ID,
		"store_count": len(user.Stores),
	})
	return &user, nil
}

// FindByIDs returns the users that exist among ids; callers compare lengths
// to detect unknown ids.
func (r *userRepository) FindByIDs(ids []uint) ([]model.User, error) {
	if len(ids) == 0 {
		return []model.User{}, nil
	}

	var users []model.User
	if err := r.db.Where("id IN ?", ids).Order("id").Find(&users).Error; err != nil {
		logger.Error("Failed to find users by IDs in database", err, map[string]interface{}{
			"user_ids": ids,
		})
		return nil, err
	}

	logger.Debug("Users found by IDs in database", map[string]interface{}{
		"requested": len(ids),
		"found":     len(users),
	})
	return users, nil
}

func (r *userRepository) FindByEmail(email string) (*model.User, error) {
	logger.Debug("Finding user by email in database", map[string]interface{}{
		"email": email,
	})

	var user model.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		logger.Error("Failed to find user by email in database", err, map[string]interface{}{
			"email": email,
		})
		return nil, err
	}

	return &user, nil
}

// FindByIdentifier matches either the username or the email address.
func (r *userRepository) FindByIdentifier(identifier string) (*model.User, error) {
	logger.Debug("Finding user by identifier in database", map[string]interface{}{
		"identifier": identifier,
	})

	var user model.User
	err := r.db.Preload("Stores").
		Where("username = ? OR email = ?", identifier, identifier).
		First(&user).Error
	if err != nil {
		logger.Error("Failed to find user by identifier in database", err, map[string]interface{}{
			"identifier": identifier,
		})
		return nil, err
	}

	logger.Debug("User found by identifier in database", map[string]interface{}{
		"user_id": user.ID,
	})
	return &user, nil
}

func (r *userRepository) FindByPhone(phone string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("phone_number = ?", phone).First(&user).Error; err != nil {
		logger.Error("Failed to find user by phone in database", err, map[string]interface{}{
			"phone": phone,
		})
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByVerificationToken(token string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("phone_verification_token = ?", token).First(&user).Error; err != nil {
		logger.Error("Failed to find user by verification token in database", err, nil)
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Update(user *model.User) error {
	logger.Debug("Updating user in database", map[string]interface{}{
		"user_id": user.ID,
	})

	if err := r.db.Omit("Stores").Save(user).Error; err != nil {
		logger.Error("Failed to update user in database", err, map[string]interface{}{
			"user_id": user.ID,
		})
		return err
	}

	logger.Debug("User updated in database", map[string]interface{}{
		"user_id": user.ID,
	})
	return nil
}

func (r *userRepository) ReplaceStores(user *model.User, stores []model.Store) error {
	logger.Debug("Replacing user stores in database", map[string]interface{}{
		"user_id":     user.ID,
		"store_count": len(stores),
	})

	if err := r.db.Model(user).Association("Stores").Replace(stores); err != nil {
		logger.Error("Failed to replace user stores in database", err, map[string]interface{}{
			"user_id": user.ID,
		})
		return err
	}
	user.Stores = stores
	return nil
}
