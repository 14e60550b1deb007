package service

import (
	"errors"
	"strings"

	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/internal/app/repository"
	"github.com/ikkim/delivery-tracker/pkg/logger"
	"gorm.io/gorm"
)

const maxStorePhoneLength = 20

// StoreInput carries create and patch fields; nil leaves a field unchanged.
type StoreInput struct {
	Name    *string `json:"name"`
	Address *string `json:"address"`
	Phone   *string `json:"phone"`
}

type StoreService interface {
	ListStores(principal Principal) ([]model.Store, error)
	GetStore(principal Principal, id uint) (*model.Store, error)
	CreateStore(principal Principal, input StoreInput) (*model.Store, error)
	UpdateStore(principal Principal, id uint, input StoreInput) (*model.Store, error)
}

type storeService struct {
	storeRepo repository.StoreRepository
}

func NewStoreService(storeRepo repository.StoreRepository) StoreService {
	return &storeService{storeRepo: storeRepo}
}

// ListStores returns every store to superusers and the member stores to
// everyone else.
func (s *storeService) ListStores(principal Principal) ([]model.Store, error) {
	if principal.Roles.IsSuperuser() {
		return s.storeRepo.FindAll()
	}
	return s.storeRepo.FindByIDs(principal.StoreIDs)
}

func (s *storeService) GetStore(principal Principal, id uint) (*model.Store, error) {
	if !principal.Roles.IsSuperuser() && !principal.InStore(id) {
		return nil, ErrNotFound
	}

	store, err := s.storeRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return store, nil
}

func (s *storeService) CreateStore(principal Principal, input StoreInput) (*model.Store, error) {
	if !principal.Roles.IsSuperuser() {
		logger.Warn("Store creation denied", map[string]interface{}{
			"user_id": principal.UserID,
		})
		return nil, permissionDenied("only superusers can create stores")
	}

	store := &model.Store{}
	if err := s.apply(store, input, true); err != nil {
		return nil, err
	}
	if err := s.storeRepo.Create(store); err != nil {
		return nil, err
	}

	logger.Info("Store created", map[string]interface{}{
		"store_id": store.ID,
		"name":     store.Name,
	})
	return store, nil
}

// UpdateStore is open to superusers and the store's managers.
func (s *storeService) UpdateStore(principal Principal, id uint, input StoreInput) (*model.Store, error) {
	store, err := s.GetStore(principal, id)
	if err != nil {
		return nil, err
	}
	if !principal.Roles.IsSuperuser() && !principal.Roles.IsManager() {
		return nil, permissionDenied("only managers can edit store details")
	}

	if err := s.apply(store, input, false); err != nil {
		return nil, err
	}
	if err := s.storeRepo.Update(store); err != nil {
		return nil, err
	}

	logger.Info("Store updated", map[string]interface{}{
		"store_id": store.ID,
		"user_id":  principal.UserID,
	})
	return store, nil
}

func (s *storeService) apply(store *model.Store, input StoreInput, creating bool) error {
	verr := newValidationError()

	if input.Name != nil || creating {
		name := strings.TrimSpace(stringValue(input.Name))
		switch {
		case name == "":
			verr.Add("name", "This field is required.")
		default:
			existing, err := s.storeRepo.FindByName(name)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if existing != nil && existing.ID != store.ID {
				verr.Add("name", "A store with this name already exists.")
			}
			store.Name = name
		}
	}
	if input.Address != nil {
		store.Address = strings.TrimSpace(*input.Address)
	}
	if input.Phone != nil {
		phone := strings.TrimSpace(*input.Phone)
		if len(phone) > maxStorePhoneLength {
			verr.Add("phone", "Ensure this field has no more than 20 characters.")
		}
		store.Phone = phone
	}

	return verr.errOrNil()
}
