package repository

import (
	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/pkg/logger"
	"gorm.io/gorm"
)

type StoreRepository interface {
	Create(store *model.Store) error
	FindAll() ([]model.Store, error)
	FindByID(id uint) (*model.Store, error)
	FindByIDs(ids []uint) ([]model.Store, error)
	FindByName(name string) (*model.Store, error)
	Update(store *model.Store) error
	Count() (int64, error)
}

type storeRepository struct {
	db *gorm.DB
}

func NewStoreRepository(db *gorm.DB) StoreRepository {
	return &storeRepository{db: db}
}

func (r *storeRepository) Create(store *model.Store) error {
	logger.Debug("Creating store in database", map[string]interface{}{
		"name": store.Name,
	})

	if err := r.db.Create(store).Error; err != nil {
		logger.Error("Failed to create store in database", err, map[string]interface{}{
			"name": store.Name,
		})
		return err
	}

	logger.Debug("Store created in database", map[string]interface{}{
		"store_id": store.ID,
		"name":     store.Name,
	})
	return nil
}

func (r *storeRepository) FindAll() ([]model.Store, error) {
	var stores []model.Store
	if err := r.db.Order("name").Find(&stores).Error; err != nil {
		logger.Error("Failed to list stores from database", err, nil)
		return nil, err
	}

	logger.Debug("Stores listed from database", map[string]interface{}{
		"count": len(stores),
	})
	return stores, nil
}

func (r *storeRepository) FindByID(id uint) (*model.Store, error) {
	logger.Debug("Finding store by ID in database", map[string]interface{}{
		"store_id": id,
	})

	var store model.Store
	if err := r.db.First(&store, id).Error; err != nil {
		logger.Error("Failed to find store by ID in database", err, map[string]interface{}{
			"store_id": id,
		})
		return nil, err
	}
	return &store, nil
}

func (r *storeRepository) FindByIDs(ids []uint) ([]model.Store, error) {
	if len(ids) == 0 {
		return []model.Store{}, nil
	}

	var stores []model.Store
	if err := r.db.Where("id IN ?", ids).Order("id").Find(&stores).Error; err != nil {
		logger.Error("Failed to find stores by IDs in database", err, map[string]interface{}{
			"store_ids": ids,
		})
		return nil, err
	}
	return stores, nil
}

// FindByName matches case-insensitively.
func (r *storeRepository) FindByName(name string) (*model.Store, error) {
	var store model.Store
	if err := r.db.Where("LOWER(name) = LOWER(?)", name).First(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

func (r *storeRepository) Update(store *model.Store) error {
	logger.Debug("Updating store in database", map[string]interface{}{
		"store_id": store.ID,
	})

	if err := r.db.Save(store).Error; err != nil {
		logger.Error("Failed to update store in database", err, map[string]interface{}{
			"store_id": store.ID,
		})
		return err
	}
	return nil
}

func (r *storeRepository) Count() (int64, error) {
	var count int64
	if err := r.db.Model(&model.Store{}).Count(&count).Error; err != nil {
		logger.Error("Failed to count stores in database", err, nil)
		return 0, err
	}
	return count, nil
}
