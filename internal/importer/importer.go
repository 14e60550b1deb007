package importer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/internal/app/repository"
	"github.com/ikkim/delivery-tracker/pkg/logger"
	"github.com/ikkim/delivery-tracker/pkg/util"
	"gorm.io/gorm"
)

// RowError describes a row that was not imported.
type RowError struct {
	Sheet  string
	Line   int
	Reason string
}

func (e RowError) String() string {
	return fmt.Sprintf("%s line %d: %s", e.Sheet, e.Line, e.Reason)
}

type Result struct {
	StoresCreated int
	StoresSkipped int
	UsersCreated  int
	UsersSkipped  int
	Errors        []RowError
}

// Importer loads stores and users from a parsed Workbook. Existing stores
// (by name) and users (by username or email) are left untouched.
type Importer struct {
	storeRepo repository.StoreRepository
	userRepo  repository.UserRepository
}

func New(storeRepo repository.StoreRepository, userRepo repository.UserRepository) *Importer {
	return &Importer{storeRepo: storeRepo, userRepo: userRepo}
}

func (im *Importer) Import(wb *Workbook) (*Result, error) {
	result := &Result{}

	existing, err := im.storeRepo.FindAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load stores: %w", err)
	}
	stores := make(map[string]model.Store, len(existing))
	for _, s := range existing {
		stores[strings.ToLower(s.Name)] = s
	}

	for _, row := range wb.Stores {
		key := strings.ToLower(row.Name)
		if _, ok := stores[key]; ok {
			result.StoresSkipped++
			continue
		}
		store := model.Store{Name: row.Name, Address: row.Address, Phone: row.Phone}
		if err := im.storeRepo.Create(&store); err != nil {
			result.Errors = append(result.Errors, RowError{StoresSheet, row.Line, err.Error()})
			continue
		}
		stores[key] = store
		result.StoresCreated++
	}

	for _, row := range wb.Users {
		created, reason := im.importUser(row, stores)
		switch {
		case reason != "":
			result.Errors = append(result.Errors, RowError{UsersSheet, row.Line, reason})
		case created:
			result.UsersCreated++
		default:
			result.UsersSkipped++
		}
	}

	logger.Info("Workbook import finished", map[string]interface{}{
		"stores_created": result.StoresCreated,
		"stores_skipped": result.StoresSkipped,
		"users_created":  result.UsersCreated,
		"users_skipped":  result.UsersSkipped,
		"errors":         len(result.Errors),
	})
	return result, nil
}

// importUser returns a non-empty reason when the row is rejected.
func (im *Importer) importUser(row UserRow, stores map[string]model.Store) (bool, string) {
	if row.Email == "" {
		return false, "email is required"
	}

	for _, identifier := range []string{row.Username, row.Email} {
		_, err := im.userRepo.FindByIdentifier(identifier)
		if err == nil {
			return false, ""
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, err.Error()
		}
	}

	if err := util.ValidatePassword(row.Password); err != nil {
		return false, "password: " + err.Error()
	}

	user := &model.User{
		Username:    row.Username,
		Email:       row.Email,
		FirstName:   row.FirstName,
		LastName:    row.LastName,
		PhoneNumber: row.PhoneNumber,
		IsActive:    true,
	}
	for _, role := range row.Roles {
		switch strings.ReplaceAll(role, " ", "_") {
		case "superuser":
			user.IsSuperuser = true
		case "manager":
			user.IsManager = true
		case "driver":
			user.IsDriver = true
		case "customer_service", "csr":
			user.IsCustomerService = true
		default:
			return false, fmt.Sprintf("unknown role %q", role)
		}
	}
	for _, name := range row.Stores {
		store, ok := stores[strings.ToLower(name)]
		if !ok {
			return false, fmt.Sprintf("unknown store %q", name)
		}
		user.Stores = append(user.Stores, store)
	}

	hash, err := util.HashPassword(row.Password)
	if err != nil {
		return false, err.Error()
	}
	user.PasswordHash = hash

	if err := im.userRepo.Create(user); err != nil {
		return false, err.Error()
	}
	return true, ""
}
