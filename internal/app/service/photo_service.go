package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/internal/app/repository"
	"github.com/ikkim/delivery-tracker/internal/storage"
	"github.com/ikkim/delivery-tracker/pkg/logger"
	"gorm.io/gorm"
)

const (
	photoFolder     = "delivery_photos"
	noPhotosMessage = "No delivery photos available."
)

var allowedPhotoTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// PhotoUpload is one uploaded image.
type PhotoUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
	Caption     string
}

type PhotoService interface {
	UploadPhotos(ctx context.Context, principal Principal, attemptID uint, uploads []PhotoUpload) ([]model.DeliveryPhoto, error)
	AddPhoto(ctx context.Context, attemptID uint, uploadedBy *uint, upload PhotoUpload) (*model.DeliveryPhoto, error)
	HasRequiredPhotos(attemptID uint) (bool, error)
	SignedURL(ctx context.Context, photo *model.DeliveryPhoto) (string, error)
	ListPhotos(ctx context.Context, principal Principal, attemptID uint) ([]model.DeliveryPhoto, error)
	PhotoLinks(ctx context.Context, attemptID uint) string
}

type photoService struct {
	photoRepo   repository.DeliveryPhotoRepository
	attemptRepo repository.DeliveryAttemptRepository
	orderRepo   repository.OrderRepository
	storage     storage.ObjectStorage
	urlTTL      time.Duration
	maxBytes    int64
	now         func() time.Time
}

func NewPhotoService(
	photoRepo repository.DeliveryPhotoRepository,
	attemptRepo repository.DeliveryAttemptRepository,
	orderRepo repository.OrderRepository,
	objectStorage storage.ObjectStorage,
	urlTTL time.Duration,
	maxBytes int64,
) PhotoService {
	return &photoService{
		photoRepo:   photoRepo,
		attemptRepo: attemptRepo,
		orderRepo:   orderRepo,
		storage:     objectStorage,
		urlTTL:      urlTTL,
		maxBytes:    maxBytes,
		now:         time.Now,
	}
}

// UploadPhotos stores every upload against the attempt. Store managers and the
// attempt's drivers may upload. All uploads are validated before any is stored.
func (s *photoService) UploadPhotos(ctx context.Context, principal Principal, attemptID uint, uploads []PhotoUpload) ([]model.DeliveryPhoto, error) {
	attempt, err := s.attemptRepo.FindByID(attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if accessToAttempt(principal, attempt.Order.StoreID, attempt) == attemptAccessNone {
		logger.Warn("Photo upload denied", map[string]interface{}{
			"user_id":    principal.UserID,
			"attempt_id": attemptID,
		})
		return nil, permissionDenied("you cannot upload photos for this delivery attempt")
	}

	verr := newValidationError()
	if len(uploads) == 0 {
		verr.Add("photos", "At least one photo is required.")
	}
	for _, upload := range uploads {
		if err := s.validateUpload(upload); err != nil {
			verr.Add("photos", upload.Filename+": "+err.Error())
		}
	}
	if err := verr.errOrNil(); err != nil {
		return nil, err
	}

	photos := make([]model.DeliveryPhoto, 0, len(uploads))
	uploader := principal.UserID
	for _, upload := range uploads {
		photo, err := s.AddPhoto(ctx, attemptID, &uploader, upload)
		if err != nil {
			return photos, err
		}
		photos = append(photos, *photo)
	}

	logger.Info("Delivery photos uploaded", map[string]interface{}{
		"attempt_id": attemptID,
		"user_id":    principal.UserID,
		"count":      len(photos),
	})
	return photos, nil
}

func (s *photoService) validateUpload(upload PhotoUpload) error {
	contentType := strings.ToLower(strings.TrimSpace(strings.Split(upload.ContentType, ";")[0]))
	if err := storage.ValidateContentType(contentType, allowedPhotoTypes); err != nil {
		return err
	}
	return storage.ValidateFileSize(upload.Size, s.maxBytes)
}

// AddPhoto writes the blob to object storage and records it. It does not look
// at the attempt status.
func (s *photoService) AddPhoto(ctx context.Context, attemptID uint, uploadedBy *uint, upload PhotoUpload) (*model.DeliveryPhoto, error) {
	key := storage.NewObjectKey(photoFolder, upload.Filename)
	if err := s.storage.Put(ctx, key, upload.ContentType, upload.Body, upload.Size); err != nil {
		logger.Error("Failed to store delivery photo", err, map[string]interface{}{
			"attempt_id": attemptID,
			"key":        key,
		})
		return nil, err
	}

	photo := &model.DeliveryPhoto{
		DeliveryAttemptID: attemptID,
		StorageKey:        key,
		Caption:           upload.Caption,
		UploadedByID:      uploadedBy,
	}
	if err := s.photoRepo.Create(photo); err != nil {
		return nil, err
	}
	return photo, nil
}

func (s *photoService) HasRequiredPhotos(attemptID uint) (bool, error) {
	count, err := s.photoRepo.CountByAttemptID(attemptID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SignedURL returns the cached URL while it is valid and otherwise presigns a
// new one and caches it. Concurrent refreshes are harmless: both URLs work.
func (s *photoService) SignedURL(ctx context.Context, photo *model.DeliveryPhoto) (string, error) {
	now := s.now()
	if photo.SignedURLValid(now) {
		return photo.SignedURL, nil
	}

	url, err := s.storage.PresignGet(ctx, photo.StorageKey, s.urlTTL)
	if err != nil {
		return "", err
	}
	expiry := now.Add(s.urlTTL)

	if err := s.photoRepo.UpdateSignedURL(photo.ID, url, expiry); err != nil {
		// the fresh url is still usable; it just won't be reused
		logger.Warn("Failed to cache signed URL", map[string]interface{}{
			"photo_id": photo.ID,
			"error":    err.Error(),
		})
	}

	photo.SignedURL = url
	photo.SignedURLExpiry = &expiry
	return url, nil
}

func (s *photoService) ListPhotos(ctx context.Context, principal Principal, attemptID uint) ([]model.DeliveryPhoto, error) {
	attempt, err := s.attemptRepo.FindByID(attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if accessToAttempt(principal, attempt.Order.StoreID, attempt) == attemptAccessNone {
		visible, err := s.orderRepo.IsVisible(attempt.OrderID, principal.OrderFilter(nil))
		if err != nil {
			return nil, err
		}
		if !visible {
			return nil, ErrNotFound
		}
	}

	photos, err := s.photoRepo.FindByAttemptID(attemptID)
	if err != nil {
		return nil, err
	}

	for i := range photos {
		if _, err := s.SignedURL(ctx, &photos[i]); err != nil {
			logger.Warn("Failed to sign photo URL", map[string]interface{}{
				"photo_id": photos[i].ID,
				"error":    err.Error(),
			})
		}
	}
	return photos, nil
}

// PhotoLinks joins the signed URLs of the attempt's photos with newlines for
// use in notifications. Photos that cannot be signed are skipped.
func (s *photoService) PhotoLinks(ctx context.Context, attemptID uint) string {
	photos, err := s.photoRepo.FindByAttemptID(attemptID)
	if err != nil {
		logger.Warn("Failed to load photos for notification", map[string]interface{}{
			"attempt_id": attemptID,
			"error":      err.Error(),
		})
		return noPhotosMessage
	}

	links := make([]string, 0, len(photos))
	for i := range photos {
		url, err := s.SignedURL(ctx, &photos[i])
		if err != nil {
			logger.Warn("Failed to sign photo URL for notification", map[string]interface{}{
				"photo_id": photos[i].ID,
				"error":    err.Error(),
			})
			continue
		}
		links = append(links, url)
	}

	if len(links) == 0 {
		return noPhotosMessage
	}
	return strings.Join(links, "\n")
}
