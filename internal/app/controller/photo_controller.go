package controller

import (
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/delivery-tracker/internal/app/service"
	apperrors "github.com/ikkim/delivery-tracker/internal/errors"
	"github.com/ikkim/delivery-tracker/internal/middleware"
)

const photoFormField = "photos"

type PhotoController struct {
	photoService service.PhotoService
}

func NewPhotoController(photoService service.PhotoService) *PhotoController {
	return &PhotoController{photoService: photoService}
}

// UploadPhotos stores one or more delivery photos for an attempt.
// Multipart form: photos (repeated file field), caption (optional).
// POST /api/v1/attempts/:id/photos
func (ctrl *PhotoController) UploadPhotos(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	attemptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		log.Warn("Invalid multipart upload", map[string]interface{}{
			"attempt_id": attemptID,
			"error":      err.Error(),
		})
		apperrors.BadRequest(c, apperrors.UploadFileMissing, "Upload must be multipart/form-data with a 'photos' field.")
		return
	}

	headers := form.File[photoFormField]
	if len(headers) == 0 {
		apperrors.BadRequest(c, apperrors.UploadFileMissing, "At least one photo is required.")
		return
	}
	caption := c.PostForm("caption")

	uploads := make([]service.PhotoUpload, 0, len(headers))
	files := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			log.Error("Failed to open uploaded file", err, map[string]interface{}{
				"filename": header.Filename,
			})
			apperrors.RespondWithError(c, http.StatusInternalServerError, apperrors.UploadFailed, "Could not read the uploaded file.")
			return
		}
		files = append(files, file)
		uploads = append(uploads, service.PhotoUpload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
			Caption:     caption,
		})
	}

	photos, err := ctrl.photoService.UploadPhotos(c.Request.Context(), principal, attemptID, uploads)
	if err != nil {
		respondError(c, err, "upload delivery photos")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"photos": photos,
		"count":  len(photos),
	})
}

// ListPhotos returns the photos of an attempt with fresh signed URLs
// GET /api/v1/attempts/:id/photos
func (ctrl *PhotoController) ListPhotos(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	attemptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	photos, err := ctrl.photoService.ListPhotos(c.Request.Context(), principal, attemptID)
	if err != nil {
		respondError(c, err, "list delivery photos")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"photos": photos,
		"count":  len(photos),
	})
}
