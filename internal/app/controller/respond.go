package controller

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/delivery-tracker/internal/app/service"
	apperrors "github.com/ikkim/delivery-tracker/internal/errors"
	"github.com/ikkim/delivery-tracker/internal/middleware"
	"github.com/ikkim/delivery-tracker/pkg/util"
)

// respondError maps a service error to a status code and error body.
// context names the operation, e.g. "create order", and is used for
// logging and for the message of unexpected errors.
func respondError(c *gin.Context, err error, context string) {
	log := middleware.GetLoggerFromContext(c)

	var verr *service.ValidationError
	var perr *service.PreconditionError

	switch {
	case errors.As(err, &verr):
		apperrors.RespondWithValidationError(c, verr.Fields)
	case errors.As(err, &perr):
		code := apperrors.DeliveryPreconditionFailed
		switch perr.Code {
		case service.PreconditionPhotosRequired:
			code = apperrors.DeliveryPhotosRequired
		case service.PreconditionETARequired:
			code = apperrors.DeliveryETARequired
		}
		apperrors.PreconditionFailed(c, code, perr.Reason)
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrUserNotFound):
		apperrors.NotFound(c, apperrors.ResourceNotFound, apperrors.ParseError(err, context).Message)
	case errors.Is(err, service.ErrPermissionDenied):
		apperrors.Forbidden(c, permissionMessage(err))
	case errors.Is(err, service.ErrConflict):
		apperrors.Conflict(c, apperrors.ResourceConflict, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		apperrors.RespondWithError(c, http.StatusUnauthorized, apperrors.AuthInvalidCredentials, "Invalid username or password.")
	case errors.Is(err, service.ErrAccountDisabled):
		apperrors.RespondWithError(c, http.StatusUnauthorized, apperrors.AuthAccountDisabled, "This account is disabled.")
	case errors.Is(err, util.ErrExpiredToken):
		apperrors.RespondWithError(c, http.StatusUnauthorized, apperrors.AuthTokenExpired, "Token has expired.")
	case errors.Is(err, util.ErrInvalidToken):
		apperrors.RespondWithError(c, http.StatusUnauthorized, apperrors.AuthTokenInvalid, "Token is invalid.")
	case errors.Is(err, service.ErrInvalidResetToken), errors.Is(err, service.ErrInvalidVerificationToken):
		apperrors.BadRequest(c, apperrors.AuthCodeInvalid, "Invalid or expired link.")
	case errors.Is(err, service.ErrResetTokenExpired):
		apperrors.BadRequest(c, apperrors.AuthCodeExpired, "This reset link has expired.")
	case errors.Is(err, service.ErrResetTokenUsed):
		apperrors.BadRequest(c, apperrors.AuthCodeUsed, "This reset link has already been used.")
	case errors.Is(err, service.ErrPasswordUnchanged):
		apperrors.RespondWithValidationError(c, map[string]string{"new_password": err.Error()})
	case errors.Is(err, service.ErrTooManyRequests):
		apperrors.TooManyRequests(c, "Too many requests. Please try again later.")
	default:
		info := apperrors.ParseError(err, context)
		log.Error("Failed to "+context, err, map[string]interface{}{
			"code": info.Code,
		})
		status := http.StatusInternalServerError
		switch info.Code {
		case apperrors.ResourceAlreadyExists:
			status = http.StatusConflict
		case apperrors.ResourceNotFound:
			status = http.StatusNotFound
		case apperrors.ValidationRequired:
			status = http.StatusBadRequest
		}
		apperrors.RespondWithError(c, status, info.Code, info.Message)
		return
	}

	log.Warn("Request rejected", map[string]interface{}{
		"operation": context,
		"error":     err.Error(),
	})
}

func permissionMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), service.ErrPermissionDenied.Error()+": ")
	if msg == "" || msg == service.ErrPermissionDenied.Error() {
		return ""
	}
	return strings.ToUpper(msg[:1]) + msg[1:] + "."
}

// parseIDParam reads a positive integer path parameter, writing a 400 when
// it is malformed.
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		middleware.GetLoggerFromContext(c).Warn("Invalid ID parameter", map[string]interface{}{
			"param": name,
			"value": raw,
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "Invalid "+strings.ReplaceAll(name, "_", " ")+".")
		return 0, false
	}
	return uint(id), true
}

// requirePrincipal returns the caller, writing a 401 when the route was
// not behind Authenticate.
func requirePrincipal(c *gin.Context) (service.Principal, bool) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return service.Principal{}, false
	}
	return principal, true
}

// bindJSON decodes the body, writing a 400 on malformed input.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		middleware.GetLoggerFromContext(c).Warn("Invalid request body", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidFormat, "Request body is not valid JSON for this endpoint.")
		return false
	}
	return true
}
