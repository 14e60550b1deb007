package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// set by the logging middleware; read by key to avoid an import cycle
const requestIDKey = "request_id"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string            `json:"error"` // code from codes.go
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

var defaultMessages = map[int]string{
	http.StatusUnauthorized:        "Authentication credentials were not provided.",
	http.StatusForbidden:           "You do not have permission to perform this action.",
	http.StatusTooManyRequests:     "Too many requests. Please try again later.",
	http.StatusInternalServerError: "Something went wrong. Please try again later.",
}

// RespondWithError writes an ErrorResponse. An empty message falls back to a
// generic one for the status.
func RespondWithError(c *gin.Context, statusCode int, errorCode string, message string) {
	respond(c, statusCode, ErrorResponse{Error: errorCode, Message: message})
}

func respond(c *gin.Context, statusCode int, body ErrorResponse) {
	if body.Message == "" {
		body.Message = defaultMessages[statusCode]
	}
	body.RequestID = c.GetString(requestIDKey)
	c.JSON(statusCode, body)
}

func Unauthorized(c *gin.Context, message string) {
	RespondWithError(c, http.StatusUnauthorized, AuthUnauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	RespondWithError(c, http.StatusForbidden, AuthzForbidden, message)
}

func BadRequest(c *gin.Context, errorCode string, message string) {
	RespondWithError(c, http.StatusBadRequest, errorCode, message)
}

func NotFound(c *gin.Context, errorCode string, message string) {
	RespondWithError(c, http.StatusNotFound, errorCode, message)
}

func Conflict(c *gin.Context, errorCode string, message string) {
	RespondWithError(c, http.StatusConflict, errorCode, message)
}

// PreconditionFailed is used when a delivery guard rejects a status change;
// the message tells the driver what is missing.
func PreconditionFailed(c *gin.Context, errorCode string, message string) {
	RespondWithError(c, http.StatusPreconditionFailed, errorCode, message)
}

func TooManyRequests(c *gin.Context, message string) {
	RespondWithError(c, http.StatusTooManyRequests, AuthTooManyRequests, message)
}

func RespondWithValidationError(c *gin.Context, fields map[string]string) {
	respond(c, http.StatusBadRequest, ErrorResponse{
		Error:   ValidationInvalidInput,
		Message: "The submitted data is invalid.",
		Fields:  fields,
	})
}
