package errors

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrorInfo is a code/message pair ready to be rendered.
type ErrorInfo struct {
	Code    string
	Message string
}

// ParseError turns a storage or transport error into a safe code and
// message. Driver details never reach the response.
func ParseError(err error, context string) ErrorInfo {
	if err == nil {
		return ErrorInfo{Code: InternalServerError, Message: "Something went wrong."}
	}

	errLower := strings.ToLower(err.Error())

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrorInfo{Code: ResourceNotFound, Message: getNotFoundMessage(context)}
	}

	// postgres 23505 / sqlite UNIQUE
	if strings.Contains(errLower, "duplicate key") || strings.Contains(errLower, "unique constraint") {
		return parseDuplicateKeyError(errLower)
	}

	// postgres 23503
	if strings.Contains(errLower, "foreign key constraint") {
		return ErrorInfo{Code: ResourceNotFound, Message: "A referenced record does not exist."}
	}

	// postgres 23502 / sqlite NOT NULL
	if strings.Contains(errLower, "not-null constraint") || strings.Contains(errLower, "not null constraint") {
		return ErrorInfo{Code: ValidationRequired, Message: "A required field is missing."}
	}

	if strings.Contains(errLower, "connection refused") ||
		strings.Contains(errLower, "no such host") ||
		strings.Contains(errLower, "timeout") {
		return ErrorInfo{
			Code:    InternalExternalAPI,
			Message: "An upstream service is unavailable. Please try again later.",
		}
	}

	return ErrorInfo{Code: InternalServerError, Message: getDefaultErrorMessage(context)}
}

func parseDuplicateKeyError(errLower string) ErrorInfo {
	switch {
	case strings.Contains(errLower, "username"):
		return ErrorInfo{Code: ResourceAlreadyExists, Message: "A user with that username already exists."}
	case strings.Contains(errLower, "email"):
		return ErrorInfo{Code: ResourceAlreadyExists, Message: "A user with that email already exists."}
	case strings.Contains(errLower, "phone"):
		return ErrorInfo{Code: ResourceAlreadyExists, Message: "A user with that phone number already exists."}
	case strings.Contains(errLower, "message_templates"), strings.Contains(errLower, "store_event"):
		return ErrorInfo{Code: ResourceAlreadyExists, Message: "A template for this event already exists."}
	}
	return ErrorInfo{Code: ResourceAlreadyExists, Message: "The record already exists."}
}

func getNotFoundMessage(context string) string {
	contextLower := strings.ToLower(context)

	switch {
	case strings.Contains(contextLower, "store"):
		return "Store not found."
	case strings.Contains(contextLower, "user"):
		return "User not found."
	case strings.Contains(contextLower, "attempt"):
		return "Delivery attempt not found."
	case strings.Contains(contextLower, "photo"):
		return "Photo not found."
	case strings.Contains(contextLower, "order"):
		return "Order not found."
	case strings.Contains(contextLower, "template"):
		return "Message template not found."
	}
	return "Not found."
}

func getDefaultErrorMessage(context string) string {
	contextLower := strings.ToLower(context)

	switch {
	case strings.Contains(contextLower, "create"):
		return "Could not create the record. Please try again later."
	case strings.Contains(contextLower, "update"):
		return "Could not update the record. Please try again later."
	case strings.Contains(contextLower, "upload"):
		return "Could not store the upload. Please try again later."
	}
	return "Something went wrong. Please try again later."
}
