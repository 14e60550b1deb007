package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrConflict           = errors.New("resource was modified concurrently, retry the request")
	ErrValidation         = errors.New("validation failed")
)

// ValidationError reports malformed or missing input per field.
type ValidationError struct {
	Fields map[string]string
}

func newValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

// Add records message for field. Further messages for the same field are
// appended, separated by a space; repeats are dropped.
func (e *ValidationError) Add(field, message string) {
	existing, ok := e.Fields[field]
	if !ok {
		e.Fields[field] = message
		return
	}
	if strings.Contains(existing, message) {
		return
	}
	e.Fields[field] = existing + " " + message
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// errOrNil returns nil when no field failed.
func (e *ValidationError) errOrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// PreconditionCode identifies which transition guard failed.
type PreconditionCode string

const (
	PreconditionPhotosRequired PreconditionCode = "photos_required"
	PreconditionETARequired    PreconditionCode = "eta_required"
)

// PreconditionError reports a transition guard that was not satisfied.
// Its message is shown to the caller verbatim.
type PreconditionError struct {
	Code   PreconditionCode
	Reason string
}

func (e *PreconditionError) Error() string {
	return e.Reason
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPreconditionFailed
}

func permissionDenied(reason string) error {
	return fmt.Errorf("%w: %s", ErrPermissionDenied, reason)
}
