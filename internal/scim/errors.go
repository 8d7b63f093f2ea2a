package scim

import (
	"fmt"
	"net/http"
	"strconv"

	apperrors "github.com/scimgate/scimgate/internal/common/errors"
)

// scimType values defined by RFC 7644 §3.12, plus the extended types the
// service emits for transport-level failures.
const (
	TypeInvalidValue   = "invalidValue"
	TypeUniqueness     = "uniqueness"
	TypeNotFound       = "notFound"
	TypeNotImplemented = "notImplemented"
	TypeInternal       = "internalServerError"
	TypeUnauthorized   = "unauthorized"
	TypeForbidden      = "forbidden"
	TypePrecondition   = "preconditionFailed"
)

// Error is a SCIM protocol error. It renders as the RFC 7644 error body and
// carries the HTTP status to respond with.
type Error struct {
	Schemas  []string `json:"schemas"`
	Status   string   `json:"status"`
	ScimType string   `json:"scimType,omitempty"`
	Detail   string   `json:"detail"`

	statusCode int
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("scim %s (%s): %s", e.Status, e.ScimType, e.Detail)
}

// StatusCode returns the HTTP status for the error.
func (e *Error) StatusCode() int {
	return e.statusCode
}

// NewError builds a SCIM error with the given HTTP status, scimType, and detail.
func NewError(statusCode int, scimType, detail string) *Error {
	return &Error{
		Schemas:    []string{URNError},
		Status:     strconv.Itoa(statusCode),
		ScimType:   scimType,
		Detail:     detail,
		statusCode: statusCode,
	}
}

func ErrInvalidValue(detail string) *Error {
	return NewError(http.StatusBadRequest, TypeInvalidValue, detail)
}

func ErrUniqueness(detail string) *Error {
	return NewError(http.StatusConflict, TypeUniqueness, detail)
}

func ErrNotFound(detail string) *Error {
	return NewError(http.StatusNotFound, TypeNotFound, detail)
}

func ErrNotImplemented(detail string) *Error {
	return NewError(http.StatusNotImplemented, TypeNotImplemented, detail)
}

func ErrInternal(detail string) *Error {
	return NewError(http.StatusInternalServerError, TypeInternal, detail)
}

func ErrUnauthorized(detail string) *Error {
	return NewError(http.StatusUnauthorized, TypeUnauthorized, detail)
}

func ErrForbidden(detail string) *Error {
	return NewError(http.StatusForbidden, TypeForbidden, detail)
}

func ErrPreconditionFailed(detail string) *Error {
	return NewError(http.StatusPreconditionFailed, TypePrecondition, detail)
}

// WrapError converts any error into a SCIM error. SCIM errors pass through;
// AppError codes map onto the SCIM taxonomy; everything else becomes a 500.
func WrapError(err error) *Error {
	if err == nil {
		return nil
	}
	if scimErr, ok := err.(*Error); ok {
		return scimErr
	}
	if appErr, ok := err.(*apperrors.AppError); ok {
		switch appErr.StatusCode {
		case http.StatusNotFound:
			return ErrNotFound(appErr.Message)
		case http.StatusConflict:
			return ErrUniqueness(appErr.Message)
		case http.StatusBadRequest:
			return ErrInvalidValue(appErr.Message)
		case http.StatusNotImplemented:
			return ErrNotImplemented(appErr.Message)
		case http.StatusUnauthorized:
			return ErrUnauthorized(appErr.Message)
		case http.StatusForbidden:
			return ErrForbidden(appErr.Message)
		case http.StatusPreconditionFailed:
			return ErrPreconditionFailed(appErr.Message)
		}
	}
	return ErrInternal("unexpected internal error")
}
