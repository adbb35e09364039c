package services

import (
	"errors"
	"fmt"
	"net/http"

	"badgehub/internal/nostr"
)

// Failures callers can match with errors.Is regardless of how they were
// wrapped on the way up.
var (
	ErrSignerUnavailable = errors.New("no signer available for key")
	ErrPublishRejected   = errors.New("record was not accepted by any relay")
	ErrInvalidIdentifier = errors.New("invalid badge identifier")
	ErrInvalidKey        = nostr.ErrInvalidKey
)

// Error categories. Each one fixes the HTTP status of the errors in it.
const (
	TypeValidation = "VALIDATION_ERROR"
	TypeNotFound   = "NOT_FOUND"
	TypeForbidden  = "FORBIDDEN"
	TypeUpstream   = "UPSTREAM_ERROR"
	TypeInternal   = "INTERNAL_ERROR"
)

var statusByType = map[string]int{
	TypeValidation: http.StatusBadRequest,
	TypeNotFound:   http.StatusNotFound,
	TypeForbidden:  http.StatusForbidden,
	TypeUpstream:   http.StatusBadGateway,
	TypeInternal:   http.StatusInternalServerError,
}

// ServiceError is the error every service method returns to its callers.
// Type selects the category, Code narrows it for clients that branch on
// specific failures.
type ServiceError struct {
	Type       string                 `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	StatusCode int                    `json:"-"`
	Cause      error                  `json:"-"`
}

func newServiceError(errType, message string, cause error) *ServiceError {
	return &ServiceError{
		Type:       errType,
		Message:    message,
		StatusCode: statusByType[errType],
		Cause:      cause,
	}
}

func (e *ServiceError) Error() string {
	msg := e.Type + ": " + e.Message
	if e.Cause == nil {
		return msg
	}
	return fmt.Sprintf("%s (caused by: %v)", msg, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

// GetStatusCode falls back to 500 for errors built without a category.
func (e *ServiceError) GetStatusCode() int {
	if e.StatusCode <= 0 {
		return http.StatusInternalServerError
	}
	return e.StatusCode
}

// WithDetail records key in Details.
func (e *ServiceError) WithDetail(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

// WithCode sets the client-facing code.
func (e *ServiceError) WithCode(code string) *ServiceError {
	e.Code = code
	return e
}

func NewValidationError(message string, cause error) *ServiceError {
	return newServiceError(TypeValidation, message, cause)
}

func NewNotFoundError(message string) *ServiceError {
	return newServiceError(TypeNotFound, message, nil)
}

func NewForbiddenError(message string, cause error) *ServiceError {
	return newServiceError(TypeForbidden, message, cause)
}

// NewUpstreamError reports a relay or resolver that failed us.
func NewUpstreamError(message string, cause error) *ServiceError {
	return newServiceError(TypeUpstream, message, cause)
}

func NewInternalError(message string, cause error) *ServiceError {
	return newServiceError(TypeInternal, message, cause)
}

// InvalidIdentifierError rejects a badge id that does not parse.
func InvalidIdentifierError(id string) *ServiceError {
	return NewValidationError("Invalid badge identifier", ErrInvalidIdentifier).
		WithCode("INVALID_BADGE_ID").
		WithDetail("badge_id", id)
}

// InvalidKeyError rejects a field holding neither hex nor npub.
func InvalidKeyError(field, value string, cause error) *ServiceError {
	if cause == nil {
		cause = ErrInvalidKey
	}
	return NewValidationError(fmt.Sprintf("Invalid public key for field '%s'", field), cause).
		WithCode("INVALID_KEY").
		WithDetail("value", value)
}

func SignerUnavailableError(pubkey string) *ServiceError {
	return NewForbiddenError("No signer available for this key", ErrSignerUnavailable).
		WithCode("SIGNER_UNAVAILABLE").
		WithDetail("pubkey", pubkey)
}

// PublishRejectedError wraps the per-relay failures of a publish nobody
// acknowledged.
func PublishRejectedError(kind int, cause error) *ServiceError {
	return NewUpstreamError("Record was not accepted by any relay", errors.Join(ErrPublishRejected, cause)).
		WithCode("PUBLISH_REJECTED").
		WithDetail("kind", kind)
}

// GetServiceError returns the ServiceError in err's chain. Known sentinels
// are classified; anything else becomes an internal error.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, ErrSignerUnavailable):
		return NewForbiddenError("No signer available for this key", err)
	case errors.Is(err, ErrPublishRejected):
		return NewUpstreamError("Record was not accepted by any relay", err)
	case errors.Is(err, ErrInvalidIdentifier), errors.Is(err, ErrInvalidKey):
		return NewValidationError(err.Error(), err)
	default:
		return NewInternalError("Internal server error", err)
	}
}

// IsErrorType reports whether err wraps a ServiceError of errType.
func IsErrorType(err error, errType string) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Type == errType
}

func IsNotFoundError(err error) bool   { return IsErrorType(err, TypeNotFound) }
func IsValidationError(err error) bool { return IsErrorType(err, TypeValidation) }
