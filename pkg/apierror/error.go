package apierror

import (
	"encoding/json"
	"net/http"
)

// Error codes returned to clients.
const (
	CodeBadRequest            = "BAD_REQUEST"
	CodeValidation            = "VALIDATION_ERROR"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeForbidden             = "FORBIDDEN"
	CodeNotFound              = "NOT_FOUND"
	CodeConflict              = "CONFLICT"
	CodeDuplicateTransaction  = "DUPLICATE_TRANSACTION"
	CodeInsufficientInventory = "INSUFFICIENT_INVENTORY"
	CodeVerificationFailed    = "VERIFICATION_FAILED"
	CodeRPCUnavailable        = "RPC_UNAVAILABLE"
	CodePersistenceFailure    = "PERSISTENCE_FAILURE"
	CodeInternal              = "INTERNAL_ERROR"
	CodeServiceUnavailable    = "SERVICE_UNAVAILABLE"
)

// Error represents a structured API error response.
type Error struct {
	StatusCode int                    `json:"-"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    []FieldError           `json:"details,omitempty"`
	Retryable  bool                   `json:"retryable,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// WithDetails adds field-level error details.
func (e *Error) WithDetails(details ...FieldError) *Error {
	e.Details = details
	return e
}

// WithMeta attaches a machine-readable value to the error body.
func (e *Error) WithMeta(key string, value interface{}) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]interface{})
	}
	e.Meta[key] = value
	return e
}

// ToJSON converts the error to JSON bytes.
func (e *Error) ToJSON() []byte {
	response := map[string]interface{}{
		"success": false,
		"error":   e,
	}

	data, _ := json.Marshal(response)
	return data
}

func newError(status int, code, message string) *Error {
	return &Error{StatusCode: status, Code: code, Message: message}
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *Error {
	return newError(http.StatusBadRequest, CodeBadRequest, message)
}

// ValidationError creates a 400 error with validation details.
func ValidationError(message string, details ...FieldError) *Error {
	e := newError(http.StatusBadRequest, CodeValidation, message)
	e.Details = details
	return e
}

// Unauthorized creates a 401 Unauthorized error.
func Unauthorized(message string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return newError(http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden creates a 403 Forbidden error.
func Forbidden(message string) *Error {
	if message == "" {
		message = "Access denied"
	}
	return newError(http.StatusForbidden, CodeForbidden, message)
}

// NotFound creates a 404 Not Found error.
func NotFound(message string) *Error {
	if message == "" {
		message = "Resource not found"
	}
	return newError(http.StatusNotFound, CodeNotFound, message)
}

// Conflict creates a 409 Conflict error.
func Conflict(message string) *Error {
	return newError(http.StatusConflict, CodeConflict, message)
}

// DuplicateTransaction creates a 409 error for a payment that was already used.
func DuplicateTransaction(message string) *Error {
	return newError(http.StatusConflict, CodeDuplicateTransaction, message)
}

// InsufficientInventory creates a 409 error for a debit larger than the holding.
func InsufficientInventory(message string) *Error {
	return newError(http.StatusConflict, CodeInsufficientInventory, message)
}

// VerificationFailed creates a 422 error for a payment rejected on chain.
func VerificationFailed(reason string) *Error {
	e := newError(http.StatusUnprocessableEntity, CodeVerificationFailed, "payment verification failed")
	return e.WithMeta("reason", reason)
}

// RPCUnavailable creates a retryable 503 error for an indeterminate chain lookup.
func RPCUnavailable(message string) *Error {
	if message == "" {
		message = "payment could not be verified right now, retry later"
	}
	e := newError(http.StatusServiceUnavailable, CodeRPCUnavailable, message)
	e.Retryable = true
	return e
}

// PersistenceFailure creates a retryable 503 error for a storage failure.
func PersistenceFailure(message string) *Error {
	if message == "" {
		message = "storage temporarily unavailable, retry later"
	}
	e := newError(http.StatusServiceUnavailable, CodePersistenceFailure, message)
	e.Retryable = true
	return e
}

// InternalError creates a 500 Internal Server Error.
func InternalError(message string) *Error {
	if message == "" {
		message = "An unexpected error occurred"
	}
	return newError(http.StatusInternalServerError, CodeInternal, message)
}

// ServiceUnavailable creates a 503 Service Unavailable error.
func ServiceUnavailable(message string) *Error {
	if message == "" {
		message = "Service temporarily unavailable"
	}
	return newError(http.StatusServiceUnavailable, CodeServiceUnavailable, message)
}
