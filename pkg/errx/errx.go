package errx

import (
	"errors"
	"fmt"
)

// Error codes returned to API callers.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeRateLimited     = "RATE_LIMITED"
	CodeProviderTimeout = "PROVIDER_TIMEOUT"
	CodeAPIError        = "API_ERROR"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeEmptyResponse   = "EMPTY_RESPONSE"
	CodeProcessingError = "PROCESSING_ERROR"
)

// AppError wraps an underlying error with an HTTP status, a stable code and
// a message that is safe to show to end users.
type AppError struct {
	Err     error
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(err error, status int, code, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Code:    code,
		Message: message,
	}
}

// As finds the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Body is the JSON error payload.
type Body struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func (e *AppError) Body() Body {
	return Body{ErrorCode: e.Code, Message: e.Message}
}
