package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode defines the error code type
type ErrorCode int

// System error codes
const (
	// Common HTTP-boundary error codes (1000-1999)
	ErrBadRequest         ErrorCode = 1000
	ErrUnauthorized       ErrorCode = 1001
	ErrForbidden          ErrorCode = 1002
	ErrNotFound           ErrorCode = 1003
	ErrMethodNotAllowed   ErrorCode = 1004
	ErrConflict           ErrorCode = 1005
	ErrTooManyRequests    ErrorCode = 1006
	ErrInternalServer     ErrorCode = 1007
	ErrServiceUnavailable ErrorCode = 1008
	ErrTimeout            ErrorCode = 1009
	ErrValidation         ErrorCode = 1010

	// Pipeline error kinds (3000-3099), one per named error kind
	ErrInvalidHistory      ErrorCode = 3000
	ErrClassifierDown      ErrorCode = 3001
	ErrLanguageUndetected  ErrorCode = 3002
	ErrTranslationFailed   ErrorCode = 3003
	ErrRetrieverDown       ErrorCode = 3004
	ErrNoEvidence          ErrorCode = 3005
	ErrGenerationFailed    ErrorCode = 3006
	ErrProviderSaturated   ErrorCode = 3007
	ErrRequestTimeout      ErrorCode = 3008
	ErrCacheDown           ErrorCode = 3009
	ErrPipelineInternal    ErrorCode = 3010
)

// AppError defines the application error structure
type AppError struct {
	Code     ErrorCode `json:"code"`
	Message  string    `json:"message"`
	Details  any       `json:"details,omitempty"`
	HTTPCode int       `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	return fmt.Sprintf("error code: %d, error message: %s", e.Code, e.Message)
}

// WithDetails adds error details
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// NewBadRequestError creates a bad request error
func NewBadRequestError(message string) *AppError {
	return &AppError{Code: ErrBadRequest, Message: message, HTTPCode: http.StatusBadRequest}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{Code: ErrNotFound, Message: message, HTTPCode: http.StatusNotFound}
}

// NewInternalServerError creates an internal server error
func NewInternalServerError(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return &AppError{Code: ErrInternalServer, Message: message, HTTPCode: http.StatusInternalServerError}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return &AppError{Code: ErrValidation, Message: message, HTTPCode: http.StatusBadRequest}
}

// NewTimeoutError creates a request-deadline error
func NewTimeoutError(message string) *AppError {
	return &AppError{Code: ErrRequestTimeout, Message: message, HTTPCode: http.StatusGatewayTimeout}
}

// kindToError maps a pipeline ErrorCode to its AppError shell.
var kindToError = map[ErrorCode]struct {
	status int
}{
	ErrInvalidHistory:     {http.StatusBadRequest},
	ErrClassifierDown:     {http.StatusOK}, // degrades silently, never surfaced as failure
	ErrLanguageUndetected: {http.StatusOK}, // canned guidance, success=true
	ErrTranslationFailed:  {http.StatusBadGateway},
	ErrRetrieverDown:      {http.StatusBadGateway},
	ErrNoEvidence:         {http.StatusOK}, // canned "no sources", success=true
	ErrGenerationFailed:   {http.StatusBadGateway},
	ErrProviderSaturated:  {http.StatusServiceUnavailable},
	ErrRequestTimeout:     {http.StatusGatewayTimeout},
	ErrCacheDown:          {http.StatusOK}, // recovered locally, never surfaced
	ErrPipelineInternal:   {http.StatusInternalServerError},
}

// kindNameToCode maps a pipeline.PluginError's ErrorKind string to its
// ErrorCode. Plugins speak the string taxonomy so they don't need to
// import this package; only the orchestrator translates it into an AppError.
var kindNameToCode = map[string]ErrorCode{
	"InvalidHistory":       ErrInvalidHistory,
	"ClassifierUnavailable": ErrClassifierDown,
	"LanguageUndetected":   ErrLanguageUndetected,
	"TranslationError":     ErrTranslationFailed,
	"RetrieverUnavailable": ErrRetrieverDown,
	"NoEvidence":           ErrNoEvidence,
	"GenerationError":      ErrGenerationFailed,
	"ProviderSaturated":    ErrProviderSaturated,
	"Timeout":              ErrRequestTimeout,
	"CacheUnavailable":     ErrCacheDown,
	"Internal":             ErrPipelineInternal,
}

// ErrorCodeForKind resolves a pipeline error-kind name to its ErrorCode,
// defaulting to ErrPipelineInternal for an unrecognized kind.
func ErrorCodeForKind(kind string) ErrorCode {
	if code, ok := kindNameToCode[kind]; ok {
		return code
	}
	return ErrPipelineInternal
}

// NewPipelineError builds a user-facing AppError for one of the orchestrator's
// error kinds without leaking provider detail or stack traces.
func NewPipelineError(code ErrorCode, correlationID, message string) *AppError {
	status := http.StatusInternalServerError
	if m, ok := kindToError[code]; ok {
		status = m.status
	}
	return &AppError{
		Code:     code,
		Message:  message,
		Details:  map[string]string{"request_id": correlationID},
		HTTPCode: status,
	}
}

// IsAppError checks if the error is an AppError type
func IsAppError(err error) (*AppError, bool) {
	appErr, ok := err.(*AppError)
	return appErr, ok
}
