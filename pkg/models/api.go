package models

// ErrorType categorizes API errors so clients can branch without parsing messages.
type ErrorType string

const (
	ValidationErrorType      ErrorType = "VALIDATION_ERROR"
	NotFoundErrorType        ErrorType = "NOT_FOUND"
	ConflictErrorType        ErrorType = "CONFLICT"
	DatabaseErrorType        ErrorType = "DATABASE_ERROR"
	ExternalServiceErrorType ErrorType = "EXTERNAL_SERVICE_ERROR"
	GeneralErrorType         ErrorType = "GENERAL_ERROR"
)

// APIResponse is the envelope for every API response.
type APIResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Data      any       `json:"data,omitempty"`
	ErrorType ErrorType `json:"error_type,omitempty"`
}
