package domain

import (
	"fmt"
	"strings"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"

	// Orchestration error codes, see the propagation rules in the
	// orchestrator package: only CONFIG_UNAVAILABLE aborts a request.
	ErrCodeConfigUnavailable    = "CONFIG_UNAVAILABLE"
	ErrCodeCollectionNotEnabled = "COLLECTION_NOT_ENABLED"
	ErrCodeMissingVariables     = "MISSING_VARIABLES"
	ErrCodeNotApplicable        = "NOT_APPLICABLE"
	ErrCodeExecutionFailed      = "EXECUTION_FAILED"
	ErrCodeTimedOut             = "TIMED_OUT"
)

// Validation errors
var (
	ErrInvalidActionTemplate = NewDomainError(ErrCodeValidation, "invalid action template")
	ErrInvalidInvalidation   = NewDomainError(ErrCodeValidation, "invalid invalidation event")
	ErrMissingRequiredField  = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrTenantNotFound       = NewDomainError(ErrCodeNotFound, "tenant not found")
	ErrKnowledgeNotFound    = NewDomainError(ErrCodeNotFound, "knowledge item not found")
	ErrConversationNotFound = NewDomainError(ErrCodeNotFound, "conversation not found")
)

// Authorization errors
var (
	ErrInvalidAPIKey  = NewDomainError(ErrCodeUnauthorized, "invalid api key")
	ErrTenantMismatch = NewDomainError(ErrCodeUnauthorized, "api key not valid for tenant")
)

// Orchestration errors
var (
	ErrConfigUnavailable    = NewDomainError(ErrCodeConfigUnavailable, "tenant configuration unavailable")
	ErrCollectionNotEnabled = NewDomainError(ErrCodeCollectionNotEnabled, "collection not enabled for tenant")
	ErrNotApplicable        = NewDomainError(ErrCodeNotApplicable, "action not applicable for the current context")
	ErrExecutionFailed      = NewDomainError(ErrCodeExecutionFailed, "operational backend execution failed")
	ErrNodeTimedOut         = NewDomainError(ErrCodeTimedOut, "task node timed out")
)

// MissingVariablesError is returned by the bridge when one or more required
// template variables are absent from the runtime context. It lists exactly
// the absent names.
type MissingVariablesError struct {
	Variables []string
}

// Error implements the error interface
func (e *MissingVariablesError) Error() string {
	return fmt.Sprintf("[%s] missing required variables: %s", ErrCodeMissingVariables, strings.Join(e.Variables, ", "))
}

// NewMissingVariablesError creates a MissingVariablesError for the given names
func NewMissingVariablesError(variables []string) *MissingVariablesError {
	return &MissingVariablesError{Variables: variables}
}
