package errors

import (
	"errors"
	"fmt"
)

// SDIError is the structured error type for Constellation.
// It carries a machine-readable code, a human-readable message and, for
// protocol errors, the locator naming the offending request parameter.
type SDIError struct {
	// Code is the unique error code (e.g., "ERR_201_FILE_NOT_FOUND" or
	// "InvalidParameterValue").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Protocol, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Locator names the request parameter at fault (OWS exceptions only).
	Locator string

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error
}

// Error implements the error interface.
func (e *SDIError) Error() string {
	if e.Locator != "" {
		return fmt.Sprintf("[%s] %s (locator: %s)", e.Code, e.Message, e.Locator)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SDIError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *SDIError) Is(target error) bool {
	if t, ok := target.(*SDIError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *SDIError) WithDetail(key, value string) *SDIError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithLocator sets the OWS locator.
func (e *SDIError) WithLocator(locator string) *SDIError {
	e.Locator = locator
	return e
}

// New creates a new SDIError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *SDIError {
	return &SDIError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates an SDIError from an existing error.
func Wrap(code string, err error) *SDIError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ServiceException creates an OWS protocol error.
func ServiceException(code, message, locator string) *SDIError {
	return New(code, message, nil).WithLocator(locator)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *SDIError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *SDIError {
	return New(ErrCodeFileNotFound, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *SDIError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *SDIError {
	return New(ErrCodeInternal, message, cause)
}

// As finds the first SDIError in err's chain.
func As(err error) (*SDIError, bool) {
	var se *SDIError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if se, ok := As(err); ok {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an SDIError anywhere in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	if se, ok := As(err); ok {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from an SDIError.
func GetCategory(err error) Category {
	if se, ok := As(err); ok {
		return se.Category
	}
	return ""
}
