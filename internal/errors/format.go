package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatForUser returns a user-friendly error message.
// If debug is true, the underlying cause is included.
func FormatForUser(err error, debug bool) string {
	if err == nil {
		return ""
	}

	se, ok := As(err)
	if !ok {
		return err.Error()
	}

	var sb strings.Builder
	sb.WriteString("Error: ")
	sb.WriteString(se.Message)
	sb.WriteString("\n")

	if se.Locator != "" {
		sb.WriteString(fmt.Sprintf("Parameter: %s\n", se.Locator))
	}
	if debug && se.Cause != nil {
		sb.WriteString(fmt.Sprintf("Cause: %v\n", se.Cause))
	}

	sb.WriteString(fmt.Sprintf("\n[%s]", se.Code))
	return sb.String()
}

// FormatForCLI formats an error for CLI output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	se, ok := As(err)
	if !ok {
		se = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", se.Message))
	if se.Locator != "" {
		sb.WriteString(fmt.Sprintf("  Locator: %s\n", se.Locator))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", se.Code))
	return sb.String()
}

// ExceptionReport is the machine readable form of an error returned to
// OGC clients. Protocol front-ends serialize it as they see fit.
type ExceptionReport struct {
	Code    string `json:"code"`
	Locator string `json:"locator,omitempty"`
	Message string `json:"message"`
}

// Report converts any error into an ExceptionReport. Errors that carry no
// OWS code are reported as NoApplicableCode.
func Report(err error) ExceptionReport {
	se, ok := As(err)
	if !ok {
		return ExceptionReport{Code: CodeNoApplicableCode, Message: err.Error()}
	}
	code := se.Code
	if se.Category != CategoryProtocol {
		code = CodeNoApplicableCode
	}
	return ExceptionReport{Code: code, Locator: se.Locator, Message: se.Message}
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Category string            `json:"category"`
	Severity string            `json:"severity"`
	Locator  string            `json:"locator,omitempty"`
	Details  map[string]string `json:"details,omitempty"`
	Cause    string            `json:"cause,omitempty"`
}

// FormatJSON returns a JSON representation of the error.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	se, ok := As(err)
	if !ok {
		se = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:     se.Code,
		Message:  se.Message,
		Category: string(se.Category),
		Severity: string(se.Severity),
		Locator:  se.Locator,
		Details:  se.Details,
	}
	if se.Cause != nil {
		je.Cause = se.Cause.Error()
	}

	return json.Marshal(je)
}

// FormatForLog formats an error for structured logging.
// Returns key-value pairs suitable for slog attributes.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	se, ok := As(err)
	if !ok {
		return map[string]any{
			"error": err.Error(),
		}
	}

	result := map[string]any{
		"error_code": se.Code,
		"message":    se.Message,
		"category":   string(se.Category),
		"severity":   string(se.Severity),
	}
	if se.Locator != "" {
		result["locator"] = se.Locator
	}
	if se.Cause != nil {
		result["cause"] = se.Cause.Error()
	}
	for k, v := range se.Details {
		result["detail_"+k] = v
	}

	return result
}
