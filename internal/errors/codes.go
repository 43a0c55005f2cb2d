// Package errors provides structured error handling for Constellation.
//
// Internal error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and index storage errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
//
// Protocol errors reported to OGC clients use the OWS exception codes
// (VersionNegotiationFailed, InvalidParameterValue, ...) unchanged.
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, disk and index storage errors.
	CategoryIO Category = "IO"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryProtocol indicates OWS protocol errors surfaced to clients.
	CategoryProtocol Category = "PROTOCOL"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Internal error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeContextMissing = "ERR_103_CONTEXT_MISSING"

	// IO errors (200-299)
	ErrCodeFileNotFound = "ERR_201_FILE_NOT_FOUND"
	ErrCodeIndexLocked  = "ERR_202_INDEX_LOCKED"
	ErrCodeIndexSwap    = "ERR_203_INDEX_SWAP"
	ErrCodeCorruptIndex = "ERR_205_CORRUPT_INDEX"
	ErrCodeSourceFailed = "ERR_206_SOURCE_FAILED"
	ErrCodeIndexWriter  = "ERR_207_INDEX_WRITER"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidQuery = "ERR_403_INVALID_QUERY"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_503_SEARCH_FAILED"
	ErrCodeIndexFailed  = "ERR_505_INDEX_FAILED"
)

// OWS exception codes, as defined by OGC 06-121r3 table 25.
const (
	CodeVersionNegotiationFailed = "VersionNegotiationFailed"
	CodeInvalidParameterValue    = "InvalidParameterValue"
	CodeInvalidUpdateSequence    = "InvalidUpdateSequence"
	CodeMissingParameterValue    = "MissingParameterValue"
	CodeOperationNotSupported    = "OperationNotSupported"
	CodeNoApplicableCode         = "NoApplicableCode"
)

// isProtocolCode reports whether code is one of the OWS exception codes.
func isProtocolCode(code string) bool {
	switch code {
	case CodeVersionNegotiationFailed, CodeInvalidParameterValue, CodeInvalidUpdateSequence,
		CodeMissingParameterValue, CodeOperationNotSupported, CodeNoApplicableCode:
		return true
	default:
		return false
	}
}

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if isProtocolCode(code) {
		return CategoryProtocol
	}
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeContextMissing:
		return SeverityFatal
	}
	if categoryFromCode(code) == CategoryProtocol {
		return SeverityWarning
	}
	return SeverityError
}
