package core

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Error Codes
// -----------------------------------------------------------------------------

type ErrorCode string

const (
	CodeInvalidTemplateSyntax  ErrorCode = "INVALID_TEMPLATE_SYNTAX"
	CodeMissingInputValue      ErrorCode = "MISSING_INPUT_VALUE"
	CodeMissingTaskOutput      ErrorCode = "MISSING_TASK_OUTPUT"
	CodeCircularDependency     ErrorCode = "CIRCULAR_DEPENDENCY"
	CodeUnsupportedMethod      ErrorCode = "UNSUPPORTED_METHOD"
	CodeSchemaValidationFailed ErrorCode = "SCHEMA_VALIDATION_FAILED"
	CodeNetworkFailure         ErrorCode = "NETWORK_FAILURE"
	CodeTimeout                ErrorCode = "TIMEOUT"
	CodeCanceled               ErrorCode = "CANCELED"
)

// -----------------------------------------------------------------------------
// Error
// -----------------------------------------------------------------------------

// Error is the structured error carried across component boundaries. Code
// identifies the failure class; Details carries machine-readable context such
// as the missing path or the cycle route.
type Error struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	cause   error
}

func NewError(code ErrorCode, msg string, details map[string]any) *Error {
	return &Error{Code: code, Message: msg, Details: details}
}

func WrapError(code ErrorCode, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Code == code
	}
	return false
}

// CodeOf extracts the error code, or the empty string when the error is not
// a structured one.
func CodeOf(err error) ErrorCode {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Code
	}
	return ""
}
