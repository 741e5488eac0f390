// Package errors defines the coded errors shared by the keyforge pipeline,
// CLI and HTTP API.
//
// Every failure that crosses a package boundary carries a [Code]. The batch
// orchestrator reads it to decide what happens to a keycap:
//
//   - FONT_PARSE_ERROR, FONT_NOT_FOUND and INVALID_INPUT abort the batch
//   - INVALID_CONFIG, INVALID_TEXT, SERIALIZATION_ERROR and TIMEOUT fail one keycap
//   - BOOLEAN_FAILURE and MESH_INVALID are [Recoverable]: the keycap is
//     emitted without its legend and a warning is recorded
//   - GLYPH_NOT_FOUND never escapes layout, which substitutes a box glyph
//
// The server maps codes to HTTP statuses and the CLI prints them as
// "CODE: message".
//
//	err := errors.New(errors.ErrCodeInvalidConfig, "depth %.2fmm out of range", depth)
//	if errors.Is(err, errors.ErrCodeInvalidConfig) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidConfig   Code = "INVALID_CONFIG"
	ErrCodeInvalidFontName Code = "INVALID_FONT_NAME"
	ErrCodeInvalidText     Code = "INVALID_TEXT"
	ErrCodeInvalidMachine  Code = "INVALID_MACHINE"

	// Resource not found errors
	ErrCodeNotFound      Code = "NOT_FOUND"
	ErrCodeFontNotFound  Code = "FONT_NOT_FOUND"
	ErrCodeGlyphNotFound Code = "GLYPH_NOT_FOUND"

	// Geometry errors
	ErrCodeFontParse      Code = "FONT_PARSE_ERROR"
	ErrCodeBooleanFailure Code = "BOOLEAN_FAILURE"
	ErrCodeMeshInvalid    Code = "MESH_INVALID"
	ErrCodeSerialization  Code = "SERIALIZATION_ERROR"

	// Runtime errors
	ErrCodeNetwork  Code = "NETWORK_ERROR"
	ErrCodeTimeout  Code = "TIMEOUT"
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New returns an error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap returns an error with the given code whose cause is cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether the outermost *Error in err's chain has code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode returns the code of the outermost *Error in err's chain, or "".
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns the message of the outermost *Error without code or
// cause, or err.Error() for other errors.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Recoverable reports whether an item-level error is recovered by falling
// back to the unengraved base solid.
func Recoverable(err error) bool {
	code := GetCode(err)
	return code == ErrCodeBooleanFailure || code == ErrCodeMeshInvalid
}
