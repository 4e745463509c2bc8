// Package errors provides structured error handling for csvmachine with rich
// context, stack traces, and error categorization.
//
// # Overview
//
// Every failure the mapper reports belongs to one of a small set of
// categories:
//   - ErrorTypeConfig: the column mapping or Configuration is unusable
//   - ErrorTypeMalformed: the CSV input cannot be mapped
//   - ErrorTypeWorker: one or more producer/consumer goroutines failed
//   - ErrorTypeFile: opening, decompressing or decoding the input failed
//   - ErrorTypeInternal: an invariant of the mapper itself was broken
//
// # Basic Usage
//
//	err := errors.New(errors.ErrorTypeMalformed, "header not found").
//	    WithDetail("search_limit", 15)
//
//	if errors.IsType(err, errors.ErrorTypeMalformed) {
//	    // reject the file
//	}
//
// # Aggregation
//
// Errors captured on worker goroutines are combined with Aggregate. The
// aggregate is itself an *Error of type ErrorTypeWorker whose cause is a
// multierr combination, so errors.Is / errors.As and IsType keep working on
// the individual failures through Causes.
//
// # Thread Safety
//
// Error instances are not thread-safe for modification. Use WithDetail
// before sharing an error across goroutines.
package errors

import (
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/multierr"
)

// ErrorType represents the category of error.
type ErrorType string

const (
	// ErrorTypeInternal represents internal invariant violations
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeConfig represents configuration and column mapping errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeMalformed represents malformed CSV input
	ErrorTypeMalformed ErrorType = "malformed"
	// ErrorTypeWorker represents failures captured on worker goroutines
	ErrorTypeWorker ErrorType = "worker"
	// ErrorTypeFile represents file operation errors
	ErrorTypeFile ErrorType = "file"
)

// Error represents a structured error with context.
//
// Fields:
//   - Type: Categorizes the error
//   - Message: Human-readable error description
//   - Cause: The underlying error that caused this error
//   - Details: Key-value pairs such as "line" or "column"
//   - Stack: Call stack at the point of error creation
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. It can be chained.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Detail returns the detail stored under key.
func (e *Error) Detail(key string) (interface{}, bool) {
	v, ok := e.Details[key]
	return v, ok
}

// New creates a new error with the given type and message, capturing the
// call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context. If the error is
// already a structured Error its stack trace is preserved. Returns nil if
// err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType reports whether err, or any error it wraps or aggregates, is of
// the given type.
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}
	if errs := multierr.Errors(err); len(errs) > 1 {
		for _, sub := range errs {
			if IsType(sub, errType) {
				return true
			}
		}
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType || IsType(e.Cause, errType)
}

// As is errors.As from the standard library.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is errors.Is from the standard library.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Aggregate combines errors captured on worker goroutines into one
// ErrorTypeWorker error. Nil entries are dropped; if nothing remains
// Aggregate returns nil.
func Aggregate(message string, errs ...error) error {
	combined := multierr.Combine(errs...)
	if combined == nil {
		return nil
	}
	agg := &Error{
		Type:    ErrorTypeWorker,
		Message: message,
		Cause:   combined,
		Stack:   captureStack(2),
	}
	return agg.WithDetail("failures", len(multierr.Errors(combined)))
}

// Causes returns the individual errors behind an aggregate produced by
// Aggregate. For any other error it returns a single-element slice.
func Causes(err error) []error {
	var e *Error
	if errors.As(err, &e) && e.Type == ErrorTypeWorker && e.Cause != nil {
		return multierr.Errors(e.Cause)
	}
	if err == nil {
		return nil
	}
	return []error{err}
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the specified number of frames from the top.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
