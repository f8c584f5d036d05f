package llm

import (
	"errors"
	"fmt"
)

// errorClass partitions LLM failures into retry behavior.
type errorClass int

const (
	classTransient errorClass = iota // retryable: rate limits, 5xx, network
	classFatal                       // non-retryable: auth, bad request, schema
)

// classifiedError wraps an error with its retry classification.
type classifiedError struct {
	class errorClass
	err   error
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

// NewTransientError marks an error as retryable.
func NewTransientError(err error) error {
	return &classifiedError{class: classTransient, err: err}
}

// NewFatalError marks an error as non-retryable.
func NewFatalError(err error) error {
	return &classifiedError{class: classFatal, err: err}
}

// IsTransient reports whether the error should be retried.
func IsTransient(err error) bool {
	var ce *classifiedError
	return errors.As(err, &ce) && ce.class == classTransient
}

// IsFatal reports whether the error should abort without retry.
func IsFatal(err error) bool {
	var ce *classifiedError
	return errors.As(err, &ce) && ce.class == classFatal
}

// ErrNoToolCall is returned when the model answered without invoking
// the required tool. Callers surface this as an interpretation failure;
// there is no heuristic fallback.
var ErrNoToolCall = fmt.Errorf("model returned no tool call")
