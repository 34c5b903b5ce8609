// Package legal coordinates the relational store, the vector store and the
// knowledge graph for legal events and research snippets.
package legal

import (
	"context"
	"errors"
	"fmt"

	"github.com/medelman17/suechef/internal/backend"
	"github.com/medelman17/suechef/internal/store"
)

// ErrorType classifies a failed operation for callers.
type ErrorType string

const (
	ValidationError ErrorType = "validation_error"
	NotFoundError   ErrorType = "not_found"
	CreationError   ErrorType = "creation_error"
	RetrievalError  ErrorType = "retrieval_error"
	UpdateError     ErrorType = "update_error"
	DeletionError   ErrorType = "deletion_error"
	ConnectionError ErrorType = "connection_error"
)

// Error is a failed operation together with its classification.
type Error struct {
	Type ErrorType
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// validation builds a validation error for op.
func validation(op, format string, args ...any) error {
	return &Error{Type: ValidationError, Op: op, Err: fmt.Errorf(format, args...)}
}

// classify wraps err for op. Store sentinels and connection failures get
// their own type; everything else gets fallback.
func classify(op string, fallback ErrorType, err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	t := fallback
	var ce *backend.ConnectionError
	switch {
	case errors.Is(err, store.ErrNotFound):
		t = NotFoundError
	case errors.Is(err, store.ErrInvalidID),
		errors.Is(err, store.ErrInvalidDate),
		errors.Is(err, store.ErrMissingField),
		errors.Is(err, store.ErrNoChanges),
		errors.Is(err, store.ErrOutOfRange):
		t = ValidationError
	case errors.As(err, &ce):
		t = ConnectionError
	case errors.Is(err, context.DeadlineExceeded):
		err = fmt.Errorf("relational store timed out: %w", err)
	}
	return &Error{Type: t, Op: op, Err: err}
}

// TypeOf returns the classification of err, or "" when err carries none.
func TypeOf(err error) ErrorType {
	var le *Error
	if errors.As(err, &le) {
		return le.Type
	}
	var ce *backend.ConnectionError
	if errors.As(err, &ce) {
		return ConnectionError
	}
	return ""
}
