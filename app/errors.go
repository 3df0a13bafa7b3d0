package app

import (
	"errors"
	"fmt"

	"github.com/kamostudio/restack/domain/schemaval"
)

// ErrMissingID is returned when get/update/patch/delete is invoked without an
// identifier in the payload. No store access is attempted.
var ErrMissingID = errors.New("missing id")

// TypeNotDeclaredError means the app has no resource type with this name.
type TypeNotDeclaredError struct {
	App  string
	Type string
}

func (e *TypeNotDeclaredError) Error() string {
	return fmt.Sprintf("app %q does not declare resource type %q", e.App, e.Type)
}

// NotFoundError means no resource matches (app, type, id). A resource that
// exists under another app or type reports the same error; existence never
// leaks across the isolation boundary.
type NotFoundError struct {
	Type string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return "resource not found"
}

// UnknownViewError means the requested view is not declared by the type.
type UnknownViewError struct {
	Type string
	View string
}

func (e *UnknownViewError) Error() string {
	return fmt.Sprintf("resource type %q does not declare view %q", e.Type, e.View)
}

// ValidationError reports a schema or expiration violation, carrying a map of
// offending properties to messages.
type ValidationError struct {
	Errors schemaval.Errors
}

func (e *ValidationError) Error() string {
	return "resource validation failed: " + e.Errors.Error()
}

func validationFailed(field, message string) *ValidationError {
	return &ValidationError{Errors: schemaval.Errors{field: message}}
}
