package repositories

import (
	"errors"
	"fmt"
)

// EntityErrorKind categorises generic entity persistence failures.
type EntityErrorKind string

const (
	// EntityErrorNotFound indicates the entity does not exist.
	EntityErrorNotFound EntityErrorKind = "not_found"
	// EntityErrorConflict indicates the write collided with existing state.
	EntityErrorConflict EntityErrorKind = "conflict"
	// EntityErrorUnavailable indicates the backing store could not be reached.
	EntityErrorUnavailable EntityErrorKind = "unavailable"
)

// EntityError reports a persistence failure for a named entity type.
type EntityError struct {
	Entity string
	ID     string
	Kind   EntityErrorKind
	Err    error
}

// Error implements the error interface.
func (e *EntityError) Error() string {
	if e == nil {
		return ""
	}
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Entity, e.Kind)
}

// Unwrap exposes the underlying error, if any.
func (e *EntityError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound implements RepositoryError.
func (e *EntityError) IsNotFound() bool { return e != nil && e.Kind == EntityErrorNotFound }

// IsConflict implements RepositoryError.
func (e *EntityError) IsConflict() bool { return e != nil && e.Kind == EntityErrorConflict }

// IsUnavailable implements RepositoryError.
func (e *EntityError) IsUnavailable() bool { return e != nil && e.Kind == EntityErrorUnavailable }

// NewNotFound constructs the canonical not-found error for an entity.
func NewNotFound(entity, id string) *EntityError {
	return &EntityError{Entity: entity, ID: id, Kind: EntityErrorNotFound}
}

// IsNotFound reports whether err carries a not-found categorisation.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}
