package repositories

import (
	"errors"
	"fmt"

	domain "github.com/pimgrid/api/internal/domain"
)

// AttributeValueErrorCode enumerates repository error causes for attribute-value operations.
type AttributeValueErrorCode string

const (
	// AttributeValueErrorUnknown represents an unspecified failure.
	AttributeValueErrorUnknown AttributeValueErrorCode = "attribute_value_unknown"
	// AttributeValueErrorDuplicate indicates the (product, attribute, scope, channel)
	// slot is already occupied by another value.
	AttributeValueErrorDuplicate AttributeValueErrorCode = "attribute_value_duplicate"
	// AttributeValueErrorNotFound indicates the value record is missing.
	AttributeValueErrorNotFound AttributeValueErrorCode = "attribute_value_not_found"
)

// AttributeValueError wraps attribute-value persistence failures with machine readable codes.
type AttributeValueError struct {
	Op   string
	Code AttributeValueErrorCode
	Key  domain.AttributeValueKey
	Err  error
}

// Error implements the error interface.
func (e *AttributeValueError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return string(e.Code)
}

// Unwrap exposes the underlying error, if any.
func (e *AttributeValueError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound implements RepositoryError.
func (e *AttributeValueError) IsNotFound() bool {
	return e != nil && e.Code == AttributeValueErrorNotFound
}

// IsConflict implements RepositoryError.
func (e *AttributeValueError) IsConflict() bool {
	return e != nil && e.Code == AttributeValueErrorDuplicate
}

// IsUnavailable implements RepositoryError.
func (e *AttributeValueError) IsUnavailable() bool { return false }

// NewDuplicateAttributeValue constructs the uniqueness-violation error for a slot.
func NewDuplicateAttributeValue(op string, key domain.AttributeValueKey) *AttributeValueError {
	return &AttributeValueError{Op: op, Code: AttributeValueErrorDuplicate, Key: key}
}

// IsDuplicateAttributeValue reports whether err is a uniqueness violation.
func IsDuplicateAttributeValue(err error) bool {
	var avErr *AttributeValueError
	return errors.As(err, &avErr) && avErr.Code == AttributeValueErrorDuplicate
}
