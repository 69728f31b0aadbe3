package repositories

import (
	"errors"
	"fmt"
)

// RelationErrorCode enumerates relation-store failure causes.
type RelationErrorCode string

const (
	// RelationErrorUnknown represents an unspecified failure.
	RelationErrorUnknown RelationErrorCode = "relation_unknown"
	// RelationErrorChannelAlreadyRelated indicates the product already carries the channel.
	RelationErrorChannelAlreadyRelated RelationErrorCode = "channel_already_related"
	// RelationErrorLinkNotFound indicates the requested link row does not exist.
	RelationErrorLinkNotFound RelationErrorCode = "relation_link_not_found"
)

// RelationError wraps relation-store failures (category, channel and asset links).
type RelationError struct {
	Op        string
	Code      RelationErrorCode
	ProductID string
	TargetID  string
	Err       error
}

// Error implements the error interface.
func (e *RelationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return string(e.Code)
}

// Unwrap exposes the underlying error, if any.
func (e *RelationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound implements RepositoryError.
func (e *RelationError) IsNotFound() bool {
	return e != nil && e.Code == RelationErrorLinkNotFound
}

// IsConflict implements RepositoryError.
func (e *RelationError) IsConflict() bool {
	return e != nil && e.Code == RelationErrorChannelAlreadyRelated
}

// IsUnavailable implements RepositoryError.
func (e *RelationError) IsUnavailable() bool { return false }

// NewChannelAlreadyRelated constructs the duplicate channel-link error.
func NewChannelAlreadyRelated(op, productID, channelID string) *RelationError {
	return &RelationError{Op: op, Code: RelationErrorChannelAlreadyRelated, ProductID: productID, TargetID: channelID}
}

// NewRelationLinkNotFound constructs the missing-link error.
func NewRelationLinkNotFound(op, productID, targetID string) *RelationError {
	return &RelationError{Op: op, Code: RelationErrorLinkNotFound, ProductID: productID, TargetID: targetID}
}

// IsChannelAlreadyRelated reports whether err is a duplicate channel-link violation.
func IsChannelAlreadyRelated(err error) bool {
	var relErr *RelationError
	return errors.As(err, &relErr) && relErr.Code == RelationErrorChannelAlreadyRelated
}
