package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrDuplicateAttributeValue reports a direct write that would violate
	// the (product, attribute, scope, channel) uniqueness invariant.
	ErrDuplicateAttributeValue = errors.New("attribute service: duplicate attribute value")
	// ErrNotModified reports an update that would change nothing.
	ErrNotModified = errors.New("attribute service: value not modified")
	// ErrChannelAlreadyRelated reports a direct relate on an existing channel relation.
	ErrChannelAlreadyRelated = errors.New("channel cascade: channel already related")
	// ErrCategoryAlreadyRelated reports a duplicate category link attempt.
	ErrCategoryAlreadyRelated = errors.New("channel cascade: category already related")
	// ErrCategoryCatalogMismatch reports a category whose tree is not legal
	// for the product's catalog.
	ErrCategoryCatalogMismatch = errors.New("channel cascade: category tree not allowed for catalog")
	// ErrNonLeafCategoryLink reports a direct link to a non-leaf category
	// without the configuration override.
	ErrNonLeafCategoryLink = errors.New("channel cascade: category is not a leaf")
	// ErrImmutableField reports a change to a field frozen after creation.
	ErrImmutableField = errors.New("product service: immutable field changed")
	// ErrNotGroupMember reports a reposition of a record that is not part of
	// the ordered group.
	ErrNotGroupMember = errors.New("ordering service: member is not part of the group")
	// ErrNegativeSorting reports an explicit position below zero.
	ErrNegativeSorting = errors.New("ordering service: sorting must be non-negative")
)

// VersionConflictError reports an optimistic concurrency violation on a
// single entity save: the caller's snapshot no longer matches stored state.
type VersionConflictError struct {
	EntityID string
	Fields   []string
}

// Error implements the error interface.
func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: %s", e.EntityID, strings.Join(e.Fields, ", "))
}

// ConflictError is the aggregated result of a composite save: the
// de-duplicated union of every conflicting field across the primary entity
// and all nested edits.
type ConflictError struct {
	Fields []string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on fields: %s", strings.Join(e.Fields, ", "))
}

// newConflictError builds the aggregated error with fields de-duplicated and
// sorted for stable reporting.
func newConflictError(fields []string) *ConflictError {
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return &ConflictError{Fields: out}
}

// AsVersionConflict unwraps err into a VersionConflictError if it carries one.
func AsVersionConflict(err error) (*VersionConflictError, bool) {
	var vc *VersionConflictError
	if errors.As(err, &vc) {
		return vc, true
	}
	return nil, false
}

// AsConflict unwraps err into a ConflictError if it carries one.
func AsConflict(err error) (*ConflictError, bool) {
	var c *ConflictError
	if errors.As(err, &c) {
		return c, true
	}
	return nil, false
}
