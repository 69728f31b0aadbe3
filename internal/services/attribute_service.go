package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	domain "github.com/pimgrid/api/internal/domain"
	"github.com/pimgrid/api/internal/repositories"
)

// attributeTypeWysiwyg marks attributes whose values carry user-supplied HTML.
const attributeTypeWysiwyg = "wysiwyg"

// SaveValueCommand creates a new attribute value on the direct (user) path.
type SaveValueCommand struct {
	ProductID    string
	AttributeID  string
	Scope        Scope
	ChannelID    string
	Value        string
	TypeValue    []string
	LocaleValues map[string]LocalizedValue
}

// ValueSnapshot is the caller's view of a value at read time, used for
// optimistic conflict detection on update. Nil pointers mean "not checked".
type ValueSnapshot struct {
	Value        *string
	LocaleValues map[string]string
}

// UpdateValueCommand patches an existing attribute value. Nil fields are left
// untouched.
type UpdateValueCommand struct {
	ValueID      string
	Value        *string
	TypeValue    []string
	LocaleValues map[string]string
	// Prev enables field-level conflict detection against stored state.
	Prev *ValueSnapshot
	// IgnoreConflict suppresses the Prev comparison; the caller has already
	// confirmed the overwrite.
	IgnoreConflict bool
}

// ReconcileFailure records one template whose materialization failed for a
// reason other than the uniqueness collision.
type ReconcileFailure struct {
	TemplateID  string
	AttributeID string
	Err         error
}

// ReconcileReport summarises one reconciliation run.
type ReconcileReport struct {
	Detached     int
	Materialized int
	Claimed      int
	Failures     []ReconcileFailure
}

// AttributeServiceDeps bundles constructor inputs for the attribute service.
type AttributeServiceDeps struct {
	Products   repositories.ProductRepository
	Families   repositories.FamilyRepository
	Attributes repositories.AttributeRepository
	Values     repositories.AttributeValueRepository

	IDGen  IDGenerator
	Clock  func() time.Time
	Logger *zap.Logger
}

type attributeService struct {
	products   repositories.ProductRepository
	families   repositories.FamilyRepository
	attributes repositories.AttributeRepository
	values     repositories.AttributeValueRepository

	idGen     IDGenerator
	clock     func() time.Time
	sanitizer *bluemonday.Policy
	logger    *zap.Logger
}

// NewAttributeService constructs the attribute service.
func NewAttributeService(deps AttributeServiceDeps) (AttributeService, error) {
	switch {
	case deps.Products == nil:
		return nil, errors.New("attribute service: product repository is required")
	case deps.Families == nil:
		return nil, errors.New("attribute service: family repository is required")
	case deps.Attributes == nil:
		return nil, errors.New("attribute service: attribute repository is required")
	case deps.Values == nil:
		return nil, errors.New("attribute service: value repository is required")
	case deps.IDGen == nil:
		return nil, errors.New("attribute service: id generator is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &attributeService{
		products:   deps.Products,
		families:   deps.Families,
		attributes: deps.Attributes,
		values:     deps.Values,
		idGen:      deps.IDGen,
		clock:      utcClock(deps.Clock),
		sanitizer:  bluemonday.UGCPolicy(),
		logger:     logger,
	}, nil
}

// derivedSaveOptions marks materializer writes so downstream validation does
// not re-enter for what is not a user edit.
func derivedSaveOptions() repositories.AttributeValueSaveOptions {
	return repositories.AttributeValueSaveOptions{
		SkipVariantValidation: true,
		SkipChannelValidation: true,
	}
}

func (s *attributeService) Reconcile(ctx context.Context, productID string) (ReconcileReport, error) {
	var report ReconcileReport

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return report, fmt.Errorf("attribute service: load product: %w", err)
	}

	// Detach stage: family-origin references on existing values no longer
	// correspond to the (possibly new) family. Values themselves survive.
	existing, err := s.values.ListByProduct(ctx, productID)
	if err != nil {
		return report, fmt.Errorf("attribute service: list values: %w", err)
	}
	for _, v := range existing {
		if v.TemplateID == "" {
			continue
		}
		v.TemplateID = ""
		v.UpdatedAt = s.clock()
		if _, err := s.values.Update(ctx, v, derivedSaveOptions()); err != nil {
			return report, fmt.Errorf("attribute service: detach value %s: %w", v.ID, err)
		}
		report.Detached++
	}

	if product.FamilyID == "" {
		return report, nil
	}

	templates, err := s.families.Templates(ctx, product.FamilyID)
	if err != nil {
		return report, fmt.Errorf("attribute service: load templates: %w", err)
	}

	for _, tpl := range templates {
		candidate := domain.AttributeValue{
			ID:             s.idGen(),
			ProductID:      productID,
			AttributeID:    tpl.AttributeID,
			Scope:          tpl.Scope,
			TemplateID:     tpl.ID,
			Required:       tpl.Required,
			OwnerUserID:    product.OwnerUserID,
			AssignedUserID: product.AssignedUserID,
			TeamIDs:        append([]string(nil), product.TeamIDs...),
			CreatedAt:      s.clock(),
			UpdatedAt:      s.clock(),
		}
		if tpl.Scope == domain.ScopeChannel {
			candidate.ChannelID = tpl.ChannelID
		}

		_, err := s.values.Insert(ctx, candidate, derivedSaveOptions())
		switch {
		case err == nil:
			report.Materialized++
		case repositories.IsDuplicateAttributeValue(err):
			// The slot is occupied: the template claims the existing value
			// instead of duplicating it. User content is untouched.
			if err := s.claim(ctx, candidate.Key(), tpl); err != nil {
				report.Failures = append(report.Failures, ReconcileFailure{TemplateID: tpl.ID, AttributeID: tpl.AttributeID, Err: err})
				continue
			}
			report.Claimed++
		default:
			report.Failures = append(report.Failures, ReconcileFailure{TemplateID: tpl.ID, AttributeID: tpl.AttributeID, Err: err})
		}
	}

	s.logger.Debug("family attributes reconciled",
		zap.String("product_id", productID),
		zap.String("family_id", product.FamilyID),
		zap.Int("materialized", report.Materialized),
		zap.Int("claimed", report.Claimed),
		zap.Int("failures", len(report.Failures)))
	return report, nil
}

func (s *attributeService) claim(ctx context.Context, key domain.AttributeValueKey, tpl domain.FamilyAttributeTemplate) error {
	current, err := s.values.FindByKey(ctx, key)
	if err != nil {
		return fmt.Errorf("load colliding value: %w", err)
	}
	current.TemplateID = tpl.ID
	current.Required = tpl.Required
	current.UpdatedAt = s.clock()
	if _, err := s.values.Update(ctx, current, derivedSaveOptions()); err != nil {
		return fmt.Errorf("claim value %s: %w", current.ID, err)
	}
	return nil
}

func (s *attributeService) SaveValue(ctx context.Context, cmd SaveValueCommand) (AttributeValue, error) {
	if cmd.ProductID == "" || cmd.AttributeID == "" {
		return AttributeValue{}, errors.New("attribute service: product id and attribute id are required")
	}
	if cmd.Scope == domain.ScopeChannel && cmd.ChannelID == "" {
		return AttributeValue{}, errors.New("attribute service: channel id is required for channel scope")
	}
	if cmd.Scope != domain.ScopeChannel && cmd.ChannelID != "" {
		return AttributeValue{}, errors.New("attribute service: channel id is only valid for channel scope")
	}
	if _, err := s.products.FindByID(ctx, cmd.ProductID); err != nil {
		return AttributeValue{}, fmt.Errorf("attribute service: load product: %w", err)
	}
	attribute, err := s.attributes.FindByID(ctx, cmd.AttributeID)
	if err != nil {
		return AttributeValue{}, fmt.Errorf("attribute service: load attribute: %w", err)
	}

	value := domain.AttributeValue{
		ID:           s.idGen(),
		ProductID:    cmd.ProductID,
		AttributeID:  cmd.AttributeID,
		Scope:        cmd.Scope,
		ChannelID:    cmd.ChannelID,
		Value:        s.sanitizeValue(attribute, cmd.Value),
		TypeValue:    append([]string(nil), cmd.TypeValue...),
		LocaleValues: cloneLocaleValues(cmd.LocaleValues, attribute, s.sanitizer),
		CreatedAt:    s.clock(),
		UpdatedAt:    s.clock(),
	}

	saved, err := s.values.Insert(ctx, value, repositories.AttributeValueSaveOptions{})
	if err != nil {
		if repositories.IsDuplicateAttributeValue(err) {
			return AttributeValue{}, fmt.Errorf("%w: attribute %s", ErrDuplicateAttributeValue, cmd.AttributeID)
		}
		return AttributeValue{}, fmt.Errorf("attribute service: insert value: %w", err)
	}
	return saved, nil
}

func (s *attributeService) UpdateValue(ctx context.Context, cmd UpdateValueCommand) (AttributeValue, error) {
	if cmd.ValueID == "" {
		return AttributeValue{}, errors.New("attribute service: value id is required")
	}
	current, err := s.values.FindByID(ctx, cmd.ValueID)
	if err != nil {
		return AttributeValue{}, fmt.Errorf("attribute service: load value: %w", err)
	}
	attribute, err := s.attributes.FindByID(ctx, current.AttributeID)
	if err != nil {
		return AttributeValue{}, fmt.Errorf("attribute service: load attribute: %w", err)
	}

	if cmd.Prev != nil && !cmd.IgnoreConflict {
		if fields := staleValueFields(current, *cmd.Prev); len(fields) > 0 {
			return AttributeValue{}, &VersionConflictError{EntityID: current.ID, Fields: fields}
		}
	}

	changed := false
	if cmd.Value != nil {
		next := s.sanitizeValue(attribute, *cmd.Value)
		if next != current.Value {
			current.Value = next
			changed = true
		}
	}
	if cmd.TypeValue != nil && !equalStrings(cmd.TypeValue, current.TypeValue) {
		current.TypeValue = append([]string(nil), cmd.TypeValue...)
		changed = true
	}
	for locale, value := range cmd.LocaleValues {
		if attribute.Type == attributeTypeWysiwyg {
			value = s.sanitizer.Sanitize(value)
		}
		shadow := current.LocaleValues[locale]
		if shadow.Value == value {
			continue
		}
		shadow.Value = value
		if current.LocaleValues == nil {
			current.LocaleValues = make(map[string]LocalizedValue)
		}
		current.LocaleValues[locale] = shadow
		changed = true
	}
	if !changed {
		return AttributeValue{}, ErrNotModified
	}

	current.UpdatedAt = s.clock()
	saved, err := s.values.Update(ctx, current, repositories.AttributeValueSaveOptions{})
	if err != nil {
		if repositories.IsDuplicateAttributeValue(err) {
			return AttributeValue{}, fmt.Errorf("%w: attribute %s", ErrDuplicateAttributeValue, current.AttributeID)
		}
		return AttributeValue{}, fmt.Errorf("attribute service: update value: %w", err)
	}
	return saved, nil
}

func (s *attributeService) DeleteValue(ctx context.Context, valueID string) error {
	if err := s.values.Delete(ctx, valueID); err != nil {
		return fmt.Errorf("attribute service: delete value: %w", err)
	}
	return nil
}

func (s *attributeService) sanitizeValue(attribute domain.Attribute, value string) string {
	if attribute.Type == attributeTypeWysiwyg {
		return s.sanitizer.Sanitize(value)
	}
	return value
}

// staleValueFields compares the caller's snapshot against stored state and
// names every field that changed underneath them.
func staleValueFields(current AttributeValue, prev ValueSnapshot) []string {
	var fields []string
	if prev.Value != nil && *prev.Value != current.Value {
		fields = append(fields, "value")
	}
	for locale, prevValue := range prev.LocaleValues {
		if current.LocaleValues[locale].Value != prevValue {
			fields = append(fields, localeValueField(locale))
		}
	}
	return fields
}

// localeValueField names a per-locale value field in conflict reports.
func localeValueField(locale string) string {
	return "value." + locale
}

func cloneLocaleValues(in map[string]LocalizedValue, attribute domain.Attribute, sanitizer *bluemonday.Policy) map[string]LocalizedValue {
	if in == nil {
		return nil
	}
	out := make(map[string]LocalizedValue, len(in))
	for locale, lv := range in {
		if attribute.Type == attributeTypeWysiwyg {
			lv.Value = sanitizer.Sanitize(lv.Value)
		}
		lv.TypeValue = append([]string(nil), lv.TypeValue...)
		out[locale] = lv
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
