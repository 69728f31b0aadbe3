package services

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/pimgrid/api/internal/domain"
	"github.com/pimgrid/api/internal/repositories"
)

// entityTypeAttributeValue names the record type checked against the authorizer.
const entityTypeAttributeValue = "ProductAttributeValue"

// LocaleProjectorDeps bundles constructor inputs for the locale projector.
type LocaleProjectorDeps struct {
	Values     repositories.AttributeValueRepository
	Attributes repositories.AttributeRepository
	Channels   repositories.ChannelRepository
	Relations  repositories.RelationStore
	Authorizer Authorizer

	// InputLanguages is the configured ordered locale set used for
	// globally-scoped multilingual values.
	InputLanguages []string
	// MultilangActive disables all locale expansion when false.
	MultilangActive bool
}

type localeProjector struct {
	values     repositories.AttributeValueRepository
	attributes repositories.AttributeRepository
	channels   repositories.ChannelRepository
	relations  repositories.RelationStore
	authorizer Authorizer

	inputLanguages  []string
	multilangActive bool
}

// NewLocaleProjector constructs the locale projector.
func NewLocaleProjector(deps LocaleProjectorDeps) (LocaleProjector, error) {
	switch {
	case deps.Values == nil:
		return nil, errors.New("locale projector: value repository is required")
	case deps.Attributes == nil:
		return nil, errors.New("locale projector: attribute repository is required")
	case deps.Channels == nil:
		return nil, errors.New("locale projector: channel repository is required")
	case deps.Relations == nil:
		return nil, errors.New("locale projector: relation store is required")
	case deps.Authorizer == nil:
		return nil, errors.New("locale projector: authorizer is required")
	}
	return &localeProjector{
		values:          deps.Values,
		attributes:      deps.Attributes,
		channels:        deps.Channels,
		relations:       deps.Relations,
		authorizer:      deps.Authorizer,
		inputLanguages:  append([]string(nil), deps.InputLanguages...),
		multilangActive: deps.MultilangActive,
	}, nil
}

// Project expands one stored value into the records a reader should see.
// It is a pure function of its inputs: every returned record is an
// independent copy and repeated calls yield the same result.
func (p *localeProjector) Project(value AttributeValue, attribute Attribute, channel *Channel, allLocales []string) []ProjectedAttributeValue {
	if !attribute.Multilingual || !p.multilangActive {
		return []ProjectedAttributeValue{defaultRecord(value, attribute)}
	}

	var out []ProjectedAttributeValue
	switch value.Scope {
	case domain.ScopeChannel:
		if channel == nil {
			return []ProjectedAttributeValue{defaultRecord(value, attribute)}
		}
		if channel.HasLocale(domain.MainLocaleMarker) {
			out = append(out, defaultRecord(value, attribute))
		}
		for _, locale := range channel.ConcreteLocales() {
			out = append(out, localeRecord(value, attribute, locale))
		}
	default:
		out = append(out, defaultRecord(value, attribute))
		for _, locale := range allLocales {
			out = append(out, localeRecord(value, attribute, locale))
		}
	}
	return out
}

// defaultRecord is the un-suffixed base record with per-locale shadows
// stripped: read-time cleanup only, stored state is untouched.
func defaultRecord(value AttributeValue, attribute Attribute) ProjectedAttributeValue {
	base := value
	base.LocaleValues = nil
	return ProjectedAttributeValue{
		AttributeValue: base,
		Title:          attribute.Name,
	}
}

// localeRecord is a shallow copy of the base with value and ownership fields
// replaced by the locale's shadow equivalents and a locale-addressable
// virtual identity.
func localeRecord(value AttributeValue, attribute Attribute, locale string) ProjectedAttributeValue {
	shadow := value.LocaleValues[locale]
	base := value
	base.ID = domain.LocaleRecordID(value.ID, locale)
	base.Value = shadow.Value
	base.TypeValue = append([]string(nil), shadow.TypeValue...)
	base.OwnerUserID = shadow.OwnerUserID
	base.AssignedUserID = shadow.AssignedUserID
	base.LocaleValues = nil

	title := attribute.Name
	if name, ok := attribute.LocaleNames[locale]; ok && name != "" {
		title = name
	}
	return ProjectedAttributeValue{
		AttributeValue: base,
		IsLocale:       true,
		Locale:         locale,
		Title:          domain.LocaleTitle(title, locale),
	}
}

// ListProductValues loads the product's values, drops what the caller may not
// read or what is scoped to a channel the product is not related to, and
// projects the rest.
func (p *localeProjector) ListProductValues(ctx context.Context, productID string) ([]ProjectedAttributeValue, error) {
	values, err := p.values.ListByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("locale projector: list values: %w", err)
	}

	channelLinks, err := p.relations.ListProductChannels(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("locale projector: list channels: %w", err)
	}
	related := make(map[string]struct{}, len(channelLinks))
	for _, l := range channelLinks {
		related[l.ChannelID] = struct{}{}
	}

	var out []ProjectedAttributeValue
	for _, value := range values {
		if !p.authorizer.Check(ctx, entityTypeAttributeValue, ActionRead) {
			continue
		}
		var channel *Channel
		if value.Scope == domain.ScopeChannel {
			if _, ok := related[value.ChannelID]; !ok {
				continue
			}
			ch, err := p.channels.FindByID(ctx, value.ChannelID)
			if err != nil {
				if repositories.IsNotFound(err) {
					continue
				}
				return nil, fmt.Errorf("locale projector: load channel %s: %w", value.ChannelID, err)
			}
			channel = &ch
		}
		attribute, err := p.attributes.FindByID(ctx, value.AttributeID)
		if err != nil {
			return nil, fmt.Errorf("locale projector: load attribute %s: %w", value.AttributeID, err)
		}
		out = append(out, p.Project(value, attribute, channel, p.inputLanguages)...)
	}
	return out, nil
}
