package services

import (
	"context"
	"testing"

	domain "github.com/pimgrid/api/internal/domain"
	"github.com/pimgrid/api/internal/repositories"
	"github.com/pimgrid/api/internal/repositories/memory"
)

type allowAllAuthorizer struct{}

func (allowAllAuthorizer) Check(context.Context, string, Action) bool { return true }

type denyAllAuthorizer struct{}

func (denyAllAuthorizer) Check(context.Context, string, Action) bool { return false }

func newProjector(t *testing.T, reg *memory.Registry, authorizer Authorizer) LocaleProjector {
	t.Helper()
	p, err := NewLocaleProjector(LocaleProjectorDeps{
		Values:          reg.AttributeValues(),
		Attributes:      reg.Attributes(),
		Channels:        reg.Channels(),
		Relations:       reg.Relations(),
		Authorizer:      authorizer,
		InputLanguages:  []string{"de-DE", "fr-FR"},
		MultilangActive: true,
	})
	if err != nil {
		t.Fatalf("new projector: %v", err)
	}
	return p
}

func multilingualValue() domain.AttributeValue {
	return domain.AttributeValue{
		ID:          "v1",
		ProductID:   "p1",
		AttributeID: "color",
		Scope:       domain.ScopeGlobal,
		Value:       "red",
		LocaleValues: map[string]domain.LocalizedValue{
			"de-DE": {Value: "rot", OwnerUserID: "uDe"},
			"fr-FR": {Value: "rouge"},
		},
	}
}

func colorAttribute() domain.Attribute {
	return domain.Attribute{
		ID: "color", Name: "Color", Multilingual: true,
		LocaleNames: map[string]string{"de-DE": "Farbe"},
	}
}

func TestProjectGlobalMultilingualYieldsDefaultPlusOnePerLocale(t *testing.T) {
	reg := memory.NewRegistry()
	p := newProjector(t, reg, allowAllAuthorizer{})

	records := p.Project(multilingualValue(), colorAttribute(), nil, []string{"de-DE", "fr-FR"})
	if len(records) != 3 {
		t.Fatalf("record count = %d, want 3 (default + de-DE + fr-FR)", len(records))
	}

	def := records[0]
	if def.IsLocale || def.ID != "v1" || def.Value != "red" {
		t.Fatalf("default record = %+v", def)
	}
	if def.LocaleValues != nil {
		t.Fatal("default record should strip per-locale shadows")
	}
	if def.Title != "Color" {
		t.Fatalf("default title = %q, want unsuffixed name", def.Title)
	}

	de := records[1]
	if !de.IsLocale || de.Locale != "de-DE" {
		t.Fatalf("locale record = %+v", de)
	}
	if de.ID != "v1~de-DE" {
		t.Fatalf("virtual id = %q, want base plus separator plus locale", de.ID)
	}
	if de.Value != "rot" || de.OwnerUserID != "uDe" {
		t.Fatalf("locale record should carry shadow fields: %+v", de)
	}
	if de.Title != "Farbe › de-DE" {
		t.Fatalf("locale title = %q", de.Title)
	}
}

func TestProjectChannelScopeWithoutMainLocaleMarker(t *testing.T) {
	reg := memory.NewRegistry()
	p := newProjector(t, reg, allowAllAuthorizer{})

	value := multilingualValue()
	value.Scope = domain.ScopeChannel
	value.ChannelID = "web"
	channel := domain.Channel{ID: "web", Locales: []string{"de-DE"}}

	records := p.Project(value, colorAttribute(), &channel, []string{"de-DE", "fr-FR"})
	if len(records) != 1 {
		t.Fatalf("record count = %d, want 1 (channel locale only, no default)", len(records))
	}
	if !records[0].IsLocale || records[0].Locale != "de-DE" {
		t.Fatalf("record = %+v, want the de-DE variant", records[0])
	}
}

func TestProjectChannelScopeWithMainLocaleMarker(t *testing.T) {
	reg := memory.NewRegistry()
	p := newProjector(t, reg, allowAllAuthorizer{})

	value := multilingualValue()
	value.Scope = domain.ScopeChannel
	value.ChannelID = "web"
	channel := domain.Channel{ID: "web", Locales: []string{domain.MainLocaleMarker, "de-DE"}}

	records := p.Project(value, colorAttribute(), &channel, nil)
	if len(records) != 2 {
		t.Fatalf("record count = %d, want default + de-DE", len(records))
	}
	if records[0].IsLocale {
		t.Fatal("first record should be the default")
	}
}

func TestProjectNonMultilingualStripsShadows(t *testing.T) {
	reg := memory.NewRegistry()
	p := newProjector(t, reg, allowAllAuthorizer{})

	value := multilingualValue()
	attribute := colorAttribute()
	attribute.Multilingual = false

	records := p.Project(value, attribute, nil, []string{"de-DE"})
	if len(records) != 1 {
		t.Fatalf("record count = %d, want 1", len(records))
	}
	if records[0].Value != "red" || records[0].LocaleValues != nil {
		t.Fatalf("record = %+v, want base value with shadows stripped", records[0])
	}
}

func TestProjectIsPure(t *testing.T) {
	reg := memory.NewRegistry()
	p := newProjector(t, reg, allowAllAuthorizer{})
	value := multilingualValue()

	records := p.Project(value, colorAttribute(), nil, []string{"de-DE"})
	records[0].Value = "mutated"
	records[1].TypeValue = append(records[1].TypeValue, "mutated")

	if value.Value != "red" {
		t.Fatalf("input value mutated: %q", value.Value)
	}
	again := p.Project(value, colorAttribute(), nil, []string{"de-DE"})
	if again[0].Value != "red" {
		t.Fatalf("second projection differs: %+v", again[0])
	}
}

func TestListProductValuesFiltersUnrelatedChannels(t *testing.T) {
	reg := memory.NewRegistry()
	reg.PutAttribute(domain.Attribute{ID: "color", Name: "Color", Multilingual: true})
	reg.PutChannel(domain.Channel{ID: "web", Locales: []string{domain.MainLocaleMarker}})
	reg.PutChannel(domain.Channel{ID: "print", Locales: []string{domain.MainLocaleMarker}})
	ctx := context.Background()

	opts := repositories.AttributeValueSaveOptions{}
	webValue := domain.AttributeValue{ID: "v1", ProductID: "p1", AttributeID: "color", Scope: domain.ScopeChannel, ChannelID: "web", Value: "red"}
	printValue := domain.AttributeValue{ID: "v2", ProductID: "p1", AttributeID: "color", Scope: domain.ScopeChannel, ChannelID: "print", Value: "blue"}
	if _, err := reg.AttributeValues().Insert(ctx, webValue, opts); err != nil {
		t.Fatalf("insert web value: %v", err)
	}
	if _, err := reg.AttributeValues().Insert(ctx, printValue, opts); err != nil {
		t.Fatalf("insert print value: %v", err)
	}
	// The product is only related to the web channel.
	if err := reg.Relations().RelateChannel(ctx, domain.ChannelLink{ProductID: "p1", ChannelID: "web", Active: true}); err != nil {
		t.Fatalf("relate channel: %v", err)
	}

	p := newProjector(t, reg, allowAllAuthorizer{})
	records, err := p.ListProductValues(ctx, "p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("record count = %d, want only the related channel's value", len(records))
	}
	if records[0].ChannelID != "web" {
		t.Fatalf("record = %+v, want the web value", records[0])
	}
}

func TestListProductValuesDropsUnauthorizedRecords(t *testing.T) {
	reg := memory.NewRegistry()
	reg.PutAttribute(domain.Attribute{ID: "color", Name: "Color", Multilingual: true})
	ctx := context.Background()

	value := multilingualValue()
	if _, err := reg.AttributeValues().Insert(ctx, value, repositories.AttributeValueSaveOptions{}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	p := newProjector(t, reg, denyAllAuthorizer{})
	records, err := p.ListProductValues(ctx, "p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %v, want every variant dropped", records)
	}
}
