package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	domain "github.com/pimgrid/api/internal/domain"
	"github.com/pimgrid/api/internal/repositories/memory"
)

func strPtr(v string) *string { return &v }

func sequentialIDs(prefix string) IDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

func attributeFixture(t *testing.T) *memory.Registry {
	t.Helper()
	reg := memory.NewRegistry()
	reg.PutFamily(domain.ProductFamily{ID: "fam1", Name: "Chairs"})
	reg.PutAttribute(domain.Attribute{ID: "color", Code: "color", Name: "Color", Type: "varchar", Multilingual: true})
	reg.PutAttribute(domain.Attribute{ID: "weight", Code: "weight", Name: "Weight", Type: "float"})
	reg.PutAttribute(domain.Attribute{ID: "desc", Code: "desc", Name: "Description", Type: "wysiwyg"})
	reg.PutTemplate(domain.FamilyAttributeTemplate{ID: "tpl-color", FamilyID: "fam1", AttributeID: "color", Required: true, Scope: domain.ScopeGlobal, Sorting: 0})
	reg.PutTemplate(domain.FamilyAttributeTemplate{ID: "tpl-weight", FamilyID: "fam1", AttributeID: "weight", Scope: domain.ScopeGlobal, Sorting: 10})
	reg.PutChannel(domain.Channel{ID: "web", Code: "web"})

	if _, err := reg.Products().Insert(context.Background(), domain.Product{ID: "p1", FamilyID: "fam1", OwnerUserID: "u1"}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return reg
}

func newAttributeService(t *testing.T, reg *memory.Registry) AttributeService {
	t.Helper()
	svc, err := NewAttributeService(AttributeServiceDeps{
		Products:   reg.Products(),
		Families:   reg.Families(),
		Attributes: reg.Attributes(),
		Values:     reg.AttributeValues(),
		IDGen:      sequentialIDs("v"),
	})
	if err != nil {
		t.Fatalf("new attribute service: %v", err)
	}
	return svc
}

func valuesByAttribute(t *testing.T, reg *memory.Registry, productID string) map[string]domain.AttributeValue {
	t.Helper()
	values, err := reg.AttributeValues().ListByProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("list values: %v", err)
	}
	out := make(map[string]domain.AttributeValue, len(values))
	for _, v := range values {
		out[v.AttributeID] = v
	}
	return out
}

func TestReconcileMaterializesFamilyTemplates(t *testing.T) {
	reg := attributeFixture(t)
	svc := newAttributeService(t, reg)

	report, err := svc.Reconcile(context.Background(), "p1")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Materialized != 2 || report.Claimed != 0 || len(report.Failures) != 0 {
		t.Fatalf("report = %+v, want 2 materialized", report)
	}

	got := valuesByAttribute(t, reg, "p1")
	color, ok := got["color"]
	if !ok {
		t.Fatal("color value not materialized")
	}
	if color.TemplateID != "tpl-color" || !color.Required {
		t.Fatalf("color = %+v, want origin tpl-color and required", color)
	}
	if color.OwnerUserID != "u1" {
		t.Fatalf("owner = %q, want inherited from product", color.OwnerUserID)
	}
}

func TestReconcileConverges(t *testing.T) {
	reg := attributeFixture(t)
	svc := newAttributeService(t, reg)
	ctx := context.Background()

	if _, err := svc.Reconcile(ctx, "p1"); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	first := valuesByAttribute(t, reg, "p1")

	report, err := svc.Reconcile(ctx, "p1")
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	// Second run claims the rows the first run created.
	if report.Materialized != 0 || report.Claimed != 2 {
		t.Fatalf("report = %+v, want 2 claimed", report)
	}

	second := valuesByAttribute(t, reg, "p1")
	if len(first) != len(second) {
		t.Fatalf("value set size changed: %d -> %d", len(first), len(second))
	}
	for attrID, v1 := range first {
		v2 := second[attrID]
		if v1.ID != v2.ID || v1.TemplateID != v2.TemplateID || v1.Value != v2.Value {
			t.Fatalf("value for %s changed across reconciles: %+v -> %+v", attrID, v1, v2)
		}
	}
}

func TestReconcileClaimsUserValueWithoutTouchingContent(t *testing.T) {
	reg := attributeFixture(t)
	svc := newAttributeService(t, reg)
	ctx := context.Background()

	// User entered a color before the family was applied.
	userValue, err := svc.SaveValue(ctx, SaveValueCommand{ProductID: "p1", AttributeID: "color", Scope: domain.ScopeGlobal, Value: "red"})
	if err != nil {
		t.Fatalf("save user value: %v", err)
	}

	report, err := svc.Reconcile(ctx, "p1")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Claimed != 1 || report.Materialized != 1 {
		t.Fatalf("report = %+v, want 1 claimed + 1 materialized", report)
	}

	got := valuesByAttribute(t, reg, "p1")["color"]
	if got.ID != userValue.ID {
		t.Fatalf("claimed value id = %s, want the user's record %s", got.ID, userValue.ID)
	}
	if got.Value != "red" {
		t.Fatalf("claimed value content = %q, want untouched %q", got.Value, "red")
	}
	if got.TemplateID != "tpl-color" || !got.Required {
		t.Fatalf("claimed value = %+v, want template origin stamped", got)
	}
}

func TestReconcilePreservesIndependentUserValues(t *testing.T) {
	reg := attributeFixture(t)
	reg.PutAttribute(domain.Attribute{ID: "custom", Code: "custom", Name: "Custom", Type: "varchar"})
	svc := newAttributeService(t, reg)
	ctx := context.Background()

	if _, err := svc.SaveValue(ctx, SaveValueCommand{ProductID: "p1", AttributeID: "custom", Scope: domain.ScopeGlobal, Value: "mine"}); err != nil {
		t.Fatalf("save user value: %v", err)
	}
	if _, err := svc.Reconcile(ctx, "p1"); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	got := valuesByAttribute(t, reg, "p1")["custom"]
	if got.Value != "mine" || got.TemplateID != "" {
		t.Fatalf("independent value = %+v, want untouched and unclaimed", got)
	}
}

func TestReconcileStopsDetachedWhenFamilyRemoved(t *testing.T) {
	reg := attributeFixture(t)
	svc := newAttributeService(t, reg)
	ctx := context.Background()

	if _, err := svc.Reconcile(ctx, "p1"); err != nil {
		t.Fatalf("reconcile with family: %v", err)
	}

	product, err := reg.Products().FindByID(ctx, "p1")
	if err != nil {
		t.Fatalf("load product: %v", err)
	}
	product.FamilyID = ""
	if _, err := reg.Products().Update(ctx, product); err != nil {
		t.Fatalf("clear family: %v", err)
	}

	report, err := svc.Reconcile(ctx, "p1")
	if err != nil {
		t.Fatalf("reconcile without family: %v", err)
	}
	if report.Detached != 2 || report.Materialized != 0 {
		t.Fatalf("report = %+v, want 2 detached and nothing materialized", report)
	}
	for _, v := range valuesByAttribute(t, reg, "p1") {
		if v.TemplateID != "" {
			t.Fatalf("value %s still carries origin %s", v.ID, v.TemplateID)
		}
	}
}

func TestSaveValueRejectsDuplicateSlot(t *testing.T) {
	reg := attributeFixture(t)
	svc := newAttributeService(t, reg)
	ctx := context.Background()

	if _, err := svc.SaveValue(ctx, SaveValueCommand{ProductID: "p1", AttributeID: "color", Scope: domain.ScopeGlobal, Value: "red"}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	_, err := svc.SaveValue(ctx, SaveValueCommand{ProductID: "p1", AttributeID: "color", Scope: domain.ScopeGlobal, Value: "blue"})
	if !errors.Is(err, ErrDuplicateAttributeValue) {
		t.Fatalf("error = %v, want ErrDuplicateAttributeValue", err)
	}

	// A channel-scoped value for the same attribute occupies a different slot.
	if _, err := svc.SaveValue(ctx, SaveValueCommand{ProductID: "p1", AttributeID: "color", Scope: domain.ScopeChannel, ChannelID: "web", Value: "green"}); err != nil {
		t.Fatalf("channel-scoped save: %v", err)
	}
}

func TestSaveValueSanitizesRichText(t *testing.T) {
	reg := attributeFixture(t)
	svc := newAttributeService(t, reg)

	saved, err := svc.SaveValue(context.Background(), SaveValueCommand{
		ProductID:   "p1",
		AttributeID: "desc",
		Scope:       domain.ScopeGlobal,
		Value:       `<p>fine</p><script>alert("x")</script>`,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if strings.Contains(saved.Value, "<script>") {
		t.Fatalf("value = %q, script should be stripped", saved.Value)
	}
	if !strings.Contains(saved.Value, "<p>fine</p>") {
		t.Fatalf("value = %q, benign markup should survive", saved.Value)
	}
}

func TestUpdateValueDetectsStaleSnapshot(t *testing.T) {
	reg := attributeFixture(t)
	svc := newAttributeService(t, reg)
	ctx := context.Background()

	saved, err := svc.SaveValue(ctx, SaveValueCommand{
		ProductID: "p1", AttributeID: "color", Scope: domain.ScopeGlobal, Value: "red",
		LocaleValues: map[string]domain.LocalizedValue{"de-DE": {Value: "rot"}},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	// Another writer changes both fields after our snapshot was taken.
	if _, err := svc.UpdateValue(ctx, UpdateValueCommand{
		ValueID: saved.ID, Value: strPtr("blue"),
		LocaleValues: map[string]string{"de-DE": "blau"},
	}); err != nil {
		t.Fatalf("concurrent update: %v", err)
	}

	_, err = svc.UpdateValue(ctx, UpdateValueCommand{
		ValueID: saved.ID,
		Value:   strPtr("green"),
		Prev:    &ValueSnapshot{Value: strPtr("red"), LocaleValues: map[string]string{"de-DE": "rot"}},
	})
	vc, ok := AsVersionConflict(err)
	if !ok {
		t.Fatalf("error = %v, want VersionConflictError", err)
	}
	if len(vc.Fields) != 2 {
		t.Fatalf("conflict fields = %v, want value and value.de-DE", vc.Fields)
	}
}

func TestUpdateValueIgnoreConflictOverwrites(t *testing.T) {
	reg := attributeFixture(t)
	svc := newAttributeService(t, reg)
	ctx := context.Background()

	saved, err := svc.SaveValue(ctx, SaveValueCommand{ProductID: "p1", AttributeID: "color", Scope: domain.ScopeGlobal, Value: "red"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := svc.UpdateValue(ctx, UpdateValueCommand{ValueID: saved.ID, Value: strPtr("blue")}); err != nil {
		t.Fatalf("concurrent update: %v", err)
	}

	updated, err := svc.UpdateValue(ctx, UpdateValueCommand{
		ValueID:        saved.ID,
		Value:          strPtr("green"),
		Prev:           &ValueSnapshot{Value: strPtr("red")},
		IgnoreConflict: true,
	})
	if err != nil {
		t.Fatalf("update with ignore: %v", err)
	}
	if updated.Value != "green" {
		t.Fatalf("value = %q, want green", updated.Value)
	}
}

func TestUpdateValueReportsNotModified(t *testing.T) {
	reg := attributeFixture(t)
	svc := newAttributeService(t, reg)
	ctx := context.Background()

	saved, err := svc.SaveValue(ctx, SaveValueCommand{ProductID: "p1", AttributeID: "color", Scope: domain.ScopeGlobal, Value: "red"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	_, err = svc.UpdateValue(ctx, UpdateValueCommand{ValueID: saved.ID, Value: strPtr("red")})
	if !errors.Is(err, ErrNotModified) {
		t.Fatalf("error = %v, want ErrNotModified", err)
	}
}
