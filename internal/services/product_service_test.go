package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/pimgrid/api/internal/domain"
	"github.com/pimgrid/api/internal/repositories/memory"
)

type productFixture struct {
	reg      *memory.Registry
	products ProductService
	attrs    AttributeService
	cascade  ChannelCascadeService
}

func newProductFixture(t *testing.T, policy domain.CatalogChangePolicy) *productFixture {
	t.Helper()
	reg := memory.NewRegistry()
	reg.PutCatalog(domain.Catalog{ID: "catalog1"})
	reg.PutCatalog(domain.Catalog{ID: "catalog2"})
	reg.PutCategory(domain.Category{ID: "root1", CatalogIDs: []string{"catalog1"}, ChannelIDs: []string{"web"}})
	reg.PutCategory(domain.Category{ID: "leaf1", ParentID: "root1"})
	reg.PutChannel(domain.Channel{ID: "web"})
	reg.PutFamily(domain.ProductFamily{ID: "fam1"})
	reg.PutAttribute(domain.Attribute{ID: "color", Name: "Color", Type: "varchar", Multilingual: true})
	reg.PutAttribute(domain.Attribute{ID: "size", Name: "Size", Type: "varchar"})
	reg.PutTemplate(domain.FamilyAttributeTemplate{ID: "tpl-color", FamilyID: "fam1", AttributeID: "color", Scope: domain.ScopeGlobal})

	attrs, err := NewAttributeService(AttributeServiceDeps{
		Products:   reg.Products(),
		Families:   reg.Families(),
		Attributes: reg.Attributes(),
		Values:     reg.AttributeValues(),
		IDGen:      sequentialIDs("av"),
	})
	if err != nil {
		t.Fatalf("new attribute service: %v", err)
	}
	cascade, err := NewChannelCascadeService(ChannelCascadeDeps{
		Products:   reg.Products(),
		Catalogs:   reg.Catalogs(),
		Categories: reg.Categories(),
		Channels:   reg.Channels(),
		Relations:  reg.Relations(),
		Policy:     policy,
	})
	if err != nil {
		t.Fatalf("new cascade service: %v", err)
	}
	products, err := NewProductService(ProductServiceDeps{
		Registry:   reg,
		Attributes: attrs,
		Cascade:    cascade,
		IDGen:      sequentialIDs("p"),
	})
	if err != nil {
		t.Fatalf("new product service: %v", err)
	}
	return &productFixture{reg: reg, products: products, attrs: attrs, cascade: cascade}
}

func TestCreateProductMaterializesFamily(t *testing.T) {
	f := newProductFixture(t, domain.CatalogChangeCascade)
	ctx := context.Background()

	p, err := f.products.CreateProduct(ctx, CreateProductCommand{Name: "Chair", Type: "simple", CatalogID: "catalog1", FamilyID: "fam1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	values, err := f.reg.AttributeValues().ListByProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("list values: %v", err)
	}
	if len(values) != 1 || values[0].TemplateID != "tpl-color" {
		t.Fatalf("values = %+v, want the family template materialized", values)
	}
}

func TestCreateProductRejectsDuplicateSKUInCatalog(t *testing.T) {
	f := newProductFixture(t, domain.CatalogChangeCascade)
	ctx := context.Background()

	if _, err := f.products.CreateProduct(ctx, CreateProductCommand{Name: "Chair", Type: "simple", CatalogID: "catalog1", SKU: "SKU-1"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := f.products.CreateProduct(ctx, CreateProductCommand{Name: "Table", Type: "simple", CatalogID: "catalog1", SKU: "SKU-1"})
	if !errors.Is(err, ErrUniqueFieldTaken) {
		t.Fatalf("error = %v, want ErrUniqueFieldTaken", err)
	}

	// The same SKU in another catalog is legal.
	if _, err := f.products.CreateProduct(ctx, CreateProductCommand{Name: "Table", Type: "simple", CatalogID: "catalog2", SKU: "SKU-1"}); err != nil {
		t.Fatalf("create in other catalog: %v", err)
	}

	// Empty values are exempt from uniqueness.
	for i := 0; i < 2; i++ {
		if _, err := f.products.CreateProduct(ctx, CreateProductCommand{Name: "Stool", Type: "simple", CatalogID: "catalog1"}); err != nil {
			t.Fatalf("create without sku: %v", err)
		}
	}
}

func TestUpdateProductRejectsTypeChange(t *testing.T) {
	f := newProductFixture(t, domain.CatalogChangeCascade)
	ctx := context.Background()

	p, err := f.products.CreateProduct(ctx, CreateProductCommand{Name: "Chair", Type: "simple", CatalogID: "catalog1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = f.products.UpdateProduct(ctx, UpdateProductCommand{ProductID: p.ID, Type: strPtr("configurable")})
	if !errors.Is(err, ErrImmutableField) {
		t.Fatalf("error = %v, want ErrImmutableField", err)
	}
}

func TestUpdateProductAggregatesConflictsAndRollsBack(t *testing.T) {
	f := newProductFixture(t, domain.CatalogChangeCascade)
	ctx := context.Background()

	p, err := f.products.CreateProduct(ctx, CreateProductCommand{Name: "Chair", Type: "simple", CatalogID: "catalog1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	stale, err := f.attrs.SaveValue(ctx, SaveValueCommand{ProductID: p.ID, AttributeID: "color", Scope: domain.ScopeGlobal, Value: "red"})
	if err != nil {
		t.Fatalf("save color: %v", err)
	}
	fresh, err := f.attrs.SaveValue(ctx, SaveValueCommand{ProductID: p.ID, AttributeID: "size", Scope: domain.ScopeGlobal, Value: "M"})
	if err != nil {
		t.Fatalf("save size: %v", err)
	}

	// Another writer changes the product name and the color value after our
	// snapshots were taken.
	if _, err := f.products.UpdateProduct(ctx, UpdateProductCommand{ProductID: p.ID, Name: strPtr("Armchair")}); err != nil {
		t.Fatalf("concurrent product update: %v", err)
	}
	if _, err := f.attrs.UpdateValue(ctx, UpdateValueCommand{ValueID: stale.ID, Value: strPtr("blue")}); err != nil {
		t.Fatalf("concurrent value update: %v", err)
	}

	_, err = f.products.UpdateProduct(ctx, UpdateProductCommand{
		ProductID: p.ID,
		Name:      strPtr("Lounge chair"),
		Prev:      map[string]string{"name": "Chair"},
		NestedValues: []UpdateValueCommand{
			{ValueID: stale.ID, Value: strPtr("green"), Prev: &ValueSnapshot{Value: strPtr("red")}},
			{ValueID: fresh.ID, Value: strPtr("L"), Prev: &ValueSnapshot{Value: strPtr("M")}},
		},
	})
	conflict, ok := AsConflict(err)
	if !ok {
		t.Fatalf("error = %v, want ConflictError", err)
	}
	want := map[string]bool{"name": true, "value": true}
	if len(conflict.Fields) != len(want) {
		t.Fatalf("conflict fields = %v, want union of name and value", conflict.Fields)
	}
	for _, field := range conflict.Fields {
		if !want[field] {
			t.Fatalf("unexpected conflict field %q in %v", field, conflict.Fields)
		}
	}

	// Nothing persisted: the non-conflicting nested edit was rolled back too.
	product, err := f.products.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if product.Name != "Armchair" {
		t.Fatalf("name = %q, want the concurrent writer's value", product.Name)
	}
	sizeValue, err := f.reg.AttributeValues().FindByID(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("reload size value: %v", err)
	}
	if sizeValue.Value != "M" {
		t.Fatalf("size = %q, want rollback to M", sizeValue.Value)
	}
}

func TestUpdateProductIgnoreConflictsAppliesNestedEdits(t *testing.T) {
	f := newProductFixture(t, domain.CatalogChangeCascade)
	ctx := context.Background()

	p, err := f.products.CreateProduct(ctx, CreateProductCommand{Name: "Chair", Type: "simple", CatalogID: "catalog1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	value, err := f.attrs.SaveValue(ctx, SaveValueCommand{ProductID: p.ID, AttributeID: "color", Scope: domain.ScopeGlobal, Value: "red"})
	if err != nil {
		t.Fatalf("save value: %v", err)
	}
	if _, err := f.attrs.UpdateValue(ctx, UpdateValueCommand{ValueID: value.ID, Value: strPtr("blue")}); err != nil {
		t.Fatalf("concurrent value update: %v", err)
	}

	updated, err := f.products.UpdateProduct(ctx, UpdateProductCommand{
		ProductID:       p.ID,
		Name:            strPtr("Lounge chair"),
		IgnoreConflicts: true,
		NestedValues: []UpdateValueCommand{
			{ValueID: value.ID, Value: strPtr("green"), Prev: &ValueSnapshot{Value: strPtr("red")}},
		},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Lounge chair" {
		t.Fatalf("name = %q", updated.Name)
	}
	got, err := f.reg.AttributeValues().FindByID(ctx, value.ID)
	if err != nil {
		t.Fatalf("reload value: %v", err)
	}
	if got.Value != "green" {
		t.Fatalf("value = %q, want the confirmed overwrite", got.Value)
	}
}

func TestUpdateProductIgnoreConflictsStillChecksPrimary(t *testing.T) {
	f := newProductFixture(t, domain.CatalogChangeCascade)
	ctx := context.Background()

	p, err := f.products.CreateProduct(ctx, CreateProductCommand{Name: "Chair", Type: "simple", CatalogID: "catalog1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.products.UpdateProduct(ctx, UpdateProductCommand{ProductID: p.ID, Name: strPtr("Armchair")}); err != nil {
		t.Fatalf("concurrent update: %v", err)
	}

	_, err = f.products.UpdateProduct(ctx, UpdateProductCommand{
		ProductID:       p.ID,
		Name:            strPtr("Lounge chair"),
		Prev:            map[string]string{"name": "Chair"},
		IgnoreConflicts: true,
	})
	if _, ok := AsConflict(err); !ok {
		t.Fatalf("error = %v, want ConflictError on the primary entity", err)
	}
}

func TestUpdateProductCatalogChangeRestrictPolicy(t *testing.T) {
	f := newProductFixture(t, domain.CatalogChangeRestrict)
	ctx := context.Background()

	p, err := f.products.CreateProduct(ctx, CreateProductCommand{Name: "Chair", Type: "simple", CatalogID: "catalog1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.cascade.LinkCategory(ctx, p.ID, "leaf1"); err != nil {
		t.Fatalf("link category: %v", err)
	}

	_, err = f.products.UpdateProduct(ctx, UpdateProductCommand{ProductID: p.ID, CatalogID: strPtr("catalog2")})
	if !errors.Is(err, ErrCategoryCatalogMismatch) {
		t.Fatalf("error = %v, want ErrCategoryCatalogMismatch", err)
	}

	// Nothing changed.
	product, err := f.products.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if product.CatalogID != "catalog1" {
		t.Fatalf("catalog = %q, want unchanged", product.CatalogID)
	}
	links, err := f.reg.Relations().ListProductCategories(ctx, p.ID)
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("category links = %v, want untouched", links)
	}
}

func TestUpdateProductCatalogChangeCascadeUnlinks(t *testing.T) {
	f := newProductFixture(t, domain.CatalogChangeCascade)
	ctx := context.Background()

	p, err := f.products.CreateProduct(ctx, CreateProductCommand{Name: "Chair", Type: "simple", CatalogID: "catalog1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.cascade.LinkCategory(ctx, p.ID, "leaf1"); err != nil {
		t.Fatalf("link category: %v", err)
	}

	updated, err := f.products.UpdateProduct(ctx, UpdateProductCommand{ProductID: p.ID, CatalogID: strPtr("catalog2")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.CatalogID != "catalog2" {
		t.Fatalf("catalog = %q", updated.CatalogID)
	}
	links, err := f.reg.Relations().ListProductCategories(ctx, p.ID)
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	if len(links) != 0 {
		t.Fatalf("category links = %v, want cascade unlink", links)
	}
	channels, err := f.reg.Relations().ListProductChannels(ctx, p.ID)
	if err != nil {
		t.Fatalf("list channels: %v", err)
	}
	if len(channels) != 0 {
		t.Fatalf("channels = %v, want tree grants retracted", channels)
	}
}

func TestUpdateProductFamilyChangeReconciles(t *testing.T) {
	f := newProductFixture(t, domain.CatalogChangeCascade)
	ctx := context.Background()

	p, err := f.products.CreateProduct(ctx, CreateProductCommand{Name: "Chair", Type: "simple", CatalogID: "catalog1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.products.UpdateProduct(ctx, UpdateProductCommand{ProductID: p.ID, FamilyID: strPtr("fam1")}); err != nil {
		t.Fatalf("update: %v", err)
	}

	values, err := f.reg.AttributeValues().ListByProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("list values: %v", err)
	}
	if len(values) != 1 || values[0].TemplateID != "tpl-color" {
		t.Fatalf("values = %+v, want family template materialized on family change", values)
	}
}

func TestDeleteProductRemovesOwnedRecords(t *testing.T) {
	f := newProductFixture(t, domain.CatalogChangeCascade)
	ctx := context.Background()

	p, err := f.products.CreateProduct(ctx, CreateProductCommand{Name: "Chair", Type: "simple", CatalogID: "catalog1", FamilyID: "fam1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.cascade.LinkCategory(ctx, p.ID, "leaf1"); err != nil {
		t.Fatalf("link category: %v", err)
	}

	if err := f.products.DeleteProduct(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.products.GetProduct(ctx, p.ID); err == nil {
		t.Fatal("product should be gone")
	}
	values, err := f.reg.AttributeValues().ListByProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("list values: %v", err)
	}
	if len(values) != 0 {
		t.Fatalf("values = %+v, want owned records removed", values)
	}
}
