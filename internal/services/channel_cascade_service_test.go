package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/pimgrid/api/internal/domain"
	"github.com/pimgrid/api/internal/repositories/memory"
)

// cascadeFixture seeds one catalog with a two-level tree whose root grants
// two channels, plus a second tree that belongs to another catalog.
func cascadeFixture(t *testing.T) *memory.Registry {
	t.Helper()
	reg := memory.NewRegistry()
	reg.PutCatalog(domain.Catalog{ID: "catalog1", Name: "Main"})
	reg.PutCatalog(domain.Catalog{ID: "catalog2", Name: "Outlet"})
	reg.PutChannel(domain.Channel{ID: "web", Code: "web"})
	reg.PutChannel(domain.Channel{ID: "print", Code: "print"})
	reg.PutCategory(domain.Category{ID: "root1", CatalogIDs: []string{"catalog1"}, ChannelIDs: []string{"web", "print"}})
	reg.PutCategory(domain.Category{ID: "leafA", ParentID: "root1"})
	reg.PutCategory(domain.Category{ID: "leafB", ParentID: "root1"})
	reg.PutCategory(domain.Category{ID: "root2", CatalogIDs: []string{"catalog2"}})
	reg.PutCategory(domain.Category{ID: "leafC", ParentID: "root2"})

	ctx := context.Background()
	if _, err := reg.Products().Insert(ctx, domain.Product{ID: "p1", CatalogID: "catalog1"}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return reg
}

func newCascade(t *testing.T, reg *memory.Registry, policy domain.CatalogChangePolicy, allowNonLeaf bool) ChannelCascadeService {
	t.Helper()
	svc, err := NewChannelCascadeService(ChannelCascadeDeps{
		Products:          reg.Products(),
		Catalogs:          reg.Catalogs(),
		Categories:        reg.Categories(),
		Channels:          reg.Channels(),
		Relations:         reg.Relations(),
		Policy:            policy,
		AllowNonLeafLinks: allowNonLeaf,
	})
	if err != nil {
		t.Fatalf("new cascade service: %v", err)
	}
	return svc
}

func productChannelIDs(t *testing.T, reg *memory.Registry, productID string) []string {
	t.Helper()
	links, err := reg.Relations().ListProductChannels(context.Background(), productID)
	if err != nil {
		t.Fatalf("list channels: %v", err)
	}
	out := make([]string, 0, len(links))
	for _, l := range links {
		out = append(out, l.ChannelID)
	}
	return out
}

func TestLinkCategoryGrantsTreeChannels(t *testing.T) {
	reg := cascadeFixture(t)
	svc := newCascade(t, reg, domain.CatalogChangeCascade, false)
	ctx := context.Background()

	if err := svc.LinkCategory(ctx, "p1", "leafA"); err != nil {
		t.Fatalf("link category: %v", err)
	}

	channels := productChannelIDs(t, reg, "p1")
	if len(channels) != 2 {
		t.Fatalf("channels = %v, want web and print", channels)
	}
	for _, id := range channels {
		link, err := reg.Relations().FindChannelLink(ctx, "p1", id)
		if err != nil {
			t.Fatalf("find link %s: %v", id, err)
		}
		if !link.FromCategoryTree {
			t.Fatalf("link %s should carry tree provenance", id)
		}
	}
}

func TestLinkCategoryRejectsNonLeafWithoutOverride(t *testing.T) {
	reg := cascadeFixture(t)
	ctx := context.Background()

	strict := newCascade(t, reg, domain.CatalogChangeCascade, false)
	if err := strict.LinkCategory(ctx, "p1", "root1"); !errors.Is(err, ErrNonLeafCategoryLink) {
		t.Fatalf("error = %v, want ErrNonLeafCategoryLink", err)
	}

	relaxed := newCascade(t, reg, domain.CatalogChangeCascade, true)
	if err := relaxed.LinkCategory(ctx, "p1", "root1"); err != nil {
		t.Fatalf("link with override: %v", err)
	}
}

func TestLinkCategoryRejectsForeignTree(t *testing.T) {
	reg := cascadeFixture(t)
	svc := newCascade(t, reg, domain.CatalogChangeCascade, false)

	err := svc.LinkCategory(context.Background(), "p1", "leafC")
	if !errors.Is(err, ErrCategoryCatalogMismatch) {
		t.Fatalf("error = %v, want ErrCategoryCatalogMismatch", err)
	}
}

func TestLinkCategoryRejectsDuplicateMembership(t *testing.T) {
	reg := cascadeFixture(t)
	svc := newCascade(t, reg, domain.CatalogChangeCascade, false)
	ctx := context.Background()

	if err := svc.LinkCategory(ctx, "p1", "leafA"); err != nil {
		t.Fatalf("first link: %v", err)
	}
	if err := svc.LinkCategory(ctx, "p1", "leafA"); !errors.Is(err, ErrCategoryAlreadyRelated) {
		t.Fatalf("error = %v, want ErrCategoryAlreadyRelated", err)
	}
}

func TestLinkCategoryChannelsIsIdempotent(t *testing.T) {
	reg := cascadeFixture(t)
	svc := newCascade(t, reg, domain.CatalogChangeCascade, false)
	ctx := context.Background()

	if err := svc.LinkCategory(ctx, "p1", "leafA"); err != nil {
		t.Fatalf("link: %v", err)
	}
	first := productChannelIDs(t, reg, "p1")

	performed, err := svc.LinkCategoryChannels(ctx, "p1", "leafA", false)
	if err != nil {
		t.Fatalf("second grant: %v", err)
	}
	if !performed {
		t.Fatal("second grant should still be performed")
	}
	second := productChannelIDs(t, reg, "p1")
	if len(first) != len(second) {
		t.Fatalf("relation set changed: %v -> %v", first, second)
	}
}

func TestUnlinkCategoryRevokesTreeChannels(t *testing.T) {
	reg := cascadeFixture(t)
	svc := newCascade(t, reg, domain.CatalogChangeCascade, false)
	ctx := context.Background()

	if err := svc.LinkCategory(ctx, "p1", "leafA"); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := svc.UnlinkCategory(ctx, "p1", "leafA"); err != nil {
		t.Fatalf("unlink: %v", err)
	}

	if got := productChannelIDs(t, reg, "p1"); len(got) != 0 {
		t.Fatalf("channels after unlink = %v, want none", got)
	}
}

func TestUnlinkCategorySkipsRevokeWhenRootStillReachable(t *testing.T) {
	reg := cascadeFixture(t)
	svc := newCascade(t, reg, domain.CatalogChangeCascade, false)
	ctx := context.Background()

	if err := svc.LinkCategory(ctx, "p1", "leafA"); err != nil {
		t.Fatalf("link leafA: %v", err)
	}
	if err := svc.LinkCategory(ctx, "p1", "leafB"); err != nil {
		t.Fatalf("link leafB: %v", err)
	}

	if err := svc.UnlinkCategory(ctx, "p1", "leafA"); err != nil {
		t.Fatalf("unlink leafA: %v", err)
	}
	if got := productChannelIDs(t, reg, "p1"); len(got) != 2 {
		t.Fatalf("channels = %v, want grants kept via leafB", got)
	}
}

func TestLinkCategoryChannelsRefreshesProvenanceOfDirectLink(t *testing.T) {
	reg := cascadeFixture(t)
	svc := newCascade(t, reg, domain.CatalogChangeCascade, false)
	ctx := context.Background()

	if err := svc.RelateChannel(ctx, "p1", "web"); err != nil {
		t.Fatalf("direct relate: %v", err)
	}
	if err := svc.LinkCategory(ctx, "p1", "leafA"); err != nil {
		t.Fatalf("link category: %v", err)
	}

	link, err := reg.Relations().FindChannelLink(ctx, "p1", "web")
	if err != nil {
		t.Fatalf("find link: %v", err)
	}
	if !link.FromCategoryTree {
		t.Fatal("existing direct link should have been claimed by tree provenance")
	}
}

func TestRelateChannelRejectsExistingRelation(t *testing.T) {
	reg := cascadeFixture(t)
	svc := newCascade(t, reg, domain.CatalogChangeCascade, false)
	ctx := context.Background()

	if err := svc.RelateChannel(ctx, "p1", "web"); err != nil {
		t.Fatalf("relate: %v", err)
	}
	if err := svc.RelateChannel(ctx, "p1", "web"); !errors.Is(err, ErrChannelAlreadyRelated) {
		t.Fatalf("error = %v, want ErrChannelAlreadyRelated", err)
	}
}

func TestOnCatalogChangeCascadeUnlinksIllegalCategories(t *testing.T) {
	reg := cascadeFixture(t)
	svc := newCascade(t, reg, domain.CatalogChangeCascade, false)
	ctx := context.Background()

	if err := svc.LinkCategory(ctx, "p1", "leafA"); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := svc.OnCatalogChange(ctx, "p1", "catalog2"); err != nil {
		t.Fatalf("catalog change: %v", err)
	}

	cats, err := reg.Relations().ListProductCategories(ctx, "p1")
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	if len(cats) != 0 {
		t.Fatalf("categories = %v, want all unlinked", cats)
	}
	if got := productChannelIDs(t, reg, "p1"); len(got) != 0 {
		t.Fatalf("channels = %v, want tree grants retracted", got)
	}
}

func TestOnCatalogChangeRestrictRejectsWithoutMutation(t *testing.T) {
	reg := cascadeFixture(t)
	ctx := context.Background()

	cascade := newCascade(t, reg, domain.CatalogChangeCascade, false)
	if err := cascade.LinkCategory(ctx, "p1", "leafA"); err != nil {
		t.Fatalf("link: %v", err)
	}

	restrict := newCascade(t, reg, domain.CatalogChangeRestrict, false)
	if err := restrict.OnCatalogChange(ctx, "p1", "catalog2"); !errors.Is(err, ErrCategoryCatalogMismatch) {
		t.Fatalf("error = %v, want ErrCategoryCatalogMismatch", err)
	}

	cats, err := reg.Relations().ListProductCategories(ctx, "p1")
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	if len(cats) != 1 {
		t.Fatalf("categories = %v, want membership untouched", cats)
	}
	if got := productChannelIDs(t, reg, "p1"); len(got) != 2 {
		t.Fatalf("channels = %v, want grants untouched", got)
	}
}

func TestUnrelateCategoryTreeChannelsKeepsDirectRelations(t *testing.T) {
	reg := cascadeFixture(t)
	svc := newCascade(t, reg, domain.CatalogChangeCascade, false)
	ctx := context.Background()

	if err := svc.LinkCategory(ctx, "p1", "leafA"); err != nil {
		t.Fatalf("link: %v", err)
	}
	// A direct relation to a channel outside the tree.
	reg.PutChannel(domain.Channel{ID: "pos", Code: "pos"})
	if err := svc.RelateChannel(ctx, "p1", "pos"); err != nil {
		t.Fatalf("relate: %v", err)
	}

	if err := svc.UnrelateCategoryTreeChannels(ctx, "p1"); err != nil {
		t.Fatalf("unrelate tree channels: %v", err)
	}
	got := productChannelIDs(t, reg, "p1")
	if len(got) != 1 || got[0] != "pos" {
		t.Fatalf("channels = %v, want only the direct relation", got)
	}
}

func TestSetChannelActivation(t *testing.T) {
	reg := cascadeFixture(t)
	svc := newCascade(t, reg, domain.CatalogChangeCascade, false)
	ctx := context.Background()

	if err := svc.RelateChannel(ctx, "p1", "web"); err != nil {
		t.Fatalf("relate: %v", err)
	}
	if err := svc.SetChannelActivation(ctx, "p1", "web", false); err != nil {
		t.Fatalf("set activation: %v", err)
	}
	link, err := reg.Relations().FindChannelLink(ctx, "p1", "web")
	if err != nil {
		t.Fatalf("find link: %v", err)
	}
	if link.Active {
		t.Fatal("link should be inactive")
	}
}
