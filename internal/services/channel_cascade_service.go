package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	domain "github.com/pimgrid/api/internal/domain"
	"github.com/pimgrid/api/internal/repositories"
)

// ChannelCascadeDeps bundles constructor inputs for the cascade manager.
type ChannelCascadeDeps struct {
	Products   repositories.ProductRepository
	Catalogs   repositories.CatalogRepository
	Categories repositories.CategoryRepository
	Channels   repositories.ChannelRepository
	Relations  repositories.RelationStore

	// Policy selects the reaction to catalog changes that invalidate
	// category memberships.
	Policy domain.CatalogChangePolicy
	// AllowNonLeafLinks permits direct links to categories that have children.
	AllowNonLeafLinks bool

	Logger *zap.Logger
}

type channelCascadeService struct {
	products   repositories.ProductRepository
	catalogs   repositories.CatalogRepository
	categories repositories.CategoryRepository
	channels   repositories.ChannelRepository
	relations  repositories.RelationStore

	policy            domain.CatalogChangePolicy
	allowNonLeafLinks bool
	logger            *zap.Logger
}

// NewChannelCascadeService constructs the cascade manager.
func NewChannelCascadeService(deps ChannelCascadeDeps) (ChannelCascadeService, error) {
	switch {
	case deps.Products == nil:
		return nil, errors.New("channel cascade: product repository is required")
	case deps.Catalogs == nil:
		return nil, errors.New("channel cascade: catalog repository is required")
	case deps.Categories == nil:
		return nil, errors.New("channel cascade: category repository is required")
	case deps.Channels == nil:
		return nil, errors.New("channel cascade: channel repository is required")
	case deps.Relations == nil:
		return nil, errors.New("channel cascade: relation store is required")
	}
	policy := deps.Policy
	if policy == "" {
		policy = domain.CatalogChangeCascade
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &channelCascadeService{
		products:          deps.Products,
		catalogs:          deps.Catalogs,
		categories:        deps.Categories,
		channels:          deps.Channels,
		relations:         deps.Relations,
		policy:            policy,
		allowNonLeafLinks: deps.AllowNonLeafLinks,
		logger:            logger,
	}, nil
}

// LinkCategory creates a direct category membership after the leaf and
// catalog-legality guards pass, appends the product at the end of the
// category's sort order, and grants the tree's channels.
func (s *channelCascadeService) LinkCategory(ctx context.Context, productID, categoryID string) error {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("channel cascade: load product: %w", err)
	}
	if _, err := s.categories.FindByID(ctx, categoryID); err != nil {
		return fmt.Errorf("channel cascade: load category: %w", err)
	}

	if !s.allowNonLeafLinks {
		children, err := s.categories.ChildCount(ctx, categoryID)
		if err != nil {
			return fmt.Errorf("channel cascade: count children: %w", err)
		}
		if children > 0 {
			return fmt.Errorf("%w: %s", ErrNonLeafCategoryLink, categoryID)
		}
	}

	legal, err := s.categoryLegalForCatalog(ctx, categoryID, product.CatalogID)
	if err != nil {
		return err
	}
	if !legal {
		return fmt.Errorf("%w: category %s, catalog %s", ErrCategoryCatalogMismatch, categoryID, product.CatalogID)
	}

	existing, err := s.relations.ListProductCategories(ctx, productID)
	if err != nil {
		return fmt.Errorf("channel cascade: list categories: %w", err)
	}
	for _, l := range existing {
		if l.CategoryID == categoryID {
			return fmt.Errorf("%w: %s", ErrCategoryAlreadyRelated, categoryID)
		}
	}

	members, err := s.relations.ListCategoryMembers(ctx, categoryID)
	if err != nil {
		return fmt.Errorf("channel cascade: list members: %w", err)
	}
	max := -sortStep
	for _, m := range members {
		if m.Sorting > max {
			max = m.Sorting
		}
	}
	if err := s.relations.LinkCategory(ctx, domain.CategoryLink{
		ProductID:  productID,
		CategoryID: categoryID,
		Sorting:    max + sortStep,
	}); err != nil {
		return fmt.Errorf("channel cascade: link category: %w", err)
	}

	if _, err := s.LinkCategoryChannels(ctx, productID, categoryID, false); err != nil {
		return err
	}
	return nil
}

// UnlinkCategory removes a category membership and revokes the tree's
// channels unless another membership still reaches the same root.
func (s *channelCascadeService) UnlinkCategory(ctx context.Context, productID, categoryID string) error {
	if err := s.relations.UnlinkCategory(ctx, productID, categoryID); err != nil {
		return fmt.Errorf("channel cascade: unlink category: %w", err)
	}
	if _, err := s.LinkCategoryChannels(ctx, productID, categoryID, true); err != nil {
		return err
	}
	return nil
}

func (s *channelCascadeService) LinkCategoryChannels(ctx context.Context, productID, categoryID string, unrelating bool) (bool, error) {
	root, err := s.categories.Root(ctx, categoryID)
	if err != nil {
		return false, fmt.Errorf("channel cascade: resolve root: %w", err)
	}

	if unrelating {
		// Another membership reaching the same root still justifies the grants.
		links, err := s.relations.ListProductCategories(ctx, productID)
		if err != nil {
			return false, fmt.Errorf("channel cascade: list categories: %w", err)
		}
		for _, l := range links {
			if l.CategoryID == categoryID {
				continue
			}
			otherRoot, err := s.categories.Root(ctx, l.CategoryID)
			if err != nil {
				return false, fmt.Errorf("channel cascade: resolve root of %s: %w", l.CategoryID, err)
			}
			if otherRoot.ID == root.ID {
				return false, nil
			}
		}
	}

	for _, channelID := range root.ChannelIDs {
		if unrelating {
			if err := s.relations.UnrelateChannel(ctx, productID, channelID); err != nil {
				if repositories.IsNotFound(err) {
					continue
				}
				return false, fmt.Errorf("channel cascade: unrelate channel %s: %w", channelID, err)
			}
			continue
		}

		// Check-then-act: refresh provenance when the relation already
		// exists, create it otherwise.
		_, err := s.relations.FindChannelLink(ctx, productID, channelID)
		switch {
		case err == nil:
			tree := true
			if err := s.relations.UpdateChannelLink(ctx, productID, channelID, nil, &tree); err != nil {
				return false, fmt.Errorf("channel cascade: refresh provenance for %s: %w", channelID, err)
			}
		case repositories.IsNotFound(err):
			if err := s.relations.RelateChannel(ctx, domain.ChannelLink{
				ProductID:        productID,
				ChannelID:        channelID,
				Active:           true,
				FromCategoryTree: true,
			}); err != nil {
				return false, fmt.Errorf("channel cascade: relate channel %s: %w", channelID, err)
			}
		default:
			return false, fmt.Errorf("channel cascade: find channel link %s: %w", channelID, err)
		}
	}

	s.logger.Debug("category tree channels synced",
		zap.String("product_id", productID),
		zap.String("root_id", root.ID),
		zap.Bool("unrelating", unrelating))
	return true, nil
}

func (s *channelCascadeService) OnCatalogChange(ctx context.Context, productID, newCatalogID string) error {
	legalRoots, err := s.legalRootSet(ctx, newCatalogID)
	if err != nil {
		return err
	}

	links, err := s.relations.ListProductCategories(ctx, productID)
	if err != nil {
		return fmt.Errorf("channel cascade: list categories: %w", err)
	}

	var illegal []string
	for _, l := range links {
		root, err := s.categories.Root(ctx, l.CategoryID)
		if err != nil {
			return fmt.Errorf("channel cascade: resolve root of %s: %w", l.CategoryID, err)
		}
		if _, ok := legalRoots[root.ID]; !ok {
			illegal = append(illegal, l.CategoryID)
		}
	}

	switch s.policy {
	case domain.CatalogChangeRestrict:
		if len(illegal) > 0 {
			return fmt.Errorf("%w: category %s, catalog %s", ErrCategoryCatalogMismatch, illegal[0], newCatalogID)
		}
		return nil
	case domain.CatalogChangeCascade:
		for _, categoryID := range illegal {
			if err := s.UnlinkCategory(ctx, productID, categoryID); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("channel cascade: unknown catalog change policy %q", s.policy)
	}
}

func (s *channelCascadeService) UnrelateCategoryTreeChannels(ctx context.Context, productID string) error {
	if err := s.relations.DeleteCategoryTreeChannels(ctx, productID); err != nil {
		return fmt.Errorf("channel cascade: delete tree channels: %w", err)
	}
	return nil
}

// RelateChannel creates a direct channel relation. An existing relation is a
// caller error here; cascade refreshes go through LinkCategoryChannels.
func (s *channelCascadeService) RelateChannel(ctx context.Context, productID, channelID string) error {
	if _, err := s.channels.FindByID(ctx, channelID); err != nil {
		return fmt.Errorf("channel cascade: load channel: %w", err)
	}
	_, err := s.relations.FindChannelLink(ctx, productID, channelID)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrChannelAlreadyRelated, channelID)
	}
	if !repositories.IsNotFound(err) {
		return fmt.Errorf("channel cascade: find channel link: %w", err)
	}
	if err := s.relations.RelateChannel(ctx, domain.ChannelLink{
		ProductID: productID,
		ChannelID: channelID,
		Active:    true,
	}); err != nil {
		if repositories.IsChannelAlreadyRelated(err) {
			return fmt.Errorf("%w: %s", ErrChannelAlreadyRelated, channelID)
		}
		return fmt.Errorf("channel cascade: relate channel: %w", err)
	}
	return nil
}

func (s *channelCascadeService) UnrelateChannel(ctx context.Context, productID, channelID string) error {
	if err := s.relations.UnrelateChannel(ctx, productID, channelID); err != nil {
		return fmt.Errorf("channel cascade: unrelate channel: %w", err)
	}
	return nil
}

func (s *channelCascadeService) SetChannelActivation(ctx context.Context, productID, channelID string, active bool) error {
	if err := s.relations.UpdateChannelLink(ctx, productID, channelID, &active, nil); err != nil {
		return fmt.Errorf("channel cascade: set activation: %w", err)
	}
	return nil
}

func (s *channelCascadeService) categoryLegalForCatalog(ctx context.Context, categoryID, catalogID string) (bool, error) {
	root, err := s.categories.Root(ctx, categoryID)
	if err != nil {
		return false, fmt.Errorf("channel cascade: resolve root: %w", err)
	}
	legal, err := s.legalRootSet(ctx, catalogID)
	if err != nil {
		return false, err
	}
	_, ok := legal[root.ID]
	return ok, nil
}

// legalRootSet lists the tree roots a product with the given catalog may use.
// Products without a catalog are restricted to unassigned trees.
func (s *channelCascadeService) legalRootSet(ctx context.Context, catalogID string) (map[string]struct{}, error) {
	var (
		roots []string
		err   error
	)
	if catalogID == "" {
		roots, err = s.catalogs.UnassignedTreeRootIDs(ctx)
	} else {
		roots, err = s.catalogs.TreeRootIDs(ctx, catalogID)
	}
	if err != nil {
		return nil, fmt.Errorf("channel cascade: resolve legal roots: %w", err)
	}
	set := make(map[string]struct{}, len(roots))
	for _, id := range roots {
		set[id] = struct{}{}
	}
	return set, nil
}
