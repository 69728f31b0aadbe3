package repositories

import (
	"context"

	domain "github.com/pimgrid/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Catalogs() CatalogRepository
	Categories() CategoryRepository
	Channels() ChannelRepository
	Families() FamilyRepository
	Attributes() AttributeRepository
	AttributeValues() AttributeValueRepository
	Associations() AssociationRepository
	Relations() RelationStore
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in a transactional boundary. When fn
// returns an error every write performed inside it is rolled back.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository persists product headers.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	Insert(ctx context.Context, product domain.Product) (domain.Product, error)
	Update(ctx context.Context, product domain.Product) (domain.Product, error)
	Delete(ctx context.Context, productID string) error
	// ExistsField reports whether another product in the same catalog already
	// carries the given value for a unique field (sku, ean, mpn).
	ExistsField(ctx context.Context, catalogID, field, value, excludeProductID string) (bool, error)
}

// CatalogRepository persists catalogs.
type CatalogRepository interface {
	FindByID(ctx context.Context, catalogID string) (domain.Catalog, error)
	// TreeRootIDs lists the roots of every category tree legal for the catalog.
	TreeRootIDs(ctx context.Context, catalogID string) ([]string, error)
	// UnassignedTreeRootIDs lists roots of trees not linked to any catalog;
	// these are the trees legal for products without a catalog.
	UnassignedTreeRootIDs(ctx context.Context) ([]string, error)
}

// CategoryRepository persists category nodes and resolves tree structure.
type CategoryRepository interface {
	FindByID(ctx context.Context, categoryID string) (domain.Category, error)
	// Root walks parent references up to the tree root.
	Root(ctx context.Context, categoryID string) (domain.Category, error)
	// ChildCount reports the number of direct children; zero means leaf.
	ChildCount(ctx context.Context, categoryID string) (int, error)
}

// ChannelRepository persists channels.
type ChannelRepository interface {
	FindByID(ctx context.Context, channelID string) (domain.Channel, error)
}

// FamilyRepository persists product families and their attribute templates.
type FamilyRepository interface {
	FindByID(ctx context.Context, familyID string) (domain.ProductFamily, error)
	// Templates returns the family's templates ordered by sorting.
	Templates(ctx context.Context, familyID string) ([]domain.FamilyAttributeTemplate, error)
}

// AttributeRepository persists attribute definitions.
type AttributeRepository interface {
	FindByID(ctx context.Context, attributeID string) (domain.Attribute, error)
}

// AttributeValueSaveOptions carries one-shot, call-scoped overrides for a
// single save. They are explicit parameters rather than entity state so a
// derived write can never leak its bypass into a later user edit.
type AttributeValueSaveOptions struct {
	// SkipVariantValidation bypasses variant re-validation for derived writes.
	SkipVariantValidation bool
	// SkipChannelValidation bypasses product/channel legality re-checks for derived writes.
	SkipChannelValidation bool
}

// AttributeValueRepository persists attribute values and enforces the
// (product, attribute, scope, channel) uniqueness invariant: Insert returns an
// AttributeValueError with code AttributeValueErrorDuplicate when the slot is
// already occupied.
type AttributeValueRepository interface {
	FindByID(ctx context.Context, valueID string) (domain.AttributeValue, error)
	ListByProduct(ctx context.Context, productID string) ([]domain.AttributeValue, error)
	// FindByKey locates the value occupying a uniqueness slot.
	FindByKey(ctx context.Context, key domain.AttributeValueKey) (domain.AttributeValue, error)
	Insert(ctx context.Context, value domain.AttributeValue, opts AttributeValueSaveOptions) (domain.AttributeValue, error)
	Update(ctx context.Context, value domain.AttributeValue, opts AttributeValueSaveOptions) (domain.AttributeValue, error)
	Delete(ctx context.Context, valueID string) error
}

// AssociationRepository persists association types and edges.
type AssociationRepository interface {
	FindByID(ctx context.Context, associationID string) (domain.Association, error)
	InsertEdge(ctx context.Context, edge domain.AssociatedProduct) (domain.AssociatedProduct, error)
	FindEdgeByID(ctx context.Context, edgeID string) (domain.AssociatedProduct, error)
	DeleteEdge(ctx context.Context, edgeID string) error
	// FindEdge locates an edge by its (association, main, related) triple.
	FindEdge(ctx context.Context, associationID, mainProductID, relatedProductID string) (domain.AssociatedProduct, error)
	ListEdgesByMainProduct(ctx context.Context, mainProductID string) ([]domain.AssociatedProduct, error)
}

// RelationStore is the raw bookkeeping surface for product relations: category
// links with sort positions, channel links with activation and cascade
// provenance, and asset slots with sort positions. Writes are conditional
// row-level updates; callers are expected to re-derive state on retry.
type RelationStore interface {
	// Category links -------------------------------------------------------

	ListProductCategories(ctx context.Context, productID string) ([]domain.CategoryLink, error)
	// ListCategoryMembers returns the category's links ordered by sorting ascending.
	ListCategoryMembers(ctx context.Context, categoryID string) ([]domain.CategoryLink, error)
	LinkCategory(ctx context.Context, link domain.CategoryLink) error
	UnlinkCategory(ctx context.Context, productID, categoryID string) error
	UpdateCategorySorting(ctx context.Context, categoryID, productID string, sorting int) error

	// Channel links --------------------------------------------------------

	ListProductChannels(ctx context.Context, productID string) ([]domain.ChannelLink, error)
	FindChannelLink(ctx context.Context, productID, channelID string) (domain.ChannelLink, error)
	RelateChannel(ctx context.Context, link domain.ChannelLink) error
	UnrelateChannel(ctx context.Context, productID, channelID string) error
	// UpdateChannelLink patches activation and/or provenance; nil leaves a field untouched.
	UpdateChannelLink(ctx context.Context, productID, channelID string, active, fromCategoryTree *bool) error
	// DeleteCategoryTreeChannels bulk-deletes every channel link whose
	// provenance is fromCategoryTree=true.
	DeleteCategoryTreeChannels(ctx context.Context, productID string) error

	// Asset slots ----------------------------------------------------------

	// ListAssetSlot returns the product's asset links for one channel slot
	// (empty channel = the unscoped slot), ordered by sorting ascending.
	ListAssetSlot(ctx context.Context, productID, channelID string) ([]domain.AssetLink, error)
	LinkAsset(ctx context.Context, link domain.AssetLink) error
	UnlinkAsset(ctx context.Context, productID, assetID, channelID string) error
	UpdateAssetSorting(ctx context.Context, productID, assetID, channelID string, sorting int) error
}
