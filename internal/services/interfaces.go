package services

import (
	"context"
	"time"

	domain "github.com/pimgrid/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Product                 = domain.Product
	Catalog                 = domain.Catalog
	Category                = domain.Category
	Channel                 = domain.Channel
	ProductFamily           = domain.ProductFamily
	FamilyAttributeTemplate = domain.FamilyAttributeTemplate
	Attribute               = domain.Attribute
	AttributeValue          = domain.AttributeValue
	AttributeValueKey       = domain.AttributeValueKey
	LocalizedValue          = domain.LocalizedValue
	ProjectedAttributeValue = domain.ProjectedAttributeValue
	CategoryLink            = domain.CategoryLink
	ChannelLink             = domain.ChannelLink
	AssetLink               = domain.AssetLink
	Association             = domain.Association
	AssociatedProduct       = domain.AssociatedProduct
	Scope                   = domain.Scope
	CatalogChangePolicy     = domain.CatalogChangePolicy
)

// IDGenerator mints identifiers for newly created records.
type IDGenerator func() string

// Action names an operation checked against the authorization collaborator.
type Action string

const (
	// ActionRead guards read access to a record or record type.
	ActionRead Action = "read"
	// ActionEdit guards mutation of a record or record type.
	ActionEdit Action = "edit"
)

// Authorizer is the external authorization collaborator. Identity travels on
// the request context; the core only asks yes/no questions.
type Authorizer interface {
	Check(ctx context.Context, entityType string, action Action) bool
}

// Translator maps an error key to a human-readable message for a locale.
// It is presentation glue and never drives control flow.
type Translator interface {
	Translate(key, locale string) string
}

// OrderingService maintains dense, unique sort positions for ordered
// collections: products inside a category and assets inside a product's
// channel slot.
type OrderingService interface {
	SetCategoryPosition(ctx context.Context, cmd SetCategoryPositionCommand) error
	SetAssetPosition(ctx context.Context, cmd SetAssetPositionCommand) error
}

// ChannelCascadeService derives and maintains product/channel relations
// implied by category-tree membership, and guards direct category links.
type ChannelCascadeService interface {
	LinkCategory(ctx context.Context, productID, categoryID string) error
	UnlinkCategory(ctx context.Context, productID, categoryID string) error
	// LinkCategoryChannels grants (or revokes, when unrelating) the channels
	// declared by the category's tree root. It reports false when revocation
	// was skipped because another membership still reaches the same root.
	LinkCategoryChannels(ctx context.Context, productID, categoryID string, unrelating bool) (bool, error)
	// OnCatalogChange reacts to a catalog reassignment according to the
	// configured policy: cascade unlinks now-illegal categories, restrict
	// rejects the change without mutating anything.
	OnCatalogChange(ctx context.Context, productID, newCatalogID string) error
	// UnrelateCategoryTreeChannels bulk-deletes every tree-originated channel
	// relation; used when a product is fully detached from all categories.
	UnrelateCategoryTreeChannels(ctx context.Context, productID string) error
	RelateChannel(ctx context.Context, productID, channelID string) error
	UnrelateChannel(ctx context.Context, productID, channelID string) error
	SetChannelActivation(ctx context.Context, productID, channelID string, active bool) error
}

// AttributeService synchronizes a product's attribute values with its family
// template and owns the direct save path for user edits.
type AttributeService interface {
	// Reconcile re-derives the family-origin value set: detach old origins,
	// materialize the current family's templates, claim colliding values.
	// Safe to re-invoke in full after a partial failure.
	Reconcile(ctx context.Context, productID string) (ReconcileReport, error)
	SaveValue(ctx context.Context, cmd SaveValueCommand) (AttributeValue, error)
	UpdateValue(ctx context.Context, cmd UpdateValueCommand) (AttributeValue, error)
	DeleteValue(ctx context.Context, valueID string) error
}

// LocaleProjector expands stored multilingual attribute values into the
// per-locale virtual records a reader should see.
type LocaleProjector interface {
	// Project is a pure function of its inputs; channel is nil for
	// globally-scoped values.
	Project(value AttributeValue, attribute Attribute, channel *Channel, allLocales []string) []ProjectedAttributeValue
	// ListProductValues loads, authorizes, channel-filters and projects the
	// product's full value set.
	ListProductValues(ctx context.Context, productID string) ([]ProjectedAttributeValue, error)
}

// ProductService coordinates composite product updates: nested attribute
// edits and the primary save run in one transaction with every optimistic
// conflict aggregated into a single report.
type ProductService interface {
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
}

// AssociationService maintains typed directed product associations, keeping
// bidirectional edge pairs symmetric.
type AssociationService interface {
	Relate(ctx context.Context, cmd RelateAssociationCommand) (RelateReport, error)
	Unrelate(ctx context.Context, edgeID string) error
	// DuplicateFrom copies attribute values and outgoing association edges
	// from one product onto another when both share a family.
	DuplicateFrom(ctx context.Context, sourceProductID, targetProductID string) error
}

func utcClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time { return clock().UTC() }
}
