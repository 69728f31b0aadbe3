package domain

import (
	"time"
)

// Scope declares whether an attribute value applies everywhere or to a single channel.
type Scope string

const (
	// ScopeGlobal marks a value shared by every channel.
	ScopeGlobal Scope = "Global"
	// ScopeChannel marks a value specific to one channel.
	ScopeChannel Scope = "Channel"
)

// CatalogChangePolicy selects how category memberships react when a product's catalog changes.
type CatalogChangePolicy string

const (
	// CatalogChangeCascade unlinks categories that are no longer legal for the new catalog.
	CatalogChangeCascade CatalogChangePolicy = "cascade"
	// CatalogChangeRestrict rejects the catalog change when any category would become illegal.
	CatalogChangeRestrict CatalogChangePolicy = "restrict"
)

// MainLocaleMarker is the pseudo-locale a channel lists to opt into the default-locale record.
const MainLocaleMarker = "mainLocale"

// Product is the central catalog entity. Type is immutable after creation;
// SKU/EAN/MPN are unique within the product's catalog (empty values exempt).
type Product struct {
	ID             string
	Name           string
	Type           string
	SKU            string
	EAN            string
	MPN            string
	CatalogID      string
	FamilyID       string
	Active         bool
	OwnerUserID    string
	AssignedUserID string
	TeamIDs        []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Catalog groups the category trees that are legal for products assigned to it.
type Catalog struct {
	ID   string
	Name string
}

// Category is a node in a category tree. A category with no children is a leaf.
// Root categories declare the catalogs the tree is valid for and the channels
// granted to products placed anywhere in the tree.
type Category struct {
	ID         string
	Name       string
	ParentID   string
	CatalogIDs []string
	ChannelIDs []string
}

// IsRoot reports whether the category is the root of its tree.
func (c Category) IsRoot() bool { return c.ParentID == "" }

// Channel is a distribution channel with an ordered locale set. The set may
// contain MainLocaleMarker to opt channel-scoped values into the default record.
type Channel struct {
	ID      string
	Code    string
	Name    string
	Locales []string
}

// HasLocale reports whether the channel declares the given locale (markers included).
func (c Channel) HasLocale(locale string) bool {
	for _, l := range c.Locales {
		if l == locale {
			return true
		}
	}
	return false
}

// ConcreteLocales returns the channel locales with the main-locale marker removed.
func (c Channel) ConcreteLocales() []string {
	out := make([]string, 0, len(c.Locales))
	for _, l := range c.Locales {
		if l == MainLocaleMarker {
			continue
		}
		out = append(out, l)
	}
	return out
}

// ProductFamily owns an ordered set of attribute templates.
type ProductFamily struct {
	ID   string
	Name string
}

// FamilyAttributeTemplate names one attribute a family prescribes, with its
// required flag and scope. ChannelID is set only for channel-scoped templates.
type FamilyAttributeTemplate struct {
	ID          string
	FamilyID    string
	AttributeID string
	Required    bool
	Scope       Scope
	ChannelID   string
	Sorting     int
}

// Attribute defines the shape of a value products can carry.
type Attribute struct {
	ID           string
	Code         string
	Name         string
	Type         string
	Multilingual bool
	// LocaleNames carries per-locale display names used by locale projection.
	LocaleNames map[string]string
}

// LocalizedValue is the per-locale shadow of an attribute value: the value
// itself plus per-locale ownership metadata.
type LocalizedValue struct {
	Value          string
	TypeValue      []string
	OwnerUserID    string
	AssignedUserID string
}

// AttributeValue (PAV) stores one attribute's value for one product, uniquely
// keyed by (product, attribute, scope, channel-if-scoped). TemplateID traces
// the family template that materialized it; empty for user-created values.
type AttributeValue struct {
	ID             string
	ProductID      string
	AttributeID    string
	Scope          Scope
	ChannelID      string
	TemplateID     string
	Required       bool
	Value          string
	TypeValue      []string
	Data           map[string]any
	OwnerUserID    string
	AssignedUserID string
	TeamIDs        []string
	// LocaleValues holds the per-locale shadows for multilingual attributes,
	// keyed by locale code.
	LocaleValues map[string]LocalizedValue
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Key returns the uniqueness key of the value within its product.
func (v AttributeValue) Key() AttributeValueKey {
	k := AttributeValueKey{ProductID: v.ProductID, AttributeID: v.AttributeID, Scope: v.Scope}
	if v.Scope == ScopeChannel {
		k.ChannelID = v.ChannelID
	}
	return k
}

// AttributeValueKey identifies the (product, attribute, scope, channel) slot a
// value occupies. ChannelID is empty for global scope.
type AttributeValueKey struct {
	ProductID   string
	AttributeID string
	Scope       Scope
	ChannelID   string
}

// ProjectedAttributeValue is a read-time virtual record produced by locale
// projection. Locale is empty for the default record.
type ProjectedAttributeValue struct {
	AttributeValue
	IsLocale bool
	Locale   string
	// Title is the display title, suffixed with the locale for locale records.
	Title string
}

// CategoryLink relates a product to a category with a sort position.
type CategoryLink struct {
	ProductID  string
	CategoryID string
	Sorting    int
}

// ChannelLink relates a product to a channel. FromCategoryTree records
// cascade provenance: true when the relation was inferred from category-tree
// membership rather than granted directly.
type ChannelLink struct {
	ProductID        string
	ChannelID        string
	Active           bool
	FromCategoryTree bool
}

// AssetLink relates an asset to a product within an optional channel slot,
// carrying a sort position inside that slot.
type AssetLink struct {
	ProductID string
	AssetID   string
	ChannelID string
	Sorting   int
}

// Association is a typed, directed product relation. BackwardAssociationID,
// when set, makes the association bidirectional: every edge is mirrored.
type Association struct {
	ID                    string
	Name                  string
	BackwardAssociationID string
}

// AssociatedProduct is one directed association edge between two products.
// BothDirections marks edges that have a mirrored counterpart; BackwardEdgeID
// points at that mirror so the pair can be destroyed together.
type AssociatedProduct struct {
	ID               string
	AssociationID    string
	MainProductID    string
	RelatedProductID string
	BackwardEdgeID   string
	BothDirections   bool
	CreatedAt        time.Time
}
