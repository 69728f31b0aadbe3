// Package memory provides an in-memory repositories.Registry used by tests
// and ephemeral environments. Transactions are implemented by snapshotting
// the whole state and restoring it when the transactional function fails.
package memory

import (
	"context"
	"sort"
	"sync"

	domain "github.com/pimgrid/api/internal/domain"
	"github.com/pimgrid/api/internal/repositories"
)

var _ repositories.Registry = (*Registry)(nil)

type state struct {
	products        map[string]domain.Product
	catalogs        map[string]domain.Catalog
	categories      map[string]domain.Category
	channels        map[string]domain.Channel
	families        map[string]domain.ProductFamily
	templates       map[string]domain.FamilyAttributeTemplate
	attributes      map[string]domain.Attribute
	attributeValues map[string]domain.AttributeValue
	associations    map[string]domain.Association
	edges           map[string]domain.AssociatedProduct
	categoryLinks   map[string]domain.CategoryLink
	channelLinks    map[string]domain.ChannelLink
	assetLinks      map[string]domain.AssetLink
}

func newState() state {
	return state{
		products:        make(map[string]domain.Product),
		catalogs:        make(map[string]domain.Catalog),
		categories:      make(map[string]domain.Category),
		channels:        make(map[string]domain.Channel),
		families:        make(map[string]domain.ProductFamily),
		templates:       make(map[string]domain.FamilyAttributeTemplate),
		attributes:      make(map[string]domain.Attribute),
		attributeValues: make(map[string]domain.AttributeValue),
		associations:    make(map[string]domain.Association),
		edges:           make(map[string]domain.AssociatedProduct),
		categoryLinks:   make(map[string]domain.CategoryLink),
		channelLinks:    make(map[string]domain.ChannelLink),
		assetLinks:      make(map[string]domain.AssetLink),
	}
}

// Registry is an in-memory implementation of repositories.Registry.
// It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	st   state
}

// NewRegistry constructs an empty in-memory registry.
func NewRegistry() *Registry {
	return &Registry{st: newState()}
}

// Close implements repositories.Registry.
func (r *Registry) Close(context.Context) error { return nil }

// Products implements repositories.Registry.
func (r *Registry) Products() repositories.ProductRepository { return &productRepo{r} }

// Catalogs implements repositories.Registry.
func (r *Registry) Catalogs() repositories.CatalogRepository { return &catalogRepo{r} }

// Categories implements repositories.Registry.
func (r *Registry) Categories() repositories.CategoryRepository { return &categoryRepo{r} }

// Channels implements repositories.Registry.
func (r *Registry) Channels() repositories.ChannelRepository { return &channelRepo{r} }

// Families implements repositories.Registry.
func (r *Registry) Families() repositories.FamilyRepository { return &familyRepo{r} }

// Attributes implements repositories.Registry.
func (r *Registry) Attributes() repositories.AttributeRepository { return &attributeRepo{r} }

// AttributeValues implements repositories.Registry.
func (r *Registry) AttributeValues() repositories.AttributeValueRepository {
	return &attributeValueRepo{r}
}

// Associations implements repositories.Registry.
func (r *Registry) Associations() repositories.AssociationRepository { return &associationRepo{r} }

// Relations implements repositories.Registry.
func (r *Registry) Relations() repositories.RelationStore { return &relationStore{r} }

// RunInTx serializes transactional sections and rolls the whole state back
// when fn returns an error. Nested calls run inside the outer transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	snap := r.st.clone()
	r.mu.Unlock()

	if err := fn(markInTx(ctx)); err != nil {
		r.mu.Lock()
		r.st = snap
		r.mu.Unlock()
		return err
	}
	return nil
}

type txKey struct{}

func markInTx(ctx context.Context) context.Context {
	return context.WithValue(ctx, txKey{}, true)
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// Seed helpers used by tests and fixtures ------------------------------------

// PutCatalog stores or replaces a catalog.
func (r *Registry) PutCatalog(c domain.Catalog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.catalogs[c.ID] = c
}

// PutCategory stores or replaces a category.
func (r *Registry) PutCategory(c domain.Category) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.categories[c.ID] = cloneCategory(c)
}

// PutChannel stores or replaces a channel.
func (r *Registry) PutChannel(c domain.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.channels[c.ID] = cloneChannel(c)
}

// PutFamily stores or replaces a product family.
func (r *Registry) PutFamily(f domain.ProductFamily) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.families[f.ID] = f
}

// PutTemplate stores or replaces a family attribute template.
func (r *Registry) PutTemplate(t domain.FamilyAttributeTemplate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.templates[t.ID] = t
}

// PutAttribute stores or replaces an attribute definition.
func (r *Registry) PutAttribute(a domain.Attribute) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.attributes[a.ID] = cloneAttribute(a)
}

// PutAssociation stores or replaces an association type.
func (r *Registry) PutAssociation(a domain.Association) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.associations[a.ID] = a
}

// Product repository ----------------------------------------------------------

type productRepo struct{ r *Registry }

func (p *productRepo) FindByID(_ context.Context, productID string) (domain.Product, error) {
	p.r.mu.RLock()
	defer p.r.mu.RUnlock()
	prod, ok := p.r.st.products[productID]
	if !ok {
		return domain.Product{}, repositories.NewNotFound("product", productID)
	}
	return cloneProduct(prod), nil
}

func (p *productRepo) Insert(_ context.Context, product domain.Product) (domain.Product, error) {
	p.r.mu.Lock()
	defer p.r.mu.Unlock()
	if _, exists := p.r.st.products[product.ID]; exists {
		return domain.Product{}, &repositories.EntityError{Entity: "product", ID: product.ID, Kind: repositories.EntityErrorConflict}
	}
	p.r.st.products[product.ID] = cloneProduct(product)
	return product, nil
}

func (p *productRepo) Update(_ context.Context, product domain.Product) (domain.Product, error) {
	p.r.mu.Lock()
	defer p.r.mu.Unlock()
	if _, exists := p.r.st.products[product.ID]; !exists {
		return domain.Product{}, repositories.NewNotFound("product", product.ID)
	}
	p.r.st.products[product.ID] = cloneProduct(product)
	return product, nil
}

func (p *productRepo) Delete(_ context.Context, productID string) error {
	p.r.mu.Lock()
	defer p.r.mu.Unlock()
	if _, exists := p.r.st.products[productID]; !exists {
		return repositories.NewNotFound("product", productID)
	}
	delete(p.r.st.products, productID)
	return nil
}

func (p *productRepo) ExistsField(_ context.Context, catalogID, field, value, excludeProductID string) (bool, error) {
	if value == "" {
		return false, nil
	}
	p.r.mu.RLock()
	defer p.r.mu.RUnlock()
	for _, prod := range p.r.st.products {
		if prod.ID == excludeProductID || prod.CatalogID != catalogID {
			continue
		}
		var got string
		switch field {
		case "sku":
			got = prod.SKU
		case "ean":
			got = prod.EAN
		case "mpn":
			got = prod.MPN
		}
		if got == value {
			return true, nil
		}
	}
	return false, nil
}

// Catalog repository ----------------------------------------------------------

type catalogRepo struct{ r *Registry }

func (c *catalogRepo) FindByID(_ context.Context, catalogID string) (domain.Catalog, error) {
	c.r.mu.RLock()
	defer c.r.mu.RUnlock()
	cat, ok := c.r.st.catalogs[catalogID]
	if !ok {
		return domain.Catalog{}, repositories.NewNotFound("catalog", catalogID)
	}
	return cat, nil
}

func (c *catalogRepo) TreeRootIDs(_ context.Context, catalogID string) ([]string, error) {
	c.r.mu.RLock()
	defer c.r.mu.RUnlock()
	var roots []string
	for _, cat := range c.r.st.categories {
		if !cat.IsRoot() {
			continue
		}
		for _, id := range cat.CatalogIDs {
			if id == catalogID {
				roots = append(roots, cat.ID)
				break
			}
		}
	}
	sort.Strings(roots)
	return roots, nil
}

func (c *catalogRepo) UnassignedTreeRootIDs(_ context.Context) ([]string, error) {
	c.r.mu.RLock()
	defer c.r.mu.RUnlock()
	var roots []string
	for _, cat := range c.r.st.categories {
		if cat.IsRoot() && len(cat.CatalogIDs) == 0 {
			roots = append(roots, cat.ID)
		}
	}
	sort.Strings(roots)
	return roots, nil
}

// Category repository ---------------------------------------------------------

type categoryRepo struct{ r *Registry }

func (c *categoryRepo) FindByID(_ context.Context, categoryID string) (domain.Category, error) {
	c.r.mu.RLock()
	defer c.r.mu.RUnlock()
	cat, ok := c.r.st.categories[categoryID]
	if !ok {
		return domain.Category{}, repositories.NewNotFound("category", categoryID)
	}
	return cloneCategory(cat), nil
}

func (c *categoryRepo) Root(_ context.Context, categoryID string) (domain.Category, error) {
	c.r.mu.RLock()
	defer c.r.mu.RUnlock()
	cat, ok := c.r.st.categories[categoryID]
	if !ok {
		return domain.Category{}, repositories.NewNotFound("category", categoryID)
	}
	for !cat.IsRoot() {
		parent, ok := c.r.st.categories[cat.ParentID]
		if !ok {
			return domain.Category{}, repositories.NewNotFound("category", cat.ParentID)
		}
		cat = parent
	}
	return cloneCategory(cat), nil
}

func (c *categoryRepo) ChildCount(_ context.Context, categoryID string) (int, error) {
	c.r.mu.RLock()
	defer c.r.mu.RUnlock()
	if _, ok := c.r.st.categories[categoryID]; !ok {
		return 0, repositories.NewNotFound("category", categoryID)
	}
	count := 0
	for _, cat := range c.r.st.categories {
		if cat.ParentID == categoryID {
			count++
		}
	}
	return count, nil
}

// Channel repository ----------------------------------------------------------

type channelRepo struct{ r *Registry }

func (c *channelRepo) FindByID(_ context.Context, channelID string) (domain.Channel, error) {
	c.r.mu.RLock()
	defer c.r.mu.RUnlock()
	ch, ok := c.r.st.channels[channelID]
	if !ok {
		return domain.Channel{}, repositories.NewNotFound("channel", channelID)
	}
	return cloneChannel(ch), nil
}

// Family repository -----------------------------------------------------------

type familyRepo struct{ r *Registry }

func (f *familyRepo) FindByID(_ context.Context, familyID string) (domain.ProductFamily, error) {
	f.r.mu.RLock()
	defer f.r.mu.RUnlock()
	fam, ok := f.r.st.families[familyID]
	if !ok {
		return domain.ProductFamily{}, repositories.NewNotFound("productFamily", familyID)
	}
	return fam, nil
}

func (f *familyRepo) Templates(_ context.Context, familyID string) ([]domain.FamilyAttributeTemplate, error) {
	f.r.mu.RLock()
	defer f.r.mu.RUnlock()
	var out []domain.FamilyAttributeTemplate
	for _, t := range f.r.st.templates {
		if t.FamilyID == familyID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sorting != out[j].Sorting {
			return out[i].Sorting < out[j].Sorting
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Attribute repository --------------------------------------------------------

type attributeRepo struct{ r *Registry }

func (a *attributeRepo) FindByID(_ context.Context, attributeID string) (domain.Attribute, error) {
	a.r.mu.RLock()
	defer a.r.mu.RUnlock()
	attr, ok := a.r.st.attributes[attributeID]
	if !ok {
		return domain.Attribute{}, repositories.NewNotFound("attribute", attributeID)
	}
	return cloneAttribute(attr), nil
}

// Attribute value repository --------------------------------------------------

type attributeValueRepo struct{ r *Registry }

func (a *attributeValueRepo) FindByID(_ context.Context, valueID string) (domain.AttributeValue, error) {
	a.r.mu.RLock()
	defer a.r.mu.RUnlock()
	v, ok := a.r.st.attributeValues[valueID]
	if !ok {
		return domain.AttributeValue{}, &repositories.AttributeValueError{Op: "attribute_values.find", Code: repositories.AttributeValueErrorNotFound}
	}
	return cloneAttributeValue(v), nil
}

func (a *attributeValueRepo) ListByProduct(_ context.Context, productID string) ([]domain.AttributeValue, error) {
	a.r.mu.RLock()
	defer a.r.mu.RUnlock()
	var out []domain.AttributeValue
	for _, v := range a.r.st.attributeValues {
		if v.ProductID == productID {
			out = append(out, cloneAttributeValue(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *attributeValueRepo) FindByKey(_ context.Context, key domain.AttributeValueKey) (domain.AttributeValue, error) {
	a.r.mu.RLock()
	defer a.r.mu.RUnlock()
	for _, v := range a.r.st.attributeValues {
		if v.Key() == key {
			return cloneAttributeValue(v), nil
		}
	}
	return domain.AttributeValue{}, &repositories.AttributeValueError{Op: "attribute_values.find_by_key", Code: repositories.AttributeValueErrorNotFound, Key: key}
}

func (a *attributeValueRepo) Insert(_ context.Context, value domain.AttributeValue, _ repositories.AttributeValueSaveOptions) (domain.AttributeValue, error) {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	key := value.Key()
	for _, existing := range a.r.st.attributeValues {
		if existing.Key() == key {
			return domain.AttributeValue{}, repositories.NewDuplicateAttributeValue("attribute_values.insert", key)
		}
	}
	a.r.st.attributeValues[value.ID] = cloneAttributeValue(value)
	return value, nil
}

func (a *attributeValueRepo) Update(_ context.Context, value domain.AttributeValue, _ repositories.AttributeValueSaveOptions) (domain.AttributeValue, error) {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	if _, exists := a.r.st.attributeValues[value.ID]; !exists {
		return domain.AttributeValue{}, &repositories.AttributeValueError{Op: "attribute_values.update", Code: repositories.AttributeValueErrorNotFound, Key: value.Key()}
	}
	key := value.Key()
	for id, existing := range a.r.st.attributeValues {
		if id != value.ID && existing.Key() == key {
			return domain.AttributeValue{}, repositories.NewDuplicateAttributeValue("attribute_values.update", key)
		}
	}
	a.r.st.attributeValues[value.ID] = cloneAttributeValue(value)
	return value, nil
}

func (a *attributeValueRepo) Delete(_ context.Context, valueID string) error {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	if _, exists := a.r.st.attributeValues[valueID]; !exists {
		return &repositories.AttributeValueError{Op: "attribute_values.delete", Code: repositories.AttributeValueErrorNotFound}
	}
	delete(a.r.st.attributeValues, valueID)
	return nil
}

// Association repository ------------------------------------------------------

type associationRepo struct{ r *Registry }

func (a *associationRepo) FindByID(_ context.Context, associationID string) (domain.Association, error) {
	a.r.mu.RLock()
	defer a.r.mu.RUnlock()
	assoc, ok := a.r.st.associations[associationID]
	if !ok {
		return domain.Association{}, repositories.NewNotFound("association", associationID)
	}
	return assoc, nil
}

func (a *associationRepo) InsertEdge(_ context.Context, edge domain.AssociatedProduct) (domain.AssociatedProduct, error) {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	for _, existing := range a.r.st.edges {
		if existing.AssociationID == edge.AssociationID &&
			existing.MainProductID == edge.MainProductID &&
			existing.RelatedProductID == edge.RelatedProductID {
			return domain.AssociatedProduct{}, &repositories.EntityError{Entity: "associatedProduct", ID: existing.ID, Kind: repositories.EntityErrorConflict}
		}
	}
	a.r.st.edges[edge.ID] = edge
	return edge, nil
}

func (a *associationRepo) FindEdgeByID(_ context.Context, edgeID string) (domain.AssociatedProduct, error) {
	a.r.mu.RLock()
	defer a.r.mu.RUnlock()
	e, ok := a.r.st.edges[edgeID]
	if !ok {
		return domain.AssociatedProduct{}, repositories.NewNotFound("associatedProduct", edgeID)
	}
	return e, nil
}

func (a *associationRepo) DeleteEdge(_ context.Context, edgeID string) error {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	if _, exists := a.r.st.edges[edgeID]; !exists {
		return repositories.NewNotFound("associatedProduct", edgeID)
	}
	delete(a.r.st.edges, edgeID)
	return nil
}

func (a *associationRepo) FindEdge(_ context.Context, associationID, mainProductID, relatedProductID string) (domain.AssociatedProduct, error) {
	a.r.mu.RLock()
	defer a.r.mu.RUnlock()
	for _, e := range a.r.st.edges {
		if e.AssociationID == associationID && e.MainProductID == mainProductID && e.RelatedProductID == relatedProductID {
			return e, nil
		}
	}
	return domain.AssociatedProduct{}, repositories.NewNotFound("associatedProduct", mainProductID+"->"+relatedProductID)
}

func (a *associationRepo) ListEdgesByMainProduct(_ context.Context, mainProductID string) ([]domain.AssociatedProduct, error) {
	a.r.mu.RLock()
	defer a.r.mu.RUnlock()
	var out []domain.AssociatedProduct
	for _, e := range a.r.st.edges {
		if e.MainProductID == mainProductID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Relation store --------------------------------------------------------------

type relationStore struct{ r *Registry }

func categoryLinkKey(productID, categoryID string) string { return productID + "|" + categoryID }
func channelLinkKey(productID, channelID string) string   { return productID + "|" + channelID }
func assetLinkKey(productID, assetID, channelID string) string {
	return productID + "|" + assetID + "|" + channelID
}

func (s *relationStore) ListProductCategories(_ context.Context, productID string) ([]domain.CategoryLink, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()
	var out []domain.CategoryLink
	for _, l := range s.r.st.categoryLinks {
		if l.ProductID == productID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })
	return out, nil
}

func (s *relationStore) ListCategoryMembers(_ context.Context, categoryID string) ([]domain.CategoryLink, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()
	var out []domain.CategoryLink
	for _, l := range s.r.st.categoryLinks {
		if l.CategoryID == categoryID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sorting != out[j].Sorting {
			return out[i].Sorting < out[j].Sorting
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out, nil
}

func (s *relationStore) LinkCategory(_ context.Context, link domain.CategoryLink) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.st.categoryLinks[categoryLinkKey(link.ProductID, link.CategoryID)] = link
	return nil
}

func (s *relationStore) UnlinkCategory(_ context.Context, productID, categoryID string) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	key := categoryLinkKey(productID, categoryID)
	if _, ok := s.r.st.categoryLinks[key]; !ok {
		return repositories.NewRelationLinkNotFound("relations.unlink_category", productID, categoryID)
	}
	delete(s.r.st.categoryLinks, key)
	return nil
}

func (s *relationStore) UpdateCategorySorting(_ context.Context, categoryID, productID string, sorting int) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	key := categoryLinkKey(productID, categoryID)
	l, ok := s.r.st.categoryLinks[key]
	if !ok {
		return repositories.NewRelationLinkNotFound("relations.update_category_sorting", productID, categoryID)
	}
	l.Sorting = sorting
	s.r.st.categoryLinks[key] = l
	return nil
}

func (s *relationStore) ListProductChannels(_ context.Context, productID string) ([]domain.ChannelLink, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()
	var out []domain.ChannelLink
	for _, l := range s.r.st.channelLinks {
		if l.ProductID == productID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out, nil
}

func (s *relationStore) FindChannelLink(_ context.Context, productID, channelID string) (domain.ChannelLink, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()
	l, ok := s.r.st.channelLinks[channelLinkKey(productID, channelID)]
	if !ok {
		return domain.ChannelLink{}, repositories.NewRelationLinkNotFound("relations.find_channel_link", productID, channelID)
	}
	return l, nil
}

func (s *relationStore) RelateChannel(_ context.Context, link domain.ChannelLink) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	key := channelLinkKey(link.ProductID, link.ChannelID)
	if _, exists := s.r.st.channelLinks[key]; exists {
		return repositories.NewChannelAlreadyRelated("relations.relate_channel", link.ProductID, link.ChannelID)
	}
	s.r.st.channelLinks[key] = link
	return nil
}

func (s *relationStore) UnrelateChannel(_ context.Context, productID, channelID string) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	key := channelLinkKey(productID, channelID)
	if _, ok := s.r.st.channelLinks[key]; !ok {
		return repositories.NewRelationLinkNotFound("relations.unrelate_channel", productID, channelID)
	}
	delete(s.r.st.channelLinks, key)
	return nil
}

func (s *relationStore) UpdateChannelLink(_ context.Context, productID, channelID string, active, fromCategoryTree *bool) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	key := channelLinkKey(productID, channelID)
	l, ok := s.r.st.channelLinks[key]
	if !ok {
		return repositories.NewRelationLinkNotFound("relations.update_channel_link", productID, channelID)
	}
	if active != nil {
		l.Active = *active
	}
	if fromCategoryTree != nil {
		l.FromCategoryTree = *fromCategoryTree
	}
	s.r.st.channelLinks[key] = l
	return nil
}

func (s *relationStore) DeleteCategoryTreeChannels(_ context.Context, productID string) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	for key, l := range s.r.st.channelLinks {
		if l.ProductID == productID && l.FromCategoryTree {
			delete(s.r.st.channelLinks, key)
		}
	}
	return nil
}

func (s *relationStore) ListAssetSlot(_ context.Context, productID, channelID string) ([]domain.AssetLink, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()
	var out []domain.AssetLink
	for _, l := range s.r.st.assetLinks {
		if l.ProductID == productID && l.ChannelID == channelID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sorting != out[j].Sorting {
			return out[i].Sorting < out[j].Sorting
		}
		return out[i].AssetID < out[j].AssetID
	})
	return out, nil
}

func (s *relationStore) LinkAsset(_ context.Context, link domain.AssetLink) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.st.assetLinks[assetLinkKey(link.ProductID, link.AssetID, link.ChannelID)] = link
	return nil
}

func (s *relationStore) UnlinkAsset(_ context.Context, productID, assetID, channelID string) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	key := assetLinkKey(productID, assetID, channelID)
	if _, ok := s.r.st.assetLinks[key]; !ok {
		return repositories.NewRelationLinkNotFound("relations.unlink_asset", productID, assetID)
	}
	delete(s.r.st.assetLinks, key)
	return nil
}

func (s *relationStore) UpdateAssetSorting(_ context.Context, productID, assetID, channelID string, sorting int) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	key := assetLinkKey(productID, assetID, channelID)
	l, ok := s.r.st.assetLinks[key]
	if !ok {
		return repositories.NewRelationLinkNotFound("relations.update_asset_sorting", productID, assetID)
	}
	l.Sorting = sorting
	s.r.st.assetLinks[key] = l
	return nil
}
