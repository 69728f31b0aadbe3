package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/pimgrid/api/internal/domain"
	"github.com/pimgrid/api/internal/repositories"
)

// ErrUniqueFieldTaken reports a SKU/EAN/MPN value already used by another
// product in the same catalog.
var ErrUniqueFieldTaken = errors.New("product service: unique field value already used")

// uniqueProductFields are unique per catalog; empty values are exempt.
var uniqueProductFields = []string{"sku", "ean", "mpn"}

// CreateProductCommand creates a product. A non-empty FamilyID triggers an
// initial attribute materialization.
type CreateProductCommand struct {
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
}

// UpdateProductCommand is one composite update: primary field patches plus
// nested attribute-value edits, all applied in a single transaction. Nil
// pointers leave a field untouched.
type UpdateProductCommand struct {
	ProductID string

	Name      *string
	Type      *string
	SKU       *string
	EAN       *string
	MPN       *string
	CatalogID *string
	FamilyID  *string
	Active    *bool

	// Prev holds the caller's read-time snapshot of primary fields for
	// optimistic conflict detection, keyed by field name.
	Prev map[string]string

	NestedValues []UpdateValueCommand

	// IgnoreConflicts suppresses concurrency checking for nested edits only;
	// the primary entity's snapshot is always checked.
	IgnoreConflicts bool
}

// ProductServiceDeps bundles constructor inputs for the product service.
type ProductServiceDeps struct {
	Registry   repositories.Registry
	Attributes AttributeService
	Cascade    ChannelCascadeService

	IDGen  IDGenerator
	Clock  func() time.Time
	Logger *zap.Logger
}

type productService struct {
	registry   repositories.Registry
	attributes AttributeService
	cascade    ChannelCascadeService

	idGen  IDGenerator
	clock  func() time.Time
	logger *zap.Logger
}

// NewProductService constructs the product service.
func NewProductService(deps ProductServiceDeps) (ProductService, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.New("product service: registry is required")
	case deps.Attributes == nil:
		return nil, errors.New("product service: attribute service is required")
	case deps.Cascade == nil:
		return nil, errors.New("product service: cascade service is required")
	case deps.IDGen == nil:
		return nil, errors.New("product service: id generator is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &productService{
		registry:   deps.Registry,
		attributes: deps.Attributes,
		cascade:    deps.Cascade,
		idGen:      deps.IDGen,
		clock:      utcClock(deps.Clock),
		logger:     logger,
	}, nil
}

func (s *productService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	if strings.TrimSpace(cmd.Name) == "" {
		return Product{}, errors.New("product service: name is required")
	}
	if strings.TrimSpace(cmd.Type) == "" {
		return Product{}, errors.New("product service: type is required")
	}

	product := domain.Product{
		ID:             s.idGen(),
		Name:           strings.TrimSpace(cmd.Name),
		Type:           cmd.Type,
		SKU:            strings.TrimSpace(cmd.SKU),
		EAN:            strings.TrimSpace(cmd.EAN),
		MPN:            strings.TrimSpace(cmd.MPN),
		CatalogID:      cmd.CatalogID,
		FamilyID:       cmd.FamilyID,
		Active:         cmd.Active,
		OwnerUserID:    cmd.OwnerUserID,
		AssignedUserID: cmd.AssignedUserID,
		TeamIDs:        append([]string(nil), cmd.TeamIDs...),
		CreatedAt:      s.clock(),
		UpdatedAt:      s.clock(),
	}

	if err := s.checkUniqueFields(ctx, product); err != nil {
		return Product{}, err
	}
	saved, err := s.registry.Products().Insert(ctx, product)
	if err != nil {
		return Product{}, fmt.Errorf("product service: insert: %w", err)
	}
	if saved.FamilyID != "" {
		if _, err := s.attributes.Reconcile(ctx, saved.ID); err != nil {
			return Product{}, err
		}
	}
	return saved, nil
}

func (s *productService) GetProduct(ctx context.Context, productID string) (Product, error) {
	product, err := s.registry.Products().FindByID(ctx, productID)
	if err != nil {
		return Product{}, fmt.Errorf("product service: load: %w", err)
	}
	return product, nil
}

// UpdateProduct applies the composite update atomically. Every optimistic
// conflict raised by a nested edit is collected instead of aborting the loop;
// the primary save's own conflicts join the same set. A non-empty set rolls
// the whole transaction back and surfaces one ConflictError carrying the
// de-duplicated union of field names.
func (s *productService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	if cmd.ProductID == "" {
		return Product{}, errors.New("product service: product id is required")
	}

	var updated Product
	err := s.registry.RunInTx(ctx, func(ctx context.Context) error {
		var conflictFields []string

		for _, nested := range cmd.NestedValues {
			if cmd.IgnoreConflicts {
				nested.IgnoreConflict = true
			}
			_, err := s.attributes.UpdateValue(ctx, nested)
			switch {
			case err == nil:
			case errors.Is(err, ErrNotModified):
			default:
				if vc, ok := AsVersionConflict(err); ok {
					conflictFields = append(conflictFields, vc.Fields...)
					continue
				}
				return err
			}
		}

		current, err := s.registry.Products().FindByID(ctx, cmd.ProductID)
		if err != nil {
			return fmt.Errorf("product service: load: %w", err)
		}

		if cmd.Type != nil && *cmd.Type != current.Type {
			return fmt.Errorf("%w: type", ErrImmutableField)
		}
		if cmd.Prev != nil {
			conflictFields = append(conflictFields, staleProductFields(current, cmd.Prev)...)
		}

		next := current
		if cmd.Name != nil {
			next.Name = strings.TrimSpace(*cmd.Name)
		}
		if cmd.SKU != nil {
			next.SKU = strings.TrimSpace(*cmd.SKU)
		}
		if cmd.EAN != nil {
			next.EAN = strings.TrimSpace(*cmd.EAN)
		}
		if cmd.MPN != nil {
			next.MPN = strings.TrimSpace(*cmd.MPN)
		}
		if cmd.Active != nil {
			next.Active = *cmd.Active
		}
		catalogChanged := cmd.CatalogID != nil && *cmd.CatalogID != current.CatalogID
		if cmd.CatalogID != nil {
			next.CatalogID = *cmd.CatalogID
		}
		familyChanged := cmd.FamilyID != nil && *cmd.FamilyID != current.FamilyID
		if cmd.FamilyID != nil {
			next.FamilyID = *cmd.FamilyID
		}

		if err := s.checkUniqueFields(ctx, next); err != nil {
			return err
		}
		if catalogChanged {
			if err := s.cascade.OnCatalogChange(ctx, next.ID, next.CatalogID); err != nil {
				return err
			}
		}

		next.UpdatedAt = s.clock()
		saved, err := s.registry.Products().Update(ctx, next)
		if err != nil {
			return fmt.Errorf("product service: update: %w", err)
		}

		if familyChanged {
			if _, err := s.attributes.Reconcile(ctx, saved.ID); err != nil {
				return err
			}
		}

		if len(conflictFields) > 0 {
			return newConflictError(conflictFields)
		}
		updated = saved
		return nil
	})
	if err != nil {
		return Product{}, err
	}

	s.logger.Debug("product updated", zap.String("product_id", updated.ID))
	return updated, nil
}

func (s *productService) DeleteProduct(ctx context.Context, productID string) error {
	return s.registry.RunInTx(ctx, func(ctx context.Context) error {
		values, err := s.registry.AttributeValues().ListByProduct(ctx, productID)
		if err != nil {
			return fmt.Errorf("product service: list values: %w", err)
		}
		for _, v := range values {
			if err := s.registry.AttributeValues().Delete(ctx, v.ID); err != nil {
				return fmt.Errorf("product service: delete value %s: %w", v.ID, err)
			}
		}
		links, err := s.registry.Relations().ListProductCategories(ctx, productID)
		if err != nil {
			return fmt.Errorf("product service: list categories: %w", err)
		}
		for _, l := range links {
			if err := s.registry.Relations().UnlinkCategory(ctx, productID, l.CategoryID); err != nil {
				return fmt.Errorf("product service: unlink category %s: %w", l.CategoryID, err)
			}
		}
		if err := s.cascade.UnrelateCategoryTreeChannels(ctx, productID); err != nil {
			return err
		}
		if err := s.registry.Products().Delete(ctx, productID); err != nil {
			return fmt.Errorf("product service: delete: %w", err)
		}
		return nil
	})
}

// checkUniqueFields enforces catalog-wide uniqueness of SKU/EAN/MPN.
func (s *productService) checkUniqueFields(ctx context.Context, product Product) error {
	for _, field := range uniqueProductFields {
		value := productField(product, field)
		if value == "" {
			continue
		}
		taken, err := s.registry.Products().ExistsField(ctx, product.CatalogID, field, value, product.ID)
		if err != nil {
			return fmt.Errorf("product service: uniqueness check %s: %w", field, err)
		}
		if taken {
			return fmt.Errorf("%w: %s %q", ErrUniqueFieldTaken, field, value)
		}
	}
	return nil
}

// staleProductFields names every snapshotted primary field that no longer
// matches stored state.
func staleProductFields(current Product, prev map[string]string) []string {
	var fields []string
	for field, prevValue := range prev {
		if productField(current, field) != prevValue {
			fields = append(fields, field)
		}
	}
	return fields
}

func productField(p Product, field string) string {
	switch field {
	case "name":
		return p.Name
	case "type":
		return p.Type
	case "sku":
		return p.SKU
	case "ean":
		return p.EAN
	case "mpn":
		return p.MPN
	case "catalogId":
		return p.CatalogID
	case "familyId":
		return p.FamilyID
	default:
		return ""
	}
}
