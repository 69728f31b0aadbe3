package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	domain "github.com/pimgrid/api/internal/domain"
	"github.com/pimgrid/api/internal/repositories"
)

// RelateAssociationCommand crosses MainProductIDs with RelatedProductIDs
// under one association type.
type RelateAssociationCommand struct {
	AssociationID     string
	MainProductIDs    []string
	RelatedProductIDs []string
}

// RelatePairError records one product pair that could not be related.
type RelatePairError struct {
	MainProductID    string
	RelatedProductID string
	Err              error
}

// RelateReport summarises one relate run. Pair failures do not abort the
// remaining pairs.
type RelateReport struct {
	Related  int
	Failures []RelatePairError
}

// AssociationServiceDeps bundles constructor inputs for the association service.
type AssociationServiceDeps struct {
	Registry repositories.Registry

	IDGen  IDGenerator
	Clock  func() time.Time
	Logger *zap.Logger
}

type associationService struct {
	registry repositories.Registry
	idGen    IDGenerator
	clock    func() time.Time
	logger   *zap.Logger
}

// NewAssociationService constructs the association service.
func NewAssociationService(deps AssociationServiceDeps) (AssociationService, error) {
	if deps.Registry == nil {
		return nil, errors.New("association service: registry is required")
	}
	if deps.IDGen == nil {
		return nil, errors.New("association service: id generator is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &associationService{
		registry: deps.Registry,
		idGen:    deps.IDGen,
		clock:    utcClock(deps.Clock),
		logger:   logger,
	}, nil
}

func (s *associationService) Relate(ctx context.Context, cmd RelateAssociationCommand) (RelateReport, error) {
	var report RelateReport
	if cmd.AssociationID == "" {
		return report, errors.New("association service: association id is required")
	}
	association, err := s.registry.Associations().FindByID(ctx, cmd.AssociationID)
	if err != nil {
		return report, fmt.Errorf("association service: load association: %w", err)
	}

	for _, mainID := range cmd.MainProductIDs {
		for _, relatedID := range cmd.RelatedProductIDs {
			if mainID == relatedID {
				report.Failures = append(report.Failures, RelatePairError{
					MainProductID:    mainID,
					RelatedProductID: relatedID,
					Err:              errors.New("association service: product cannot be associated with itself"),
				})
				continue
			}
			if err := s.relatePair(ctx, association, mainID, relatedID); err != nil {
				report.Failures = append(report.Failures, RelatePairError{MainProductID: mainID, RelatedProductID: relatedID, Err: err})
				continue
			}
			report.Related++
		}
	}

	s.logger.Debug("products associated",
		zap.String("association_id", cmd.AssociationID),
		zap.Int("related", report.Related),
		zap.Int("failures", len(report.Failures)))
	return report, nil
}

// relatePair creates one edge and, for bidirectional association types, its
// mirror. Both edges land or neither does.
func (s *associationService) relatePair(ctx context.Context, association Association, mainID, relatedID string) error {
	for _, productID := range []string{mainID, relatedID} {
		if _, err := s.registry.Products().FindByID(ctx, productID); err != nil {
			return fmt.Errorf("load product %s: %w", productID, err)
		}
	}

	forward := domain.AssociatedProduct{
		ID:               s.idGen(),
		AssociationID:    association.ID,
		MainProductID:    mainID,
		RelatedProductID: relatedID,
		CreatedAt:        s.clock(),
	}
	if association.BackwardAssociationID == "" {
		_, err := s.registry.Associations().InsertEdge(ctx, forward)
		return err
	}

	backward := domain.AssociatedProduct{
		ID:               s.idGen(),
		AssociationID:    association.BackwardAssociationID,
		MainProductID:    relatedID,
		RelatedProductID: mainID,
		BackwardEdgeID:   forward.ID,
		BothDirections:   true,
		CreatedAt:        forward.CreatedAt,
	}
	forward.BothDirections = true
	forward.BackwardEdgeID = backward.ID

	return s.registry.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.registry.Associations().InsertEdge(ctx, forward); err != nil {
			return err
		}
		if _, err := s.registry.Associations().InsertEdge(ctx, backward); err != nil {
			return err
		}
		return nil
	})
}

// Unrelate removes an edge; a mirrored counterpart is removed in the same
// transaction so neither can survive alone.
func (s *associationService) Unrelate(ctx context.Context, edgeID string) error {
	edges := s.registry.Associations()
	edge, err := edges.FindEdgeByID(ctx, edgeID)
	if err != nil {
		return fmt.Errorf("association service: load edge: %w", err)
	}

	return s.registry.RunInTx(ctx, func(ctx context.Context) error {
		if err := edges.DeleteEdge(ctx, edge.ID); err != nil {
			return fmt.Errorf("association service: delete edge: %w", err)
		}
		if edge.BackwardEdgeID != "" {
			if err := edges.DeleteEdge(ctx, edge.BackwardEdgeID); err != nil && !repositories.IsNotFound(err) {
				return fmt.Errorf("association service: delete mirror edge: %w", err)
			}
		}
		return nil
	})
}

// DuplicateFrom copies attribute values and outgoing association edges from
// source onto target. Values are only copied when both products share a
// family, so the copied set matches the target's template expectations.
func (s *associationService) DuplicateFrom(ctx context.Context, sourceProductID, targetProductID string) error {
	source, err := s.registry.Products().FindByID(ctx, sourceProductID)
	if err != nil {
		return fmt.Errorf("association service: load source: %w", err)
	}
	target, err := s.registry.Products().FindByID(ctx, targetProductID)
	if err != nil {
		return fmt.Errorf("association service: load target: %w", err)
	}

	return s.registry.RunInTx(ctx, func(ctx context.Context) error {
		if source.FamilyID == target.FamilyID {
			values, err := s.registry.AttributeValues().ListByProduct(ctx, sourceProductID)
			if err != nil {
				return fmt.Errorf("association service: list source values: %w", err)
			}
			for _, v := range values {
				copyValue := v
				copyValue.ID = s.idGen()
				copyValue.ProductID = targetProductID
				copyValue.CreatedAt = s.clock()
				copyValue.UpdatedAt = s.clock()
				_, err := s.registry.AttributeValues().Insert(ctx, copyValue, repositories.AttributeValueSaveOptions{
					SkipVariantValidation: true,
					SkipChannelValidation: true,
				})
				if err != nil {
					if repositories.IsDuplicateAttributeValue(err) {
						continue
					}
					return fmt.Errorf("association service: copy value %s: %w", v.ID, err)
				}
			}
		}

		edges, err := s.registry.Associations().ListEdgesByMainProduct(ctx, sourceProductID)
		if err != nil {
			return fmt.Errorf("association service: list source edges: %w", err)
		}
		for _, edge := range edges {
			if edge.RelatedProductID == targetProductID {
				continue
			}
			association, err := s.registry.Associations().FindByID(ctx, edge.AssociationID)
			if err != nil {
				return fmt.Errorf("association service: load association %s: %w", edge.AssociationID, err)
			}
			if err := s.relatePair(ctx, association, targetProductID, edge.RelatedProductID); err != nil {
				if isEdgeConflict(err) {
					continue
				}
				return fmt.Errorf("association service: copy edge %s: %w", edge.ID, err)
			}
		}
		return nil
	})
}

func isEdgeConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
