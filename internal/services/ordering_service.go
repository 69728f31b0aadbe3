package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/pimgrid/api/internal/domain"
	"github.com/pimgrid/api/internal/repositories"
)

// sortStep is the gap left between adjacent positions so future inserts
// rarely force a renumber.
const sortStep = 10

// SetCategoryPositionCommand positions one product inside a category.
// A nil Sorting appends the product after the current maximum.
type SetCategoryPositionCommand struct {
	CategoryID string
	ProductID  string
	Sorting    *int
}

// SetAssetPositionCommand positions one asset inside a product's channel
// slot. Member is the combined "assetID_channelID" token; the channel part is
// empty for the unscoped slot.
type SetAssetPositionCommand struct {
	ProductID string
	Member    string
	Sorting   *int
}

// OrderingServiceDeps bundles constructor inputs for the ordering service.
type OrderingServiceDeps struct {
	Relations repositories.RelationStore
}

type orderingService struct {
	relations repositories.RelationStore
}

// NewOrderingService constructs the ordering service.
func NewOrderingService(deps OrderingServiceDeps) (OrderingService, error) {
	if deps.Relations == nil {
		return nil, errors.New("ordering service: relation store is required")
	}
	return &orderingService{relations: deps.Relations}, nil
}

func (s *orderingService) SetCategoryPosition(ctx context.Context, cmd SetCategoryPositionCommand) error {
	if cmd.CategoryID == "" || cmd.ProductID == "" {
		return errors.New("ordering service: category id and product id are required")
	}
	members, err := s.relations.ListCategoryMembers(ctx, cmd.CategoryID)
	if err != nil {
		return fmt.Errorf("ordering service: list category members: %w", err)
	}

	plan, err := reposition(categoryMembers(members), cmd.ProductID, cmd.Sorting)
	if err != nil {
		return err
	}
	for _, mv := range plan {
		if err := s.relations.UpdateCategorySorting(ctx, cmd.CategoryID, mv.id, mv.sorting); err != nil {
			return fmt.Errorf("ordering service: update sorting for %s: %w", mv.id, err)
		}
	}
	return nil
}

func (s *orderingService) SetAssetPosition(ctx context.Context, cmd SetAssetPositionCommand) error {
	if cmd.ProductID == "" || cmd.Member == "" {
		return errors.New("ordering service: product id and member token are required")
	}
	assetID, channelID := splitAssetMember(cmd.Member)
	slot, err := s.relations.ListAssetSlot(ctx, cmd.ProductID, channelID)
	if err != nil {
		return fmt.Errorf("ordering service: list asset slot: %w", err)
	}

	plan, err := reposition(assetMembers(slot), assetID, cmd.Sorting)
	if err != nil {
		return err
	}
	for _, mv := range plan {
		if err := s.relations.UpdateAssetSorting(ctx, cmd.ProductID, mv.id, channelID, mv.sorting); err != nil {
			return fmt.Errorf("ordering service: update sorting for %s: %w", mv.id, err)
		}
	}
	return nil
}

// splitAssetMember parses the combined member token into asset and channel
// parts. Tokens without a separator address the unscoped slot.
func splitAssetMember(member string) (assetID, channelID string) {
	if i := strings.Index(member, "_"); i >= 0 {
		return member[:i], member[i+1:]
	}
	return member, ""
}

type orderedMember struct {
	id      string
	sorting int
}

type move struct {
	id      string
	sorting int
}

func categoryMembers(links []domain.CategoryLink) []orderedMember {
	out := make([]orderedMember, len(links))
	for i, l := range links {
		out[i] = orderedMember{id: l.ProductID, sorting: l.Sorting}
	}
	return out
}

func assetMembers(links []domain.AssetLink) []orderedMember {
	out := make([]orderedMember, len(links))
	for i, l := range links {
		out[i] = orderedMember{id: l.AssetID, sorting: l.Sorting}
	}
	return out
}

// reposition computes the minimal set of sorting writes for one member move.
// Members must arrive ordered ascending by current position.
//
// Without an explicit value the member is appended at max+step and nothing
// else moves. With an explicit value the member takes it, then every other
// member at or beyond that value is re-spaced step apart, preserving
// relative order and keeping positions pairwise distinct.
func reposition(members []orderedMember, memberID string, sorting *int) ([]move, error) {
	found := false
	for _, m := range members {
		if m.id == memberID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotGroupMember, memberID)
	}

	if sorting == nil {
		max := -sortStep
		for _, m := range members {
			if m.sorting > max {
				max = m.sorting
			}
		}
		return []move{{id: memberID, sorting: max + sortStep}}, nil
	}

	target := *sorting
	if target < 0 {
		return nil, ErrNegativeSorting
	}

	plan := []move{{id: memberID, sorting: target}}
	prevMax := target
	for _, m := range members {
		if m.id == memberID || m.sorting < target {
			continue
		}
		prevMax += sortStep
		plan = append(plan, move{id: m.id, sorting: prevMax})
	}
	return plan, nil
}
