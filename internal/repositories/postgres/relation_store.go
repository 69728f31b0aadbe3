package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/pimgrid/api/internal/domain"
	"github.com/pimgrid/api/internal/repositories"
)

var _ repositories.RelationStore = (*RelationStore)(nil)

const pgUniqueViolation = "23505"

// RelationStore persists product relation rows with conditional writes. The
// link tables carry composite primary keys, so duplicate relates surface as
// unique violations rather than silent overwrites.
type RelationStore struct {
	pool *pgxpool.Pool
}

// NewRelationStore constructs the PostgreSQL relation store.
func NewRelationStore(pool *pgxpool.Pool) *RelationStore {
	return &RelationStore{pool: pool}
}

// Category links -------------------------------------------------------------

// ListProductCategories returns the product's category links.
func (s *RelationStore) ListProductCategories(ctx context.Context, productID string) ([]domain.CategoryLink, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT product_id, category_id, sorting
		FROM product_category
		WHERE product_id = $1
		ORDER BY category_id`, productID)
	if err != nil {
		return nil, fmt.Errorf("list product categories: %w", err)
	}
	return scanCategoryLinks(rows)
}

// ListCategoryMembers returns the category's links ordered by sorting.
func (s *RelationStore) ListCategoryMembers(ctx context.Context, categoryID string) ([]domain.CategoryLink, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT product_id, category_id, sorting
		FROM product_category
		WHERE category_id = $1
		ORDER BY sorting, product_id`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list category members: %w", err)
	}
	return scanCategoryLinks(rows)
}

func scanCategoryLinks(rows pgx.Rows) ([]domain.CategoryLink, error) {
	defer rows.Close()
	var out []domain.CategoryLink
	for rows.Next() {
		var l domain.CategoryLink
		if err := rows.Scan(&l.ProductID, &l.CategoryID, &l.Sorting); err != nil {
			return nil, fmt.Errorf("scan category link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// LinkCategory inserts or refreshes a category link.
func (s *RelationStore) LinkCategory(ctx context.Context, link domain.CategoryLink) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO product_category (product_id, category_id, sorting)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id, category_id) DO UPDATE SET sorting = EXCLUDED.sorting`,
		link.ProductID, link.CategoryID, link.Sorting)
	if err != nil {
		return fmt.Errorf("link category: %w", err)
	}
	return nil
}

// UnlinkCategory removes a category link.
func (s *RelationStore) UnlinkCategory(ctx context.Context, productID, categoryID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM product_category WHERE product_id = $1 AND category_id = $2`,
		productID, categoryID)
	if err != nil {
		return fmt.Errorf("unlink category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewRelationLinkNotFound("relations.unlink_category", productID, categoryID)
	}
	return nil
}

// UpdateCategorySorting patches a single member's sort position.
func (s *RelationStore) UpdateCategorySorting(ctx context.Context, categoryID, productID string, sorting int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE product_category SET sorting = $3
		WHERE category_id = $1 AND product_id = $2`,
		categoryID, productID, sorting)
	if err != nil {
		return fmt.Errorf("update category sorting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewRelationLinkNotFound("relations.update_category_sorting", productID, categoryID)
	}
	return nil
}

// Channel links --------------------------------------------------------------

// ListProductChannels returns the product's channel links.
func (s *RelationStore) ListProductChannels(ctx context.Context, productID string) ([]domain.ChannelLink, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT product_id, channel_id, is_active, from_category_tree
		FROM product_channel
		WHERE product_id = $1
		ORDER BY channel_id`, productID)
	if err != nil {
		return nil, fmt.Errorf("list product channels: %w", err)
	}
	defer rows.Close()
	var out []domain.ChannelLink
	for rows.Next() {
		var l domain.ChannelLink
		if err := rows.Scan(&l.ProductID, &l.ChannelID, &l.Active, &l.FromCategoryTree); err != nil {
			return nil, fmt.Errorf("scan channel link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// FindChannelLink fetches one channel link row.
func (s *RelationStore) FindChannelLink(ctx context.Context, productID, channelID string) (domain.ChannelLink, error) {
	var l domain.ChannelLink
	err := s.pool.QueryRow(ctx, `
		SELECT product_id, channel_id, is_active, from_category_tree
		FROM product_channel
		WHERE product_id = $1 AND channel_id = $2`, productID, channelID).
		Scan(&l.ProductID, &l.ChannelID, &l.Active, &l.FromCategoryTree)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ChannelLink{}, repositories.NewRelationLinkNotFound("relations.find_channel_link", productID, channelID)
	}
	if err != nil {
		return domain.ChannelLink{}, fmt.Errorf("find channel link: %w", err)
	}
	return l, nil
}

// RelateChannel inserts a channel link; an existing row is a conflict.
func (s *RelationStore) RelateChannel(ctx context.Context, link domain.ChannelLink) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO product_channel (product_id, channel_id, is_active, from_category_tree)
		VALUES ($1, $2, $3, $4)`,
		link.ProductID, link.ChannelID, link.Active, link.FromCategoryTree)
	if isUniqueViolation(err) {
		return repositories.NewChannelAlreadyRelated("relations.relate_channel", link.ProductID, link.ChannelID)
	}
	if err != nil {
		return fmt.Errorf("relate channel: %w", err)
	}
	return nil
}

// UnrelateChannel removes a channel link.
func (s *RelationStore) UnrelateChannel(ctx context.Context, productID, channelID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM product_channel WHERE product_id = $1 AND channel_id = $2`,
		productID, channelID)
	if err != nil {
		return fmt.Errorf("unrelate channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewRelationLinkNotFound("relations.unrelate_channel", productID, channelID)
	}
	return nil
}

// UpdateChannelLink patches activation and/or cascade provenance.
func (s *RelationStore) UpdateChannelLink(ctx context.Context, productID, channelID string, active, fromCategoryTree *bool) error {
	sets := make([]string, 0, 2)
	args := []any{productID, channelID}
	if active != nil {
		args = append(args, *active)
		sets = append(sets, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if fromCategoryTree != nil {
		args = append(args, *fromCategoryTree)
		sets = append(sets, fmt.Sprintf("from_category_tree = $%d", len(args)))
	}
	if len(sets) == 0 {
		return nil
	}
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE product_channel SET %s
		WHERE product_id = $1 AND channel_id = $2`, strings.Join(sets, ", ")), args...)
	if err != nil {
		return fmt.Errorf("update channel link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewRelationLinkNotFound("relations.update_channel_link", productID, channelID)
	}
	return nil
}

// DeleteCategoryTreeChannels removes every cascade-derived channel link.
func (s *RelationStore) DeleteCategoryTreeChannels(ctx context.Context, productID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM product_channel WHERE product_id = $1 AND from_category_tree`, productID)
	if err != nil {
		return fmt.Errorf("delete category tree channels: %w", err)
	}
	return nil
}

// Asset slots ----------------------------------------------------------------

// ListAssetSlot returns the product's asset links for one channel slot in
// sort order. The empty channel selects the unscoped slot.
func (s *RelationStore) ListAssetSlot(ctx context.Context, productID, channelID string) ([]domain.AssetLink, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT product_id, asset_id, channel_id, sorting
		FROM product_asset
		WHERE product_id = $1 AND channel_id = $2
		ORDER BY sorting, asset_id`, productID, channelID)
	if err != nil {
		return nil, fmt.Errorf("list asset slot: %w", err)
	}
	defer rows.Close()
	var out []domain.AssetLink
	for rows.Next() {
		var l domain.AssetLink
		if err := rows.Scan(&l.ProductID, &l.AssetID, &l.ChannelID, &l.Sorting); err != nil {
			return nil, fmt.Errorf("scan asset link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// LinkAsset inserts or refreshes an asset link.
func (s *RelationStore) LinkAsset(ctx context.Context, link domain.AssetLink) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO product_asset (product_id, asset_id, channel_id, sorting)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (product_id, asset_id, channel_id) DO UPDATE SET sorting = EXCLUDED.sorting`,
		link.ProductID, link.AssetID, link.ChannelID, link.Sorting)
	if err != nil {
		return fmt.Errorf("link asset: %w", err)
	}
	return nil
}

// UnlinkAsset removes an asset link from its channel slot.
func (s *RelationStore) UnlinkAsset(ctx context.Context, productID, assetID, channelID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM product_asset
		WHERE product_id = $1 AND asset_id = $2 AND channel_id = $3`,
		productID, assetID, channelID)
	if err != nil {
		return fmt.Errorf("unlink asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewRelationLinkNotFound("relations.unlink_asset", productID, assetID)
	}
	return nil
}

// UpdateAssetSorting patches a single asset's sort position within its slot.
func (s *RelationStore) UpdateAssetSorting(ctx context.Context, productID, assetID, channelID string, sorting int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE product_asset SET sorting = $4
		WHERE product_id = $1 AND asset_id = $2 AND channel_id = $3`,
		productID, assetID, channelID, sorting)
	if err != nil {
		return fmt.Errorf("update asset sorting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewRelationLinkNotFound("relations.update_asset_sorting", productID, assetID)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
