package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/primebox/primebox/primebox/database/models"
	"github.com/uptrace/bun"
)

type NftRepository interface {
	DB() *bun.DB
	GetByID(ctx context.Context, nftID string) (*models.Nft, error)
	// Candidates lists unminted, unreserved items available to the pool.
	Candidates(ctx context.Context, pool models.BoxPool) ([]*models.Nft, error)
	SetInBox(ctx context.Context, nftID string, inBox bool) error
	IncrementReshuffle(ctx context.Context, nftID string) error
	MarkMinted(ctx context.Context, nftID, owner string, amount int64) error
	SetOwner(ctx context.Context, nftID, owner string) error
	Upsert(ctx context.Context, nft *models.Nft) error
	// ReleaseAll clears reservation flags left behind by a crashed process.
	ReleaseAll(ctx context.Context) (int64, error)
}

type nftRepository struct {
	db *bun.DB
}

func NewNftRepository(db *bun.DB) NftRepository {
	return &nftRepository{db: db}
}

func (r *nftRepository) DB() *bun.DB {
	return r.db
}

func (r *nftRepository) GetByID(ctx context.Context, nftID string) (*models.Nft, error) {
	nft := new(models.Nft)
	err := r.db.NewSelect().
		Model(nft).
		Where("nft_id = ?", nftID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get nft: %w", err)
	}
	return nft, nil
}

func (r *nftRepository) Candidates(ctx context.Context, pool models.BoxPool) ([]*models.Nft, error) {
	var nfts []*models.Nft
	err := r.db.NewSelect().
		Model(&nfts).
		Where("box_pool = ?", pool).
		Where("minted = false").
		Where("is_in_box = false").
		Order("reshuffle_count ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get nft candidates: %w", err)
	}
	return nfts, nil
}

func (r *nftRepository) SetInBox(ctx context.Context, nftID string, inBox bool) error {
	_, err := r.db.NewUpdate().
		Model((*models.Nft)(nil)).
		Set("is_in_box = ?", inBox).
		Set("updated_at = ?", time.Now()).
		Where("nft_id = ?", nftID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set in_box flag: %w", err)
	}
	return nil
}

func (r *nftRepository) IncrementReshuffle(ctx context.Context, nftID string) error {
	_, err := r.db.NewUpdate().
		Model((*models.Nft)(nil)).
		Set("reshuffle_count = reshuffle_count + 1").
		Set("updated_at = ?", time.Now()).
		Where("nft_id = ?", nftID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to increment reshuffle count: %w", err)
	}
	return nil
}

func (r *nftRepository) MarkMinted(ctx context.Context, nftID, owner string, amount int64) error {
	now := time.Now()
	_, err := r.db.NewUpdate().
		Model((*models.Nft)(nil)).
		Set("minted = true").
		Set("is_in_box = false").
		Set("owner = ?", owner).
		Set("minted_for = ?", amount).
		Set("minted_at = ?", now).
		Set("updated_at = ?", now).
		Where("nft_id = ?", nftID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark nft minted: %w", err)
	}
	return nil
}

func (r *nftRepository) SetOwner(ctx context.Context, nftID, owner string) error {
	_, err := r.db.NewUpdate().
		Model((*models.Nft)(nil)).
		Set("owner = ?", owner).
		Set("updated_at = ?", time.Now()).
		Where("nft_id = ?", nftID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set nft owner: %w", err)
	}
	return nil
}

func (r *nftRepository) Upsert(ctx context.Context, nft *models.Nft) error {
	nft.UpdatedAt = time.Now()
	_, err := r.db.NewInsert().
		Model(nft).
		On("CONFLICT (nft_id) DO UPDATE").
		Set("nft_name = EXCLUDED.nft_name").
		Set("nft_uri = EXCLUDED.nft_uri").
		Set("nft_image = EXCLUDED.nft_image").
		Set("box_pool = EXCLUDED.box_pool").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert nft: %w", err)
	}
	return nil
}

func (r *nftRepository) ReleaseAll(ctx context.Context) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*models.Nft)(nil)).
		Set("is_in_box = false").
		Set("updated_at = ?", time.Now()).
		Where("is_in_box = true").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to release nfts: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}
