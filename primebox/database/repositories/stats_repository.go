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

type StatsRepository interface {
	DB() *bun.DB
	// EnsureRow creates the singleton stats row with defaults if missing.
	EnsureRow(ctx context.Context) error
	Get(ctx context.Context) (*models.Stats, error)
	IncrementBids(ctx context.Context) error
	RecordSale(ctx context.Context, amount int64) error
	SetSecondsExtending(ctx context.Context, seconds int64) error
	SetConnectedUsers(ctx context.Context, count int64) error
	UpsertPoolConfig(ctx context.Context, pc *models.PoolConfig) error
	GetPoolConfigs(ctx context.Context) ([]*models.PoolConfig, error)
}

type statsRepository struct {
	db *bun.DB
}

func NewStatsRepository(db *bun.DB) StatsRepository {
	return &statsRepository{db: db}
}

func (r *statsRepository) DB() *bun.DB {
	return r.db
}

func (r *statsRepository) EnsureRow(ctx context.Context) error {
	row := &models.Stats{
		ID:               models.StatsRowID,
		SecondsExtending: models.DefaultSecondsExtending,
		UpdatedAt:        time.Now(),
	}
	_, err := r.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure stats row: %w", err)
	}
	return nil
}

func (r *statsRepository) Get(ctx context.Context) (*models.Stats, error) {
	stats := new(models.Stats)
	err := r.db.NewSelect().
		Model(stats).
		Where("id = ?", models.StatsRowID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

func (r *statsRepository) IncrementBids(ctx context.Context) error {
	_, err := r.db.NewUpdate().
		Model((*models.Stats)(nil)).
		Set("total_bids = total_bids + 1").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", models.StatsRowID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to increment bids: %w", err)
	}
	return nil
}

func (r *statsRepository) RecordSale(ctx context.Context, amount int64) error {
	_, err := r.db.NewUpdate().
		Model((*models.Stats)(nil)).
		Set("total_sales = total_sales + 1").
		Set("highest_sale = GREATEST(highest_sale, ?)", amount).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", models.StatsRowID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record sale: %w", err)
	}
	return nil
}

func (r *statsRepository) SetSecondsExtending(ctx context.Context, seconds int64) error {
	_, err := r.db.NewUpdate().
		Model((*models.Stats)(nil)).
		Set("seconds_extending = ?", seconds).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", models.StatsRowID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set seconds extending: %w", err)
	}
	return nil
}

func (r *statsRepository) SetConnectedUsers(ctx context.Context, count int64) error {
	_, err := r.db.NewUpdate().
		Model((*models.Stats)(nil)).
		Set("connected_users_count = ?", count).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", models.StatsRowID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set connected users: %w", err)
	}
	return nil
}

func (r *statsRepository) UpsertPoolConfig(ctx context.Context, pc *models.PoolConfig) error {
	_, err := r.db.NewInsert().
		Model(pc).
		On("CONFLICT (box_pool) DO UPDATE").
		Set("is_visible = EXCLUDED.is_visible").
		Set("is_visible_stats = EXCLUDED.is_visible_stats").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert pool config: %w", err)
	}
	return nil
}

func (r *statsRepository) GetPoolConfigs(ctx context.Context) ([]*models.PoolConfig, error) {
	var configs []*models.PoolConfig
	err := r.db.NewSelect().
		Model(&configs).
		Order("box_pool ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get pool configs: %w", err)
	}
	return configs, nil
}
