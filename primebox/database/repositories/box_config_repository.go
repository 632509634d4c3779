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

type BoxConfigRepository interface {
	DB() *bun.DB
	Create(ctx context.Context, box *models.BoxConfig) error
	Update(ctx context.Context, box *models.BoxConfig) error
	GetByID(ctx context.Context, boxID int64) (*models.BoxConfig, error)
	// GetRunnable returns every box a worker should be started for.
	GetRunnable(ctx context.Context) ([]*models.BoxConfig, error)
	GetActive(ctx context.Context) ([]*models.BoxConfig, error)
	Delete(ctx context.Context, boxID int64) error
	DeleteAll(ctx context.Context) error
}

type boxConfigRepository struct {
	db *bun.DB
}

func NewBoxConfigRepository(db *bun.DB) BoxConfigRepository {
	return &boxConfigRepository{db: db}
}

func (r *boxConfigRepository) DB() *bun.DB {
	return r.db
}

func (r *boxConfigRepository) Create(ctx context.Context, box *models.BoxConfig) error {
	box.CreatedAt = time.Now()
	box.UpdatedAt = time.Now()

	_, err := r.db.NewInsert().Model(box).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create box config: %w", err)
	}
	return nil
}

func (r *boxConfigRepository) Update(ctx context.Context, box *models.BoxConfig) error {
	box.UpdatedAt = time.Now()

	_, err := r.db.NewUpdate().
		Model(box).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update box config: %w", err)
	}
	return nil
}

func (r *boxConfigRepository) GetByID(ctx context.Context, boxID int64) (*models.BoxConfig, error) {
	box := new(models.BoxConfig)
	err := r.db.NewSelect().
		Model(box).
		Where("box_id = ?", boxID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get box config: %w", err)
	}
	return box, nil
}

func (r *boxConfigRepository) GetRunnable(ctx context.Context) ([]*models.BoxConfig, error) {
	var boxes []*models.BoxConfig
	err := r.db.NewSelect().
		Model(&boxes).
		Where("box_state NOT IN (?)", bun.In([]models.BoxState{models.BoxStateRemoved, models.BoxStateMinted})).
		Order("box_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get runnable boxes: %w", err)
	}
	return boxes, nil
}

func (r *boxConfigRepository) GetActive(ctx context.Context) ([]*models.BoxConfig, error) {
	var boxes []*models.BoxConfig
	err := r.db.NewSelect().
		Model(&boxes).
		Where("box_state IN (?)", bun.In([]models.BoxState{models.BoxStateActive, models.BoxStateCooldown})).
		Order("box_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get active boxes: %w", err)
	}
	return boxes, nil
}

func (r *boxConfigRepository) Delete(ctx context.Context, boxID int64) error {
	_, err := r.db.NewDelete().
		Model((*models.BoxConfig)(nil)).
		Where("box_id = ?", boxID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete box config: %w", err)
	}
	return nil
}

func (r *boxConfigRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.NewDelete().
		Model((*models.BoxConfig)(nil)).
		Where("1=1").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete box configs: %w", err)
	}
	return nil
}
