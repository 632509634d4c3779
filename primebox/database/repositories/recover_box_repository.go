package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/primebox/primebox/primebox/database/models"
	"github.com/uptrace/bun"
)

type RecoverBoxRepository interface {
	DB() *bun.DB
	Create(ctx context.Context, rec *models.RecoverBox) error
	GetAll(ctx context.Context) ([]*models.RecoverBox, error)
	Delete(ctx context.Context, id string) error
}

type recoverBoxRepository struct {
	db *bun.DB
}

func NewRecoverBoxRepository(db *bun.DB) RecoverBoxRepository {
	return &recoverBoxRepository{db: db}
}

func (r *recoverBoxRepository) DB() *bun.DB {
	return r.db
}

func (r *recoverBoxRepository) Create(ctx context.Context, rec *models.RecoverBox) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.FailedAt.IsZero() {
		rec.FailedAt = time.Now()
	}

	_, err := r.db.NewInsert().Model(rec).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create recover record: %w", err)
	}
	return nil
}

func (r *recoverBoxRepository) GetAll(ctx context.Context) ([]*models.RecoverBox, error) {
	var recs []*models.RecoverBox
	err := r.db.NewSelect().
		Model(&recs).
		Order("failed_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get recover records: %w", err)
	}
	return recs, nil
}

func (r *recoverBoxRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().
		Model((*models.RecoverBox)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete recover record: %w", err)
	}
	return nil
}
