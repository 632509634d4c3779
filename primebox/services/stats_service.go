package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/primebox/primebox/primebox/auth"
	"github.com/primebox/primebox/primebox/database/models"
	"github.com/primebox/primebox/primebox/database/repositories"
	"github.com/primebox/primebox/primebox/pubsub"
)

// StatsService keeps the global sale counters and pushes live updates.
// It also carries the operator-tunable extension window the workers read
// on every late bid.
type StatsService struct {
	stats       repositories.StatsRepository
	broadcaster pubsub.Broadcaster
	verifier    *auth.Verifier
}

func NewStatsService(stats repositories.StatsRepository, broadcaster pubsub.Broadcaster, verifier *auth.Verifier) *StatsService {
	return &StatsService{stats: stats, broadcaster: broadcaster, verifier: verifier}
}

func (s *StatsService) Start(ctx context.Context) error {
	return s.stats.EnsureRow(ctx)
}

func (s *StatsService) Get(ctx context.Context) (*models.Stats, error) {
	return s.stats.Get(ctx)
}

// RecordBid bumps the bid counter. Failures never block a round.
func (s *StatsService) RecordBid(ctx context.Context) {
	if err := s.stats.IncrementBids(ctx); err != nil {
		slog.Error("Failed to record bid stat",
			slog.String("type", "error"),
			slog.Any("error", err))
		return
	}
	s.publishLive(ctx)
}

func (s *StatsService) RecordSale(ctx context.Context, amount int64) {
	if err := s.stats.RecordSale(ctx, amount); err != nil {
		slog.Error("Failed to record sale stat",
			slog.String("type", "error"),
			slog.Any("error", err))
		return
	}
	s.publishLive(ctx)
}

// ExtendWindowSeconds is the operator's extension window, defaulting to
// 15 when the stats row cannot be read.
func (s *StatsService) ExtendWindowSeconds(ctx context.Context) int64 {
	row, err := s.stats.Get(ctx)
	if err != nil || row == nil || row.SecondsExtending <= 0 {
		return models.DefaultSecondsExtending
	}
	return row.SecondsExtending
}

// UpdateSecondsExtending tunes the extension window. Operator-gated.
func (s *StatsService) UpdateSecondsExtending(ctx context.Context, wallet, signature string, seconds int64) error {
	if err := s.verifier.Verify(wallet, signature); err != nil {
		return err
	}
	if seconds <= 0 {
		return fmt.Errorf("extension window must be positive")
	}
	if err := s.stats.SetSecondsExtending(ctx, seconds); err != nil {
		return err
	}
	slog.Info("Extension window updated",
		slog.String("type", "box"),
		slog.Int64("seconds", seconds),
		slog.String("operator", wallet))
	return nil
}

// SetPoolVisibility toggles a tier's front-facing visibility. Operator-gated.
func (s *StatsService) SetPoolVisibility(ctx context.Context, wallet, signature string, pool models.BoxPool, visible, visibleStats bool) error {
	if err := s.verifier.Verify(wallet, signature); err != nil {
		return err
	}
	return s.stats.UpsertPoolConfig(ctx, &models.PoolConfig{
		BoxPool:        pool,
		IsVisible:      visible,
		IsVisibleStats: visibleStats,
	})
}

// PoolConfigs lists the per-tier visibility rows.
func (s *StatsService) PoolConfigs(ctx context.Context) ([]*models.PoolConfig, error) {
	return s.stats.GetPoolConfigs(ctx)
}

// SetConnectedUsers tracks the live audience counter.
func (s *StatsService) SetConnectedUsers(ctx context.Context, count int64) error {
	if err := s.stats.SetConnectedUsers(ctx, count); err != nil {
		return err
	}
	s.publishLive(ctx)
	return nil
}

func (s *StatsService) publishLive(ctx context.Context) {
	row, err := s.stats.Get(ctx)
	if err != nil || row == nil {
		return
	}
	_ = s.broadcaster.Publish(ctx, pubsub.TopicLiveStats, map[string]interface{}{
		"total_bids":      row.TotalBids,
		"total_sales":     row.TotalSales,
		"highest_sale":    row.HighestSale,
		"connected_users": row.ConnectedUsersCount,
	})
}
