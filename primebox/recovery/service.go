package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/primebox/primebox/primebox/chain"
	"github.com/primebox/primebox/primebox/database/models"
	"github.com/primebox/primebox/primebox/database/repositories"
)

// sweepSpec replays failed settlements once a minute.
const sweepSpec = "* * * * *"

// replayConcurrency caps in-flight settlement replays per sweep.
const replayConcurrency = 4

// Chain is the settlement surface the sweep needs.
type Chain interface {
	RecoverBox(ctx context.Context, params chain.RecoverBoxParams) error
}

// Catalog marks a replayed item as sold.
type Catalog interface {
	MarkMinted(ctx context.Context, nftID, owner string, amount int64) error
}

// StatsSink records sales completed by a replay. The worker skips its
// own sale bookkeeping when settlement fails, so the sweep owns it.
type StatsSink interface {
	RecordSale(ctx context.Context, amount int64)
}

// Service persists failed settlements and replays them on a schedule.
// Replays are idempotent: a settlement that landed between attempts is
// detected on-chain and the record simply dropped.
type Service struct {
	recs    repositories.RecoverBoxRepository
	chain   Chain
	catalog Catalog
	stats   StatsSink
	cron    *cron.Cron

	mu sync.Mutex
}

func NewService(recs repositories.RecoverBoxRepository, ch Chain, catalog Catalog, stats StatsSink) *Service {
	return &Service{
		recs:    recs,
		chain:   ch,
		catalog: catalog,
		stats:   stats,
		cron:    cron.New(),
	}
}

// Save queues a failed settlement for replay.
func (s *Service) Save(ctx context.Context, rec *models.RecoverBox) error {
	if err := s.recs.Create(ctx, rec); err != nil {
		return err
	}
	slog.Info("Settlement queued for recovery",
		slog.String("type", "box"),
		slog.String("nft_id", rec.NftID),
		slog.String("winner", rec.Winner))
	return nil
}

func (s *Service) Start() error {
	if _, err := s.cron.AddFunc(sweepSpec, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to schedule recovery sweep: %w", err)
	}
	s.cron.Start()
	slog.Info("Recovery sweep scheduled", slog.String("type", "box"))
	return nil
}

func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep retries every queued settlement, deleting records that land.
// Overlapping runs are collapsed to one.
func (s *Service) Sweep(ctx context.Context) {
	if !s.mu.TryLock() {
		return
	}
	defer s.mu.Unlock()

	recs, err := s.recs.GetAll(ctx)
	if err != nil {
		slog.Error("Failed to list recovery records",
			slog.String("type", "error"),
			slog.Any("error", err))
		return
	}
	if len(recs) == 0 {
		return
	}

	slog.Info("Running recovery sweep",
		slog.String("type", "box"),
		slog.Int("pending", len(recs)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(replayConcurrency)
	for _, rec := range recs {
		rec := rec
		g.Go(func() error {
			err := s.chain.RecoverBox(ctx, chain.RecoverBoxParams{
				BoxAddress:  rec.BoxAddress,
				BoxTreasury: rec.BoxTreasury,
				Winner:      rec.Winner,
				Amount:      rec.WinningAmount,
				NftID:       rec.NftID,
				NftURI:      rec.NftURI,
			})
			if err != nil {
				slog.Warn("Settlement replay failed, keeping record",
					slog.String("nft_id", rec.NftID),
					slog.Any("error", err))
				return nil
			}
			if err := s.catalog.MarkMinted(ctx, rec.NftID, rec.Winner, rec.WinningAmount); err != nil {
				slog.Error("Failed to mark recovered item minted",
					slog.String("type", "error"),
					slog.String("nft_id", rec.NftID),
					slog.Any("error", err))
			}
			s.stats.RecordSale(ctx, rec.WinningAmount)
			if err := s.recs.Delete(ctx, rec.ID); err != nil {
				slog.Error("Failed to delete recovered record",
					slog.String("type", "error"),
					slog.String("id", rec.ID),
					slog.Any("error", err))
				return nil
			}
			slog.Info("Settlement recovered",
				slog.String("type", "box"),
				slog.String("nft_id", rec.NftID),
				slog.String("winner", rec.Winner))
			return nil
		})
	}
	_ = g.Wait()
}
