package boxes

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/primebox/primebox/primebox/auth"
	"github.com/primebox/primebox/primebox/database/models"
	"github.com/primebox/primebox/primebox/database/repositories"
)

// BoxInput is the operator-facing shape for creating or updating a box.
type BoxInput struct {
	BoxID         int64          `json:"box_id,omitempty"`
	Pool          models.BoxPool `json:"pool"`
	Kind          models.BoxKind `json:"kind"`
	BuyNowPrice   int64          `json:"buy_now_price,omitempty"`
	BidStartPrice int64          `json:"bid_start_price,omitempty"`
	BidIncrease   int64          `json:"bid_increase,omitempty"`
	Duration      int64          `json:"duration"`
	// Cooldown nil picks the service-wide default; an explicit zero
	// disables the phase entirely.
	Cooldown     *int64 `json:"cooldown,omitempty"`
	Pause        int64  `json:"pause,omitempty"`
	InitialDelay int64  `json:"initial_delay,omitempty"`
}

// Service supervises one worker per runnable box and fronts the
// operator management operations. Management calls must carry a valid
// operator signature.
type Service struct {
	deps     WorkerDeps
	boxes    repositories.BoxConfigRepository
	verifier *auth.Verifier

	mu      sync.Mutex
	workers map[int64]*Worker
	runCtx  context.Context
}

func NewService(deps WorkerDeps, verifier *auth.Verifier) *Service {
	return &Service{
		deps:     deps,
		boxes:    deps.Boxes,
		verifier: verifier,
		workers:  make(map[int64]*Worker),
	}
}

// Start spawns workers for every box that is not in a terminal state.
func (s *Service) Start(ctx context.Context) error {
	s.runCtx = ctx

	runnable, err := s.boxes.GetRunnable(ctx)
	if err != nil {
		return fmt.Errorf("failed to load runnable boxes: %w", err)
	}
	for _, box := range runnable {
		if err := s.spawn(box); err != nil {
			slog.Error("Failed to start box worker",
				slog.String("type", "error"),
				slog.String("box_id", fmt.Sprintf("%d", box.BoxID)),
				slog.Any("error", err))
		}
	}

	slog.Info("Box service started",
		slog.String("type", "box"),
		slog.Int("workers", len(runnable)))
	return nil
}

func (s *Service) spawn(box *models.BoxConfig) error {
	w, err := NewWorker(box, s.deps)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.workers[box.BoxID] = w
	s.mu.Unlock()

	go w.Run(s.runCtx)
	go func() {
		w.Wait()
		s.mu.Lock()
		if s.workers[box.BoxID] == w {
			delete(s.workers, box.BoxID)
		}
		s.mu.Unlock()
	}()
	return nil
}

// cooldownFor resolves a new box's cooldown: an omitted value falls back
// to the service default, an explicit zero turns the phase off.
func (s *Service) cooldownFor(input BoxInput) int64 {
	if input.Cooldown != nil {
		return *input.Cooldown
	}
	if s.deps.CooldownSeconds > 0 {
		return s.deps.CooldownSeconds
	}
	return defaultCooldownSeconds
}

func (s *Service) worker(boxID int64) *Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workers[boxID]
}

// SaveOrUpdateBox validates the price matrix, persists the box and
// (re)starts its worker. Updating a running box restarts its cycle.
func (s *Service) SaveOrUpdateBox(ctx context.Context, wallet, signature string, input BoxInput) (*models.BoxConfig, error) {
	if err := s.verifier.Verify(wallet, signature); err != nil {
		return nil, err
	}
	if _, err := NewMode(input.Kind, input.BuyNowPrice, input.BidStartPrice, input.BidIncrease); err != nil {
		return nil, err
	}
	if input.Duration <= 0 {
		return nil, fmt.Errorf("box duration must be positive")
	}
	if input.Cooldown != nil && *input.Cooldown < 0 {
		return nil, fmt.Errorf("box cooldown must not be negative")
	}

	if input.BoxID == 0 {
		box := &models.BoxConfig{
			BoxPool:          input.Pool,
			BoxKind:          input.Kind,
			BoxState:         models.BoxStatePaused,
			BuyNowPrice:      input.BuyNowPrice,
			BidStartPrice:    input.BidStartPrice,
			BidIncrease:      input.BidIncrease,
			BoxDuration:      input.Duration,
			CooldownDuration: s.cooldownFor(input),
			BoxPause:         input.Pause,
			InitialDelay:     input.InitialDelay,
			Timing:           models.BoxTiming{Phase: models.BoxStatePaused},
		}
		if err := s.boxes.Create(ctx, box); err != nil {
			return nil, err
		}
		if err := s.spawn(box); err != nil {
			return nil, err
		}
		slog.Info("Box created",
			slog.String("type", "box"),
			slog.String("box_id", fmt.Sprintf("%d", box.BoxID)),
			slog.String("operator", wallet))
		return box, nil
	}

	box, err := s.boxes.GetByID(ctx, input.BoxID)
	if err != nil {
		return nil, err
	}
	if box == nil {
		return nil, fmt.Errorf("box %d does not exist", input.BoxID)
	}

	if w := s.worker(input.BoxID); w != nil {
		w.Stop()
		w.Wait()
	}

	box.BoxPool = input.Pool
	box.BoxKind = input.Kind
	box.BuyNowPrice = input.BuyNowPrice
	box.BidStartPrice = input.BidStartPrice
	box.BidIncrease = input.BidIncrease
	box.BoxDuration = input.Duration
	if input.Cooldown != nil {
		box.CooldownDuration = *input.Cooldown
	}
	box.BoxPause = input.Pause
	box.InitialDelay = input.InitialDelay
	box.BoxState = models.BoxStatePaused
	box.Timing = models.BoxTiming{Phase: models.BoxStatePaused}
	if err := s.boxes.Update(ctx, box); err != nil {
		return nil, err
	}
	if err := s.spawn(box); err != nil {
		return nil, err
	}

	slog.Info("Box updated",
		slog.String("type", "box"),
		slog.String("box_id", fmt.Sprintf("%d", box.BoxID)),
		slog.String("operator", wallet))
	return box, nil
}

// DeleteBox takes a box out of rotation. The worker broadcasts the -1
// clock sentinel on its way out.
func (s *Service) DeleteBox(ctx context.Context, wallet, signature string, boxID int64) error {
	if err := s.verifier.Verify(wallet, signature); err != nil {
		return err
	}

	if w := s.worker(boxID); w != nil {
		return w.Remove(ctx)
	}

	box, err := s.boxes.GetByID(ctx, boxID)
	if err != nil {
		return err
	}
	if box == nil {
		return fmt.Errorf("box %d does not exist", boxID)
	}
	box.BoxState = models.BoxStateRemoved
	box.Timing.Phase = models.BoxStateRemoved
	box.Timing.EndsAt = -1
	return s.boxes.Update(ctx, box)
}

// DeleteAllBoxes removes every worker and purges the box table.
func (s *Service) DeleteAllBoxes(ctx context.Context, wallet, signature string) error {
	if err := s.verifier.Verify(wallet, signature); err != nil {
		return err
	}

	s.mu.Lock()
	workers := make([]*Worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()

	for _, w := range workers {
		if err := w.Remove(ctx); err != nil {
			return err
		}
		w.Wait()
	}
	return s.boxes.DeleteAll(ctx)
}

// PlaceBid routes a raw purchase transaction to the box's worker.
func (s *Service) PlaceBid(ctx context.Context, boxID int64, rawTx string) (*BidResult, error) {
	w := s.worker(boxID)
	if w == nil {
		return nil, ErrBoxNotRunning
	}
	return w.PlaceBid(ctx, rawTx)
}

// ActiveBoxes snapshots every box currently taking purchases.
func (s *Service) ActiveBoxes() []*Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Snapshot, 0, len(s.workers))
	for _, w := range s.workers {
		snap := w.Snapshot()
		if snap == nil {
			continue
		}
		if snap.Phase == models.BoxStateActive || snap.Phase == models.BoxStateCooldown {
			out = append(out, snap)
		}
	}
	return out
}

// Shutdown stops all workers and waits for them to persist state.
func (s *Service) Shutdown() {
	s.mu.Lock()
	workers := make([]*Worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()

	for _, w := range workers {
		w.Stop()
	}
	for _, w := range workers {
		w.Wait()
	}
	slog.Info("Box service stopped", slog.String("type", "box"))
}
