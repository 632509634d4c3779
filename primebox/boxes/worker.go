package boxes

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/primebox/primebox/primebox/chain"
	"github.com/primebox/primebox/primebox/database/models"
	"github.com/primebox/primebox/primebox/database/repositories"
	"github.com/primebox/primebox/primebox/pubsub"
)

const (
	// cooldownExtendWindow is the tail of the cooldown phase during which
	// a bid stretches the clock by remaining + cooldownExtendWindow.
	cooldownExtendWindow = 5

	initMaxRetries = 10
	initRetryDelay = 2 * time.Second

	setupRetryDelay = 10 * time.Second

	// recoveryMinRemaining floors the clock adopted after a restart so a
	// round never resumes moments from expiry.
	recoveryMinRemaining = 300

	defaultCooldownSeconds = 60
)

// SettlementChain is what a worker needs from the program bindings.
type SettlementChain interface {
	InitBox(ctx context.Context, params chain.InitBoxParams) error
	ResolveBox(ctx context.Context, params chain.ResolveBoxParams) error
	FetchBox(ctx context.Context, boxID int64) (*chain.BoxAccount, error)
	BoxAddress(boxID int64) string
	TreasuryAddress(boxID int64) string
}

// StatsSink records bid and sale counters and exposes the operator's
// extension window.
type StatsSink interface {
	RecordBid(ctx context.Context)
	RecordSale(ctx context.Context, amount int64)
	ExtendWindowSeconds(ctx context.Context) int64
}

// RecoverySink queues failed settlements for replay.
type RecoverySink interface {
	Save(ctx context.Context, rec *models.RecoverBox) error
}

type WorkerDeps struct {
	Boxes       repositories.BoxConfigRepository
	Nfts        repositories.NftRepository
	Allocator   *Allocator
	Validator   *Validator
	Chain       SettlementChain
	Stats       StatsSink
	Recovery    RecoverySink
	Broadcaster pubsub.Broadcaster

	// CooldownSeconds is the default applied when a box is created
	// without an explicit cooldown. A per-box zero disables the phase.
	CooldownSeconds int64
}

// Snapshot is the externally visible state of a running box.
type Snapshot struct {
	BoxID       int64           `json:"box_id"`
	Phase       models.BoxState `json:"phase"`
	Pool        models.BoxPool  `json:"pool"`
	Kind        models.BoxKind  `json:"kind"`
	StartedAt   int64           `json:"started_at"`
	EndsAt      int64           `json:"ends_at"`
	CurrentBid  int64           `json:"current_bid"`
	Bidder      string          `json:"bidder,omitempty"`
	BidderName  string          `json:"bidder_name,omitempty"`
	Bids        int             `json:"bids"`
	BuyNowPrice int64           `json:"buy_now_price,omitempty"`
	MinNextBid  int64           `json:"min_next_bid,omitempty"`
	NftImage    string          `json:"nft_image,omitempty"`
}

type placeBidCmd struct {
	raw   string
	reply chan bidReply
}

type bidReply struct {
	result *BidResult
	err    error
}

type removeCmd struct {
	reply chan struct{}
}

// Worker owns one box's lifecycle. All round state lives on the Run
// goroutine; callers talk to it through the command channel only.
type Worker struct {
	deps WorkerDeps
	cmds chan interface{}
	quit chan struct{}
	done chan struct{}
	snap atomic.Pointer[Snapshot]

	stopOnce sync.Once

	// owned by Run
	box        *models.BoxConfig
	mode       Mode
	nft        *models.Nft
	bidder     string
	bidderName string
	currentBid int64
	lastBidAt  int64
	adopted    bool
}

func NewWorker(box *models.BoxConfig, deps WorkerDeps) (*Worker, error) {
	mode, err := ModeFor(box)
	if err != nil {
		return nil, err
	}
	return &Worker{
		deps: deps,
		cmds: make(chan interface{}),
		quit: make(chan struct{}),
		done: make(chan struct{}),
		box:  box,
		mode: mode,
	}, nil
}

func (w *Worker) BoxID() int64 {
	return w.box.BoxID
}

// Snapshot returns the last published state, nil before the first phase.
func (w *Worker) Snapshot() *Snapshot {
	return w.snap.Load()
}

// PlaceBid forwards a raw purchase transaction to the Run goroutine and
// waits for the verdict.
func (w *Worker) PlaceBid(ctx context.Context, rawTx string) (*BidResult, error) {
	snap := w.Snapshot()
	if snap == nil || (snap.Phase != models.BoxStateActive && snap.Phase != models.BoxStateCooldown) {
		return nil, ErrBidWindowClosed
	}

	cmd := placeBidCmd{raw: rawTx, reply: make(chan bidReply, 1)}
	select {
	case w.cmds <- cmd:
	case <-w.done:
		return nil, ErrBoxNotRunning
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-cmd.reply:
		return r.result, r.err
	case <-w.done:
		return nil, ErrBoxNotRunning
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Remove takes the box out of rotation and waits for the worker to
// acknowledge.
func (w *Worker) Remove(ctx context.Context) error {
	cmd := removeCmd{reply: make(chan struct{}, 1)}
	select {
	case w.cmds <- cmd:
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-cmd.reply:
		return nil
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop asks the worker to park at the next opportunity. Wait blocks
// until the Run goroutine has exited.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}

func (w *Worker) Wait() {
	<-w.done
}

// Run drives the phase loop until the box reaches a terminal state, the
// worker is stopped, or the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	slog.Info("Box worker started",
		slog.String("type", "box"),
		slog.String("box_id", fmt.Sprintf("%d", w.box.BoxID)),
		slog.String("phase", string(w.box.BoxState)))

	w.recoverFromRestart(ctx)

	for {
		if removed := w.drainCommands(); removed {
			w.box.BoxState = models.BoxStateRemoved
		}
		w.publishState(ctx)

		if ctx.Err() != nil || w.closing() {
			w.persist(ctx)
			slog.Info("Box worker stopped",
				slog.String("type", "box"),
				slog.String("box_id", fmt.Sprintf("%d", w.box.BoxID)))
			return
		}

		var next models.BoxState
		switch w.box.BoxState {
		case models.BoxStatePaused:
			next = w.runPaused(ctx)
		case models.BoxStateSetup:
			next = w.runSetup(ctx)
		case models.BoxStateInit:
			next = w.runInit(ctx)
		case models.BoxStateActive:
			next = w.runActive(ctx)
		case models.BoxStateCooldown:
			next = w.runCooldown(ctx)
		case models.BoxStateResolve:
			next = w.runResolve(ctx)
		case models.BoxStateRemoved, models.BoxStateMinted:
			w.park(ctx)
			return
		default:
			next = models.BoxStatePaused
		}

		if ctx.Err() != nil || w.closing() {
			w.persist(ctx)
			return
		}
		w.setPhase(ctx, next)
	}
}

// recoverFromRestart adopts on-chain round state when the previous
// process died mid-round: the chain has bids recorded but no settlement.
func (w *Worker) recoverFromRestart(ctx context.Context) {
	phase := w.box.BoxState
	if phase != models.BoxStateActive && phase != models.BoxStateCooldown {
		if phase != models.BoxStatePaused || w.box.Timing.EndsAt != -1 {
			w.box.BoxState = models.BoxStatePaused
			w.box.Timing.EndsAt = 0
		}
		return
	}

	acc, err := w.deps.Chain.FetchBox(ctx, w.box.BoxID)
	if err != nil || acc == nil || acc.Executions == 0 || acc.Resolved {
		if err != nil {
			slog.Error("Failed to fetch box account during recovery",
				slog.String("type", "error"),
				slog.String("box_id", fmt.Sprintf("%d", w.box.BoxID)),
				slog.Any("error", err))
		}
		w.box.BoxState = models.BoxStatePaused
		w.box.Timing.EndsAt = 0
		return
	}

	nft, err := w.deps.Allocator.Reclaim(ctx, w.box.CurrentNftID)
	if err != nil {
		slog.Error("Failed to reclaim item during recovery",
			slog.String("type", "error"),
			slog.String("box_id", fmt.Sprintf("%d", w.box.BoxID)),
			slog.Any("error", err))
		w.box.BoxState = models.BoxStatePaused
		w.box.Timing.EndsAt = 0
		return
	}

	now := time.Now().Unix()
	remaining := w.box.Timing.EndsAt - now
	if remaining < recoveryMinRemaining {
		remaining = recoveryMinRemaining
	}

	w.nft = nft
	w.bidder = acc.Bidder
	w.currentBid = int64(acc.CurrentBid)
	w.lastBidAt = w.box.LastBidAt
	if n := len(w.box.BidHistory); n > 0 {
		w.bidderName = w.box.BidHistory[n-1].Username
	}
	w.box.Timing.StartedAt = now
	w.box.Timing.EndsAt = now + remaining
	w.box.BoxState = models.BoxStateActive
	w.adopted = true
	w.persist(ctx)

	slog.Info("Adopted in-flight round from chain",
		slog.String("type", "box"),
		slog.String("box_id", fmt.Sprintf("%d", w.box.BoxID)),
		slog.String("bidder", w.bidder),
		slog.Int64("current_bid", w.currentBid),
		slog.Int64("remaining", remaining))
}

func (w *Worker) runPaused(ctx context.Context) models.BoxState {
	// EndsAt == -1 parks the box until an operator intervenes.
	if w.box.Timing.EndsAt == -1 {
		for {
			select {
			case <-ctx.Done():
				return models.BoxStatePaused
			case <-w.quit:
				return models.BoxStatePaused
			case cmd := <-w.cmds:
				switch c := cmd.(type) {
				case placeBidCmd:
					c.reply <- bidReply{err: ErrBidWindowClosed}
				case removeCmd:
					c.reply <- struct{}{}
					return models.BoxStateRemoved
				}
			}
		}
	}

	// The initial delay only holds back a box that has never run a cycle.
	if w.box.InitialDelay <= 0 || w.box.ExecutionsCount > 0 {
		return models.BoxStateSetup
	}

	w.box.Timing.EndsAt = time.Now().Unix() + w.box.InitialDelay
	w.persist(ctx)
	w.publishState(ctx)

	timer := time.NewTimer(time.Duration(w.box.InitialDelay) * time.Second)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return models.BoxStatePaused
		case <-w.quit:
			return models.BoxStatePaused
		case <-timer.C:
			w.box.Timing.EndsAt = 0
			return models.BoxStateSetup
		case cmd := <-w.cmds:
			switch c := cmd.(type) {
			case placeBidCmd:
				c.reply <- bidReply{err: ErrBidWindowClosed}
			case removeCmd:
				c.reply <- struct{}{}
				return models.BoxStateRemoved
			}
		}
	}
}

func (w *Worker) runSetup(ctx context.Context) models.BoxState {
	w.resetRound()

	// Breather between cycles, skipped for the first round.
	if w.box.BoxPause > 0 && w.box.ExecutionsCount > 0 {
		if !w.sleep(ctx, time.Duration(w.box.BoxPause)*time.Second) {
			return models.BoxStateSetup
		}
	}

	nft, err := w.deps.Allocator.Acquire(ctx, w.box.BoxPool)
	if err == ErrNoItemsAvailable {
		slog.Info("Pool exhausted, box is done",
			slog.String("type", "box"),
			slog.String("box_id", fmt.Sprintf("%d", w.box.BoxID)))
		return models.BoxStateMinted
	}
	if err != nil {
		slog.Error("Failed to allocate item",
			slog.String("type", "error"),
			slog.String("box_id", fmt.Sprintf("%d", w.box.BoxID)),
			slog.Any("error", err))
		w.sleep(ctx, setupRetryDelay)
		return models.BoxStateSetup
	}

	w.nft = nft
	w.box.CurrentNftID = nft.NftID
	w.persist(ctx)

	slog.Info("Item allocated",
		slog.String("type", "box"),
		slog.String("box_id", fmt.Sprintf("%d", w.box.BoxID)),
		slog.String("nft_id", nft.NftID))

	return models.BoxStateInit
}

func (w *Worker) runInit(ctx context.Context) models.BoxState {
	params := chain.InitBoxParams{
		BoxID:         w.box.BoxID,
		Pool:          int64(w.box.BoxPool),
		Kind:          int64(w.box.BoxKind),
		BuyNowPrice:   w.box.BuyNowPrice,
		BidStartPrice: w.box.BidStartPrice,
		BidIncrease:   w.box.BidIncrease,
		Duration:      w.box.BoxDuration,
		NftID:         w.nft.NftID,
		NftURI:        w.nft.NftURI,
	}

	var lastErr error
	for attempt := 1; attempt <= initMaxRetries; attempt++ {
		if lastErr = w.deps.Chain.InitBox(ctx, params); lastErr == nil {
			return models.BoxStateActive
		}
		slog.Warn("Init instruction failed",
			slog.String("type", "chain"),
			slog.String("box_id", fmt.Sprintf("%d", w.box.BoxID)),
			slog.Int("attempt", attempt),
			slog.Any("error", lastErr))
		if !w.sleep(ctx, initRetryDelay) {
			return w.box.BoxState
		}
	}

	slog.Error("Giving up on box init, parking",
		slog.String("type", "error"),
		slog.String("box_id", fmt.Sprintf("%d", w.box.BoxID)),
		slog.Any("error", lastErr))

	if w.nft != nil {
		_ = w.deps.Allocator.Release(ctx, w.nft.NftID)
		w.nft = nil
		w.box.CurrentNftID = ""
	}
	w.box.Timing.EndsAt = -1
	return models.BoxStatePaused
}

func (w *Worker) runActive(ctx context.Context) models.BoxState {
	timer := time.NewTimer(untilUnix(w.box.Timing.EndsAt))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return models.BoxStateActive
		case <-w.quit:
			return models.BoxStateActive
		case <-timer.C:
			if w.bidder != "" && w.box.CooldownDuration > 0 {
				return models.BoxStateCooldown
			}
			return models.BoxStateResolve
		case cmd := <-w.cmds:
			switch c := cmd.(type) {
			case placeBidCmd:
				if next, done := w.handleBid(ctx, c, models.BoxStateActive, timer); done {
					return next
				}
			case removeCmd:
				c.reply <- struct{}{}
				return models.BoxStateRemoved
			}
		}
	}
}

func (w *Worker) runCooldown(ctx context.Context) models.BoxState {
	timer := time.NewTimer(untilUnix(w.box.Timing.EndsAt))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return models.BoxStateCooldown
		case <-w.quit:
			return models.BoxStateCooldown
		case <-timer.C:
			return models.BoxStateResolve
		case cmd := <-w.cmds:
			switch c := cmd.(type) {
			case placeBidCmd:
				if next, done := w.handleBid(ctx, c, models.BoxStateCooldown, timer); done {
					return next
				}
			case removeCmd:
				c.reply <- struct{}{}
				return models.BoxStateRemoved
			}
		}
	}
}

// handleBid validates one purchase command. done is true when the phase
// must change immediately (instant purchase preempting the round).
func (w *Worker) handleBid(ctx context.Context, cmd placeBidCmd, phase models.BoxState, timer *time.Timer) (models.BoxState, bool) {
	now := time.Now().Unix()
	remaining := w.box.Timing.EndsAt - now
	if remaining <= minRemainingSeconds {
		cmd.reply <- bidReply{err: ErrBidWindowClosed}
		return "", false
	}

	bctx := &BidContext{
		Box:        w.box,
		Nft:        w.nft,
		Mode:       w.mode,
		Phase:      phase,
		Remaining:  remaining,
		CurrentBid: w.currentBid,
		History:    w.box.BidHistory,
	}
	result, err := w.deps.Validator.Validate(ctx, cmd.raw, bctx)
	if err != nil {
		cmd.reply <- bidReply{err: err}
		return "", false
	}

	w.currentBid = result.Amount
	w.bidder = result.Bidder
	w.bidderName = result.Username
	w.lastBidAt = now
	w.box.BidHistory = append(w.box.BidHistory, models.BidEntry{
		Wallet:   result.Bidder,
		Username: result.Username,
		Amount:   result.Amount,
		NftID:    w.nft.NftID,
		BidAt:    time.Now(),
	})
	w.deps.Stats.RecordBid(ctx)

	if result.PreemptedAuthority != "" {
		_ = w.deps.Broadcaster.Publish(ctx, pubsub.TopicBidPreempted, map[string]interface{}{
			"box_id":    w.box.BoxID,
			"wallet":    result.PreemptedAuthority,
			"outbid_by": result.Bidder,
			"amount":    result.Amount,
		})
	}

	if result.Action.IsBuy() {
		// The validator already enforced phase and the 5s floor; the
		// round settles now at the fixed price.
		cmd.reply <- bidReply{result: result}
		w.persist(ctx)
		return models.BoxStateResolve, true
	}

	w.extendClock(ctx, phase, remaining, now, timer)

	cmd.reply <- bidReply{result: result}
	w.persist(ctx)
	w.publishState(ctx)
	return "", false
}

// extendClock applies the anti-sniping rules. A bid landing inside the
// extension window pushes the clock to now + remaining + window + 1 in
// the active phase, and to now + remaining + 5 in cooldown.
func (w *Worker) extendClock(ctx context.Context, phase models.BoxState, remaining, now int64, timer *time.Timer) {
	switch phase {
	case models.BoxStateActive:
		window := w.deps.Stats.ExtendWindowSeconds(ctx)
		if remaining <= window {
			w.box.Timing.EndsAt = now + remaining + window + 1
			resetTimer(timer, untilUnix(w.box.Timing.EndsAt))
		}
	case models.BoxStateCooldown:
		if remaining <= cooldownExtendWindow {
			w.box.Timing.EndsAt = now + remaining + cooldownExtendWindow
			resetTimer(timer, untilUnix(w.box.Timing.EndsAt))
		}
	}
}

func (w *Worker) runResolve(ctx context.Context) models.BoxState {
	if w.bidder == "" {
		// Nothing sold: item goes back for a reshuffle.
		if w.nft != nil {
			if err := w.deps.Allocator.Release(ctx, w.nft.NftID); err != nil {
				slog.Error("Failed to release item",
					slog.String("type", "error"),
					slog.String("box_id", fmt.Sprintf("%d", w.box.BoxID)),
					slog.Any("error", err))
			}
		}
		w.box.ExecutionsCount++
		w.resetRound()
		w.persist(ctx)
		return models.BoxStateSetup
	}

	params := chain.ResolveBoxParams{
		BoxID:  w.box.BoxID,
		Winner: w.bidder,
		Amount: w.currentBid,
		NftID:  w.nft.NftID,
		NftURI: w.nft.NftURI,
	}
	if err := w.deps.Chain.ResolveBox(ctx, params); err != nil {
		slog.Error("Settlement failed, queueing recovery",
			slog.String("type", "error"),
			slog.String("box_id", fmt.Sprintf("%d", w.box.BoxID)),
			slog.Any("error", err))
		if saveErr := w.deps.Recovery.Save(ctx, &models.RecoverBox{
			BoxAddress:    w.deps.Chain.BoxAddress(w.box.BoxID),
			BoxTreasury:   w.deps.Chain.TreasuryAddress(w.box.BoxID),
			Winner:        w.bidder,
			WinningAmount: w.currentBid,
			NftID:         w.nft.NftID,
			NftURI:        w.nft.NftURI,
		}); saveErr != nil {
			slog.Error("Failed to queue settlement recovery",
				slog.String("type", "error"),
				slog.String("box_id", fmt.Sprintf("%d", w.box.BoxID)),
				slog.Any("error", saveErr))
		}
	} else {
		// Stats and the catalog only reflect settlements that landed; a
		// queued failure is completed by the recovery sweep instead. The
		// sale is counted once here, whether the final bid came from the
		// clock running out or an instant purchase.
		w.deps.Stats.RecordSale(ctx, w.currentBid)
		if err := w.deps.Nfts.MarkMinted(ctx, w.nft.NftID, w.bidder, w.currentBid); err != nil {
			slog.Error("Failed to mark item minted",
				slog.String("type", "error"),
				slog.String("box_id", fmt.Sprintf("%d", w.box.BoxID)),
				slog.Any("error", err))
		}
	}
	_ = w.deps.Allocator.Finish(ctx, w.nft.NftID)

	_ = w.deps.Broadcaster.Publish(ctx, pubsub.TopicWonNotice, map[string]interface{}{
		"box_id":   w.box.BoxID,
		"wallet":   w.bidder,
		"username": w.bidderName,
		"amount":   w.currentBid,
		"nft_id":   w.nft.NftID,
		"nft_name": w.nft.NftName,
	})

	slog.Info("Round settled",
		slog.String("type", "box"),
		slog.String("box_id", fmt.Sprintf("%d", w.box.BoxID)),
		slog.String("winner", w.bidder),
		slog.Int64("amount", w.currentBid),
		slog.String("nft_id", w.nft.NftID))

	w.box.ExecutionsCount++
	soldNftPool := w.box.BoxPool
	w.resetRound()
	w.persist(ctx)

	remainingItems, err := w.deps.Nfts.Candidates(ctx, soldNftPool)
	if err == nil && len(remainingItems) == 0 {
		return models.BoxStateMinted
	}
	return models.BoxStateSetup
}

// park persists a terminal state and broadcasts the -1 clock sentinel.
func (w *Worker) park(ctx context.Context) {
	w.box.Timing.EndsAt = -1
	w.persist(ctx)
	w.publishState(ctx)

	slog.Info("Box reached terminal state",
		slog.String("type", "box"),
		slog.String("box_id", fmt.Sprintf("%d", w.box.BoxID)),
		slog.String("phase", string(w.box.BoxState)))
}

func (w *Worker) setPhase(ctx context.Context, next models.BoxState) {
	now := time.Now().Unix()
	w.box.BoxState = next
	w.box.Timing.Phase = next
	switch next {
	case models.BoxStateActive:
		if !w.adopted {
			w.box.Timing.StartedAt = now
			w.box.Timing.EndsAt = now + w.box.BoxDuration
		}
	case models.BoxStateCooldown:
		w.box.Timing.EndsAt = now + w.box.CooldownDuration
	}
	// The adopted clock only covers the round it was reconstructed for;
	// any transition drops it so the next Active entry gets a fresh one.
	w.adopted = false
	w.persist(ctx)
}

func (w *Worker) resetRound() {
	w.nft = nil
	w.bidder = ""
	w.bidderName = ""
	w.currentBid = 0
	w.lastBidAt = 0
	w.box.CurrentNftID = ""
	w.box.BidHistory = nil
}

func (w *Worker) persist(ctx context.Context) {
	w.box.CurrentBidder = w.bidder
	w.box.CurrentBid = w.currentBid
	w.box.LastBidAt = w.lastBidAt
	if err := w.deps.Boxes.Update(ctx, w.box); err != nil {
		slog.Error("Failed to persist box",
			slog.String("type", "error"),
			slog.String("box_id", fmt.Sprintf("%d", w.box.BoxID)),
			slog.Any("error", err))
	}
}

func (w *Worker) publishState(ctx context.Context) {
	snap := &Snapshot{
		BoxID:      w.box.BoxID,
		Phase:      w.box.BoxState,
		Pool:       w.box.BoxPool,
		Kind:       w.box.BoxKind,
		StartedAt:  w.box.Timing.StartedAt,
		EndsAt:     w.box.Timing.EndsAt,
		CurrentBid: w.currentBid,
		Bidder:     w.bidder,
		BidderName: w.bidderName,
		Bids:       len(w.box.BidHistory),
	}
	if w.mode.AllowsBuyNow() {
		snap.BuyNowPrice = w.mode.Price()
	}
	if w.mode.AllowsBid() {
		snap.MinNextBid = w.mode.MinNextBid(w.currentBid)
	}
	if w.nft != nil {
		snap.NftImage = w.nft.NftImage
	}
	w.snap.Store(snap)
	_ = w.deps.Broadcaster.Publish(ctx, pubsub.TopicBoxState, snap)
}

// drainCommands answers anything queued while the worker was between
// phases. Bids get a closed-window verdict rather than blocking.
func (w *Worker) drainCommands() (removed bool) {
	for {
		select {
		case cmd := <-w.cmds:
			switch c := cmd.(type) {
			case placeBidCmd:
				c.reply <- bidReply{err: ErrBidWindowClosed}
			case removeCmd:
				c.reply <- struct{}{}
				removed = true
			}
		default:
			return removed
		}
	}
}

func (w *Worker) closing() bool {
	select {
	case <-w.quit:
		return true
	default:
		return false
	}
}

// sleep waits unless the worker is told to stop first.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-w.quit:
		return false
	case <-timer.C:
		return true
	}
}

func untilUnix(endsAt int64) time.Duration {
	d := time.Until(time.Unix(endsAt, 0))
	if d < 0 {
		return 0
	}
	return d
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
