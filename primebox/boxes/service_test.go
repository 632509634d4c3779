package boxes

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/primebox/primebox/primebox/auth"
	"github.com/primebox/primebox/primebox/database/models"
)

type memBoxRepo struct {
	mu    sync.Mutex
	next  int64
	boxes map[int64]*models.BoxConfig
}

func newMemBoxRepo() *memBoxRepo {
	return &memBoxRepo{boxes: make(map[int64]*models.BoxConfig)}
}

func (r *memBoxRepo) DB() *bun.DB { return nil }

func (r *memBoxRepo) Create(_ context.Context, box *models.BoxConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	box.BoxID = r.next
	r.boxes[box.BoxID] = box
	return nil
}

func (r *memBoxRepo) Update(_ context.Context, box *models.BoxConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boxes[box.BoxID] = box
	return nil
}

func (r *memBoxRepo) GetByID(_ context.Context, boxID int64) (*models.BoxConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.boxes[boxID], nil
}

func (r *memBoxRepo) GetRunnable(_ context.Context) ([]*models.BoxConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.BoxConfig
	for _, b := range r.boxes {
		if b.BoxState != models.BoxStateRemoved && b.BoxState != models.BoxStateMinted {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memBoxRepo) GetActive(_ context.Context) ([]*models.BoxConfig, error) {
	return nil, nil
}

func (r *memBoxRepo) Delete(_ context.Context, boxID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.boxes, boxID)
	return nil
}

func (r *memBoxRepo) DeleteAll(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boxes = make(map[int64]*models.BoxConfig)
	return nil
}

func operatorCreds(t *testing.T) (wallet, signature string, verifier *auth.Verifier) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	wallet = base58.Encode(pub)
	signature = base58.Encode(ed25519.Sign(priv, []byte(auth.OperatorMessage)))
	return wallet, signature, auth.NewVerifier([]string{wallet})
}

func newTestService(t *testing.T, verifier *auth.Verifier) (*Service, *memBoxRepo, context.CancelFunc) {
	t.Helper()
	repo := newMemBoxRepo()
	deps := WorkerDeps{
		Boxes:           repo,
		Nfts:            newFakeNftRepo(),
		Allocator:       NewAllocator(newFakeNftRepo(), newMemLocker(), &fakeProofs{}, false),
		Validator:       newTestValidator(&fakeTxChain{programID: "prog", boxAddr: "box-addr"}, nil),
		Chain:           &fakeSettlement{},
		Stats:           &fakeStats{window: 15},
		Recovery:        &fakeRecovery{},
		Broadcaster:     &fakeBroadcaster{},
		CooldownSeconds: 30,
	}
	svc := NewService(deps, verifier)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Start(ctx))
	t.Cleanup(func() {
		svc.Shutdown()
		cancel()
	})
	return svc, repo, cancel
}

// parkedInput keeps the worker waiting in its initial delay so the test
// never races the phase loop.
func parkedInput() BoxInput {
	return BoxInput{
		Pool:          models.PoolPublic,
		Kind:          models.KindBid,
		BidStartPrice: 100,
		BidIncrease:   10,
		Duration:      600,
		InitialDelay:  3600,
	}
}

func TestSaveOrUpdateBoxRequiresOperator(t *testing.T) {
	_, _, verifier := operatorCreds(t)
	svc, _, _ := newTestService(t, verifier)

	_, err := svc.SaveOrUpdateBox(context.Background(), "rando", "sig", parkedInput())
	assert.ErrorIs(t, err, auth.ErrNotOperator)
}

func TestSaveOrUpdateBoxValidatesPrices(t *testing.T) {
	wallet, signature, verifier := operatorCreds(t)
	svc, _, _ := newTestService(t, verifier)

	input := parkedInput()
	input.BidStartPrice = 0
	_, err := svc.SaveOrUpdateBox(context.Background(), wallet, signature, input)
	assert.Error(t, err)

	input = parkedInput()
	input.Duration = 0
	_, err = svc.SaveOrUpdateBox(context.Background(), wallet, signature, input)
	assert.Error(t, err)
}

func TestSaveOrUpdateBoxCreatesAndSpawns(t *testing.T) {
	wallet, signature, verifier := operatorCreds(t)
	svc, repo, _ := newTestService(t, verifier)

	box, err := svc.SaveOrUpdateBox(context.Background(), wallet, signature, parkedInput())
	require.NoError(t, err)
	require.NotZero(t, box.BoxID)
	assert.Equal(t, models.BoxStatePaused, box.BoxState)

	assert.NotNil(t, svc.worker(box.BoxID))
	assert.NotNil(t, repo.boxes[box.BoxID])
}

func TestSaveOrUpdateBoxResolvesCooldown(t *testing.T) {
	wallet, signature, verifier := operatorCreds(t)
	svc, _, _ := newTestService(t, verifier)

	// Omitted cooldown takes the service default.
	box, err := svc.SaveOrUpdateBox(context.Background(), wallet, signature, parkedInput())
	require.NoError(t, err)
	assert.Equal(t, int64(30), box.CooldownDuration)

	// An explicit zero turns the phase off.
	input := parkedInput()
	zero := int64(0)
	input.Cooldown = &zero
	box, err = svc.SaveOrUpdateBox(context.Background(), wallet, signature, input)
	require.NoError(t, err)
	assert.Zero(t, box.CooldownDuration)

	negative := int64(-5)
	input.Cooldown = &negative
	_, err = svc.SaveOrUpdateBox(context.Background(), wallet, signature, input)
	assert.Error(t, err)
}

func TestSaveOrUpdateBoxUnknownID(t *testing.T) {
	wallet, signature, verifier := operatorCreds(t)
	svc, _, _ := newTestService(t, verifier)

	input := parkedInput()
	input.BoxID = 999
	_, err := svc.SaveOrUpdateBox(context.Background(), wallet, signature, input)
	assert.Error(t, err)
}

func TestDeleteBoxStopsWorker(t *testing.T) {
	wallet, signature, verifier := operatorCreds(t)
	svc, repo, _ := newTestService(t, verifier)

	box, err := svc.SaveOrUpdateBox(context.Background(), wallet, signature, parkedInput())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.DeleteBox(ctx, wallet, signature, box.BoxID))

	// The reaper drops the worker once it parks.
	deadline := time.Now().Add(5 * time.Second)
	for svc.worker(box.BoxID) != nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Nil(t, svc.worker(box.BoxID))

	stored := repo.boxes[box.BoxID]
	require.NotNil(t, stored)
	assert.Equal(t, models.BoxStateRemoved, stored.BoxState)
	assert.Equal(t, int64(-1), stored.Timing.EndsAt)
}

func TestDeleteBoxWithoutWorkerUpdatesRow(t *testing.T) {
	wallet, signature, verifier := operatorCreds(t)
	svc, repo, _ := newTestService(t, verifier)

	box := &models.BoxConfig{
		BoxPool:       models.PoolPublic,
		BoxKind:       models.KindBid,
		BoxState:      models.BoxStateMinted,
		BidStartPrice: 100,
		BidIncrease:   10,
		BoxDuration:   600,
	}
	require.NoError(t, repo.Create(context.Background(), box))

	require.NoError(t, svc.DeleteBox(context.Background(), wallet, signature, box.BoxID))
	assert.Equal(t, models.BoxStateRemoved, repo.boxes[box.BoxID].BoxState)
}

func TestPlaceBidUnknownBox(t *testing.T) {
	_, _, verifier := operatorCreds(t)
	svc, _, _ := newTestService(t, verifier)

	_, err := svc.PlaceBid(context.Background(), 42, "raw")
	assert.ErrorIs(t, err, ErrBoxNotRunning)
}

func TestActiveBoxesSkipsParkedWorkers(t *testing.T) {
	wallet, signature, verifier := operatorCreds(t)
	svc, _, _ := newTestService(t, verifier)

	_, err := svc.SaveOrUpdateBox(context.Background(), wallet, signature, parkedInput())
	require.NoError(t, err)

	// A paused worker never shows up in the live list.
	assert.Empty(t, svc.ActiveBoxes())
}
