package boxes

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/primebox/primebox/primebox/database/models"
)

type fakeNftRepo struct {
	mu         sync.Mutex
	nfts       map[string]*models.Nft
	candidates []*models.Nft
}

func newFakeNftRepo(nfts ...*models.Nft) *fakeNftRepo {
	repo := &fakeNftRepo{nfts: make(map[string]*models.Nft)}
	for _, n := range nfts {
		repo.nfts[n.NftID] = n
		repo.candidates = append(repo.candidates, n)
	}
	return repo
}

func (r *fakeNftRepo) DB() *bun.DB { return nil }

func (r *fakeNftRepo) GetByID(_ context.Context, nftID string) (*models.Nft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nfts[nftID], nil
}

func (r *fakeNftRepo) Candidates(_ context.Context, pool models.BoxPool) ([]*models.Nft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Nft
	for _, n := range r.candidates {
		if n.BoxPool == pool && !n.Minted && !n.IsInBox {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *fakeNftRepo) SetInBox(_ context.Context, nftID string, inBox bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nfts[nftID]; ok {
		n.IsInBox = inBox
	}
	return nil
}

func (r *fakeNftRepo) IncrementReshuffle(_ context.Context, nftID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nfts[nftID]; ok {
		n.ReshuffleCount++
	}
	return nil
}

func (r *fakeNftRepo) MarkMinted(_ context.Context, nftID, owner string, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nfts[nftID]; ok {
		n.Minted = true
		n.IsInBox = false
		n.Owner = owner
		n.MintedFor = amount
	}
	return nil
}

func (r *fakeNftRepo) SetOwner(_ context.Context, nftID, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nfts[nftID]; ok {
		n.Owner = owner
	}
	return nil
}

func (r *fakeNftRepo) Upsert(_ context.Context, nft *models.Nft) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nfts[nft.NftID] = nft
	return nil
}

func (r *fakeNftRepo) ReleaseAll(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, nft := range r.nfts {
		if nft.IsInBox {
			nft.IsInBox = false
			n++
		}
	}
	return n, nil
}

type memLocker struct {
	mu    sync.Mutex
	held  map[string]bool
	fails map[string]bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]bool), fails: make(map[string]bool)}
}

func (l *memLocker) TryLock(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] || l.fails[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *memLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

type fakeProofs struct {
	settled map[string]bool
}

func (p *fakeProofs) ProofExists(_ context.Context, nftID string) (bool, error) {
	return p.settled[nftID], nil
}

func item(id string, pool models.BoxPool) *models.Nft {
	return &models.Nft{NftID: id, NftName: "Item " + id, BoxPool: pool}
}

func TestAllocatorAcquireReservesItem(t *testing.T) {
	repo := newFakeNftRepo(item("nft-1", models.PoolPublic))
	locker := newMemLocker()
	alloc := NewAllocator(repo, locker, &fakeProofs{}, false)

	nft, err := alloc.Acquire(context.Background(), models.PoolPublic)
	require.NoError(t, err)
	assert.Equal(t, "nft-1", nft.NftID)
	assert.True(t, nft.IsInBox)
	assert.True(t, locker.held["nft-1"])
}

func TestAllocatorAcquireSkipsLockedItems(t *testing.T) {
	repo := newFakeNftRepo(
		item("nft-1", models.PoolPublic),
		item("nft-2", models.PoolPublic),
	)
	locker := newMemLocker()
	locker.fails["nft-1"] = true
	alloc := NewAllocator(repo, locker, &fakeProofs{}, false)

	nft, err := alloc.Acquire(context.Background(), models.PoolPublic)
	require.NoError(t, err)
	assert.Equal(t, "nft-2", nft.NftID)
}

func TestAllocatorAcquireSkipsSettledItems(t *testing.T) {
	repo := newFakeNftRepo(
		item("nft-1", models.PoolPublic),
		item("nft-2", models.PoolPublic),
	)
	locker := newMemLocker()
	proofs := &fakeProofs{settled: map[string]bool{"nft-1": true}}
	alloc := NewAllocator(repo, locker, proofs, false)

	nft, err := alloc.Acquire(context.Background(), models.PoolPublic)
	require.NoError(t, err)
	assert.Equal(t, "nft-2", nft.NftID)
	// The settled item's lock must not leak.
	assert.False(t, locker.held["nft-1"])
}

func TestAllocatorAcquireExhausted(t *testing.T) {
	repo := newFakeNftRepo(item("nft-1", models.PoolOG))
	alloc := NewAllocator(repo, newMemLocker(), &fakeProofs{}, false)

	_, err := alloc.Acquire(context.Background(), models.PoolPublic)
	assert.ErrorIs(t, err, ErrNoItemsAvailable)
}

func TestAllocatorNoDoubleAllocation(t *testing.T) {
	repo := newFakeNftRepo(item("nft-1", models.PoolPublic))
	locker := newMemLocker()

	// Two allocators share the locker, as two processes would share redis.
	a := NewAllocator(repo, locker, &fakeProofs{}, false)
	b := NewAllocator(repo, locker, &fakeProofs{}, false)

	first, err := a.Acquire(context.Background(), models.PoolPublic)
	require.NoError(t, err)
	require.Equal(t, "nft-1", first.NftID)

	_, err = b.Acquire(context.Background(), models.PoolPublic)
	assert.ErrorIs(t, err, ErrNoItemsAvailable)
}

func TestAllocatorPrefersUnshuffled(t *testing.T) {
	shuffled := item("nft-1", models.PoolPublic)
	shuffled.ReshuffleCount = 3
	fresh := item("nft-2", models.PoolPublic)

	repo := newFakeNftRepo(shuffled, fresh)
	alloc := NewAllocator(repo, newMemLocker(), &fakeProofs{}, true)

	for i := 0; i < 5; i++ {
		nft, err := alloc.Acquire(context.Background(), models.PoolPublic)
		require.NoError(t, err)
		assert.Equal(t, "nft-2", nft.NftID)
		require.NoError(t, alloc.Release(context.Background(), nft.NftID))
		nft.ReshuffleCount = 0
	}
}

func TestAllocatorReleaseReturnsItem(t *testing.T) {
	repo := newFakeNftRepo(item("nft-1", models.PoolPublic))
	locker := newMemLocker()
	alloc := NewAllocator(repo, locker, &fakeProofs{}, false)

	nft, err := alloc.Acquire(context.Background(), models.PoolPublic)
	require.NoError(t, err)

	require.NoError(t, alloc.Release(context.Background(), nft.NftID))
	assert.False(t, repo.nfts["nft-1"].IsInBox)
	assert.Equal(t, int64(1), repo.nfts["nft-1"].ReshuffleCount)
	assert.False(t, locker.held["nft-1"])

	// Released items are eligible again.
	again, err := alloc.Acquire(context.Background(), models.PoolPublic)
	require.NoError(t, err)
	assert.Equal(t, "nft-1", again.NftID)
}

func TestAllocatorReclaim(t *testing.T) {
	repo := newFakeNftRepo(item("nft-1", models.PoolPublic))
	locker := newMemLocker()
	alloc := NewAllocator(repo, locker, &fakeProofs{}, false)

	nft, err := alloc.Reclaim(context.Background(), "nft-1")
	require.NoError(t, err)
	assert.True(t, nft.IsInBox)
	assert.True(t, locker.held["nft-1"])

	_, err = alloc.Reclaim(context.Background(), "missing")
	assert.Error(t, err)
}
