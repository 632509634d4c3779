package boxes

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/primebox/primebox/primebox/database/models"
	"github.com/primebox/primebox/primebox/database/repositories"
)

// Locker is the set-if-absent lock the allocator uses to keep two boxes
// from picking the same item.
type Locker interface {
	TryLock(ctx context.Context, key string) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// ProofChecker reports whether an item's round already settled on-chain.
type ProofChecker interface {
	ProofExists(ctx context.Context, nftID string) (bool, error)
}

// Allocator hands out items to box rounds. An item is only returned once
// its lock is held, its settlement proof is absent and its reservation
// flag is set.
type Allocator struct {
	nfts             repositories.NftRepository
	locker           Locker
	proofs           ProofChecker
	preferUnshuffled bool

	mu  sync.Mutex
	rng *rand.Rand
}

func NewAllocator(nfts repositories.NftRepository, locker Locker, proofs ProofChecker, preferUnshuffled bool) *Allocator {
	return &Allocator{
		nfts:             nfts,
		locker:           locker,
		proofs:           proofs,
		preferUnshuffled: preferUnshuffled,
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Acquire reserves a random item for the pool. Candidates that lose the
// lock race or turn out to be settled already are skipped.
func (a *Allocator) Acquire(ctx context.Context, pool models.BoxPool) (*models.Nft, error) {
	candidates, err := a.nfts.Candidates(ctx, pool)
	if err != nil {
		return nil, err
	}
	if a.preferUnshuffled {
		candidates = preferFresh(candidates)
	}

	for len(candidates) > 0 {
		a.mu.Lock()
		i := a.rng.Intn(len(candidates))
		a.mu.Unlock()

		nft := candidates[i]
		candidates = append(candidates[:i], candidates[i+1:]...)

		ok, err := a.locker.TryLock(ctx, nft.NftID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		settled, err := a.proofs.ProofExists(ctx, nft.NftID)
		if err != nil {
			_ = a.locker.Unlock(ctx, nft.NftID)
			return nil, err
		}
		if settled {
			// Stale row: the item was won before but the flag never
			// caught up. Drop it from rotation.
			slog.Warn("Skipping settled item",
				slog.String("type", "box"),
				slog.String("nft_id", nft.NftID))
			_ = a.locker.Unlock(ctx, nft.NftID)
			continue
		}

		if err := a.nfts.SetInBox(ctx, nft.NftID, true); err != nil {
			_ = a.locker.Unlock(ctx, nft.NftID)
			return nil, err
		}
		nft.IsInBox = true
		return nft, nil
	}

	return nil, ErrNoItemsAvailable
}

// Reclaim re-reserves an item after a restart, when the previous
// process held it in a running round. The lock is re-taken best effort;
// a TTL expiry in between is expected.
func (a *Allocator) Reclaim(ctx context.Context, nftID string) (*models.Nft, error) {
	nft, err := a.nfts.GetByID(ctx, nftID)
	if err != nil {
		return nil, err
	}
	if nft == nil {
		return nil, fmt.Errorf("item %s is gone", nftID)
	}
	if _, err := a.locker.TryLock(ctx, nftID); err != nil {
		return nil, err
	}
	if err := a.nfts.SetInBox(ctx, nftID, true); err != nil {
		return nil, err
	}
	nft.IsInBox = true
	return nft, nil
}

// Release returns an unsold item to the pool and counts the reshuffle.
func (a *Allocator) Release(ctx context.Context, nftID string) error {
	if err := a.nfts.SetInBox(ctx, nftID, false); err != nil {
		return err
	}
	if err := a.nfts.IncrementReshuffle(ctx, nftID); err != nil {
		return err
	}
	return a.locker.Unlock(ctx, nftID)
}

// Finish drops the lock on a sold item. The caller marks it minted.
func (a *Allocator) Finish(ctx context.Context, nftID string) error {
	return a.locker.Unlock(ctx, nftID)
}

// preferFresh narrows the list to never-reshuffled items when any exist.
func preferFresh(candidates []*models.Nft) []*models.Nft {
	fresh := make([]*models.Nft, 0, len(candidates))
	for _, n := range candidates {
		if n.ReshuffleCount == 0 {
			fresh = append(fresh, n)
		}
	}
	if len(fresh) > 0 {
		return fresh
	}
	return candidates
}
