package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/primebox/primebox/primebox/auth"
	"github.com/primebox/primebox/primebox/chain"
	"github.com/primebox/primebox/primebox/database/models"
	"github.com/primebox/primebox/primebox/database/repositories"
	"github.com/primebox/primebox/primebox/mediastore"
)

// NftInput is one catalog entry as submitted by an operator or found in
// the manifest.
type NftInput struct {
	NftID   string         `json:"nft_id"`
	Name    string         `json:"name"`
	URI     string         `json:"uri"`
	Pool    models.BoxPool `json:"pool"`
}

// ClaimChain is the passthrough surface for user claim transactions.
type ClaimChain interface {
	ID() string
	CounterSignAndSubmit(ctx context.Context, tx *chain.Transaction) (string, error)
}

// NftService maintains the item catalog and handles claim passthrough.
type NftService struct {
	nfts     repositories.NftRepository
	store    *mediastore.SpacesStore
	chain    ClaimChain
	verifier *auth.Verifier
}

func NewNftService(nfts repositories.NftRepository, store *mediastore.SpacesStore, ch ClaimChain, verifier *auth.Verifier) *NftService {
	return &NftService{nfts: nfts, store: store, chain: ch, verifier: verifier}
}

// StoreNfts upserts catalog entries. Operator-gated.
func (s *NftService) StoreNfts(ctx context.Context, wallet, signature string, items []NftInput) error {
	if err := s.verifier.Verify(wallet, signature); err != nil {
		return err
	}
	return s.upsertAll(ctx, items)
}

// ImportManifest pulls the catalog manifest from the media store and
// syncs it into the database.
func (s *NftService) ImportManifest(ctx context.Context) error {
	raw, err := s.store.FetchManifest(ctx)
	if err != nil {
		return err
	}

	var items []NftInput
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("failed to decode manifest: %w", err)
	}
	if err := s.upsertAll(ctx, items); err != nil {
		return err
	}

	slog.Info("Catalog manifest imported",
		slog.String("type", "db"),
		slog.Int("items", len(items)))
	return nil
}

func (s *NftService) upsertAll(ctx context.Context, items []NftInput) error {
	for _, item := range items {
		if item.NftID == "" {
			return fmt.Errorf("catalog entry missing nft_id")
		}
		nft := &models.Nft{
			NftID:    item.NftID,
			NftName:  item.Name,
			NftURI:   item.URI,
			NftImage: s.store.ImageURL(item.NftID),
			BoxPool:  item.Pool,
		}
		if err := s.nfts.Upsert(ctx, nft); err != nil {
			return err
		}
	}
	return nil
}

// ReleaseStale clears reservation flags left by a crashed process. Runs
// before workers start; in-flight rounds re-reserve their items.
func (s *NftService) ReleaseStale(ctx context.Context) error {
	released, err := s.nfts.ReleaseAll(ctx)
	if err != nil {
		return err
	}
	if released > 0 {
		slog.Info("Released stale item reservations",
			slog.String("type", "db"),
			slog.Int64("count", released))
	}
	return nil
}

// ClaimNft counter-signs and submits a user's claim transaction.
func (s *NftService) ClaimNft(ctx context.Context, rawTx string) (string, error) {
	tx, err := chain.DecodeTransaction(rawTx)
	if err != nil {
		return "", err
	}
	tx.StripComputeBudget()
	if len(tx.Instructions) == 0 || tx.Instructions[0].ProgramID != s.chain.ID() {
		return "", fmt.Errorf("claim transaction does not target the box program")
	}
	return s.chain.CounterSignAndSubmit(ctx, tx)
}
