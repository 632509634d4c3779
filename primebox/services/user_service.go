package services

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/primebox/primebox/primebox/auth"
	"github.com/primebox/primebox/primebox/database/models"
	"github.com/primebox/primebox/primebox/database/repositories"
)

const walletCacheSize = 2048

// UserInput is one directory member as pushed by the community sync.
type UserInput struct {
	ID        string            `json:"id"`
	Username  string            `json:"username"`
	DiscordID string            `json:"discord_id"`
	Wallets   []string          `json:"wallets"`
	Roles     []models.UserRole `json:"roles"`
}

// UserService fronts the community directory with a wallet lookup cache.
// Wallet lookups sit on the bid hot path.
type UserService struct {
	users    repositories.UserRepository
	verifier *auth.Verifier
	cache    *lru.Cache
}

func NewUserService(users repositories.UserRepository, verifier *auth.Verifier) (*UserService, error) {
	cache, err := lru.New(walletCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet cache: %w", err)
	}
	return &UserService{users: users, verifier: verifier, cache: cache}, nil
}

// GetByWallet resolves a wallet to a directory member, nil when unknown.
func (s *UserService) GetByWallet(ctx context.Context, wallet string) (*models.User, error) {
	if cached, ok := s.cache.Get(wallet); ok {
		// Negative lookups are cached as a typed nil.
		return cached.(*models.User), nil
	}

	user, err := s.users.GetByWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}
	s.cache.Add(wallet, user)
	return user, nil
}

// StoreUsers syncs directory members. Operator-gated.
func (s *UserService) StoreUsers(ctx context.Context, wallet, signature string, inputs []UserInput) error {
	if err := s.verifier.Verify(wallet, signature); err != nil {
		return err
	}

	for _, in := range inputs {
		if in.DiscordID == "" {
			return fmt.Errorf("directory entry missing discord_id")
		}
		user := &models.User{
			ID:        in.ID,
			Username:  in.Username,
			DiscordID: in.DiscordID,
			Wallets:   in.Wallets,
			Roles:     in.Roles,
		}
		if err := s.users.Upsert(ctx, user); err != nil {
			return err
		}
		for _, w := range in.Wallets {
			s.cache.Remove(w)
		}
	}
	return nil
}
