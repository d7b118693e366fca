package services

import (
	"context"
	"fmt"
	"log"

	"matrix-sync/internal/blockchain"
	"matrix-sync/internal/models"
	"matrix-sync/internal/repository"
)

// ReportCache stores generation reports between reads. Entries are served as is until
// they expire or a reconciliation sweep invalidates them, so new joins may lag by one TTL.
type ReportCache interface {
	GetGenerations(ctx context.Context, userID uint) ([]models.GenerationLevel, bool)
	SetGenerations(ctx context.Context, userID uint, levels []models.GenerationLevel)
}

// UserService handles user read paths
type UserService struct {
	repo      *repository.Repository
	chain     ChainReader
	overrides IncomeOverrides
	cache     ReportCache
}

// NewUserService creates a new UserService. cache may be nil.
func NewUserService(repo *repository.Repository, chain ChainReader, overrides IncomeOverrides, cache ReportCache) *UserService {
	return &UserService{repo: repo, chain: chain, overrides: overrides, cache: cache}
}

// GetUser returns a user with its live income. The live figures are stored as the
// snapshot; a configured compensation override is added to the returned copy only.
func (s *UserService) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.repo.GetUserByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}

	income, err := s.chain.GetUserIncome(ctx, user.WalletAddress)
	if err != nil {
		return nil, upstreamError("get user income", err)
	}

	user.Income = income.Snapshot()
	if err := s.repo.UpdateIncomeSnapshot(ctx, user.UserID, user.Income); err != nil {
		return nil, fmt.Errorf("failed to store income snapshot: %w", err)
	}

	if adjusted, ok := s.overrides.Apply(user.UserID, user.Income); ok {
		user.Income = adjusted
	}
	return user, nil
}

// GetUserByWallet returns a stored user by wallet address
func (s *UserService) GetUserByWallet(ctx context.Context, wallet string) (*models.User, error) {
	address, ok := blockchain.NormalizeAddress(wallet)
	if !ok {
		return nil, fmt.Errorf("wallet %q: %w", wallet, ErrNotFound)
	}
	user, err := s.repo.GetUserByWallet(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", address, ErrNotFound)
	}
	return user, nil
}

// GetDirectPartners returns the users directly referred by userID
func (s *UserService) GetDirectPartners(ctx context.Context, userID uint) ([]models.GenerationMember, error) {
	children, err := s.repo.ListChildren(ctx, []uint{userID})
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	partners := make([]models.GenerationMember, 0, len(children))
	for _, c := range children {
		partners = append(partners, memberOf(&c))
	}
	return partners, nil
}

// GetGenerations builds the level-bucketed downline of userID, GenerationDepth levels deep.
// A user reachable twice is only counted at the first level it appears.
func (s *UserService) GetGenerations(ctx context.Context, userID uint) ([]models.GenerationLevel, error) {
	if s.cache != nil {
		if levels, ok := s.cache.GetGenerations(ctx, userID); ok {
			return levels, nil
		}
	}

	levels := make([]models.GenerationLevel, models.GenerationDepth)
	for i := range levels {
		levels[i] = models.GenerationLevel{Level: i + 1, Users: []models.GenerationMember{}}
	}

	frontier := []uint{userID}
	visited := make(map[uint]bool)

	for i := 0; i < models.GenerationDepth && len(frontier) > 0; i++ {
		referrals, err := s.repo.ListChildren(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("failed to load level %d: %w", i+1, err)
		}

		level := &levels[i]
		next := make([]uint, 0, len(referrals))
		for j := range referrals {
			u := &referrals[j]
			next = append(next, u.UserID)

			if visited[u.UserID] {
				log.Printf("[Generations] User %d reached twice below user %d", u.UserID, userID)
				continue
			}
			visited[u.UserID] = true

			level.Users = append(level.Users, memberOf(u))
			if u.IsActive {
				level.Active++
			} else {
				level.Inactive++
			}
		}
		level.Count = len(level.Users)
		frontier = next
	}

	if s.cache != nil {
		s.cache.SetGenerations(ctx, userID, levels)
	}
	return levels, nil
}

// GetSlots returns the highest active slot from chain together with the stored slot records
func (s *UserService) GetSlots(ctx context.Context, userID uint) (*models.SlotOverview, error) {
	user, err := s.repo.GetUserByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}

	active, err := s.chain.GetActiveSlots(ctx, user.WalletAddress)
	if err != nil {
		return nil, upstreamError("get active slots", err)
	}

	slots, err := s.repo.ListSlots(ctx, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &models.SlotOverview{
		ActiveSlot:  maxSlot(active),
		SlotDetails: slots,
	}, nil
}

func memberOf(u *models.User) models.GenerationMember {
	return models.GenerationMember{
		UserID:        u.UserID,
		FullName:      u.FullName,
		WalletAddress: u.WalletAddress,
	}
}
