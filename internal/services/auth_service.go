package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"matrix-sync/internal/blockchain"
	"matrix-sync/internal/models"
	"matrix-sync/internal/repository"
)

// OwnerUserID is the id reserved for the owner at the root of the referral forest
const OwnerUserID uint = 1

const notifyTimeout = 10 * time.Second

// AuthService handles onboarding of wallets into the referral forest
type AuthService struct {
	repo     *repository.Repository
	chain    ChainReader
	referral *ReferralService
	backfill BackfillTrigger
	notifier SignupNotifier
}

// NewAuthService creates a new AuthService. backfill and notifier may be nil.
func NewAuthService(repo *repository.Repository, chain ChainReader, referral *ReferralService, backfill BackfillTrigger, notifier SignupNotifier) *AuthService {
	return &AuthService{
		repo:     repo,
		chain:    chain,
		referral: referral,
		backfill: backfill,
		notifier: notifier,
	}
}

// LoginOrRegister returns the user owning wallet, creating it from its on-chain record
// on first sight. isNewUser is true only for the call that created the row.
func (s *AuthService) LoginOrRegister(ctx context.Context, wallet string) (*models.User, bool, error) {
	address, ok := blockchain.NormalizeAddress(wallet)
	if !ok {
		return nil, false, fmt.Errorf("invalid wallet address %q", wallet)
	}

	user, err := s.repo.GetUserByWallet(ctx, address)
	if err != nil {
		return nil, false, fmt.Errorf("database error: %w", err)
	}
	if user != nil {
		if err := s.refreshIncome(ctx, user); err != nil {
			return nil, false, err
		}
		log.Printf("User logged in: wallet=%s (user %d)", address, user.UserID)
		return user, false, nil
	}

	record, err := s.chain.GetUserInfo(ctx, address)
	if err != nil {
		return nil, false, upstreamError("get user info", err)
	}

	user = newUserFromRecord(record)
	user.WalletAddress = address

	created, err := s.repo.CreateUserIfAbsent(ctx, user)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}
	if !created {
		// Lost a race with a concurrent login or backfill for the same wallet
		existing, err := s.repo.GetUserByWallet(ctx, address)
		if err != nil {
			return nil, false, fmt.Errorf("database error: %w", err)
		}
		if existing == nil {
			return nil, false, fmt.Errorf("user %d exists under another wallet: %w", record.UserID, ErrConflict)
		}
		return existing, false, nil
	}

	log.Printf("New user created: wallet=%s (user %d, referrer %v)", address, user.UserID, record.ReferrerID)

	if err := s.referral.linkToReferrer(ctx, user); err != nil {
		return nil, false, err
	}

	s.triggerBackfill(ctx)
	s.notifySignup(user)

	// reload so the counters reflect the stored row
	fresh, err := s.repo.GetUserByUserID(ctx, user.UserID)
	if err != nil || fresh == nil {
		log.Printf("Warning: failed to reload user %d after creation: %v", user.UserID, err)
		return user, true, nil
	}
	return fresh, true, nil
}

// RegisterOwner creates the single owner account at the root of the forest
func (s *AuthService) RegisterOwner(ctx context.Context, wallet, fullName string) (*models.User, error) {
	address, ok := blockchain.NormalizeAddress(wallet)
	if !ok {
		return nil, fmt.Errorf("invalid wallet address %q", wallet)
	}

	owner, err := s.repo.GetOwner(ctx)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if owner != nil {
		return nil, fmt.Errorf("an owner already exists: %w", ErrConflict)
	}

	user := &models.User{
		UserID:        OwnerUserID,
		WalletAddress: address,
		FullName:      fullName,
		IsOwner:       true,
		Role:          models.RoleAdmin,
	}

	created, err := s.repo.CreateUserIfAbsent(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to create owner: %w", err)
	}
	if !created {
		return nil, fmt.Errorf("user %d or wallet already registered: %w", OwnerUserID, ErrConflict)
	}

	log.Printf("Owner registered: wallet=%s", address)
	return user, nil
}

// GetUserByUserID returns a stored user without touching the chain
func (s *AuthService) GetUserByUserID(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.repo.GetUserByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return user, nil
}

func (s *AuthService) refreshIncome(ctx context.Context, user *models.User) error {
	income, err := s.chain.GetUserIncome(ctx, user.WalletAddress)
	if err != nil {
		return upstreamError("get user income", err)
	}

	user.Income = income.Snapshot()
	if err := s.repo.UpdateIncomeSnapshot(ctx, user.UserID, user.Income); err != nil {
		return fmt.Errorf("failed to store income snapshot: %w", err)
	}
	return nil
}

func (s *AuthService) triggerBackfill(ctx context.Context) {
	if s.backfill == nil {
		return
	}
	if err := s.backfill.TriggerBackfill(context.WithoutCancel(ctx)); err != nil {
		log.Printf("Warning: failed to trigger missing user backfill: %v", err)
	}
}

func (s *AuthService) notifySignup(user *models.User) {
	if s.notifier == nil {
		return
	}

	signup := &UserSignup{
		UserID:        user.UserID,
		WalletAddress: user.WalletAddress,
		FullName:      user.FullName,
		ReferrerID:    user.ReferredBy,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.NotifySignup(ctx, signup); err != nil {
			log.Printf("Warning: failed to send signup notification for user %d: %v", signup.UserID, err)
		}
	}()
}
