package services

import (
	"context"
	"errors"
	"fmt"

	"matrix-sync/internal/blockchain"
)

// ChainReader is the read-only view of the registration and booking contracts
type ChainReader interface {
	GetUserInfo(ctx context.Context, wallet string) (*blockchain.UserRecord, error)
	GetUserAddress(ctx context.Context, userID uint) (string, error)
	GetUserIncome(ctx context.Context, wallet string) (*blockchain.IncomeTotals, error)
	GetActiveSlots(ctx context.Context, wallet string) ([]int, error)
}

// BackfillTrigger requests a missing-user backfill without waiting for it
type BackfillTrigger interface {
	TriggerBackfill(ctx context.Context) error
}

// SignupNotifier announces newly onboarded users
type SignupNotifier interface {
	NotifySignup(ctx context.Context, user *UserSignup) error
}

// UserSignup is the payload of a signup notification
type UserSignup struct {
	UserID        uint
	WalletAddress string
	FullName      string
	ReferrerID    *uint
}

// upstreamError classifies a chain read failure
func upstreamError(op string, err error) error {
	if errors.Is(err, blockchain.ErrUserNotRegistered) {
		return fmt.Errorf("%s: %w: %v", op, ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUpstreamUnavailable, err)
}

func maxSlot(slots []int) int {
	highest := 0
	for _, s := range slots {
		if s > highest {
			highest = s
		}
	}
	return highest
}
