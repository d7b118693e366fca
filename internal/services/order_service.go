package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"matrix-sync/internal/blockchain"
	"matrix-sync/internal/models"
	"matrix-sync/internal/repository"

	"github.com/shopspring/decimal"
)

// OrderEvent is a slot purchase emitted by the booking contract
type OrderEvent struct {
	User            string          `json:"user" binding:"required"`
	Level           int             `json:"level" binding:"required,min=1"`
	Price           decimal.Decimal `json:"price"`
	TransactionHash string          `json:"transactionHash"`
}

// OrderService records slot purchases and first activations
type OrderService struct {
	repo     *repository.Repository
	chain    ChainReader
	referral *ReferralService
}

// NewOrderService creates a new OrderService
func NewOrderService(repo *repository.Repository, chain ChainReader, referral *ReferralService) *OrderService {
	return &OrderService{repo: repo, chain: chain, referral: referral}
}

// RecordOrder upserts the (user, level) order and activates the user on its first order
func (s *OrderService) RecordOrder(ctx context.Context, event OrderEvent) (*models.Order, error) {
	address, ok := blockchain.NormalizeAddress(event.User)
	if !ok {
		return nil, fmt.Errorf("wallet %q: %w", event.User, ErrNotFound)
	}

	user, err := s.repo.GetUserByWallet(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", address, ErrNotFound)
	}

	slots, err := s.chain.GetActiveSlots(ctx, address)
	if err != nil {
		return nil, upstreamError("get active slots", err)
	}
	if err := s.repo.SetActiveSlot(ctx, user.UserID, maxSlot(slots)); err != nil {
		return nil, fmt.Errorf("failed to store active slot: %w", err)
	}

	order := &models.Order{
		UserID:          user.UserID,
		Level:           event.Level,
		UserAddress:     address,
		Price:           event.Price,
		TransactionHash: strings.ToLower(event.TransactionHash),
	}
	if err := s.repo.UpsertOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to upsert order: %w", err)
	}

	// Activation and its propagation commit or roll back together
	activated := false
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		flipped, err := tx.ActivateUser(ctx, user.UserID)
		if err != nil {
			return fmt.Errorf("failed to activate user: %w", err)
		}
		if !flipped {
			return nil
		}
		activated = true
		if _, err := s.referral.propagateTeamIn(ctx, tx, user.UserID, ActivationDelta); err != nil {
			if !errors.Is(err, ErrPartialPropagation) {
				return fmt.Errorf("failed to propagate activation: %w", err)
			}
			log.Printf("[Order] Activation propagation for user %d stopped early: %v", user.UserID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if activated {
		log.Printf("[Order] User %d activated by level %d order", user.UserID, event.Level)
	}

	stored, err := s.repo.GetOrder(ctx, user.UserID, event.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return stored, nil
}
