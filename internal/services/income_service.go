package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"matrix-sync/internal/blockchain"
	"matrix-sync/internal/models"
	"matrix-sync/internal/repository"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// IncomeEvent is an income transfer emitted by the booking contract
type IncomeEvent struct {
	Receiver        string          `json:"user" binding:"required"`
	From            string          `json:"from" binding:"required"`
	Amount          decimal.Decimal `json:"amount"`
	Level           int             `json:"level"`
	IncomeType      string          `json:"incomeType" binding:"required"`
	TransactionHash string          `json:"transactionHash"`
}

// IncomeService records income transfers exactly once and keeps income views fresh
type IncomeService struct {
	repo        *repository.Repository
	chain       ChainReader
	dedupByHash bool
}

// NewIncomeService creates a new IncomeService. When dedupByHash is set the transaction
// hash is part of the dedup key, so equal-valued transfers in distinct transactions are
// recorded separately.
func NewIncomeService(repo *repository.Repository, chain ChainReader, dedupByHash bool) *IncomeService {
	return &IncomeService{repo: repo, chain: chain, dedupByHash: dedupByHash}
}

// RecordIncome stores the transfer unless it was already recorded, and reports whether it
// created a new transaction. The receiver is marked active and both parties' income
// snapshots are refreshed on every delivery.
func (s *IncomeService) RecordIncome(ctx context.Context, event IncomeEvent) (*models.Transaction, bool, error) {
	receiver, err := s.userByWallet(ctx, event.Receiver, "receiver")
	if err != nil {
		return nil, false, err
	}
	sender, err := s.userByWallet(ctx, event.From, "sender")
	if err != nil {
		return nil, false, err
	}

	key := s.DedupKey(receiver.UserID, sender.UserID, event.Amount, event.Level, event.TransactionHash)
	txn := &models.Transaction{
		ReceiverID:      receiver.UserID,
		Receiver:        receiver.WalletAddress,
		FromID:          sender.UserID,
		From:            sender.WalletAddress,
		Amount:          event.Amount,
		Level:           event.Level,
		IncomeType:      event.IncomeType,
		TransactionHash: strings.ToLower(event.TransactionHash),
		DedupKey:        key,
	}

	created, err := s.repo.RecordIncomeOnce(ctx, txn, dailyIncomeColumns(event.IncomeType, event.Amount))
	if err != nil {
		return nil, false, fmt.Errorf("failed to record transaction: %w", err)
	}

	if created {
		log.Printf("[Income] Recorded %s income of %s for user %d from user %d", event.IncomeType, event.Amount, receiver.UserID, sender.UserID)
	} else {
		log.Printf("[Income] Duplicate transfer for user %d from user %d skipped", receiver.UserID, sender.UserID)
		existing, err := s.repo.GetTransactionByDedupKey(ctx, key)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load recorded transaction: %w", err)
		}
		txn = existing
	}

	if _, err := s.repo.ActivateUser(ctx, receiver.UserID); err != nil {
		return nil, false, fmt.Errorf("failed to activate receiver: %w", err)
	}

	for _, u := range []*models.User{receiver, sender} {
		income, err := s.chain.GetUserIncome(ctx, u.WalletAddress)
		if err != nil {
			return nil, false, upstreamError("get user income", err)
		}
		if err := s.repo.UpdateIncomeSnapshot(ctx, u.UserID, income.Snapshot()); err != nil {
			return nil, false, fmt.Errorf("failed to store income snapshot: %w", err)
		}
	}

	return txn, created, nil
}

// DedupKey identifies an income transfer. The amount is normalized so "1.0" and "1" match.
func (s *IncomeService) DedupKey(receiverID, fromID uint, amount decimal.Decimal, level int, txHash string) string {
	parts := fmt.Sprintf("%d:%d:%s:%d", receiverID, fromID, amount.String(), level)
	if s.dedupByHash {
		parts += ":" + strings.ToLower(txHash)
	}
	return crypto.Keccak256Hash([]byte(parts)).Hex()
}

func (s *IncomeService) userByWallet(ctx context.Context, wallet, side string) (*models.User, error) {
	address, ok := blockchain.NormalizeAddress(wallet)
	if !ok {
		return nil, fmt.Errorf("%s wallet %q: %w", side, wallet, ErrNotFound)
	}
	user, err := s.repo.GetUserByWallet(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%s %s: %w", side, address, ErrNotFound)
	}
	return user, nil
}

func dailyIncomeColumns(incomeType string, amount decimal.Decimal) map[string]interface{} {
	switch incomeType {
	case models.IncomeTypeDirect:
		return map[string]interface{}{"daily_direct_income": amount, "daily_total_income": amount}
	case models.IncomeTypeLevel:
		return map[string]interface{}{"daily_level_income": amount, "daily_total_income": amount}
	default:
		return nil
	}
}
