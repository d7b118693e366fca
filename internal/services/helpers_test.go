package services

import (
	"context"
	"fmt"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"matrix-sync/internal/blockchain"
	"matrix-sync/internal/database"
	"matrix-sync/internal/models"
	"matrix-sync/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a private in-memory database for the calling test
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

// walletFor returns a deterministic checksummed wallet for a user id
func walletFor(id uint) string {
	addr, _ := blockchain.NormalizeAddress(fmt.Sprintf("0x%040x", 0xabc000+id))
	return addr
}

// fakeChain is an in-memory ChainReader
type fakeChain struct {
	mu      sync.Mutex
	records map[string]*blockchain.UserRecord
	income  map[string]*blockchain.IncomeTotals
	slots   map[string][]int
	err     error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		records: make(map[string]*blockchain.UserRecord),
		income:  make(map[string]*blockchain.IncomeTotals),
		slots:   make(map[string][]int),
	}
}

// register adds an on-chain registration; referrerID 0 means no referrer
func (f *fakeChain) register(id, referrerID uint, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	wallet := walletFor(id)
	record := &blockchain.UserRecord{
		UserID:        id,
		ReferrerID:    referrerID,
		FullName:      name,
		WalletAddress: wallet,
	}
	if referrerID != 0 {
		record.ReferrerAddress = walletFor(referrerID)
	}
	f.records[wallet] = record
	return wallet
}

func (f *fakeChain) setIncome(wallet string, total int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.income[wallet] = &blockchain.IncomeTotals{
		Total:         decimal.NewFromInt(total),
		LevelIncome:   decimal.Zero,
		DirectIncome:  decimal.NewFromInt(total),
		SlotIncome:    decimal.Zero,
		RecycleIncome: decimal.Zero,
		SalaryIncome:  decimal.Zero,
	}
}

func (f *fakeChain) GetUserInfo(ctx context.Context, wallet string) (*blockchain.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	record, ok := f.records[wallet]
	if !ok {
		return nil, blockchain.ErrUserNotRegistered
	}
	copied := *record
	return &copied, nil
}

func (f *fakeChain) GetUserAddress(ctx context.Context, userID uint) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	for wallet, record := range f.records {
		if record.UserID == userID {
			return wallet, nil
		}
	}
	return "", blockchain.ErrUserNotRegistered
}

func (f *fakeChain) GetUserIncome(ctx context.Context, wallet string) (*blockchain.IncomeTotals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if income, ok := f.income[wallet]; ok {
		copied := *income
		return &copied, nil
	}
	return &blockchain.IncomeTotals{}, nil
}

func (f *fakeChain) GetActiveSlots(ctx context.Context, wallet string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]int(nil), f.slots[wallet]...), nil
}

// countingTrigger records backfill requests
type countingTrigger struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingTrigger) TriggerBackfill(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

// testEnv wires every service over one database and one fake chain
type testEnv struct {
	db       *gorm.DB
	repo     *repository.Repository
	chain    *fakeChain
	trigger  *countingTrigger
	referral *ReferralService
	auth     *AuthService
	income   *IncomeService
	orders   *OrderService
	users    *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	chain := newFakeChain()
	trigger := &countingTrigger{}
	referral := NewReferralService(repo, chain)

	return &testEnv{
		db:       db,
		repo:     repo,
		chain:    chain,
		trigger:  trigger,
		referral: referral,
		auth:     NewAuthService(repo, chain, referral, trigger, nil),
		income:   NewIncomeService(repo, chain, true),
		orders:   NewOrderService(repo, chain, referral),
		users:    NewUserService(repo, chain, IncomeOverrides{}, nil),
	}
}

// seedUser inserts a user directly, bypassing onboarding
func (e *testEnv) seedUser(t *testing.T, id uint, referrer *uint, active bool) *models.User {
	t.Helper()

	user := &models.User{
		UserID:        id,
		WalletAddress: walletFor(id),
		FullName:      fmt.Sprintf("user-%d", id),
		ReferredBy:    referrer,
		IsOwner:       referrer == nil,
		Role:          models.RoleUser,
		IsActive:      active,
	}
	if err := e.db.Create(user).Error; err != nil {
		t.Fatalf("failed to seed user %d: %v", id, err)
	}
	return user
}

func (e *testEnv) mustUser(t *testing.T, id uint) *models.User {
	t.Helper()

	var user models.User
	if err := e.db.Where("user_id = ?", id).First(&user).Error; err != nil {
		t.Fatalf("failed to load user %d: %v", id, err)
	}
	return &user
}

func ref(id uint) *uint {
	return &id
}

// failNextUpdate makes the next update that writes column fail, once
func failNextUpdate(t *testing.T, db *gorm.DB, column string) *atomic.Bool {
	t.Helper()

	armed := &atomic.Bool{}
	armed.Store(true)
	err := db.Callback().Update().Before("gorm:update").Register("test:fail_"+column, func(tx *gorm.DB) {
		updates, ok := tx.Statement.Dest.(map[string]interface{})
		if !ok {
			return
		}
		if _, hit := updates[column]; hit && armed.CompareAndSwap(true, false) {
			tx.AddError(errors.New("injected outage"))
		}
	})
	if err != nil {
		t.Fatalf("failed to register update callback: %v", err)
	}
	return armed
}
