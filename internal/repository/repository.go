package repository

import (
	"context"
	"errors"

	"matrix-sync/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TreeNode is the slice of a user needed to rebuild the referral forest
type TreeNode struct {
	UserID     uint
	ReferredBy *uint
	IsActive   bool
}

// TeamCounters are the recomputed aggregates written by a reconciliation sweep
type TeamCounters struct {
	TotalTeam     int64
	TotalPartners int64
	ActiveTeam    int64
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Transaction runs fn against a repository bound to a single database transaction.
// Any error returned by fn rolls back every write made through it.
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// GetUserByUserID retrieves a user by external user id, nil when absent
func (r *Repository) GetUserByUserID(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByWallet retrieves a user by checksummed wallet address, nil when absent
func (r *Repository) GetUserByWallet(ctx context.Context, wallet string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("wallet_address = ?", wallet).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetOwner returns the owner user, nil when none is registered
func (r *Repository) GetOwner(ctx context.Context) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("is_owner = ?", true).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUserIfAbsent inserts a user unless one with the same user id or wallet exists.
// Returns false when the row already existed.
func (r *Repository) CreateUserIfAbsent(ctx context.Context, user *models.User) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(user)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// UpdateIncomeSnapshot overwrites the chain income snapshot of a user
func (r *Repository) UpdateIncomeSnapshot(ctx context.Context, userID uint, income models.IncomeSnapshot) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"income_total":          income.Total,
			"income_level_income":   income.LevelIncome,
			"income_direct_income":  income.DirectIncome,
			"income_slot_income":    income.SlotIncome,
			"income_recycle_income": income.RecycleIncome,
			"income_salary_income":  income.SalaryIncome,
		}).Error
}

// IncrementUserCounters atomically adds the given amounts to counter columns of one user.
// Returns false when no user with that id exists.
func (r *Repository) IncrementUserCounters(ctx context.Context, userID uint, deltas map[string]int64) (bool, error) {
	if len(deltas) == 0 {
		return true, nil
	}

	updates := make(map[string]interface{}, len(deltas))
	for column, delta := range deltas {
		updates[column] = gorm.Expr(column+" + ?", delta)
	}

	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("user_id = ?", userID).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ActivateUser flips is_active from false to true. Returns true only for the call that flipped it.
func (r *Repository) ActivateUser(ctx context.Context, userID uint) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("user_id = ? AND is_active = ?", userID, false).
		Update("is_active", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MaxUserID returns the highest known user id, 0 for an empty store
func (r *Repository) MaxUserID(ctx context.Context) (uint, error) {
	var maxID int64
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Select("COALESCE(MAX(user_id), 0)").
		Scan(&maxID).Error
	if err != nil {
		return 0, err
	}
	return uint(maxID), nil
}

// ListUserIDs returns every known user id in ascending order
func (r *Repository) ListUserIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// ListTreeNodes loads the parent pointers and activation flags of every user
func (r *Repository) ListTreeNodes(ctx context.Context) ([]TreeNode, error) {
	var nodes []TreeNode
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Select("user_id, referred_by, is_active").
		Order("user_id ASC").
		Scan(&nodes).Error
	return nodes, err
}

// SetTeamCounters overwrites the reconciled counters for many users in one transaction
func (r *Repository) SetTeamCounters(ctx context.Context, counters map[uint]TeamCounters) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for userID, c := range counters {
			err := tx.Model(&models.User{}).
				Where("user_id = ?", userID).
				Updates(map[string]interface{}{
					"total_team":     c.TotalTeam,
					"total_partners": c.TotalPartners,
					"active_team":    c.ActiveTeam,
				}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ListChildren returns users directly referred by any id in parents, ordered by user id
func (r *Repository) ListChildren(ctx context.Context, parents []uint) ([]models.User, error) {
	var users []models.User
	if len(parents) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).
		Where("referred_by IN ?", parents).
		Order("user_id ASC").
		Find(&users).Error
	return users, err
}

// CreateTransactionIfAbsent inserts a transaction unless its dedup key is already recorded.
// Returns false for a duplicate.
func (r *Repository) CreateTransactionIfAbsent(ctx context.Context, txn *models.Transaction) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedup_key"}},
			DoNothing: true,
		}).
		Create(txn)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// RecordIncomeOnce inserts a transaction and adds its amounts to the receiver's daily
// accumulators in one database transaction. A duplicate dedup key changes nothing and
// returns false.
func (r *Repository) RecordIncomeOnce(ctx context.Context, txn *models.Transaction, columns map[string]interface{}) (bool, error) {
	created := false
	err := r.Transaction(ctx, func(tx *Repository) error {
		inserted, err := tx.CreateTransactionIfAbsent(ctx, txn)
		if err != nil {
			return err
		}
		if !inserted || len(columns) == 0 {
			created = inserted
			return nil
		}
		if err := tx.AddDailyIncome(ctx, txn.ReceiverID, columns); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// GetTransactionByDedupKey retrieves a recorded transaction by its dedup key
func (r *Repository) GetTransactionByDedupKey(ctx context.Context, key string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).Where("dedup_key = ?", key).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// AddDailyIncome atomically adds amounts to the daily income accumulators of a user
func (r *Repository) AddDailyIncome(ctx context.Context, userID uint, columns map[string]interface{}) error {
	updates := make(map[string]interface{}, len(columns))
	for column, amount := range columns {
		updates[column] = gorm.Expr(column+" + ?", amount)
	}
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("user_id = ?", userID).
		Updates(updates).Error
}

// UpsertOrder inserts or overwrites the order for (user_id, level)
func (r *Repository) UpsertOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "level"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_address", "price", "transaction_hash", "updated_at"}),
		}).
		Create(order).Error
}

// GetOrder retrieves the order for (user_id, level)
func (r *Repository) GetOrder(ctx context.Context, userID uint, level int) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND level = ?", userID, level).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CountOrders returns the number of orders of a user
func (r *Repository) CountOrders(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// SetActiveSlot stores the current active slot of a user
func (r *Repository) SetActiveSlot(ctx context.Context, userID uint, slot int) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("user_id = ?", userID).
		Update("current_active_slot", slot).Error
}

// ListSlots returns the slot records of a user ordered by slot number
func (r *Repository) ListSlots(ctx context.Context, userID uint) ([]models.Slot, error) {
	var slots []models.Slot
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("slot ASC").
		Find(&slots).Error
	return slots, err
}
