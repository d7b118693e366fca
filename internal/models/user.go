package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// IncomeSnapshot mirrors the income totals reported by the booking contract.
// It is overwritten on every refresh, never accumulated.
type IncomeSnapshot struct {
	Total         decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"total"`
	LevelIncome   decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"levelIncome"`
	DirectIncome  decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"directIncome"`
	SlotIncome    decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"slotIncome"`
	RecycleIncome decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"recycleIncome"`
	SalaryIncome  decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"salaryIncome"`
}

// Add returns the field-wise sum of two snapshots
func (s IncomeSnapshot) Add(o IncomeSnapshot) IncomeSnapshot {
	return IncomeSnapshot{
		Total:         s.Total.Add(o.Total),
		LevelIncome:   s.LevelIncome.Add(o.LevelIncome),
		DirectIncome:  s.DirectIncome.Add(o.DirectIncome),
		SlotIncome:    s.SlotIncome.Add(o.SlotIncome),
		RecycleIncome: s.RecycleIncome.Add(o.RecycleIncome),
		SalaryIncome:  s.SalaryIncome.Add(o.SalaryIncome),
	}
}

// User is a node of the referral forest mirrored from the registration contract
type User struct {
	ID                uint           `gorm:"primaryKey" json:"-"`
	UserID            uint           `gorm:"uniqueIndex;not null" json:"userId"`
	WalletAddress     string         `gorm:"uniqueIndex;size:42;not null" json:"walletAddress"`
	FullName          string         `gorm:"size:255" json:"fullName"`
	ReferredBy        *uint          `gorm:"index" json:"referredBy"`
	ReferrerAddress   string         `gorm:"size:42" json:"referrerAddress"`
	IsOwner           bool           `gorm:"default:false;index" json:"isOwner"`
	Role              string         `gorm:"size:20;default:user" json:"role"`
	IsActive          bool           `gorm:"default:false;index" json:"isActive"`
	CurrentActiveSlot int            `gorm:"default:0" json:"currentActiveSlot"`
	TotalTeam         int64          `gorm:"not null;default:0" json:"totalTeam"`
	TotalPartners     int64          `gorm:"not null;default:0" json:"totalPartners"`
	DailyTeam         int64          `gorm:"not null;default:0" json:"dailyTeam"`
	DailyPartners     int64          `gorm:"not null;default:0" json:"dailyPartners"`
	ActiveTeam        int64          `gorm:"not null;default:0" json:"activeTeam"`
	Income            IncomeSnapshot `gorm:"embedded;embeddedPrefix:income_" json:"income"`

	DailyDirectIncome decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"dailyDirectIncome"`
	DailyLevelIncome  decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"dailyLevelIncome"`
	DailyTotalIncome  decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"dailyTotalIncome"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// IsRoot reports whether the user has no referrer
func (u *User) IsRoot() bool {
	return u.ReferredBy == nil
}
