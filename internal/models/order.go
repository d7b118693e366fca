package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order represents a slot purchase, one row per (user, level)
type Order struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          uint            `gorm:"not null;uniqueIndex:ux_orders_user_level,priority:1" json:"userId"`
	Level           int             `gorm:"not null;uniqueIndex:ux_orders_user_level,priority:2" json:"level"`
	UserAddress     string          `gorm:"size:42;not null" json:"userAddress"`
	Price           decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"price"`
	TransactionHash string          `gorm:"size:66" json:"transactionHash"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// TableName specifies the table name for Order model
func (Order) TableName() string {
	return "orders"
}

// Slot is a per-user slot record maintained by the booking indexer
type Slot struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          uint            `gorm:"not null;uniqueIndex:ux_slots_user_slot,priority:1" json:"userId"`
	Slot            int             `gorm:"not null;uniqueIndex:ux_slots_user_slot,priority:2" json:"slot"`
	Price           decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"price"`
	Recycles        int             `gorm:"default:0" json:"recycles"`
	TransactionHash string          `gorm:"size:66" json:"transactionHash"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// TableName specifies the table name for Slot model
func (Slot) TableName() string {
	return "slots"
}

// SlotOverview is the current slot status of a user
type SlotOverview struct {
	ActiveSlot  int    `json:"activeSlot"`
	SlotDetails []Slot `json:"slotDetails"`
}
