package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	IncomeTypeDirect = "direct"
	IncomeTypeLevel  = "level"
)

// Transaction is one income-producing transfer observed on chain
type Transaction struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	ReceiverID      uint            `gorm:"not null;index" json:"receiverId"`
	Receiver        string          `gorm:"size:42;not null" json:"receiver"`
	FromID          uint            `gorm:"not null;index" json:"fromId"`
	From            string          `gorm:"size:42;not null" json:"from"`
	Amount          decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"amount"`
	Level           int             `gorm:"not null" json:"level"`
	IncomeType      string          `gorm:"size:30;index" json:"incomeType"`
	TransactionHash string          `gorm:"size:66;index" json:"transactionHash"`
	DedupKey        string          `gorm:"uniqueIndex;size:66;not null" json:"-"`
	CreatedAt       time.Time       `gorm:"index" json:"createdAt"`
}

// TableName specifies the table name for Transaction model
func (Transaction) TableName() string {
	return "transactions"
}
