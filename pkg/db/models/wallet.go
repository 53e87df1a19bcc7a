package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	"github.com/angelmondragon/lastmile-backend/pkg/pagination"
)

// PlatformWalletID is the id of the singleton wallet row.
var PlatformWalletID = uuid.MustParse("00000000-0000-4000-8000-000000000001")

// PlatformWallet caches the platform cash position. Balance must always
// equal the signed sum of its WalletTransaction rows.
type PlatformWallet struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(14,2);not null;default:0" json:"balance"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// WalletTransaction is an immutable ledger entry.
type WalletTransaction struct {
	ID           uuid.UUID                     `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	WalletID     uuid.UUID                     `gorm:"column:wallet_id;type:uuid;not null;index:idx_wallet_transactions_wallet_created,priority:1" json:"wallet_id"`
	Type         enums.WalletTransactionType   `gorm:"column:type;type:wallet_transaction_type;not null" json:"type"`
	Amount       decimal.Decimal               `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	Source       enums.WalletTransactionSource `gorm:"column:source;type:wallet_transaction_source;not null" json:"source"`
	ReferenceID  string                        `gorm:"column:reference_id;not null" json:"reference_id"`
	Description  string                        `gorm:"column:description;not null" json:"description"`
	BalanceAfter decimal.Decimal               `gorm:"column:balance_after;type:numeric(14,2);not null" json:"balance_after"`
	CreatedAt    time.Time                     `gorm:"column:created_at;autoCreateTime;index:idx_wallet_transactions_wallet_created,priority:2" json:"created_at"`
}

func (t *WalletTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

func (t WalletTransaction) CursorKey() pagination.Cursor {
	return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
}
