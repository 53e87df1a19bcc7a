package wallet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	"github.com/angelmondragon/lastmile-backend/pkg/pagination"
)

// Repository persists the platform wallet and its ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Ensure(ctx context.Context) error
	Get(ctx context.Context) (*models.PlatformWallet, error)
	Increment(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error)
	Decrement(ctx context.Context, amount decimal.Decimal) (bool, decimal.Decimal, error)
	SetBalance(ctx context.Context, balance decimal.Decimal) error
	AppendTransaction(ctx context.Context, txn *models.WalletTransaction) error
	LedgerSum(ctx context.Context) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.WalletTransaction, error)
	ListTransactionsAfter(ctx context.Context, after pagination.Cursor, limit int) ([]models.WalletTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Ensure(ctx context.Context) error {
	row := models.PlatformWallet{ID: models.PlatformWalletID, Balance: decimal.Zero}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&row).Error
}

func (r *repository) Get(ctx context.Context) (*models.PlatformWallet, error) {
	var row models.PlatformWallet
	if err := r.db.WithContext(ctx).
		Where("id = ?", models.PlatformWalletID).
		First(&row).Error; err != nil {
		return nil, err
	}
	row.Balance = row.Balance.Round(2)
	return &row, nil
}

func (r *repository) Increment(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PlatformWallet{}).
		Where("id = ?", models.PlatformWalletID).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return decimal.Zero, res.Error
	}
	if res.RowsAffected == 0 {
		return decimal.Zero, gorm.ErrRecordNotFound
	}
	return r.balance(ctx)
}

// Decrement subtracts amount only when the balance covers it. The bool is
// false when the guard rejected the update.
func (r *repository) Decrement(ctx context.Context, amount decimal.Decimal) (bool, decimal.Decimal, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PlatformWallet{}).
		Where("id = ? AND balance >= ?", models.PlatformWalletID, amount).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, decimal.Zero, res.Error
	}
	if res.RowsAffected == 0 {
		return false, decimal.Zero, nil
	}
	balance, err := r.balance(ctx)
	return true, balance, err
}

func (r *repository) SetBalance(ctx context.Context, balance decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.PlatformWallet{}).
		Where("id = ?", models.PlatformWalletID).
		Updates(map[string]any{
			"balance":    balance,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) AppendTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) LedgerSum(ctx context.Context) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Where("wallet_id = ?", models.PlatformWalletID).
		Select("SUM(CASE WHEN type = ? THEN amount ELSE -amount END)", enums.WalletTransactionCredit).
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal.Round(2), nil
}

func (r *repository) ListTransactions(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.WalletTransaction, error) {
	var rows []models.WalletTransaction
	query := r.db.WithContext(ctx).
		Where("wallet_id = ?", models.PlatformWalletID)
	if err := pagination.ApplyCursor(query, cursor).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListTransactionsAfter returns ledger rows strictly after the
// (created_at, id) position, oldest first.
func (r *repository) ListTransactionsAfter(ctx context.Context, after pagination.Cursor, limit int) ([]models.WalletTransaction, error) {
	var rows []models.WalletTransaction
	if err := r.db.WithContext(ctx).
		Where("wallet_id = ?", models.PlatformWalletID).
		Where("created_at > ? OR (created_at = ? AND id > ?)", after.CreatedAt, after.CreatedAt, after.ID).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) balance(ctx context.Context) (decimal.Decimal, error) {
	row, err := r.Get(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return row.Balance, nil
}
