package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
	"github.com/angelmondragon/lastmile-backend/pkg/metrics"
	"github.com/angelmondragon/lastmile-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the only writer of the platform wallet. Credit and Debit join
// the caller's transaction when one is passed.
type Service interface {
	Get(ctx context.Context) (*models.PlatformWallet, error)
	Credit(ctx context.Context, tx *gorm.DB, input PostingInput) (*models.WalletTransaction, error)
	Debit(ctx context.Context, tx *gorm.DB, input PostingInput) (*models.WalletTransaction, error)
	Adjust(ctx context.Context, input AdjustInput) (*models.WalletTransaction, error)
	ListLedger(ctx context.Context, params pagination.Params) (pagination.Page[models.WalletTransaction], error)
	Reconcile(ctx context.Context) (*Reconciliation, error)
	Rebuild(ctx context.Context) (*Reconciliation, error)
}

// PostingInput describes one ledger movement.
type PostingInput struct {
	Amount      decimal.Decimal
	Source      enums.WalletTransactionSource
	ReferenceID string
	Description string
}

// AdjustInput is a manual posting recorded by an admin.
type AdjustInput struct {
	Type        enums.WalletTransactionType
	Amount      decimal.Decimal
	Source      enums.WalletTransactionSource
	ReferenceID string
	Description string
}

// Reconciliation compares the cached balance with the ledger.
type Reconciliation struct {
	Balance   decimal.Decimal `json:"balance"`
	LedgerSum decimal.Decimal `json:"ledger_sum"`
	Drift     decimal.Decimal `json:"drift"`
}

// Consistent reports whether balance and ledger agree.
func (r Reconciliation) Consistent() bool {
	return r.Drift.IsZero()
}

var adjustableSources = map[enums.WalletTransactionSource]struct{}{
	enums.WalletSourceRefund:       {},
	enums.WalletSourceAdjustment:   {},
	enums.WalletSourceOrderPayment: {},
}

type service struct {
	repo    Repository
	tx      txRunner
	metrics *metrics.DeliveryMetrics
	logg    *logger.Logger
}

// NewService wires the wallet service.
func NewService(repo Repository, tx txRunner, m *metrics.DeliveryMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, metrics: m, logg: logg}, nil
}

func (s *service) Get(ctx context.Context) (*models.PlatformWallet, error) {
	if err := s.repo.Ensure(ctx); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "ensure wallet")
	}
	row, err := s.repo.Get(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet")
	}
	return row, nil
}

func (s *service) Credit(ctx context.Context, tx *gorm.DB, input PostingInput) (*models.WalletTransaction, error) {
	return s.post(ctx, tx, enums.WalletTransactionCredit, input)
}

func (s *service) Debit(ctx context.Context, tx *gorm.DB, input PostingInput) (*models.WalletTransaction, error) {
	return s.post(ctx, tx, enums.WalletTransactionDebit, input)
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) (*models.WalletTransaction, error) {
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type")
	}
	if _, ok := adjustableSources[input.Source]; !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source not allowed for manual adjustment").
			WithDetails(map[string]any{"source": input.Source})
	}
	if strings.TrimSpace(input.Description) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description is required")
	}
	txn, err := s.post(ctx, nil, input.Type, PostingInput{
		Amount:      input.Amount,
		Source:      input.Source,
		ReferenceID: input.ReferenceID,
		Description: input.Description,
	})
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"wallet_txn_id": txn.ID.String(),
		"type":          string(txn.Type),
		"source":        txn.Source.String(),
		"amount":        txn.Amount.StringFixed(2),
	})
	s.logg.Info(ctx, "wallet adjusted")
	return txn, nil
}

func (s *service) post(ctx context.Context, tx *gorm.DB, kind enums.WalletTransactionType, input PostingInput) (*models.WalletTransaction, error) {
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction source")
	}
	amount := input.Amount.Round(2)

	var txn *models.WalletTransaction
	run := func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Ensure(ctx); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "ensure wallet")
		}

		var balance decimal.Decimal
		if kind == enums.WalletTransactionDebit {
			ok, after, err := repo.Decrement(ctx, amount)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "debit wallet")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "wallet balance too low").
					WithDetails(map[string]any{"amount": amount.StringFixed(2)})
			}
			balance = after
		} else {
			after, err := repo.Increment(ctx, amount)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "credit wallet")
			}
			balance = after
		}

		txn = &models.WalletTransaction{
			WalletID:     models.PlatformWalletID,
			Type:         kind,
			Amount:       amount,
			Source:       input.Source,
			ReferenceID:  input.ReferenceID,
			Description:  input.Description,
			BalanceAfter: balance,
		}
		if err := repo.AppendTransaction(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append wallet transaction")
		}
		return nil
	}

	var err error
	if tx != nil {
		err = run(tx)
	} else {
		err = s.tx.WithTx(ctx, run)
	}
	if err != nil {
		return nil, err
	}
	if tx == nil {
		s.metrics.WalletBalance(txn.BalanceAfter)
	}
	return txn, nil
}

func (s *service) ListLedger(ctx context.Context, params pagination.Params) (pagination.Page[models.WalletTransaction], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.WalletTransaction]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListTransactions(ctx, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return pagination.Page[models.WalletTransaction]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list wallet ledger")
	}
	return pagination.BuildPage(rows, params.Limit), nil
}

func (s *service) Reconcile(ctx context.Context) (*Reconciliation, error) {
	wallet, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	sum, err := s.repo.LedgerSum(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum wallet ledger")
	}
	s.metrics.WalletBalance(wallet.Balance)
	return &Reconciliation{
		Balance:   wallet.Balance,
		LedgerSum: sum,
		Drift:     wallet.Balance.Sub(sum),
	}, nil
}

// Rebuild replays the ledger into the cached balance.
func (s *service) Rebuild(ctx context.Context) (*Reconciliation, error) {
	var before Reconciliation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Ensure(ctx); err != nil {
			return err
		}
		wallet, err := repo.Get(ctx)
		if err != nil {
			return err
		}
		sum, err := repo.LedgerSum(ctx)
		if err != nil {
			return err
		}
		if sum.IsNegative() {
			return errors.New("ledger sum is negative")
		}
		before = Reconciliation{Balance: wallet.Balance, LedgerSum: sum, Drift: wallet.Balance.Sub(sum)}
		if before.Consistent() {
			return nil
		}
		return repo.SetBalance(ctx, sum)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "rebuild wallet")
	}
	if !before.Consistent() {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"previous_balance": before.Balance.StringFixed(2),
			"ledger_sum":       before.LedgerSum.StringFixed(2),
		})
		s.logg.Warn(ctx, "wallet balance rebuilt from ledger")
	}
	s.metrics.WalletBalance(before.LedgerSum)
	return &Reconciliation{Balance: before.LedgerSum, LedgerSum: before.LedgerSum, Drift: decimal.Zero}, nil
}
