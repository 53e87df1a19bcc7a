package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/lastmile-backend/internal/wallet"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
)

type walletAuditor interface {
	Reconcile(ctx context.Context) (*wallet.Reconciliation, error)
	Rebuild(ctx context.Context) (*wallet.Reconciliation, error)
}

type walletAuditJob struct {
	logg     *logger.Logger
	wallet   walletAuditor
	autoHeal bool
}

// NewWalletAuditJob compares the cached balance with the ledger sum. With
// autoHeal it rewrites the balance from the ledger when they differ.
func NewWalletAuditJob(logg *logger.Logger, svc walletAuditor, autoHeal bool) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if svc == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	return &walletAuditJob{logg: logg, wallet: svc, autoHeal: autoHeal}, nil
}

func (j *walletAuditJob) Name() string { return "wallet-audit" }

func (j *walletAuditJob) Run(ctx context.Context) error {
	rec, err := j.wallet.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconcile wallet: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"balance":    rec.Balance.StringFixed(2),
		"ledger_sum": rec.LedgerSum.StringFixed(2),
		"drift":      rec.Drift.StringFixed(2),
	})
	if rec.Consistent() {
		j.logg.Debug(logCtx, "wallet balance matches ledger")
		return nil
	}
	if !j.autoHeal {
		j.logg.Warn(logCtx, "wallet balance drifted from ledger")
		return fmt.Errorf("wallet drift %s", rec.Drift.StringFixed(2))
	}
	if _, err := j.wallet.Rebuild(ctx); err != nil {
		return fmt.Errorf("rebuild wallet: %w", err)
	}
	j.logg.Warn(logCtx, "wallet balance rebuilt from ledger")
	return nil
}
