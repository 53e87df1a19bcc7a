package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/lastmile-backend/pkg/db/models"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
	"github.com/angelmondragon/lastmile-backend/pkg/pagination"
)

const ledgerWatermarkName = "wallet-ledger-export"

type ledgerReader interface {
	ListTransactionsAfter(ctx context.Context, after pagination.Cursor, limit int) ([]models.WalletTransaction, error)
}

type rowInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
	LedgerTable() string
}

type watermarkStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	WatermarkKey(name string) string
}

// LedgerRow is the BigQuery shape of one wallet transaction.
type LedgerRow struct {
	ID           string    `bigquery:"id"`
	Type         string    `bigquery:"type"`
	Amount       string    `bigquery:"amount"`
	Source       string    `bigquery:"source"`
	ReferenceID  string    `bigquery:"reference_id"`
	Description  string    `bigquery:"description"`
	BalanceAfter string    `bigquery:"balance_after"`
	CreatedAt    time.Time `bigquery:"created_at"`
}

// InsertID dedupes re-sent batches on the BigQuery side.
func (r LedgerRow) InsertID() string { return r.ID }

type LedgerExportJobParams struct {
	Logger     *logger.Logger
	Ledger     ledgerReader
	Warehouse  rowInserter
	Watermarks watermarkStore
	Batch      int
	MaxBatches int
}

type ledgerExportJob struct {
	logg       *logger.Logger
	ledger     ledgerReader
	warehouse  rowInserter
	watermarks watermarkStore
	batch      int
	maxBatches int
}

// NewLedgerExportJob streams new wallet transactions to BigQuery. The last
// exported (created_at, id) is kept in Redis so reruns resume where they
// stopped; a crash between insert and watermark write re-sends one batch.
func NewLedgerExportJob(params LedgerExportJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger reader required")
	case params.Warehouse == nil:
		return nil, fmt.Errorf("warehouse client required")
	case params.Watermarks == nil:
		return nil, fmt.Errorf("watermark store required")
	}
	job := &ledgerExportJob{
		logg:       params.Logger,
		ledger:     params.Ledger,
		warehouse:  params.Warehouse,
		watermarks: params.Watermarks,
		batch:      params.Batch,
		maxBatches: params.MaxBatches,
	}
	if job.batch <= 0 {
		job.batch = 500
	}
	if job.maxBatches <= 0 {
		job.maxBatches = 20
	}
	return job, nil
}

func (j *ledgerExportJob) Name() string { return "ledger-export" }

func (j *ledgerExportJob) Run(ctx context.Context) error {
	key := j.watermarks.WatermarkKey(ledgerWatermarkName)
	mark, err := j.loadWatermark(ctx, key)
	if err != nil {
		return err
	}

	exported := 0
	for i := 0; i < j.maxBatches; i++ {
		rows, err := j.ledger.ListTransactionsAfter(ctx, mark, j.batch)
		if err != nil {
			return fmt.Errorf("read ledger: %w", err)
		}
		if len(rows) == 0 {
			break
		}
		payload := make([]any, 0, len(rows))
		for _, row := range rows {
			payload = append(payload, toLedgerRow(row))
		}
		if err := j.warehouse.InsertRows(ctx, j.warehouse.LedgerTable(), payload); err != nil {
			return fmt.Errorf("insert ledger rows: %w", err)
		}
		mark = rows[len(rows)-1].CursorKey()
		if err := j.watermarks.Set(ctx, key, pagination.EncodeCursor(mark), 0); err != nil {
			return fmt.Errorf("store watermark: %w", err)
		}
		exported += len(rows)
		if len(rows) < j.batch {
			break
		}
	}

	if exported > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"rows_exported": exported,
			"watermark":     mark.CreatedAt,
		}), "wallet ledger exported")
	}
	return nil
}

func (j *ledgerExportJob) loadWatermark(ctx context.Context, key string) (pagination.Cursor, error) {
	raw, err := j.watermarks.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return pagination.Cursor{}, nil
	}
	if err != nil {
		return pagination.Cursor{}, fmt.Errorf("read watermark: %w", err)
	}
	cursor, err := pagination.ParseCursor(raw)
	if err != nil {
		return pagination.Cursor{}, fmt.Errorf("parse watermark: %w", err)
	}
	if cursor == nil {
		return pagination.Cursor{}, nil
	}
	return *cursor, nil
}

func toLedgerRow(tx models.WalletTransaction) LedgerRow {
	return LedgerRow{
		ID:           tx.ID.String(),
		Type:         string(tx.Type),
		Amount:       tx.Amount.StringFixed(2),
		Source:       string(tx.Source),
		ReferenceID:  tx.ReferenceID,
		Description:  tx.Description,
		BalanceAfter: tx.BalanceAfter.StringFixed(2),
		CreatedAt:    tx.CreatedAt.UTC(),
	}
}
