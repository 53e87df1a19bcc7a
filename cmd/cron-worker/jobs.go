package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/lastmile-backend/internal/completion"
	"github.com/angelmondragon/lastmile-backend/internal/cron"
	"github.com/angelmondragon/lastmile-backend/internal/earnings"
	"github.com/angelmondragon/lastmile-backend/internal/orders"
	"github.com/angelmondragon/lastmile-backend/internal/settlements"
	"github.com/angelmondragon/lastmile-backend/internal/shipments"
	"github.com/angelmondragon/lastmile-backend/internal/wallet"
	"github.com/angelmondragon/lastmile-backend/pkg/bigquery"
	"github.com/angelmondragon/lastmile-backend/pkg/config"
	"github.com/angelmondragon/lastmile-backend/pkg/db"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
	"github.com/angelmondragon/lastmile-backend/pkg/maps"
	"github.com/angelmondragon/lastmile-backend/pkg/metrics"
	"github.com/angelmondragon/lastmile-backend/pkg/outbox"
	"github.com/angelmondragon/lastmile-backend/pkg/redis"
)

// buildJobs wires the settlement services the jobs drive. The returned
// cleanup closes any optional clients it opened.
func buildJobs(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) ([]cron.Job, func(), error) {
	cleanup := func() {}
	gormDB := dbClient.DB()
	deliveryMetrics := metrics.NewDeliveryMetrics(prometheus.DefaultRegisterer)
	outboxRepo := outbox.NewRepository(gormDB)
	emitter := outbox.NewService(outboxRepo, logg)
	walletRepo := wallet.NewRepository(gormDB)

	walletService, err := wallet.NewService(walletRepo, dbClient, deliveryMetrics, logg)
	if err != nil {
		return nil, cleanup, err
	}
	shipmentRepo := shipments.NewRepository(gormDB)
	earningService, err := earnings.NewService(
		earnings.NewRepository(gormDB),
		shipmentRepo,
		dbClient,
		emitter,
		earnings.NewCalculator(cfg.Delivery.AgentRatePerKM()),
		logg,
	)
	if err != nil {
		return nil, cleanup, err
	}
	settlementService, err := settlements.NewService(settlements.ServiceParams{
		Repo:       settlements.NewRepository(gormDB),
		Orders:     orders.NewRepository(gormDB),
		Wallet:     walletService,
		Earnings:   earningService,
		Tx:         dbClient,
		Outbox:     emitter,
		Calculator: settlements.NewCalculator(cfg.Settlement),
		Metrics:    deliveryMetrics,
		Logger:     logg,
	})
	if err != nil {
		return nil, cleanup, err
	}

	var routeMeter completion.RouteMeter
	if cfg.GoogleMaps.APIKey != "" {
		mapsClient, err := maps.NewClient(cfg.GoogleMaps)
		if err != nil {
			return nil, cleanup, err
		}
		routeMeter = mapsClient
	}

	completionService, err := completion.NewService(completion.ServiceParams{
		Repo:        completion.NewRepository(gormDB),
		Shipments:   shipmentRepo,
		Earnings:    earningService,
		Settlements: settlementService,
		Distance:    completion.NewDistanceResolver(routeMeter, logg),
		Tx:          dbClient,
		MaxAttempts: cfg.Delivery.CompletionRetries,
		Metrics:     deliveryMetrics,
		Logger:      logg,
	})
	if err != nil {
		return nil, cleanup, err
	}

	reconcileJob, err := cron.NewCompletionReconcileJob(logg, completionService, cfg.Cron.CompletionBatch)
	if err != nil {
		return nil, cleanup, err
	}
	auditJob, err := cron.NewWalletAuditJob(logg, walletService, cfg.FeatureFlags.WalletAutoHeal)
	if err != nil {
		return nil, cleanup, err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:         logg,
		DB:             dbClient,
		Outbox:         outboxRepo,
		Retention:      cfg.Outbox.Retention,
		ParkedAttempts: cfg.Outbox.MaxAttempts,
		DLQ:            outbox.NewDLQRepository(gormDB),
	})
	if err != nil {
		return nil, cleanup, err
	}
	jobs := []cron.Job{reconcileJob, auditJob, retentionJob}

	if !cfg.FeatureFlags.LedgerExport {
		logg.Info(ctx, "ledger export disabled")
		return jobs, cleanup, nil
	}

	bq, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return nil, cleanup, err
	}
	cleanup = func() {
		if err := bq.Close(); err != nil {
			logg.Error(context.Background(), "error closing bigquery", err)
		}
	}
	exportJob, err := cron.NewLedgerExportJob(cron.LedgerExportJobParams{
		Logger:     logg,
		Ledger:     walletRepo,
		Warehouse:  bq,
		Watermarks: redisClient,
		Batch:      cfg.Cron.ExportBatch,
	})
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return append(jobs, exportJob), cleanup, nil
}
