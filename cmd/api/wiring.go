package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/lastmile-backend/api/routes"
	"github.com/angelmondragon/lastmile-backend/internal/completion"
	"github.com/angelmondragon/lastmile-backend/internal/deliveryotp"
	"github.com/angelmondragon/lastmile-backend/internal/earnings"
	"github.com/angelmondragon/lastmile-backend/internal/orders"
	"github.com/angelmondragon/lastmile-backend/internal/proofs"
	"github.com/angelmondragon/lastmile-backend/internal/settlements"
	"github.com/angelmondragon/lastmile-backend/internal/shipments"
	"github.com/angelmondragon/lastmile-backend/internal/users"
	"github.com/angelmondragon/lastmile-backend/internal/wallet"
	"github.com/angelmondragon/lastmile-backend/pkg/config"
	"github.com/angelmondragon/lastmile-backend/pkg/db"
	"github.com/angelmondragon/lastmile-backend/pkg/email"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
	"github.com/angelmondragon/lastmile-backend/pkg/maps"
	"github.com/angelmondragon/lastmile-backend/pkg/metrics"
	"github.com/angelmondragon/lastmile-backend/pkg/outbox"
	"github.com/angelmondragon/lastmile-backend/pkg/redis"
	"github.com/angelmondragon/lastmile-backend/pkg/storage/gcs"
)

// deps are the connected clients the services are built on.
type deps struct {
	db     *db.Client
	redis  *redis.Client
	gcs    *gcs.Client
	sender email.Sender
	reg    prometheus.Registerer
}

func routeMeter(ctx context.Context, cfg config.GoogleMapsConfig, logg *logger.Logger) (completion.RouteMeter, error) {
	if cfg.APIKey == "" {
		logg.Warn(ctx, "google maps api key missing, distances fall back to great-circle")
		return nil, nil
	}
	return maps.NewClient(cfg)
}

// buildServices wires every domain service in dependency order.
func buildServices(ctx context.Context, cfg *config.Config, logg *logger.Logger, d deps) (routes.Services, error) {
	var out routes.Services

	meter, err := routeMeter(ctx, cfg.GoogleMaps, logg)
	if err != nil {
		return out, fmt.Errorf("maps client: %w", err)
	}

	m := metrics.NewDeliveryMetrics(d.reg)
	gormDB := d.db.DB()
	emitter := outbox.NewService(outbox.NewRepository(gormDB), logg)
	transitioner := shipments.NewTransitioner(emitter, m)
	shipmentRepo := shipments.NewRepository(gormDB)
	orderRepo := orders.NewRepository(gormDB)

	if out.Shipments, err = shipments.NewService(shipments.ServiceParams{
		Repo:         shipmentRepo,
		Orders:       orderRepo,
		Users:        users.NewRepository(gormDB),
		Tx:           d.db,
		Transitioner: transitioner,
		Logger:       logg,
		DefaultETA:   cfg.Delivery.DefaultETA,
	}); err != nil {
		return out, fmt.Errorf("shipment service: %w", err)
	}

	if out.Wallet, err = wallet.NewService(wallet.NewRepository(gormDB), d.db, m, logg); err != nil {
		return out, fmt.Errorf("wallet service: %w", err)
	}

	if out.Earnings, err = earnings.NewService(
		earnings.NewRepository(gormDB),
		shipmentRepo,
		d.db,
		emitter,
		earnings.NewCalculator(cfg.Delivery.AgentRatePerKM()),
		logg,
	); err != nil {
		return out, fmt.Errorf("earnings service: %w", err)
	}

	if out.Settlements, err = settlements.NewService(settlements.ServiceParams{
		Repo:       settlements.NewRepository(gormDB),
		Orders:     orderRepo,
		Wallet:     out.Wallet,
		Earnings:   out.Earnings,
		Tx:         d.db,
		Outbox:     emitter,
		Calculator: settlements.NewCalculator(cfg.Settlement),
		Metrics:    m,
		Logger:     logg,
	}); err != nil {
		return out, fmt.Errorf("settlement service: %w", err)
	}

	if out.Completion, err = completion.NewService(completion.ServiceParams{
		Repo:        completion.NewRepository(gormDB),
		Shipments:   shipmentRepo,
		Earnings:    out.Earnings,
		Settlements: out.Settlements,
		Distance:    completion.NewDistanceResolver(meter, logg),
		Tx:          d.db,
		MaxAttempts: cfg.Delivery.CompletionRetries,
		Metrics:     m,
		Logger:      logg,
	}); err != nil {
		return out, fmt.Errorf("completion service: %w", err)
	}

	if out.OTP, err = deliveryotp.NewService(deliveryotp.ServiceParams{
		Repo:      deliveryotp.NewRepository(gormDB),
		Shipments: shipmentRepo,
		Orders:    orderRepo,
		Tx:        d.db,
		Limiter:   d.redis,
		Sender:    d.sender,
		Config:    cfg.Delivery,
		Metrics:   m,
		Logger:    logg,
	}); err != nil {
		return out, fmt.Errorf("otp service: %w", err)
	}

	if out.Proofs, err = proofs.NewService(proofs.ServiceParams{
		Repo:         proofs.NewRepository(gormDB),
		Shipments:    shipmentRepo,
		Orders:       orderRepo,
		OTP:          out.OTP,
		Completion:   out.Completion,
		Transitioner: transitioner,
		Outbox:       emitter,
		Store:        d.gcs,
		Tx:           d.db,
		Bucket:       cfg.GCS.BucketName,
		Prefix:       cfg.GCS.ProofPrefix,
		AccessMode:   cfg.FeatureFlags.GCSAccessMode,
		MaxBytes:     cfg.Delivery.ProofMaxBytes,
		SignedURLTTL: cfg.GCS.ProofURLTTL,
		Logger:       logg,
	}); err != nil {
		return out, fmt.Errorf("proof service: %w", err)
	}
	return out, nil
}
