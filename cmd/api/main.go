package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/lastmile-backend/api/controllers"
	"github.com/angelmondragon/lastmile-backend/api/routes"
	"github.com/angelmondragon/lastmile-backend/pkg/config"
	"github.com/angelmondragon/lastmile-backend/pkg/db"
	"github.com/angelmondragon/lastmile-backend/pkg/email"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
	"github.com/angelmondragon/lastmile-backend/pkg/migrate"
	"github.com/angelmondragon/lastmile-backend/pkg/redis"
	"github.com/angelmondragon/lastmile-backend/pkg/storage/gcs"
)

const (
	serviceKind       = "api"
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		return 1
	}
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	fail := func(msg string, err error) int {
		logg.Error(ctx, msg, err)
		return 1
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fail("failed to bootstrap database", err)
	}
	defer closeQuietly(ctx, logg, "database", dbClient.Close)
	if err := dbClient.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		return fail("failed to register pool metrics", err)
	}
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fail("failed to run dev migrations", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fail("failed to bootstrap redis", err)
	}
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		return fail("failed to bootstrap gcs", err)
	}
	sender, err := email.NewSender(ctx, cfg.SES, logg)
	if err != nil {
		return fail("failed to bootstrap otp sender", err)
	}

	services, err := buildServices(ctx, cfg, logg, deps{
		db:     dbClient,
		redis:  redisClient,
		gcs:    gcsClient,
		sender: sender,
		reg:    prometheus.DefaultRegisterer,
	})
	if err != nil {
		return fail("failed to build services", err)
	}

	handler := routes.NewRouter(cfg, logg, services, routes.Infra{
		Idempotency: redisClient,
		Readiness: []controllers.ReadinessCheck{
			{Name: "postgres", Pinger: dbClient},
			{Name: "redis", Pinger: redisClient},
			{Name: "gcs", Pinger: gcsClient},
		},
		Metrics: promhttp.Handler(),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{Addr: ":" + port, Handler: handler, ReadHeaderTimeout: readHeaderTimeout}
	ctx = logg.WithField(ctx, "addr", server.Addr)

	if err := serve(ctx, logg, server); err != nil {
		return fail("api server stopped unexpectedly", err)
	}
	return 0
}

// serve runs server until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, logg *logger.Logger, server *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logg.Info(ctx, "api server stopped")
		return nil
	})
	return g.Wait()
}

func closeQuietly(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+name, err)
	}
}
