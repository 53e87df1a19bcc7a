package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/lastmile-backend/internal/cron"
	"github.com/angelmondragon/lastmile-backend/pkg/config"
	"github.com/angelmondragon/lastmile-backend/pkg/db"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
	"github.com/angelmondragon/lastmile-backend/pkg/metrics"
	"github.com/angelmondragon/lastmile-backend/pkg/migrate"
	"github.com/angelmondragon/lastmile-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	jobName := flag.String("job", "", "run a single job once and exit")
	list := flag.Bool("list", false, "print the registered job names and exit")
	flag.Parse()
	os.Exit(run(*jobName, *list))
}

func run(jobName string, list bool) int {
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
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	fail := func(msg string, err error) int {
		logg.Error(ctx, msg, err)
		return 1
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fail("failed to bootstrap database", err)
	}
	defer closeQuietly(ctx, logg, "database", dbClient.Close)
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fail("failed to run dev migrations", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fail("failed to bootstrap redis", err)
	}
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	jobs, cleanup, err := buildJobs(ctx, cfg, logg, dbClient, redisClient)
	if err != nil {
		return fail("failed to build cron jobs", err)
	}
	defer cleanup()

	registry, err := cron.NewRegistry(jobs...)
	if err != nil {
		return fail("failed to register cron jobs", err)
	}
	if list {
		for _, job := range registry.Jobs() {
			fmt.Println(job.Name())
		}
		return 0
	}

	locker, err := cron.NewRedisLocker(redisClient, cfg.Cron.LockTTL)
	if err != nil {
		return fail("failed to create cron locker", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Locker:   locker,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return fail("failed to create cron service", err)
	}

	if jobName != "" {
		if err := service.RunJob(ctx, jobName); err != nil {
			return fail("cron job failed", err)
		}
		return 0
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fail("cron worker stopped unexpectedly", err)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return 0
}

func closeQuietly(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+name, err)
	}
}
