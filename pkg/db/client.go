package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/pkg/config"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
)

const metricsDBName = "lastmile"

// Client is the process-wide Postgres pool. Repositories take DB(); services
// that own a unit of work take the client itself as their tx runner.
type Client struct {
	conn *gorm.DB
}

// New connects through pgx. The simple protocol keeps the pool usable
// behind PgBouncer in transaction mode.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}
	conn, err := gorm.Open(
		postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true}),
		&gorm.Config{Logger: newQueryLogger(logg, cfg.SlowQuery), SkipDefaultTransaction: true},
	)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	c := &Client{conn: conn}
	if err := c.configurePool(cfg); err != nil {
		return nil, err
	}
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"max_open_conns": cfg.MaxOpenConns,
			"max_idle_conns": cfg.MaxIdleConns,
		}), "database connection established")
	}
	return c, nil
}

func (c *Client) configurePool(cfg config.DBConfig) error {
	pool, err := c.conn.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return nil
}

// Wrap adopts a connection opened elsewhere (sqlite in tests).
func Wrap(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

func (c *Client) DB() *gorm.DB { return c.conn }

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// RegisterMetrics exports database/sql pool statistics on reg.
func (c *Client) RegisterMetrics(reg prometheus.Registerer) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return reg.Register(collectors.NewDBStatsCollector(pool, metricsDBName))
}

// WithTx commits when fn returns nil and rolls back on error or panic.
// Panics propagate after the rollback.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}
