package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/lastmile-backend/pkg/config"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
)

const (
	metadataTimeout = 10 * time.Second
	partitionField  = "created_at"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errDatasetRequired   = errors.New("bigquery dataset is required")
	errTableRequired     = errors.New("bigquery table name is required")
)

// InsertIDer lets a row carry its own streaming-insert dedupe id, so a
// batch re-sent after a crash is collapsed by BigQuery.
type InsertIDer interface {
	InsertID() string
}

// Client streams rows into one dataset. Tables missing on first insert are
// created from the row's struct schema, day-partitioned on created_at.
type Client struct {
	client  *bigquery.Client
	dataset *bigquery.Dataset
	cfg     config.BigQueryConfig
	logg    *logger.Logger

	mu    sync.Mutex
	ready map[string]bool
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	cfg.Dataset = strings.TrimSpace(cfg.Dataset)
	cfg.LedgerTable = strings.TrimSpace(cfg.LedgerTable)
	if cfg.Dataset == "" {
		return nil, errDatasetRequired
	}

	bq, err := bigquery.NewClient(ctx, projectID, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{
		client:  bq,
		dataset: bq.Dataset(cfg.Dataset),
		cfg:     cfg,
		logg:    logg,
		ready:   make(map[string]bool),
	}
	if err := c.Ping(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "dataset", cfg.Dataset), "bigquery client initialized")
	}
	return c, nil
}

// Ping checks the dataset is reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	if _, err := c.dataset.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("dataset %q does not exist", c.cfg.Dataset)
		}
		return fmt.Errorf("checking dataset %q: %w", c.cfg.Dataset, err)
	}
	return nil
}

// InsertRows streams rows into table. Rows are structs with bigquery tags.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableRequired
	}
	if len(rows) == 0 {
		return nil
	}
	if err := c.ensureTable(ctx, table, rows[0]); err != nil {
		return err
	}
	return c.dataset.Table(table).Inserter().Put(ctx, savers(rows))
}

func savers(rows []any) []*bigquery.StructSaver {
	out := make([]*bigquery.StructSaver, 0, len(rows))
	for _, row := range rows {
		saver := &bigquery.StructSaver{Struct: row}
		if ider, ok := row.(InsertIDer); ok {
			saver.InsertID = ider.InsertID()
		}
		out = append(out, saver)
	}
	return out
}

func (c *Client) ensureTable(ctx context.Context, table string, sample any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready[table] {
		return nil
	}

	metaCtx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	ref := c.dataset.Table(table)
	_, err := ref.Metadata(metaCtx)
	switch {
	case err == nil:
	case isNotFound(err):
		meta, schemaErr := tableMetadata(sample)
		if schemaErr != nil {
			return schemaErr
		}
		if err := ref.Create(metaCtx, meta); err != nil && !isConflict(err) {
			return fmt.Errorf("creating table %q: %w", table, err)
		}
		if c.logg != nil {
			c.logg.Info(c.logg.WithField(ctx, "table", table), "bigquery table created")
		}
	default:
		return fmt.Errorf("checking table %q: %w", table, err)
	}
	c.ready[table] = true
	return nil
}

func tableMetadata(sample any) (*bigquery.TableMetadata, error) {
	schema, err := bigquery.InferSchema(sample)
	if err != nil {
		return nil, fmt.Errorf("infer schema for %T: %w", sample, err)
	}
	meta := &bigquery.TableMetadata{Schema: schema}
	for _, field := range schema {
		if field.Name == partitionField && field.Type == bigquery.TimestampFieldType {
			meta.TimePartitioning = &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: partitionField}
		}
	}
	return meta, nil
}

// LedgerTable returns the configured wallet ledger table name.
func (c *Client) LedgerTable() string {
	return c.cfg.LedgerTable
}

func (c *Client) Close() error {
	return c.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

func isConflict(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}
