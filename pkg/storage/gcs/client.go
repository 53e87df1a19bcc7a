package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/angelmondragon/lastmile-backend/pkg/config"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
)

const (
	storageHost    = "https://storage.googleapis.com"
	requestTimeout = 30 * time.Second
	pingTimeout    = 5 * time.Second
)

var errNotInitialized = errors.New("gcs client not initialized")

// Client talks to the GCS JSON API for a single default bucket.
type Client struct {
	http       *http.Client
	bucket     string
	apiBase    string
	publicBase string
	signer     *urlSigner
}

func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BucketName) == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	creds, err := credentials(ctx, gcp)
	if err != nil {
		return nil, err
	}
	signer, err := signerFromJSON(creds.JSON)
	if err != nil {
		return nil, err
	}

	httpClient := oauth2.NewClient(ctx, creds.TokenSource)
	httpClient.Timeout = requestTimeout

	c := &Client{
		http:       httpClient,
		bucket:     cfg.BucketName,
		apiBase:    storageHost,
		publicBase: strings.TrimRight(cfg.PublicBaseURL, "/"),
		signer:     signer,
	}
	if err := c.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"bucket":      c.bucket,
			"signed_urls": signer != nil,
		}), "gcs client initialized")
	}
	return c, nil
}

func (c *Client) Close() error { return nil }

func (c *Client) pick(bucket string) string {
	if b := strings.TrimSpace(bucket); b != "" {
		return b
	}
	return c.bucket
}

// Ping lists at most one object to prove the bucket is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.http == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/storage/v1/b/%s/o?maxResults=1", c.apiBase, url.PathEscape(c.bucket))
	return c.call(ctx, http.MethodGet, endpoint, nil, "", "gcs bucket check", http.StatusOK)
}

// Upload writes body to bucket/object with a single media upload.
func (c *Client) Upload(ctx context.Context, bucket, object, contentType string, body io.Reader) error {
	if c == nil || c.http == nil {
		return errNotInitialized
	}
	bucket = c.pick(bucket)
	switch {
	case bucket == "":
		return errors.New("bucket is required")
	case strings.TrimSpace(object) == "":
		return errors.New("object name is required")
	case strings.TrimSpace(contentType) == "":
		return errors.New("content type is required")
	}

	q := url.Values{"uploadType": {"media"}, "name": {object}}
	endpoint := fmt.Sprintf("%s/upload/storage/v1/b/%s/o?%s", c.apiBase, url.PathEscape(bucket), q.Encode())
	return c.call(ctx, http.MethodPost, endpoint, body, contentType, "gcs upload", http.StatusOK, http.StatusCreated)
}

// DeleteObject removes bucket/object; an object that is already gone is fine.
func (c *Client) DeleteObject(ctx context.Context, bucket, object string) error {
	if c == nil || c.http == nil {
		return errNotInitialized
	}
	bucket = c.pick(bucket)
	if bucket == "" || strings.TrimSpace(object) == "" {
		return errors.New("bucket and object are required")
	}
	endpoint := fmt.Sprintf("%s/storage/v1/b/%s/o/%s", c.apiBase, url.PathEscape(bucket), url.PathEscape(object))
	return c.call(ctx, http.MethodDelete, endpoint, nil, "", "gcs delete",
		http.StatusOK, http.StatusNoContent, http.StatusNotFound)
}

// PublicURL is the unauthenticated URL of an object in a public bucket.
func (c *Client) PublicURL(bucket, object string) string {
	base := c.publicBase
	if base == "" {
		base = storageHost
	}
	return base + "/" + c.pick(bucket) + "/" + objectPath(object)
}

// SignedReadURL grants GET on an object for ttl.
func (c *Client) SignedReadURL(bucket, object string, ttl time.Duration) (string, error) {
	return c.signer.sign(storageHost, signRequest{
		method: http.MethodGet,
		bucket: c.pick(bucket),
		object: object,
		ttl:    ttl,
	})
}

func (c *Client) call(ctx context.Context, method, endpoint string, body io.Reader, contentType, op string, okStatus ...int) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	for _, status := range okStatus {
		if resp.StatusCode == status {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if msg := strings.TrimSpace(string(detail)); msg != "" {
		return fmt.Errorf("%s failed: %s: %s", op, resp.Status, msg)
	}
	return fmt.Errorf("%s failed: %s", op, resp.Status)
}
