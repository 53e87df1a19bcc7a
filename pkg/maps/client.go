// Package maps measures road distance between two points with the Google
// Routes API.
package maps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/lastmile-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/lastmile-backend/pkg/errors"
)

const (
	defaultBaseURL    = "https://routes.googleapis.com"
	defaultTravelMode = "TWO_WHEELER"
	computeRoutesPath = "/directions/v2:computeRoutes"
	fieldMask         = "routes.distanceMeters"
	requestTimeout    = 10 * time.Second
)

var (
	errAPIKeyRequired = errors.New("google maps api key is required")
	ErrNoRoute        = errors.New("no route between points")
)

type Client struct {
	http       *http.Client
	endpoint   string
	apiKey     string
	travelMode string
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

func NewClient(cfg config.GoogleMapsConfig, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	mode := strings.ToUpper(strings.TrimSpace(cfg.TravelMode))
	if mode == "" {
		mode = defaultTravelMode
	}

	c := &Client{
		http:       &http.Client{Timeout: requestTimeout},
		endpoint:   base + computeRoutesPath,
		apiKey:     key,
		travelMode: mode,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type location struct {
	LatLng LatLng `json:"latLng"`
}

type waypoint struct {
	Location location `json:"location"`
}

type routesRequest struct {
	Origin      waypoint `json:"origin"`
	Destination waypoint `json:"destination"`
	TravelMode  string   `json:"travelMode"`
	Units       string   `json:"units"`
}

type routesResponse struct {
	Routes []struct {
		DistanceMeters int64 `json:"distanceMeters"`
	} `json:"routes"`
}

// RouteDistanceKM returns the length of the first route Google suggests.
// Upstream failures come back as CodeDependency.
func (c *Client) RouteDistanceKM(ctx context.Context, origin, destination LatLng) (float64, error) {
	if c == nil {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, "google maps client not configured")
	}
	body, err := json.Marshal(routesRequest{
		Origin:      waypoint{location{origin}},
		Destination: waypoint{location{destination}},
		TravelMode:  c.travelMode,
		Units:       "METRIC",
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode routes request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build routes request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call routes api")
	}
	defer func() { _ = resp.Body.Close() }()

	if err := googleapi.CheckResponse(resp); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "routes api rejected request").
			WithDetails(map[string]any{"status": resp.StatusCode})
	}

	var out routesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode routes response")
	}
	if len(out.Routes) == 0 {
		return 0, ErrNoRoute
	}
	return float64(out.Routes[0].DistanceMeters) / 1000, nil
}
