// Package travel builds travel-time matrices by querying a directions API
// once per origin-destination pair.
package travel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/compscout/compscout/internal/landscape"
	"github.com/compscout/compscout/internal/metrics"
)

// ErrProvider marks transport-level directions API failures. A response
// carrying a non-OK status is not a provider error, only a missing route.
var ErrProvider = errors.New("directions provider error")

// DefaultBaseURL points at the Google Maps Directions endpoint.
const DefaultBaseURL = "https://maps.googleapis.com/maps/api/directions/json"

// Config controls the directions client.
type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	MaxConcurrent int
}

// Client implements landscape.TravelTimeProvider over a directions API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	clock      landscape.Clock
	logger     *zap.Logger
}

// NewClient builds a Client. The API key is required: matrix construction
// refuses to start without a credential.
func NewClient(cfg Config, clock landscape.Clock, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: a routing credential is required when no matrix is given", landscape.ErrInvalidArgument)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		clock:      clock,
		logger:     logger,
	}, nil
}

type directionsResponse struct {
	Status string `json:"status"`
	Routes []struct {
		Legs []struct {
			Duration struct {
				Value float64 `json:"value"`
				Text  string  `json:"text"`
			} `json:"duration"`
		} `json:"legs"`
	} `json:"routes"`
}

// route fetches the travel time for a single pair. The boolean result is
// false when the API answered but found no usable route.
func (c *Client) route(ctx context.Context, origin, destination string, departure int64) (float64, bool, error) {
	params := url.Values{}
	params.Set("origin", origin)
	params.Set("destination", destination)
	params.Set("departure_time", strconv.FormatInt(departure, 10))
	params.Set("key", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return 0, false, fmt.Errorf("build directions request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveDirectionsCall("transport_error")
		return 0, false, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		metrics.ObserveDirectionsCall("transport_error")
		return 0, false, fmt.Errorf("%w: unexpected HTTP status %d", ErrProvider, resp.StatusCode)
	}

	var body directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.ObserveDirectionsCall("transport_error")
		return 0, false, fmt.Errorf("%w: decode response: %v", ErrProvider, err)
	}

	if body.Status != "OK" {
		metrics.ObserveDirectionsCall("no_route")
		c.logger.Warn("no valid route for pair",
			zap.String("origin", origin),
			zap.String("destination", destination),
			zap.String("status", body.Status),
		)
		return 0, false, nil
	}
	if len(body.Routes) == 0 || len(body.Routes[0].Legs) == 0 {
		metrics.ObserveDirectionsCall("no_route")
		c.logger.Warn("directions response carried no legs",
			zap.String("origin", origin),
			zap.String("destination", destination),
		)
		return 0, false, nil
	}
	metrics.ObserveDirectionsCall("ok")
	return body.Routes[0].Legs[0].Duration.Value, true, nil
}
