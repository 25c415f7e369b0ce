package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-health-api/internal/models"
	appErrors "github.com/noah-isme/sma-health-api/pkg/errors"
)

// Forecaster predicts upcoming case counts for a location. Failures are ErrDependencyUnavailable.
type Forecaster interface {
	Forecast(ctx context.Context, location string, horizon int) ([]models.PredictionData, error)
}

// ForecastConfig configures the HTTP forecasting client.
type ForecastConfig struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPForecaster calls the external forecasting model service.
type HTTPForecaster struct {
	baseURL string
	client  *http.Client
	metrics *MetricsService
	logger  *zap.Logger
}

// NewHTTPForecaster constructs a forecaster with a bounded request timeout.
func NewHTTPForecaster(cfg ForecastConfig, metrics *MetricsService, logger *zap.Logger) *HTTPForecaster {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPForecaster{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
		metrics: metrics,
		logger:  logger,
	}
}

type forecastResponse struct {
	Location    string `json:"location"`
	Predictions []struct {
		Timestamp     time.Time `json:"timestamp"`
		ExpectedCount float64   `json:"expectedCount"`
	} `json:"predictions"`
}

// Forecast implements Forecaster.
func (f *HTTPForecaster) Forecast(ctx context.Context, location string, horizon int) ([]models.PredictionData, error) {
	if f.baseURL == "" {
		return nil, appErrors.Dependency(fmt.Errorf("forecast URL not configured"), "forecaster")
	}
	q := url.Values{}
	q.Set("location", location)
	q.Set("horizon", strconv.Itoa(horizon))
	endpoint := f.baseURL + "/v1/forecast?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, appErrors.Dependency(err, "forecaster")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := f.client.Do(req)
	duration := time.Since(start)
	statusCode := http.StatusServiceUnavailable
	if err == nil {
		statusCode = resp.StatusCode
	}
	f.metrics.ObserveHTTPRequest(http.MethodGet, "forecaster", statusCode, duration)
	if err != nil {
		return nil, appErrors.Dependency(err, "forecaster")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, appErrors.Dependency(fmt.Errorf("received status %d", resp.StatusCode), "forecaster")
	}

	var payload forecastResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, appErrors.Dependency(fmt.Errorf("decode forecast: %w", err), "forecaster")
	}
	out := make([]models.PredictionData, 0, len(payload.Predictions))
	for _, p := range payload.Predictions {
		out = append(out, models.PredictionData{LocationID: location, Timestamp: p.Timestamp.UTC(), ExpectedCount: p.ExpectedCount})
	}
	return out, nil
}

// CachedForecaster serves forecasts from the cache and only stores successful results.
type CachedForecaster struct {
	next  Forecaster
	cache *CacheService
	ttl   time.Duration
}

// NewCachedForecaster wraps next with caching.
func NewCachedForecaster(next Forecaster, cache *CacheService, ttl time.Duration) *CachedForecaster {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CachedForecaster{next: next, cache: cache, ttl: ttl}
}

// Forecast implements Forecaster.
func (f *CachedForecaster) Forecast(ctx context.Context, location string, horizon int) ([]models.PredictionData, error) {
	key := fmt.Sprintf("forecast:%s:%d", location, horizon)
	predictions, _, err := Remember(ctx, f.cache, key, f.ttl, func(ctx context.Context) ([]models.PredictionData, error) {
		return f.next.Forecast(ctx, location, horizon)
	})
	return predictions, err
}

// DisabledForecaster always returns no predictions.
type DisabledForecaster struct{}

// Forecast implements Forecaster.
func (DisabledForecaster) Forecast(context.Context, string, int) ([]models.PredictionData, error) {
	return []models.PredictionData{}, nil
}
