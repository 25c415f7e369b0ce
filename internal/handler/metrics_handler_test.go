package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-health-api/internal/service"
)

type pingStub struct{ err error }

func (p pingStub) PingContext(context.Context) error { return p.err }

func (p pingStub) Ping(context.Context) error { return p.err }

func TestMetricsHandlerHealth(t *testing.T) {
	h := NewMetricsHandler(nil, nil, nil, nil)
	c, rec := newTestContext(http.MethodGet, "/health", "", nil)

	h.Health(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsHandlerReady(t *testing.T) {
	cases := []struct {
		name   string
		db     error
		cache  error
		status int
		checks map[string]string
	}{
		{name: "all up", status: http.StatusOK, checks: map[string]string{"database": "up", "cache": "up"}},
		{name: "cache down is degraded", cache: errors.New("refused"), status: http.StatusOK, checks: map[string]string{"database": "up", "cache": "down"}},
		{name: "database down", db: errors.New("refused"), status: http.StatusServiceUnavailable, checks: map[string]string{"database": "down", "cache": "up"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewMetricsHandler(nil, pingStub{err: tc.db}, pingStub{err: tc.cache}, nil)
			c, rec := newTestContext(http.MethodGet, "/ready", "", nil)

			h.Ready(c)

			require.Equal(t, tc.status, rec.Code)
			var body struct {
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.checks, body.Checks)
		})
	}
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.IncForecastFailure()
	h := NewMetricsHandler(metrics, nil, nil, nil)
	c, rec := newTestContext(http.MethodGet, "/metrics", "", nil)

	h.Prometheus(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "forecast")
}

func TestMetricsHandlerPrometheusDisabled(t *testing.T) {
	h := NewMetricsHandler(nil, nil, nil, nil)
	c, rec := newTestContext(http.MethodGet, "/metrics", "", nil)

	h.Prometheus(c)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
