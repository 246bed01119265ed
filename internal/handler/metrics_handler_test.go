package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-schedule-api/internal/service"
)

type pingerStub struct{ err error }

func (p pingerStub) PingContext(ctx context.Context) error { return p.err }

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for name, tc := range map[string]struct {
		db   Pinger
		want int
	}{
		"no database":   {db: nil, want: http.StatusOK},
		"database up":   {db: pingerStub{}, want: http.StatusOK},
		"database down": {db: pingerStub{err: errors.New("dial tcp: refused")}, want: http.StatusServiceUnavailable},
	} {
		t.Run(name, func(t *testing.T) {
			h := NewMetricsHandler(nil, tc.db)
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request, _ = http.NewRequest(http.MethodGet, "/ready", nil)

			h.Ready(c)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	metrics.RecordSyncRun(service.SyncOutcomeContended, 0)

	router := gin.New()
	h := NewMetricsHandler(metrics, nil)
	router.GET("/metrics", h.Prometheus)
	router.GET("/health", h.Health)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `schedule_sync_runs_total{outcome="contended"} 1`)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
