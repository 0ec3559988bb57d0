package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelsync/backend/internal/domain/connector"
	"github.com/channelsync/backend/internal/domain/job"
	"github.com/channelsync/backend/internal/domain/store"
	"github.com/channelsync/backend/internal/infrastructure/scheduler"
)

type stubHistory struct {
	jobs []*job.Job
}

func (h *stubHistory) History(limit int) []*job.Job {
	if limit < len(h.jobs) {
		return h.jobs[:limit]
	}
	return h.jobs
}

func newHealthServer(t *testing.T, probes []scheduler.Probe, monitor *stubMonitor, history *stubHistory) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	NewHealthHandler(probes, monitor, history).RegisterRoutes(engine.Group(""))
	return engine
}

func TestHealthHandler_Healthz(t *testing.T) {
	monitor := &stubMonitor{stores: []store.Store{{
		ID:       uuid.New(),
		Platform: connector.PlatformAmazon,
		Healthy:  true,
	}}}
	history := &stubHistory{jobs: []*job.Job{job.New(uuid.New(), job.TypeOrderSync)}}

	t.Run("healthy dependencies return 200", func(t *testing.T) {
		probes := []scheduler.Probe{
			{Name: "database", Check: func(ctx context.Context) error { return nil }},
			{Name: "redis", Check: func(ctx context.Context) error { return nil }},
		}
		engine := newHealthServer(t, probes, monitor, history)

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"healthy":true`)
		assert.Contains(t, rec.Body.String(), `"recent_jobs"`)
	})

	t.Run("failing dependency degrades to 503", func(t *testing.T) {
		probes := []scheduler.Probe{
			{Name: "database", Check: func(ctx context.Context) error { return nil }},
			{Name: "redis", Check: func(ctx context.Context) error { return errors.New("connection refused") }},
		}
		engine := newHealthServer(t, probes, monitor, history)

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "connection refused")
		// Store and job snapshots still present in a degraded response
		assert.Contains(t, rec.Body.String(), "AMAZON")
	})
}
