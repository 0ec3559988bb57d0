package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/channelsync/backend/internal/domain/job"
	"github.com/channelsync/backend/internal/domain/store"
	"github.com/channelsync/backend/internal/infrastructure/scheduler"
)

// JobHistory exposes recently finished jobs for the health snapshot
type JobHistory interface {
	History(limit int) []*job.Job
}

// HealthHandler reports engine liveness: its own dependencies, per-store
// health, and recent job outcomes
type HealthHandler struct {
	BaseHandler
	probes  []scheduler.Probe
	monitor store.Monitor
	history JobHistory
}

// NewHealthHandler creates a health handler
func NewHealthHandler(probes []scheduler.Probe, monitor store.Monitor, history JobHistory) *HealthHandler {
	return &HealthHandler{probes: probes, monitor: monitor, history: history}
}

// RegisterRoutes registers the health route
func (h *HealthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/healthz", h.Healthz)
}

// Healthz handles GET /healthz. A failing dependency degrades the response
// to 503 but still includes everything that could be gathered.
func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx := c.Request.Context()
	healthy := true

	deps := make(map[string]string, len(h.probes))
	for _, probe := range h.probes {
		if err := probe.Check(ctx); err != nil {
			deps[probe.Name] = err.Error()
			healthy = false
		} else {
			deps[probe.Name] = "ok"
		}
	}

	var storeSnapshots []gin.H
	stores, err := h.monitor.AllStores(ctx)
	if err != nil {
		healthy = false
	} else {
		storeSnapshots = make([]gin.H, 0, len(stores))
		for i := range stores {
			st := stores[i]
			storeSnapshots = append(storeSnapshots, gin.H{
				"id":             st.ID,
				"platform":       st.Platform,
				"healthy":        st.Healthy,
				"health_message": st.HealthMessage,
				"last_synced_at": st.LastSyncedAt,
			})
		}
	}

	jobs := h.history.History(20)
	jobSnapshots := make([]gin.H, 0, len(jobs))
	for _, j := range jobs {
		jobSnapshots = append(jobSnapshots, gin.H{
			"id":         j.ID,
			"store_id":   j.StoreID,
			"type":       j.Type,
			"status":     j.Status,
			"attempt":    j.Attempt,
			"last_error": j.LastError,
		})
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"healthy":      healthy,
		"dependencies": deps,
		"stores":       storeSnapshots,
		"recent_jobs":  jobSnapshots,
	})
}
