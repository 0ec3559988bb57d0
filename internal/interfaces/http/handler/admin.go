package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/channelsync/backend/internal/domain/connector"
	"github.com/channelsync/backend/internal/domain/store"
)

// AdminHandler exposes the operator surface: credential rotation and the
// alert feed
type AdminHandler struct {
	BaseHandler
	stores  store.Repository
	monitor store.Monitor
}

// NewAdminHandler creates an admin handler
func NewAdminHandler(stores store.Repository, monitor store.Monitor) *AdminHandler {
	return &AdminHandler{stores: stores, monitor: monitor}
}

// RegisterRoutes registers admin routes; the caller attaches auth middleware
func (h *AdminHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.PUT("/stores/:id/credentials", h.UpdateCredentials)
	rg.GET("/stores/:id", h.GetStore)
	rg.GET("/alerts", h.ListAlerts)
}

// UpdateCredentials handles PUT /admin/stores/:id/credentials. A successful
// rotation also resets the store's auth status to active so the next tick
// schedules it again.
func (h *AdminHandler) UpdateCredentials(c *gin.Context) {
	storeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid store id")
		return
	}

	var creds connector.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		h.BadRequest(c, "credentials must be a JSON object of strings")
		return
	}
	if len(creds) == 0 {
		h.BadRequest(c, "credentials cannot be empty")
		return
	}

	if err := h.stores.UpdateCredentials(c.Request.Context(), storeID, creds); err != nil {
		if errors.Is(err, store.ErrStoreNotFound) {
			h.NotFound(c, "store not found")
			return
		}
		h.InternalError(c, "failed to update credentials")
		return
	}
	h.Success(c, gin.H{"store_id": storeID, "auth_status": string(store.AuthStatusActive)})
}

// GetStore handles GET /admin/stores/:id
func (h *AdminHandler) GetStore(c *gin.Context) {
	storeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid store id")
		return
	}

	st, err := h.stores.FindByID(c.Request.Context(), storeID)
	if err != nil {
		if errors.Is(err, store.ErrStoreNotFound) {
			h.NotFound(c, "store not found")
			return
		}
		h.InternalError(c, "failed to load store")
		return
	}
	h.Success(c, storeResponse(st))
}

// ListAlerts handles GET /admin/alerts
func (h *AdminHandler) ListAlerts(c *gin.Context) {
	alerts, err := h.monitor.RecentAlerts(c.Request.Context(), 100)
	if err != nil {
		h.InternalError(c, "failed to load alerts")
		return
	}
	h.Success(c, alerts)
}

func storeResponse(st *store.Store) gin.H {
	return gin.H{
		"id":             st.ID,
		"name":           st.Name,
		"platform":       st.Platform,
		"domain":         st.Domain,
		"auth_status":    st.AuthStatus,
		"healthy":        st.Healthy,
		"health_message": st.HealthMessage,
		"last_synced_at": st.LastSyncedAt,
	}
}
