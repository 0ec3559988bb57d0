package handler

import (
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/channelsync/backend/internal/application/webhook"
	"github.com/channelsync/backend/internal/domain/connector"
	"github.com/channelsync/backend/internal/domain/store"
)

// WebhookHandler receives inbound marketplace deliveries. The body must be
// read raw and unmodified; the HMAC covers the exact bytes on the wire.
type WebhookHandler struct {
	BaseHandler
	service *webhook.Service
}

// NewWebhookHandler creates a webhook handler
func NewWebhookHandler(service *webhook.Service) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// RegisterRoutes registers webhook routes
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/:platform/:store_id", h.Receive)
}

// Receive handles POST /webhooks/:platform/:store_id
func (h *WebhookHandler) Receive(c *gin.Context) {
	platform := connector.Platform(strings.ToUpper(c.Param("platform")))
	if !platform.IsValid() {
		h.NotFound(c, "unknown platform")
		return
	}
	storeID, err := uuid.Parse(c.Param("store_id"))
	if err != nil {
		h.BadRequest(c, "invalid store id")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.BadRequest(c, "unreadable request body")
		return
	}

	result, err := h.service.Process(c.Request.Context(), platform, storeID, c.GetHeader, body)
	if err != nil {
		h.handleProcessError(c, err)
		return
	}

	h.Success(c, gin.H{
		"entity":  result.Entity,
		"written": result.Written,
		"skipped": result.Skipped,
	})
}

// handleProcessError maps processing failures to status codes. Authenticity
// failures are all 401 so probes cannot distinguish a missing secret from a
// bad signature.
func (h *WebhookHandler) handleProcessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, webhook.ErrMissingSecret),
		errors.Is(err, webhook.ErrMissingSignature),
		errors.Is(err, webhook.ErrSignatureMismatch),
		errors.Is(err, webhook.ErrDomainMismatch),
		errors.Is(err, webhook.ErrWrongPlatform):
		h.Unauthorized(c, "webhook verification failed")
	case errors.Is(err, store.ErrStoreNotFound),
		errors.Is(err, connector.ErrPlatformNotRegistered):
		h.NotFound(c, "store not found")
	case errors.Is(err, webhook.ErrUndecodable):
		h.BadRequest(c, "undecodable event payload")
	default:
		h.InternalError(c, "webhook processing failed")
	}
}
