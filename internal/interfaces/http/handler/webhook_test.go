package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelsync/backend/internal/application/webhook"
	"github.com/channelsync/backend/internal/domain/catalog"
	"github.com/channelsync/backend/internal/domain/connector"
	"github.com/channelsync/backend/internal/domain/store"
	"github.com/channelsync/backend/internal/domain/trade"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type eventPayload struct {
	ExternalID string `json:"external_id"`
	SKU        string `json:"sku"`
}

type stubConnector struct {
	platform connector.Platform
	scheme   connector.WebhookScheme
}

func (c *stubConnector) Platform() connector.Platform { return c.platform }

func (c *stubConnector) Initialize(creds connector.Credentials) error { return nil }

func (c *stubConnector) FetchProducts(ctx context.Context, since *time.Time) ([]catalog.Product, error) {
	return nil, nil
}

func (c *stubConnector) FetchOrders(ctx context.Context, since *time.Time) ([]trade.Order, error) {
	return nil, nil
}

func (c *stubConnector) FetchInventory(ctx context.Context, products []catalog.Product) (map[string]catalog.InventoryLevel, error) {
	return nil, nil
}

func (c *stubConnector) FetchReturns(ctx context.Context, since *time.Time) ([]trade.Return, error) {
	return nil, connector.ErrNotSupported
}

func (c *stubConnector) SupportsReturns() bool { return false }

func (c *stubConnector) WebhookScheme() connector.WebhookScheme { return c.scheme }

func (c *stubConnector) DecodeOrderEvent(storeID uuid.UUID, body []byte) (*trade.Order, error) {
	var payload eventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return &trade.Order{
		StoreID:    storeID,
		Platform:   c.platform.String(),
		ExternalID: payload.ExternalID,
		Status:     trade.OrderStatusPaid,
		OrderedAt:  time.Now().UTC(),
	}, nil
}

func (c *stubConnector) DecodeProductEvent(storeID uuid.UUID, body []byte) ([]catalog.Product, error) {
	var payload eventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return []catalog.Product{{
		StoreID:    storeID,
		Platform:   c.platform.String(),
		ExternalID: payload.ExternalID,
		SKU:        payload.SKU,
		Status:     catalog.ProductStatusActive,
	}}, nil
}

type stubRegistry struct {
	conn *stubConnector
}

func (r *stubRegistry) New(platform connector.Platform) (connector.Connector, error) {
	if r.conn == nil || r.conn.platform != platform {
		return nil, connector.ErrPlatformNotRegistered
	}
	return r.conn, nil
}

func (r *stubRegistry) Platforms() []connector.Platform { return nil }

func (r *stubRegistry) SupportsReturns(platform connector.Platform) bool { return false }

type stubStoreRepo struct {
	st    *store.Store
	creds connector.Credentials
}

func (r *stubStoreRepo) FindByID(ctx context.Context, id uuid.UUID) (*store.Store, error) {
	if r.st == nil || r.st.ID != id {
		return nil, store.ErrStoreNotFound
	}
	return r.st, nil
}

func (r *stubStoreRepo) ActiveStores(ctx context.Context) ([]store.Store, error) { return nil, nil }

func (r *stubStoreRepo) GetCredentials(ctx context.Context, storeID uuid.UUID) (connector.Credentials, error) {
	if len(r.creds) == 0 {
		return nil, store.ErrCredentialsNotFound
	}
	return r.creds, nil
}

func (r *stubStoreRepo) UpdateCredentials(ctx context.Context, storeID uuid.UUID, creds connector.Credentials) error {
	return nil
}

func (r *stubStoreRepo) UpdateHealth(ctx context.Context, storeID uuid.UUID, healthy bool, message string, syncedAt *time.Time) error {
	return nil
}

type nopAlertSink struct{}

func (nopAlertSink) CreateAlert(ctx context.Context, alert store.Alert) error { return nil }

type stubProductRepo struct {
	written int
}

func (r *stubProductRepo) FindBySKUs(ctx context.Context, storeID uuid.UUID, skus []string) (map[string]catalog.Product, error) {
	return map[string]catalog.Product{}, nil
}

func (r *stubProductRepo) Upsert(ctx context.Context, products []catalog.Product) (int, error) {
	r.written += len(products)
	return len(products), nil
}

func (r *stubProductRepo) ResolveSKUs(ctx context.Context, storeID uuid.UUID, skus []string) (map[string]uuid.UUID, error) {
	return map[string]uuid.UUID{}, nil
}

type stubOrderRepo struct {
	written int
}

func (r *stubOrderRepo) FindByExternalIDs(ctx context.Context, storeID uuid.UUID, externalIDs []string) (map[string]trade.Order, error) {
	return map[string]trade.Order{}, nil
}

func (r *stubOrderRepo) ResolveExternalIDs(ctx context.Context, storeID uuid.UUID, externalIDs []string) (map[string]uuid.UUID, error) {
	return map[string]uuid.UUID{}, nil
}

func (r *stubOrderRepo) UpsertBundles(ctx context.Context, orders []trade.Order) (int, error) {
	r.written += len(orders)
	return len(orders), nil
}

func (r *stubOrderRepo) UpsertFulfillments(ctx context.Context, fulfillments []trade.Fulfillment) (int, error) {
	return len(fulfillments), nil
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

const webhookSecret = "store-secret"

func newWebhookServer(t *testing.T) (*gin.Engine, *store.Store, *stubOrderRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := &store.Store{
		ID:       uuid.New(),
		Platform: connector.PlatformShopify,
		Domain:   "main.myshopify.com",
	}
	conn := &stubConnector{
		platform: connector.PlatformShopify,
		scheme: connector.WebhookScheme{
			SignatureHeader: "X-Shopify-Hmac-Sha256",
			Encoding:        connector.SignatureEncodingBase64,
			DomainHeader:    "X-Shopify-Shop-Domain",
			TopicHeader:     "X-Shopify-Topic",
		},
	}
	orders := &stubOrderRepo{}
	service := webhook.NewService(
		&stubRegistry{conn: conn},
		&stubStoreRepo{st: st, creds: connector.Credentials{"webhook_secret": webhookSecret}},
		nopAlertSink{},
		&stubProductRepo{},
		orders,
		nil,
	)

	engine := gin.New()
	NewWebhookHandler(service).RegisterRoutes(engine.Group(""))
	return engine, st, orders
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestWebhookHandler_Receive(t *testing.T) {
	t.Run("signed delivery is accepted and written", func(t *testing.T) {
		engine, st, orders := newWebhookServer(t)
		body := []byte(`{"external_id":"ord-1","sku":"SKU-1"}`)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify/"+st.ID.String(), bytes.NewReader(body))
		req.Header.Set("X-Shopify-Hmac-Sha256", signBody(webhookSecret, body))
		req.Header.Set("X-Shopify-Shop-Domain", "main.myshopify.com")
		req.Header.Set("X-Shopify-Topic", "orders/updated")
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, 1, orders.written)
		assert.Contains(t, rec.Body.String(), `"written":1`)
	})

	t.Run("tampered body is rejected with 401", func(t *testing.T) {
		engine, st, orders := newWebhookServer(t)
		body := []byte(`{"external_id":"ord-1","sku":"SKU-1"}`)
		signature := signBody(webhookSecret, body)
		body[10]++

		req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify/"+st.ID.String(), bytes.NewReader(body))
		req.Header.Set("X-Shopify-Hmac-Sha256", signature)
		req.Header.Set("X-Shopify-Shop-Domain", "main.myshopify.com")
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, 0, orders.written)
	})

	t.Run("missing signature header is rejected with 401", func(t *testing.T) {
		engine, st, _ := newWebhookServer(t)
		body := []byte(`{"external_id":"ord-1"}`)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify/"+st.ID.String(), bytes.NewReader(body))
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown platform returns 404", func(t *testing.T) {
		engine, st, _ := newWebhookServer(t)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/bigcommerce/"+st.ID.String(), bytes.NewReader([]byte(`{}`)))
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown store returns 404", func(t *testing.T) {
		engine, _, _ := newWebhookServer(t)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify/"+uuid.NewString(), bytes.NewReader([]byte(`{}`)))
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed store id returns 400", func(t *testing.T) {
		engine, _, _ := newWebhookServer(t)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify/not-a-uuid", bytes.NewReader([]byte(`{}`)))
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong declared shop domain is rejected with 401", func(t *testing.T) {
		engine, st, _ := newWebhookServer(t)
		body := []byte(`{"external_id":"ord-1"}`)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify/"+st.ID.String(), bytes.NewReader(body))
		req.Header.Set("X-Shopify-Hmac-Sha256", signBody(webhookSecret, body))
		req.Header.Set("X-Shopify-Shop-Domain", "other.myshopify.com")
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
