package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelsync/backend/internal/domain/connector"
	"github.com/channelsync/backend/internal/domain/store"
	"github.com/channelsync/backend/internal/infrastructure/auth"
	"github.com/channelsync/backend/internal/infrastructure/config"
	"github.com/channelsync/backend/internal/interfaces/http/middleware"
)

type adminStoreRepo struct {
	stubStoreRepo
	updated connector.Credentials
}

func (r *adminStoreRepo) UpdateCredentials(ctx context.Context, storeID uuid.UUID, creds connector.Credentials) error {
	if r.st == nil || r.st.ID != storeID {
		return store.ErrStoreNotFound
	}
	r.updated = creds
	return nil
}

type stubMonitor struct {
	stores []store.Store
	alerts []store.Alert
}

func (m *stubMonitor) AllStores(ctx context.Context) ([]store.Store, error) { return m.stores, nil }

func (m *stubMonitor) RecentAlerts(ctx context.Context, limit int) ([]store.Alert, error) {
	return m.alerts, nil
}

func newAdminServer(t *testing.T, repo *adminStoreRepo, monitor *stubMonitor) (*gin.Engine, *auth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret:                "test-secret-with-enough-entropy-here",
		AccessTokenExpiration: time.Minute,
		Issuer:                "channelsync",
	})

	engine := gin.New()
	group := engine.Group("/admin")
	group.Use(middleware.JWTAuth(jwtService))
	NewAdminHandler(repo, monitor).RegisterRoutes(group)
	return engine, jwtService
}

func TestAdminHandler_UpdateCredentials(t *testing.T) {
	st := &store.Store{ID: uuid.New(), Platform: connector.PlatformEtsy}

	t.Run("rotates credentials with a valid token", func(t *testing.T) {
		repo := &adminStoreRepo{stubStoreRepo: stubStoreRepo{st: st}}
		engine, jwtService := newAdminServer(t, repo, &stubMonitor{})
		token, err := jwtService.Generate(uuid.New())
		require.NoError(t, err)

		body := []byte(`{"api_key":"key-1","shared_secret":"sec-1"}`)
		req := httptest.NewRequest(http.MethodPut, "/admin/stores/"+st.ID.String()+"/credentials", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "key-1", repo.updated.Get("api_key"))
	})

	t.Run("rejects requests without a token", func(t *testing.T) {
		repo := &adminStoreRepo{stubStoreRepo: stubStoreRepo{st: st}}
		engine, _ := newAdminServer(t, repo, &stubMonitor{})

		req := httptest.NewRequest(http.MethodPut, "/admin/stores/"+st.ID.String()+"/credentials",
			bytes.NewReader([]byte(`{"api_key":"key-1"}`)))
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, repo.updated)
	})

	t.Run("rejects a forged token", func(t *testing.T) {
		repo := &adminStoreRepo{stubStoreRepo: stubStoreRepo{st: st}}
		engine, _ := newAdminServer(t, repo, &stubMonitor{})

		other := auth.NewJWTService(config.JWTConfig{
			Secret:                "a-different-signing-secret-entirely",
			AccessTokenExpiration: time.Minute,
			Issuer:                "channelsync",
		})
		token, err := other.Generate(uuid.New())
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPut, "/admin/stores/"+st.ID.String()+"/credentials",
			bytes.NewReader([]byte(`{"api_key":"key-1"}`)))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects an expired token with the expiry message", func(t *testing.T) {
		repo := &adminStoreRepo{stubStoreRepo: stubStoreRepo{st: st}}
		engine, _ := newAdminServer(t, repo, &stubMonitor{})

		// Same secret, negative lifetime: the token is expired at issue time
		expired := auth.NewJWTService(config.JWTConfig{
			Secret:                "test-secret-with-enough-entropy-here",
			AccessTokenExpiration: -time.Minute,
			Issuer:                "channelsync",
		})
		token, err := expired.Generate(uuid.New())
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPut, "/admin/stores/"+st.ID.String()+"/credentials",
			bytes.NewReader([]byte(`{"api_key":"key-1"}`)))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "token has expired")
		assert.Nil(t, repo.updated)
	})

	t.Run("rejects empty credentials", func(t *testing.T) {
		repo := &adminStoreRepo{stubStoreRepo: stubStoreRepo{st: st}}
		engine, jwtService := newAdminServer(t, repo, &stubMonitor{})
		token, _ := jwtService.Generate(uuid.New())

		req := httptest.NewRequest(http.MethodPut, "/admin/stores/"+st.ID.String()+"/credentials",
			bytes.NewReader([]byte(`{}`)))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown store returns 404", func(t *testing.T) {
		repo := &adminStoreRepo{stubStoreRepo: stubStoreRepo{st: st}}
		engine, jwtService := newAdminServer(t, repo, &stubMonitor{})
		token, _ := jwtService.Generate(uuid.New())

		req := httptest.NewRequest(http.MethodPut, "/admin/stores/"+uuid.NewString()+"/credentials",
			bytes.NewReader([]byte(`{"api_key":"key-1"}`)))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAdminHandler_ListAlerts(t *testing.T) {
	storeID := uuid.New()
	monitor := &stubMonitor{alerts: []store.Alert{{
		ID:       uuid.New(),
		StoreID:  &storeID,
		Type:     store.AlertTypeAuthFailed,
		Severity: store.AlertSeverityCritical,
		Message:  "product_sync failed: connector: invalid configuration",
	}}}
	engine, jwtService := newAdminServer(t, &adminStoreRepo{}, monitor)
	token, _ := jwtService.Generate(uuid.New())

	req := httptest.NewRequest(http.MethodGet, "/admin/alerts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "auth_failed")
}
