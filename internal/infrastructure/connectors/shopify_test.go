package connectors

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelsync/backend/internal/domain/catalog"
	"github.com/channelsync/backend/internal/domain/connector"
	"github.com/channelsync/backend/internal/domain/trade"
)

func newShopifyForTest(t *testing.T, server *httptest.Server) *ShopifyConnector {
	t.Helper()
	c := NewShopifyConnectorWithBaseURL(nil, server.URL)
	require.NoError(t, c.Initialize(connector.Credentials{
		"shop_domain":  "example.myshopify.com",
		"access_token": "shpat_test",
	}))
	return c
}

func TestShopifyInitialize_MissingCredentials(t *testing.T) {
	c := NewShopifyConnector(nil)
	err := c.Initialize(connector.Credentials{"shop_domain": "example.myshopify.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, connector.ErrConfiguration)
}

func TestShopifyFetchProducts_CursorPagination(t *testing.T) {
	var pages atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shpat_test", r.Header.Get("X-Shopify-Access-Token"))
		assert.Equal(t, "/products.json", r.URL.Path)

		if r.URL.Query().Get("page_info") == "" {
			pages.Add(1)
			w.Header().Set("Link", fmt.Sprintf(`<%s/products.json?page_info=cursor2&limit=250>; rel="next"`, "http://"+r.Host))
			fmt.Fprint(w, `{"products":[{"id":1,"title":"Mug","status":"active","variants":[
				{"id":11,"sku":"MUG-S","price":"9.50","inventory_quantity":3,"inventory_management":"shopify"},
				{"id":12,"sku":"MUG-L","price":"12.00","inventory_quantity":0,"inventory_management":"shopify"}
			]}]}`)
			return
		}

		pages.Add(1)
		assert.Equal(t, "cursor2", r.URL.Query().Get("page_info"))
		fmt.Fprint(w, `{"products":[{"id":2,"title":"Shirt","status":"draft","variants":[
			{"id":21,"sku":"SHIRT-M","price":"25.00"}
		]}]}`)
	}))
	defer server.Close()

	c := newShopifyForTest(t, server)
	products, err := c.FetchProducts(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, int32(2), pages.Load())
	require.Len(t, products, 3)

	assert.Equal(t, "MUG-S", products[0].SKU)
	assert.Equal(t, "11", products[0].ExternalID)
	assert.Equal(t, catalog.ProductStatusActive, products[0].Status)
	assert.True(t, products[0].Price.Equal(mustDecimal(t, "9.50")))
	assert.Equal(t, catalog.ProductStatusDraft, products[2].Status)
}

func TestShopifyFetchProducts_SkipsVariantsWithoutSKU(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"products":[{"id":1,"title":"Mug","status":"active","variants":[
			{"id":11,"sku":"","price":"9.50"},
			{"id":12,"sku":"MUG-L","price":"12.00"}
		]}]}`)
	}))
	defer server.Close()

	c := newShopifyForTest(t, server)
	products, err := c.FetchProducts(context.Background(), nil)

	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "MUG-L", products[0].SKU)
}

func TestShopifyFetchOrders_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"orders":[{"id":1001,"financial_status":"paid","fulfillment_status":"fulfilled",
			"currency":"USD","subtotal_price":"20.00","total_tax":"2.00","total_price":"25.00",
			"total_shipping_price_set":{"shop_money":{"amount":"3.00"}},
			"created_at":"2025-06-01T10:00:00Z",
			"line_items":[{"id":1,"sku":"MUG-S","quantity":2,"fulfillable_quantity":0,"price":"10.00"}],
			"fulfillments":[{"id":5,"status":"success","tracking_company":"UPS","tracking_number":"1Z"}]}]}`)
	}))
	defer server.Close()

	c := newShopifyForTest(t, server)
	orders, err := c.FetchOrders(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	require.Len(t, orders, 1)

	o := orders[0]
	assert.Equal(t, "1001", o.ExternalID)
	assert.Equal(t, trade.OrderStatusCompleted, o.Status)
	assert.Equal(t, trade.PaymentStatusPaid, o.PaymentStatus)
	assert.Equal(t, trade.FulfillmentStatusShipped, o.FulfillmentStatus)
	require.Len(t, o.Items, 1)
	assert.Equal(t, int64(2), o.Items[0].FulfilledQuantity)
	require.Len(t, o.Fulfillments, 1)
	assert.Equal(t, "UPS", o.Fulfillments[0].Carrier)
}

func TestShopifyFetchOrders_TerminalFailureFailsFast(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := newShopifyForTest(t, server)
	_, err := c.FetchOrders(context.Background(), nil)

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestShopifyFetchInventory_UntrackedIsNotZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"products":[{"id":1,"title":"Mug","status":"active","variants":[
			{"id":11,"sku":"TRACKED","price":"9.50","inventory_quantity":0,"inventory_management":"shopify"},
			{"id":12,"sku":"UNTRACKED","price":"9.50","inventory_quantity":0,"inventory_management":""}
		]}]}`)
	}))
	defer server.Close()

	storeID := uuid.New()
	c := newShopifyForTest(t, server)
	levels, err := c.FetchInventory(context.Background(), []catalog.Product{
		{StoreID: storeID, SKU: "TRACKED"},
		{StoreID: storeID, SKU: "UNTRACKED"},
	})

	require.NoError(t, err)
	require.Len(t, levels, 2)

	tracked := levels["TRACKED"]
	require.NotNil(t, tracked.PlatformQuantity)
	assert.Equal(t, int64(0), *tracked.PlatformQuantity)
	require.NotNil(t, tracked.Status)
	assert.Equal(t, catalog.InventoryStatusOutOfStock, *tracked.Status)

	untracked := levels["UNTRACKED"]
	assert.Nil(t, untracked.PlatformQuantity)
	assert.Nil(t, untracked.Status)
}

func TestShopifyDecodeOrderEvent(t *testing.T) {
	c := NewShopifyConnector(nil)
	require.NoError(t, c.Initialize(connector.Credentials{
		"shop_domain":  "example.myshopify.com",
		"access_token": "shpat_test",
	}))

	storeID := uuid.New()
	body := []byte(`{"id":77,"financial_status":"pending","currency":"USD",
		"subtotal_price":"10.00","total_tax":"0.00","total_price":"10.00",
		"created_at":"2025-06-01T10:00:00Z",
		"line_items":[{"id":1,"sku":"MUG-S","quantity":1,"fulfillable_quantity":1,"price":"10.00"}]}`)

	order, err := c.DecodeOrderEvent(storeID, body)
	require.NoError(t, err)
	assert.Equal(t, storeID, order.StoreID)
	assert.Equal(t, "77", order.ExternalID)
	assert.Equal(t, trade.OrderStatusPending, order.Status)
}

func TestShopifyDecodeOrderEvent_MalformedBody(t *testing.T) {
	c := NewShopifyConnector(nil)
	_, err := c.DecodeOrderEvent(uuid.New(), []byte(`{not json`))
	require.Error(t, err)
	assert.ErrorIs(t, err, connector.ErrMapping)
}

func TestParseLinkNext(t *testing.T) {
	tests := []struct {
		name string
		link string
		want string
	}{
		{
			"next present",
			`<https://x.myshopify.com/admin/api/2024-01/products.json?page_info=abc&limit=250>; rel="next"`,
			"abc",
		},
		{
			"previous and next",
			`<https://x/p.json?page_info=prev>; rel="previous", <https://x/p.json?page_info=nxt>; rel="next"`,
			"nxt",
		},
		{"only previous", `<https://x/p.json?page_info=prev>; rel="previous"`, ""},
		{"empty header", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLinkNext(tt.link))
		})
	}
}
