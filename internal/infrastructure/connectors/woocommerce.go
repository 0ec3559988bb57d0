package connectors

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/catalog"
	"github.com/channelsync/backend/internal/domain/connector"
	"github.com/channelsync/backend/internal/domain/trade"
	"github.com/channelsync/backend/internal/infrastructure/resilience"
)

const wooPageSize = 100

// WooCommerceConnector implements the Connector port for the WooCommerce
// REST API v3. The endpoint is the merchant's own site; pagination is
// page-numbered and ends on the first short page.
type WooCommerceConnector struct {
	logger  *zap.Logger
	baseURL string // test override

	siteURL string
	client  *apiClient
}

// NewWooCommerceConnector creates an uninitialized WooCommerce connector
func NewWooCommerceConnector(logger *zap.Logger) *WooCommerceConnector {
	return &WooCommerceConnector{logger: pageLogger(logger, "woocommerce")}
}

// NewWooCommerceConnectorWithBaseURL points the connector at a fixed
// endpoint, used by tests
func NewWooCommerceConnectorWithBaseURL(logger *zap.Logger, baseURL string) *WooCommerceConnector {
	c := NewWooCommerceConnector(logger)
	c.baseURL = baseURL
	return c
}

// Platform returns the platform code this connector handles
func (c *WooCommerceConnector) Platform() connector.Platform {
	return connector.PlatformWooCommerce
}

// Initialize validates credentials and captures the per-store configuration
func (c *WooCommerceConnector) Initialize(creds connector.Credentials) error {
	if err := creds.Require("site_url", "consumer_key", "consumer_secret"); err != nil {
		return err
	}

	c.siteURL = strings.TrimRight(creds.Get("site_url"), "/")

	baseURL := c.baseURL
	if baseURL == "" {
		baseURL = c.siteURL
	}

	key := creds.Get("consumer_key")
	secret := creds.Get("consumer_secret")
	executor := resilience.NewExecutor(resilience.ExecutorConfig{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxJitter:   500 * time.Millisecond,
	}, nil, c.logger)

	c.client = newAPIClient(baseURL, 30*time.Second, executor, func(req *http.Request) {
		req.SetBasicAuth(key, secret)
	})
	return nil
}

// SupportsReturns reports that WooCommerce has no pollable returns feed
func (c *WooCommerceConnector) SupportsReturns() bool { return false }

// FetchReturns is not available on WooCommerce
func (c *WooCommerceConnector) FetchReturns(ctx context.Context, since *time.Time) ([]trade.Return, error) {
	return nil, fmt.Errorf("%w: woocommerce returns", connector.ErrNotSupported)
}

// WebhookScheme describes WooCommerce's webhook signing. The source header
// carries the originating site URL for the cross-tenant check.
func (c *WooCommerceConnector) WebhookScheme() connector.WebhookScheme {
	return connector.WebhookScheme{
		SignatureHeader: "X-WC-Webhook-Signature",
		Encoding:        connector.SignatureEncodingBase64,
		DomainHeader:    "X-WC-Webhook-Source",
		TopicHeader:     "X-WC-Webhook-Topic",
	}
}

// ---------------------------------------------------------------------------
// Fetching
// ---------------------------------------------------------------------------

// FetchProducts walks the product list page by page
func (c *WooCommerceConnector) FetchProducts(ctx context.Context, since *time.Time) ([]catalog.Product, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}

	var products []catalog.Product
	err := paginateWoo(ctx, c, "woocommerce.products", "/wp-json/wc/v3/products", since, func(raw []wooProduct) {
		for _, wp := range raw {
			p, err := c.mapProduct(wp)
			if err != nil {
				c.logger.Warn("skipping malformed product", zap.Int64("product_id", wp.ID), zap.Error(err))
				continue
			}
			products = append(products, *p)
		}
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

// FetchOrders walks the order list page by page
func (c *WooCommerceConnector) FetchOrders(ctx context.Context, since *time.Time) ([]trade.Order, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}

	var orders []trade.Order
	err := paginateWoo(ctx, c, "woocommerce.orders", "/wp-json/wc/v3/orders", since, func(raw []wooOrder) {
		for _, wo := range raw {
			order, err := c.mapOrder(wo)
			if err != nil {
				c.logger.Warn("skipping malformed order", zap.Int64("order_id", wo.ID), zap.Error(err))
				continue
			}
			orders = append(orders, *order)
		}
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// FetchInventory reads stock fields from the product list. Products with
// stock management disabled report a nil quantity and no derived status.
func (c *WooCommerceConnector) FetchInventory(ctx context.Context, products []catalog.Product) (map[string]catalog.InventoryLevel, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}

	storeBySKU := make(map[string]uuid.UUID, len(products))
	for _, p := range products {
		storeBySKU[p.SKU] = p.StoreID
	}

	levels := make(map[string]catalog.InventoryLevel)
	err := paginateWoo(ctx, c, "woocommerce.inventory", "/wp-json/wc/v3/products", nil, func(raw []wooProduct) {
		for _, wp := range raw {
			sku := wp.sku()
			storeID, wanted := storeBySKU[sku]
			if !wanted {
				continue
			}
			qty := wp.stockQuantity()
			levels[sku] = catalog.InventoryLevel{
				StoreID:          storeID,
				SKU:              sku,
				PlatformQuantity: qty,
				Status:           catalog.DeriveInventoryStatus(qty, catalog.UntrackedAsUnknown),
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return levels, nil
}

// paginate walks a page-numbered WooCommerce collection until a short page
func paginateWoo[T any](ctx context.Context, c *WooCommerceConnector, label, path string, since *time.Time, visit func([]T)) error {
	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("per_page", strconv.Itoa(wooPageSize))
		query.Set("page", strconv.Itoa(page))
		if since != nil {
			query.Set("modified_after", since.UTC().Format("2006-01-02T15:04:05"))
		}

		var records []T
		if _, err := c.client.getJSON(ctx, label, path, query, &records); err != nil {
			return err
		}

		visit(records)
		if len(records) < wooPageSize {
			return nil
		}
	}
}

func (c *WooCommerceConnector) requireInit() error {
	if c.client == nil {
		return fmt.Errorf("%w: connector not initialized", connector.ErrConfiguration)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Webhook decoding
// ---------------------------------------------------------------------------

// DecodeOrderEvent maps a WooCommerce order webhook body to a canonical
// order candidate
func (c *WooCommerceConnector) DecodeOrderEvent(storeID uuid.UUID, body []byte) (*trade.Order, error) {
	var wo wooOrder
	if err := unmarshalRecord(body, &wo); err != nil {
		return nil, err
	}
	order, err := c.mapOrder(wo)
	if err != nil {
		return nil, err
	}
	order.StoreID = storeID
	return order, nil
}

// DecodeProductEvent maps a WooCommerce product webhook body to a canonical
// product candidate
func (c *WooCommerceConnector) DecodeProductEvent(storeID uuid.UUID, body []byte) ([]catalog.Product, error) {
	var wp wooProduct
	if err := unmarshalRecord(body, &wp); err != nil {
		return nil, err
	}
	p, err := c.mapProduct(wp)
	if err != nil {
		return nil, err
	}
	p.StoreID = storeID
	return []catalog.Product{*p}, nil
}

// ---------------------------------------------------------------------------
// Wire types and mapping
// ---------------------------------------------------------------------------

// wooTime parses WooCommerce's zone-less GMT timestamps
type wooTime struct {
	time.Time
}

func (t *wooTime) UnmarshalJSON(raw []byte) error {
	s := strings.Trim(string(raw), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", connector.ErrMapping, s)
	}
	t.Time = parsed
	return nil
}

type wooProduct struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	SKU           string  `json:"sku"`
	Status        string  `json:"status"`
	Price         string  `json:"price"`
	ManageStock   bool    `json:"manage_stock"`
	StockQuantity *int64  `json:"stock_quantity"`
	StockStatus   string  `json:"stock_status"`
	DateCreated   wooTime `json:"date_created_gmt"`
	DateModified  wooTime `json:"date_modified_gmt"`
}

// sku falls back to the product id when the merchant never assigned one
func (p wooProduct) sku() string {
	if p.SKU != "" {
		return p.SKU
	}
	return strconv.FormatInt(p.ID, 10)
}

// stockQuantity returns nil when stock management is disabled, keeping
// untracked distinct from zero
func (p wooProduct) stockQuantity() *int64 {
	if !p.ManageStock {
		return nil
	}
	return p.StockQuantity
}

type wooOrder struct {
	ID            int64   `json:"id"`
	Status        string  `json:"status"`
	Currency      string  `json:"currency"`
	Total         string  `json:"total"`
	TotalTax      string  `json:"total_tax"`
	ShippingTotal string  `json:"shipping_total"`
	DateCreated   wooTime `json:"date_created_gmt"`
	DatePaid      wooTime `json:"date_paid_gmt"`
	LineItems     []struct {
		ID       int64           `json:"id"`
		SKU      string          `json:"sku"`
		Quantity int64           `json:"quantity"`
		Price    decimal.Decimal `json:"price"`
		Total    string          `json:"total"`
	} `json:"line_items"`
}

func (c *WooCommerceConnector) mapProduct(wp wooProduct) (*catalog.Product, error) {
	if wp.ID == 0 {
		return nil, fmt.Errorf("%w: product without id", connector.ErrMapping)
	}
	price, err := parseAmount(wp.Price)
	if err != nil {
		return nil, err
	}

	status := wooProductStatus[wp.Status]
	if status == "" {
		status = catalog.ProductStatusDraft
	}
	if status == catalog.ProductStatusActive {
		switch wp.StockStatus {
		case "outofstock":
			status = catalog.ProductStatusOutOfStock
		case "onbackorder":
			status = catalog.ProductStatusBackorder
		}
	}

	return &catalog.Product{
		Platform:   string(connector.PlatformWooCommerce),
		ExternalID: strconv.FormatInt(wp.ID, 10),
		SKU:        wp.sku(),
		Title:      wp.Name,
		Price:      price,
		Currency:   "USD",
		Status:     status,
	}, nil
}

func (c *WooCommerceConnector) mapOrder(wo wooOrder) (*trade.Order, error) {
	if wo.ID == 0 {
		return nil, fmt.Errorf("%w: order without id", connector.ErrMapping)
	}
	total, err := parseAmount(wo.Total)
	if err != nil {
		return nil, err
	}
	tax, err := parseAmount(wo.TotalTax)
	if err != nil {
		return nil, err
	}
	shipping, err := parseAmount(wo.ShippingTotal)
	if err != nil {
		return nil, err
	}

	status := wooOrderStatus[wo.Status]
	if status == "" {
		status = trade.OrderStatusPending
	}
	payment := trade.PaymentStatusUnpaid
	if !wo.DatePaid.IsZero() || status == trade.OrderStatusPaid || status == trade.OrderStatusCompleted {
		payment = trade.PaymentStatusPaid
	}
	if status == trade.OrderStatusRefunded {
		payment = trade.PaymentStatusRefunded
	}
	fulfillment := trade.FulfillmentStatusPending
	if wo.Status == "completed" {
		fulfillment = trade.FulfillmentStatusShipped
	}

	order := &trade.Order{
		Platform:          string(connector.PlatformWooCommerce),
		ExternalID:        strconv.FormatInt(wo.ID, 10),
		Status:            status,
		FulfillmentStatus: fulfillment,
		PaymentStatus:     payment,
		Currency:          defaultString(wo.Currency, "USD"),
		Subtotal:          total.Sub(tax).Sub(shipping),
		Tax:               tax,
		Shipping:          shipping,
		Total:             total,
		OrderedAt:         wo.DateCreated.Time,
	}

	for _, li := range wo.LineItems {
		if li.SKU == "" {
			continue
		}
		lineTotal, err := parseAmount(li.Total)
		if err != nil {
			c.logger.Warn("skipping malformed line item", zap.String("sku", li.SKU), zap.Error(err))
			continue
		}
		order.Items = append(order.Items, trade.OrderItem{
			SKU:      li.SKU,
			Quantity: li.Quantity,
			Price:    li.Price,
			Total:    lineTotal,
		})
	}
	return order, nil
}

var wooProductStatus = map[string]catalog.ProductStatus{
	"publish": catalog.ProductStatusActive,
	"draft":   catalog.ProductStatusDraft,
	"pending": catalog.ProductStatusDraft,
	"private": catalog.ProductStatusDraft,
	"trash":   catalog.ProductStatusArchived,
}

var wooOrderStatus = map[string]trade.OrderStatus{
	"pending":    trade.OrderStatusPending,
	"on-hold":    trade.OrderStatusPending,
	"failed":     trade.OrderStatusPending,
	"processing": trade.OrderStatusPaid,
	"completed":  trade.OrderStatusCompleted,
	"cancelled":  trade.OrderStatusCancelled,
	"refunded":   trade.OrderStatusRefunded,
}

var (
	_ connector.Connector         = (*WooCommerceConnector)(nil)
	_ connector.OrderEventDecoder = (*WooCommerceConnector)(nil)
)
