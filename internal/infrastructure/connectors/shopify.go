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

const (
	shopifyAPIVersion = "2024-01"
	shopifyPageSize   = 250
)

// ShopifyConnector implements the Connector port for Shopify. Pagination is
// cursor-based via the Link response header (page_info).
type ShopifyConnector struct {
	logger  *zap.Logger
	baseURL string // test override; derived from shop domain when empty

	// Immutable after Initialize
	shopDomain string
	currency   string
	client     *apiClient
}

// NewShopifyConnector creates an uninitialized Shopify connector
func NewShopifyConnector(logger *zap.Logger) *ShopifyConnector {
	return &ShopifyConnector{logger: pageLogger(logger, "shopify")}
}

// NewShopifyConnectorWithBaseURL creates a connector pointed at a fixed base
// URL instead of the shop's admin API, used by tests
func NewShopifyConnectorWithBaseURL(logger *zap.Logger, baseURL string) *ShopifyConnector {
	c := NewShopifyConnector(logger)
	c.baseURL = baseURL
	return c
}

// Platform returns the platform code this connector handles
func (c *ShopifyConnector) Platform() connector.Platform {
	return connector.PlatformShopify
}

// Initialize validates credentials and captures the per-store configuration
func (c *ShopifyConnector) Initialize(creds connector.Credentials) error {
	if err := creds.Require("shop_domain", "access_token"); err != nil {
		return err
	}

	c.shopDomain = creds.Get("shop_domain")
	c.currency = creds.Get("currency")
	if c.currency == "" {
		c.currency = "USD"
	}

	baseURL := c.baseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s/admin/api/%s", c.shopDomain, shopifyAPIVersion)
	}

	token := creds.Get("access_token")
	executor := resilience.NewExecutor(resilience.ExecutorConfig{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxJitter:   250 * time.Millisecond,
	}, nil, c.logger)

	c.client = newAPIClient(baseURL, 15*time.Second, executor, func(req *http.Request) {
		req.Header.Set("X-Shopify-Access-Token", token)
	})
	return nil
}

// SupportsReturns reports that Shopify refunds arrive via webhooks, not polling
func (c *ShopifyConnector) SupportsReturns() bool { return false }

// WebhookScheme describes Shopify's webhook signing
func (c *ShopifyConnector) WebhookScheme() connector.WebhookScheme {
	return connector.WebhookScheme{
		SignatureHeader: "X-Shopify-Hmac-Sha256",
		Encoding:        connector.SignatureEncodingBase64,
		DomainHeader:    "X-Shopify-Shop-Domain",
		TopicHeader:     "X-Shopify-Topic",
	}
}

// ---------------------------------------------------------------------------
// Fetching
// ---------------------------------------------------------------------------

// FetchProducts pulls the product catalog, one canonical product per variant
func (c *ShopifyConnector) FetchProducts(ctx context.Context, since *time.Time) ([]catalog.Product, error) {
	raw, err := c.fetchAllProducts(ctx, since)
	if err != nil {
		return nil, err
	}

	var products []catalog.Product
	for _, sp := range raw {
		products = append(products, c.mapProduct(sp)...)
	}
	return products, nil
}

// FetchOrders pulls orders changed since the watermark with items and
// fulfillments attached
func (c *ShopifyConnector) FetchOrders(ctx context.Context, since *time.Time) ([]trade.Order, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(shopifyPageSize))
	query.Set("status", "any")
	if since != nil {
		query.Set("updated_at_min", since.UTC().Format(time.RFC3339))
	}

	var orders []trade.Order
	for {
		var page struct {
			Orders []shopifyOrder `json:"orders"`
		}
		header, err := c.client.getJSON(ctx, "shopify.orders", "/orders.json", query, &page)
		if err != nil {
			return nil, err
		}

		for _, so := range page.Orders {
			order, err := c.mapOrder(so)
			if err != nil {
				c.logger.Warn("skipping malformed order record",
					zap.Int64("external_id", so.ID), zap.Error(err))
				continue
			}
			orders = append(orders, *order)
		}

		cursor := parseLinkNext(header.Get("Link"))
		if cursor == "" || len(page.Orders) == 0 {
			break
		}
		query = url.Values{}
		query.Set("limit", strconv.Itoa(shopifyPageSize))
		query.Set("page_info", cursor)
	}
	return orders, nil
}

// FetchInventory re-reads variant stock and returns levels keyed by SKU for
// the requested products
func (c *ShopifyConnector) FetchInventory(ctx context.Context, products []catalog.Product) (map[string]catalog.InventoryLevel, error) {
	raw, err := c.fetchAllProducts(ctx, nil)
	if err != nil {
		return nil, err
	}

	storeBySKU := make(map[string]uuid.UUID, len(products))
	for _, p := range products {
		storeBySKU[p.SKU] = p.StoreID
	}

	levels := make(map[string]catalog.InventoryLevel)
	for _, sp := range raw {
		for _, v := range sp.Variants {
			storeID, wanted := storeBySKU[v.SKU]
			if v.SKU == "" || !wanted {
				continue
			}
			qty := variantQuantity(v)
			levels[v.SKU] = catalog.InventoryLevel{
				StoreID:          storeID,
				SKU:              v.SKU,
				PlatformQuantity: qty,
				Status:           catalog.DeriveInventoryStatus(qty, catalog.UntrackedAsUnknown),
			}
		}
	}
	return levels, nil
}

// FetchReturns is not available over Shopify's polling API
func (c *ShopifyConnector) FetchReturns(ctx context.Context, since *time.Time) ([]trade.Return, error) {
	return nil, connector.ErrNotSupported
}

func (c *ShopifyConnector) fetchAllProducts(ctx context.Context, since *time.Time) ([]shopifyProduct, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(shopifyPageSize))
	if since != nil {
		query.Set("updated_at_min", since.UTC().Format(time.RFC3339))
	}

	var all []shopifyProduct
	for {
		var page struct {
			Products []shopifyProduct `json:"products"`
		}
		header, err := c.client.getJSON(ctx, "shopify.products", "/products.json", query, &page)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Products...)

		cursor := parseLinkNext(header.Get("Link"))
		if cursor == "" || len(page.Products) == 0 {
			break
		}
		query = url.Values{}
		query.Set("limit", strconv.Itoa(shopifyPageSize))
		query.Set("page_info", cursor)
	}
	return all, nil
}

func (c *ShopifyConnector) requireInit() error {
	if c.client == nil {
		return fmt.Errorf("%w: connector not initialized", connector.ErrConfiguration)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Webhook decoding
// ---------------------------------------------------------------------------

// DecodeOrderEvent maps an orders/* webhook payload to a canonical order
func (c *ShopifyConnector) DecodeOrderEvent(storeID uuid.UUID, body []byte) (*trade.Order, error) {
	var so shopifyOrder
	if err := unmarshalRecord(body, &so); err != nil {
		return nil, err
	}
	order, err := c.mapOrder(so)
	if err != nil {
		return nil, err
	}
	order.StoreID = storeID
	return order, nil
}

// DecodeProductEvent maps a products/* webhook payload to canonical products
func (c *ShopifyConnector) DecodeProductEvent(storeID uuid.UUID, body []byte) ([]catalog.Product, error) {
	var sp shopifyProduct
	if err := unmarshalRecord(body, &sp); err != nil {
		return nil, err
	}
	products := c.mapProduct(sp)
	for i := range products {
		products[i].StoreID = storeID
	}
	return products, nil
}

// ---------------------------------------------------------------------------
// Wire types and mapping
// ---------------------------------------------------------------------------

type shopifyProduct struct {
	ID       int64            `json:"id"`
	Title    string           `json:"title"`
	Status   string           `json:"status"`
	Variants []shopifyVariant `json:"variants"`
}

type shopifyVariant struct {
	ID                  int64  `json:"id"`
	SKU                 string `json:"sku"`
	Price               string `json:"price"`
	InventoryQuantity   *int64 `json:"inventory_quantity"`
	InventoryManagement string `json:"inventory_management"`
}

type shopifyMoneySet struct {
	ShopMoney struct {
		Amount string `json:"amount"`
	} `json:"shop_money"`
}

type shopifyOrder struct {
	ID                int64              `json:"id"`
	FinancialStatus   string             `json:"financial_status"`
	FulfillmentStatus string             `json:"fulfillment_status"`
	Currency          string             `json:"currency"`
	SubtotalPrice     string             `json:"subtotal_price"`
	TotalTax          string             `json:"total_tax"`
	TotalShipping     shopifyMoneySet    `json:"total_shipping_price_set"`
	TotalPrice        string             `json:"total_price"`
	CreatedAt         time.Time          `json:"created_at"`
	CancelledAt       *time.Time         `json:"cancelled_at"`
	LineItems         []shopifyLineItem  `json:"line_items"`
	Fulfillments      []shopifyShipment  `json:"fulfillments"`
}

type shopifyLineItem struct {
	ID                  int64  `json:"id"`
	SKU                 string `json:"sku"`
	Quantity            int64  `json:"quantity"`
	FulfillableQuantity int64  `json:"fulfillable_quantity"`
	Price               string `json:"price"`
}

type shopifyShipment struct {
	ID              int64  `json:"id"`
	Status          string `json:"status"`
	TrackingCompany string `json:"tracking_company"`
	TrackingNumber  string `json:"tracking_number"`
}

// mapProduct maps one listing to canonical products, one per variant.
// Mapping is pure: no I/O, table-driven status translation.
func (c *ShopifyConnector) mapProduct(sp shopifyProduct) []catalog.Product {
	status := shopifyProductStatus[sp.Status]
	if status == "" {
		status = catalog.ProductStatusDraft
	}

	products := make([]catalog.Product, 0, len(sp.Variants))
	for _, v := range sp.Variants {
		if v.SKU == "" {
			continue
		}
		price, err := decimal.NewFromString(v.Price)
		if err != nil {
			c.logger.Warn("skipping variant with malformed price",
				zap.String("sku", v.SKU), zap.String("price", v.Price))
			continue
		}
		products = append(products, catalog.Product{
			Platform:   string(connector.PlatformShopify),
			ExternalID: strconv.FormatInt(v.ID, 10),
			SKU:        v.SKU,
			Title:      sp.Title,
			Price:      price,
			Currency:   c.currency,
			Status:     status,
		})
	}
	return products
}

func (c *ShopifyConnector) mapOrder(so shopifyOrder) (*trade.Order, error) {
	subtotal, err := parseAmount(so.SubtotalPrice)
	if err != nil {
		return nil, err
	}
	tax, err := parseAmount(so.TotalTax)
	if err != nil {
		return nil, err
	}
	shipping, err := parseAmount(so.TotalShipping.ShopMoney.Amount)
	if err != nil {
		return nil, err
	}
	total, err := parseAmount(so.TotalPrice)
	if err != nil {
		return nil, err
	}

	order := &trade.Order{
		Platform:          string(connector.PlatformShopify),
		ExternalID:        strconv.FormatInt(so.ID, 10),
		Status:            shopifyOrderStatus(so),
		FulfillmentStatus: shopifyFulfillmentState[so.FulfillmentStatus],
		PaymentStatus:     shopifyPaymentState[so.FinancialStatus],
		Currency:          so.Currency,
		Subtotal:          subtotal,
		Tax:               tax,
		Shipping:          shipping,
		Total:             total,
		OrderedAt:         so.CreatedAt,
	}
	if order.FulfillmentStatus == "" {
		order.FulfillmentStatus = trade.FulfillmentStatusPending
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = trade.PaymentStatusUnpaid
	}

	for _, li := range so.LineItems {
		if li.SKU == "" {
			continue
		}
		price, err := parseAmount(li.Price)
		if err != nil {
			return nil, err
		}
		fulfilled := li.Quantity - li.FulfillableQuantity
		if fulfilled < 0 {
			fulfilled = 0
		}
		order.Items = append(order.Items, trade.OrderItem{
			SKU:               li.SKU,
			Quantity:          li.Quantity,
			FulfilledQuantity: fulfilled,
			Price:             price,
			Total:             price.Mul(decimal.NewFromInt(li.Quantity)),
		})
	}

	for _, f := range so.Fulfillments {
		status := trade.FulfillmentStatusShipped
		if f.Status == "cancelled" {
			status = trade.FulfillmentStatusVoided
		}
		order.Fulfillments = append(order.Fulfillments, trade.Fulfillment{
			ExternalID:     strconv.FormatInt(f.ID, 10),
			Carrier:        f.TrackingCompany,
			TrackingNumber: f.TrackingNumber,
			Status:         status,
		})
	}
	return order, nil
}

// shopifyOrderStatus folds cancellation and financial status into the
// canonical lifecycle status
func shopifyOrderStatus(so shopifyOrder) trade.OrderStatus {
	if so.CancelledAt != nil {
		return trade.OrderStatusCancelled
	}
	switch so.FinancialStatus {
	case "refunded", "partially_refunded":
		return trade.OrderStatusRefunded
	case "paid":
		if so.FulfillmentStatus == "fulfilled" {
			return trade.OrderStatusCompleted
		}
		return trade.OrderStatusPaid
	default:
		return trade.OrderStatusPending
	}
}

var shopifyProductStatus = map[string]catalog.ProductStatus{
	"active":   catalog.ProductStatusActive,
	"draft":    catalog.ProductStatusDraft,
	"archived": catalog.ProductStatusArchived,
}

var shopifyFulfillmentState = map[string]trade.FulfillmentStatus{
	"fulfilled": trade.FulfillmentStatusShipped,
	"partial":   trade.FulfillmentStatusPending,
	"":          trade.FulfillmentStatusPending,
}

var shopifyPaymentState = map[string]trade.PaymentStatus{
	"paid":               trade.PaymentStatusPaid,
	"partially_paid":     trade.PaymentStatusPaid,
	"refunded":           trade.PaymentStatusRefunded,
	"partially_refunded": trade.PaymentStatusRefunded,
	"pending":            trade.PaymentStatusUnpaid,
	"":                   trade.PaymentStatusUnpaid,
}

// variantQuantity returns nil for untracked inventory; untracked is not zero
func variantQuantity(v shopifyVariant) *int64 {
	if v.InventoryManagement == "" {
		return nil
	}
	return v.InventoryQuantity
}

// parseLinkNext extracts the page_info cursor from a Link header's
// rel="next" entry, or "" when there is no next page
func parseLinkNext(link string) string {
	for _, part := range strings.Split(link, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start < 0 || end < 0 || end <= start {
			return ""
		}
		u, err := url.Parse(part[start+1 : end])
		if err != nil {
			return ""
		}
		return u.Query().Get("page_info")
	}
	return ""
}

var _ connector.Connector = (*ShopifyConnector)(nil)
var _ connector.OrderEventDecoder = (*ShopifyConnector)(nil)
