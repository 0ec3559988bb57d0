package connectors

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
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
	etsyDefaultEndpoint = "https://openapi.etsy.com"
	etsyPageSize        = 100
)

// EtsyConnector implements the Connector port for the Etsy Open API v3.
// Pagination is offset-based; monetary amounts arrive as integer minor
// units with a divisor.
type EtsyConnector struct {
	logger  *zap.Logger
	baseURL string // test override

	shopID string
	client *apiClient
}

// NewEtsyConnector creates an uninitialized Etsy connector
func NewEtsyConnector(logger *zap.Logger) *EtsyConnector {
	return &EtsyConnector{logger: pageLogger(logger, "etsy")}
}

// NewEtsyConnectorWithBaseURL points the connector at a fixed endpoint,
// used by tests
func NewEtsyConnectorWithBaseURL(logger *zap.Logger, baseURL string) *EtsyConnector {
	c := NewEtsyConnector(logger)
	c.baseURL = baseURL
	return c
}

// Platform returns the platform code this connector handles
func (c *EtsyConnector) Platform() connector.Platform {
	return connector.PlatformEtsy
}

// Initialize validates credentials and captures the per-store configuration
func (c *EtsyConnector) Initialize(creds connector.Credentials) error {
	if err := creds.Require("api_key", "access_token", "shop_id"); err != nil {
		return err
	}

	c.shopID = creds.Get("shop_id")

	baseURL := c.baseURL
	if baseURL == "" {
		baseURL = etsyDefaultEndpoint
	}

	apiKey := creds.Get("api_key")
	token := creds.Get("access_token")
	executor := resilience.NewExecutor(resilience.ExecutorConfig{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxJitter:   500 * time.Millisecond,
	}, nil, c.logger)

	c.client = newAPIClient(baseURL, 30*time.Second, executor, func(req *http.Request) {
		req.Header.Set("x-api-key", apiKey)
		req.Header.Set("Authorization", "Bearer "+token)
	})
	return nil
}

// SupportsReturns reports that Etsy has no pollable returns feed
func (c *EtsyConnector) SupportsReturns() bool { return false }

// FetchReturns is not available on Etsy
func (c *EtsyConnector) FetchReturns(ctx context.Context, since *time.Time) ([]trade.Return, error) {
	return nil, fmt.Errorf("%w: etsy returns", connector.ErrNotSupported)
}

// WebhookScheme describes Etsy's webhook signing
func (c *EtsyConnector) WebhookScheme() connector.WebhookScheme {
	return connector.WebhookScheme{
		SignatureHeader: "x-etsy-signature",
		Encoding:        connector.SignatureEncodingHex,
		TopicHeader:     "x-etsy-topic",
	}
}

// ---------------------------------------------------------------------------
// Fetching
// ---------------------------------------------------------------------------

// FetchProducts walks the shop's listings page by page
func (c *EtsyConnector) FetchProducts(ctx context.Context, since *time.Time) ([]catalog.Product, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}

	listings, err := c.fetchListings(ctx, since)
	if err != nil {
		return nil, err
	}

	var products []catalog.Product
	for _, l := range listings {
		p, err := c.mapListing(l)
		if err != nil {
			c.logger.Warn("skipping malformed listing", zap.Int64("listing_id", l.ListingID), zap.Error(err))
			continue
		}
		products = append(products, *p)
	}
	return products, nil
}

// FetchOrders walks the shop's receipts page by page
func (c *EtsyConnector) FetchOrders(ctx context.Context, since *time.Time) ([]trade.Order, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}

	var orders []trade.Order
	for offset := 0; ; offset += etsyPageSize {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(etsyPageSize))
		query.Set("offset", strconv.Itoa(offset))
		if since != nil {
			query.Set("min_last_modified", strconv.FormatInt(since.Unix(), 10))
		}

		var page struct {
			Count   int           `json:"count"`
			Results []etsyReceipt `json:"results"`
		}
		path := fmt.Sprintf("/v3/application/shops/%s/receipts", c.shopID)
		if _, err := c.client.getJSON(ctx, "etsy.receipts", path, query, &page); err != nil {
			return nil, err
		}

		for _, er := range page.Results {
			order, err := c.mapReceipt(er)
			if err != nil {
				c.logger.Warn("skipping malformed receipt", zap.Int64("receipt_id", er.ReceiptID), zap.Error(err))
				continue
			}
			orders = append(orders, *order)
		}

		if len(page.Results) < etsyPageSize {
			break
		}
	}
	return orders, nil
}

// FetchInventory reads quantities from the listings feed, keyed by SKU
func (c *EtsyConnector) FetchInventory(ctx context.Context, products []catalog.Product) (map[string]catalog.InventoryLevel, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}

	storeBySKU := make(map[string]uuid.UUID, len(products))
	for _, p := range products {
		storeBySKU[p.SKU] = p.StoreID
	}

	listings, err := c.fetchListings(ctx, nil)
	if err != nil {
		return nil, err
	}

	levels := make(map[string]catalog.InventoryLevel)
	for _, l := range listings {
		sku := l.sku()
		storeID, wanted := storeBySKU[sku]
		if !wanted {
			continue
		}
		levels[sku] = catalog.InventoryLevel{
			StoreID:          storeID,
			SKU:              sku,
			PlatformQuantity: l.Quantity,
			Status:           catalog.DeriveInventoryStatus(l.Quantity, catalog.UntrackedAsInStock),
		}
	}
	return levels, nil
}

func (c *EtsyConnector) fetchListings(ctx context.Context, since *time.Time) ([]etsyListing, error) {
	var listings []etsyListing
	for offset := 0; ; offset += etsyPageSize {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(etsyPageSize))
		query.Set("offset", strconv.Itoa(offset))
		query.Set("state", "active")
		if since != nil {
			query.Set("sort_on", "updated")
		}

		var page struct {
			Count   int           `json:"count"`
			Results []etsyListing `json:"results"`
		}
		path := fmt.Sprintf("/v3/application/shops/%s/listings", c.shopID)
		if _, err := c.client.getJSON(ctx, "etsy.listings", path, query, &page); err != nil {
			return nil, err
		}

		listings = append(listings, page.Results...)
		if len(page.Results) < etsyPageSize {
			break
		}
	}
	return listings, nil
}

func (c *EtsyConnector) requireInit() error {
	if c.client == nil {
		return fmt.Errorf("%w: connector not initialized", connector.ErrConfiguration)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Wire types and mapping
// ---------------------------------------------------------------------------

// etsyMoney is Etsy's integer minor-unit money shape
type etsyMoney struct {
	Amount       int64  `json:"amount"`
	Divisor      int64  `json:"divisor"`
	CurrencyCode string `json:"currency_code"`
}

// decimal converts the minor-unit amount into major units
func (m etsyMoney) decimal() decimal.Decimal {
	divisor := m.Divisor
	if divisor <= 0 {
		divisor = 100
	}
	return decimal.NewFromInt(m.Amount).Div(decimal.NewFromInt(divisor))
}

type etsyListing struct {
	ListingID        int64     `json:"listing_id"`
	Title            string    `json:"title"`
	State            string    `json:"state"`
	Quantity         *int64    `json:"quantity"`
	SKUs             []string  `json:"skus"`
	Price            etsyMoney `json:"price"`
	CreatedTimestamp int64     `json:"created_timestamp"`
	UpdatedTimestamp int64     `json:"updated_timestamp"`
}

// sku returns the listing's first SKU, or the listing id when the seller
// never assigned one
func (l etsyListing) sku() string {
	if len(l.SKUs) > 0 && l.SKUs[0] != "" {
		return l.SKUs[0]
	}
	return strconv.FormatInt(l.ListingID, 10)
}

type etsyReceipt struct {
	ReceiptID        int64       `json:"receipt_id"`
	Status           string      `json:"status"`
	IsPaid           bool        `json:"is_paid"`
	IsShipped        bool        `json:"is_shipped"`
	CreatedTimestamp int64       `json:"created_timestamp"`
	Grandtotal       etsyMoney   `json:"grandtotal"`
	Subtotal         etsyMoney   `json:"subtotal"`
	TotalTaxCost     etsyMoney   `json:"total_tax_cost"`
	TotalShipping    etsyMoney   `json:"total_shipping_cost"`
	Transactions     []struct {
		TransactionID int64     `json:"transaction_id"`
		SKU           string    `json:"sku"`
		Quantity      int64     `json:"quantity"`
		Price         etsyMoney `json:"price"`
	} `json:"transactions"`
	Shipments []struct {
		ReceiptShippingID int64  `json:"receipt_shipping_id"`
		CarrierName       string `json:"carrier_name"`
		TrackingCode      string `json:"tracking_code"`
	} `json:"shipments"`
}

func (c *EtsyConnector) mapListing(l etsyListing) (*catalog.Product, error) {
	if l.ListingID == 0 {
		return nil, fmt.Errorf("%w: listing without id", connector.ErrMapping)
	}

	status := etsyListingState[l.State]
	if status == "" {
		status = catalog.ProductStatusDraft
	}
	return &catalog.Product{
		Platform:   string(connector.PlatformEtsy),
		ExternalID: strconv.FormatInt(l.ListingID, 10),
		SKU:        l.sku(),
		Title:      l.Title,
		Price:      l.Price.decimal(),
		Currency:   defaultString(l.Price.CurrencyCode, "USD"),
		Status:     status,
	}, nil
}

func (c *EtsyConnector) mapReceipt(er etsyReceipt) (*trade.Order, error) {
	if er.ReceiptID == 0 {
		return nil, fmt.Errorf("%w: receipt without id", connector.ErrMapping)
	}

	order := &trade.Order{
		Platform:          string(connector.PlatformEtsy),
		ExternalID:        strconv.FormatInt(er.ReceiptID, 10),
		Status:            etsyReceiptStatus(er),
		FulfillmentStatus: trade.FulfillmentStatusPending,
		PaymentStatus:     trade.PaymentStatusUnpaid,
		Currency:          defaultString(er.Grandtotal.CurrencyCode, "USD"),
		Subtotal:          er.Subtotal.decimal(),
		Tax:               er.TotalTaxCost.decimal(),
		Shipping:          er.TotalShipping.decimal(),
		Total:             er.Grandtotal.decimal(),
		OrderedAt:         time.Unix(er.CreatedTimestamp, 0).UTC(),
	}
	if er.IsPaid {
		order.PaymentStatus = trade.PaymentStatusPaid
	}
	if er.IsShipped {
		order.FulfillmentStatus = trade.FulfillmentStatusShipped
	}

	for _, tx := range er.Transactions {
		if tx.SKU == "" {
			continue
		}
		unit := tx.Price.decimal()
		order.Items = append(order.Items, trade.OrderItem{
			SKU:      tx.SKU,
			Quantity: tx.Quantity,
			Price:    unit,
			Total:    unit.Mul(decimal.NewFromInt(tx.Quantity)),
		})
	}

	for _, s := range er.Shipments {
		if s.ReceiptShippingID == 0 {
			continue
		}
		order.Fulfillments = append(order.Fulfillments, trade.Fulfillment{
			ExternalID:     strconv.FormatInt(s.ReceiptShippingID, 10),
			Carrier:        s.CarrierName,
			TrackingNumber: s.TrackingCode,
			Status:         trade.FulfillmentStatusShipped,
		})
	}
	return order, nil
}

// etsyReceiptStatus folds the receipt flags into the canonical status
func etsyReceiptStatus(er etsyReceipt) trade.OrderStatus {
	switch er.Status {
	case "canceled":
		return trade.OrderStatusCancelled
	case "fully refunded", "partially refunded":
		return trade.OrderStatusRefunded
	}
	if er.IsPaid && er.IsShipped {
		return trade.OrderStatusCompleted
	}
	if er.IsPaid {
		return trade.OrderStatusPaid
	}
	return trade.OrderStatusPending
}

var etsyListingState = map[string]catalog.ProductStatus{
	"active":   catalog.ProductStatusActive,
	"inactive": catalog.ProductStatusDraft,
	"draft":    catalog.ProductStatusDraft,
	"expired":  catalog.ProductStatusArchived,
	"removed":  catalog.ProductStatusArchived,
	"sold_out": catalog.ProductStatusOutOfStock,
}

var _ connector.Connector = (*EtsyConnector)(nil)
