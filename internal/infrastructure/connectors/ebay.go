package connectors

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/catalog"
	"github.com/channelsync/backend/internal/domain/connector"
	"github.com/channelsync/backend/internal/domain/trade"
	"github.com/channelsync/backend/internal/infrastructure/resilience"
)

const (
	ebayDefaultEndpoint = "https://api.ebay.com"
	ebayPageSize        = 100
	// ebayWindowDays is the widest date filter eBay accepts per call
	ebayWindowDays = 30
	// ebayLookbackYears bounds a full historical sync when no watermark exists
	ebayLookbackYears = 5
)

// EbayConnector implements the Connector port for eBay's Sell APIs.
// Pagination is offset-based. Date-filtered feeds reject windows wider
// than 30 days, so historical fetches walk the range in chunks.
type EbayConnector struct {
	logger  *zap.Logger
	baseURL string // test override

	client *apiClient
	ranger *resilience.RangeFetcher
}

// NewEbayConnector creates an uninitialized eBay connector
func NewEbayConnector(logger *zap.Logger) *EbayConnector {
	return &EbayConnector{logger: pageLogger(logger, "ebay")}
}

// NewEbayConnectorWithBaseURL points the connector at a fixed endpoint,
// used by tests
func NewEbayConnectorWithBaseURL(logger *zap.Logger, baseURL string) *EbayConnector {
	c := NewEbayConnector(logger)
	c.baseURL = baseURL
	return c
}

// Platform returns the platform code this connector handles
func (c *EbayConnector) Platform() connector.Platform {
	return connector.PlatformEbay
}

// Initialize validates credentials and captures the per-store configuration
func (c *EbayConnector) Initialize(creds connector.Credentials) error {
	if err := creds.Require("access_token"); err != nil {
		return err
	}

	baseURL := c.baseURL
	if baseURL == "" {
		baseURL = ebayDefaultEndpoint
	}

	token := creds.Get("access_token")
	executor := resilience.NewExecutor(resilience.ExecutorConfig{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxJitter:   500 * time.Millisecond,
	}, nil, c.logger)

	c.client = newAPIClient(baseURL, 30*time.Second, executor, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	})
	c.ranger = resilience.NewRangeFetcher(resilience.RangeFetcherConfig{
		WindowDays:      ebayWindowDays,
		InterChunkDelay: 1200 * time.Millisecond,
	}, c.logger)
	return nil
}

// SupportsReturns reports that eBay exposes a pollable returns feed
func (c *EbayConnector) SupportsReturns() bool { return true }

// WebhookScheme describes eBay's notification signing
func (c *EbayConnector) WebhookScheme() connector.WebhookScheme {
	return connector.WebhookScheme{
		SignatureHeader: "X-Ebay-Signature",
		Encoding:        connector.SignatureEncodingBase64,
		TopicHeader:     "X-Ebay-Topic",
	}
}

// ---------------------------------------------------------------------------
// Fetching
// ---------------------------------------------------------------------------

// FetchProducts walks the inventory item feed page by page. The feed has no
// date filter, so every sync reads the full listing set.
func (c *EbayConnector) FetchProducts(ctx context.Context, since *time.Time) ([]catalog.Product, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}

	var products []catalog.Product
	for offset := 0; ; offset += ebayPageSize {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(ebayPageSize))
		query.Set("offset", strconv.Itoa(offset))

		var page struct {
			InventoryItems []ebayInventoryItem `json:"inventoryItems"`
			Total          int                 `json:"total"`
		}
		if _, err := c.client.getJSON(ctx, "ebay.inventory_items", "/sell/inventory/v1/inventory_item", query, &page); err != nil {
			return nil, err
		}

		for _, item := range page.InventoryItems {
			p, err := c.mapInventoryItem(item)
			if err != nil {
				c.logger.Warn("skipping malformed inventory item", zap.String("sku", item.SKU), zap.Error(err))
				continue
			}
			products = append(products, *p)
		}

		if len(page.InventoryItems) < ebayPageSize {
			break
		}
	}
	return products, nil
}

// FetchOrders walks the fulfillment order feed in 30-day windows. A failed
// window is skipped and the remaining windows still run.
func (c *EbayConnector) FetchOrders(ctx context.Context, since *time.Time) ([]trade.Order, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}

	start, end := c.fetchWindow(since)
	return resilience.FetchRange(ctx, c.ranger, start, end,
		func(o trade.Order) string { return o.ExternalID },
		func(ctx context.Context, start, end time.Time) ([]trade.Order, error) {
			return c.fetchOrderWindow(ctx, start, end)
		},
	)
}

func (c *EbayConnector) fetchOrderWindow(ctx context.Context, start, end time.Time) ([]trade.Order, error) {
	filter := fmt.Sprintf("lastmodifieddate:[%s..%s]",
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))

	var orders []trade.Order
	for offset := 0; ; offset += ebayPageSize {
		query := url.Values{}
		query.Set("filter", filter)
		query.Set("limit", strconv.Itoa(ebayPageSize))
		query.Set("offset", strconv.Itoa(offset))

		var page struct {
			Orders []ebayOrder `json:"orders"`
			Total  int         `json:"total"`
		}
		if _, err := c.client.getJSON(ctx, "ebay.orders", "/sell/fulfillment/v1/order", query, &page); err != nil {
			return nil, err
		}

		for _, eo := range page.Orders {
			order, err := c.mapOrder(eo)
			if err != nil {
				c.logger.Warn("skipping malformed order", zap.String("external_id", eo.OrderID), zap.Error(err))
				continue
			}
			orders = append(orders, *order)
		}

		if len(page.Orders) < ebayPageSize {
			break
		}
	}
	return orders, nil
}

// FetchInventory reads availability per SKU from the inventory item feed
func (c *EbayConnector) FetchInventory(ctx context.Context, products []catalog.Product) (map[string]catalog.InventoryLevel, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}

	storeBySKU := make(map[string]uuid.UUID, len(products))
	for _, p := range products {
		storeBySKU[p.SKU] = p.StoreID
	}

	levels := make(map[string]catalog.InventoryLevel)
	for offset := 0; ; offset += ebayPageSize {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(ebayPageSize))
		query.Set("offset", strconv.Itoa(offset))

		var page struct {
			InventoryItems []ebayInventoryItem `json:"inventoryItems"`
		}
		if _, err := c.client.getJSON(ctx, "ebay.inventory", "/sell/inventory/v1/inventory_item", query, &page); err != nil {
			return nil, err
		}

		for _, item := range page.InventoryItems {
			storeID, wanted := storeBySKU[item.SKU]
			if !wanted {
				continue
			}
			qty := item.quantity()
			levels[item.SKU] = catalog.InventoryLevel{
				StoreID:          storeID,
				SKU:              item.SKU,
				PlatformQuantity: qty,
				Status:           catalog.DeriveInventoryStatus(qty, catalog.UntrackedAsInStock),
			}
		}

		if len(page.InventoryItems) < ebayPageSize {
			break
		}
	}
	return levels, nil
}

// FetchReturns walks the post-order return feed in 30-day windows
func (c *EbayConnector) FetchReturns(ctx context.Context, since *time.Time) ([]trade.Return, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}

	start, end := c.fetchWindow(since)
	return resilience.FetchRange(ctx, c.ranger, start, end,
		func(r trade.Return) string { return r.ExternalID },
		func(ctx context.Context, start, end time.Time) ([]trade.Return, error) {
			return c.fetchReturnWindow(ctx, start, end)
		},
	)
}

func (c *EbayConnector) fetchReturnWindow(ctx context.Context, start, end time.Time) ([]trade.Return, error) {
	var returns []trade.Return
	for offset := 0; ; offset += ebayPageSize {
		query := url.Values{}
		query.Set("creation_date_range_from", start.UTC().Format(time.RFC3339))
		query.Set("creation_date_range_to", end.UTC().Format(time.RFC3339))
		query.Set("limit", strconv.Itoa(ebayPageSize))
		query.Set("offset", strconv.Itoa(offset))

		var page struct {
			Members []ebayReturn `json:"members"`
			Total   int          `json:"total"`
		}
		if _, err := c.client.getJSON(ctx, "ebay.returns", "/post-order/v2/return/search", query, &page); err != nil {
			return nil, err
		}

		for _, er := range page.Members {
			r, err := c.mapReturn(er)
			if err != nil {
				c.logger.Warn("skipping malformed return", zap.String("external_id", er.ReturnID), zap.Error(err))
				continue
			}
			returns = append(returns, *r)
		}

		if len(page.Members) < ebayPageSize {
			break
		}
	}
	return returns, nil
}

// fetchWindow resolves the date range for a sync. No watermark means a
// bounded full historical sync rather than an unbounded one.
func (c *EbayConnector) fetchWindow(since *time.Time) (time.Time, time.Time) {
	end := time.Now().UTC()
	if since != nil {
		return since.UTC(), end
	}
	return end.AddDate(-ebayLookbackYears, 0, 0), end
}

func (c *EbayConnector) requireInit() error {
	if c.client == nil {
		return fmt.Errorf("%w: connector not initialized", connector.ErrConfiguration)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Wire types and mapping
// ---------------------------------------------------------------------------

type ebayAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type ebayInventoryItem struct {
	SKU     string `json:"sku"`
	Product struct {
		Title string `json:"title"`
	} `json:"product"`
	Availability *struct {
		ShipToLocationAvailability *struct {
			Quantity *int64 `json:"quantity"`
		} `json:"shipToLocationAvailability"`
	} `json:"availability"`
	Offers []struct {
		OfferID        string `json:"offerId"`
		Status         string `json:"status"`
		PricingSummary struct {
			Price ebayAmount `json:"price"`
		} `json:"pricingSummary"`
	} `json:"offers"`
}

// quantity returns the ship-to-location quantity, or nil when eBay does not
// track availability for the SKU
func (i ebayInventoryItem) quantity() *int64 {
	if i.Availability == nil || i.Availability.ShipToLocationAvailability == nil {
		return nil
	}
	return i.Availability.ShipToLocationAvailability.Quantity
}

type ebayOrder struct {
	OrderID                string    `json:"orderId"`
	CreationDate           time.Time `json:"creationDate"`
	OrderFulfillmentStatus string    `json:"orderFulfillmentStatus"`
	OrderPaymentStatus     string    `json:"orderPaymentStatus"`
	CancelState            string    `json:"cancelState"`
	PricingSummary         struct {
		PriceSubtotal ebayAmount `json:"priceSubtotal"`
		DeliveryCost  ebayAmount `json:"deliveryCost"`
		Tax           ebayAmount `json:"tax"`
		Total         ebayAmount `json:"total"`
	} `json:"pricingSummary"`
	LineItems []struct {
		SKU          string     `json:"sku"`
		Quantity     int64      `json:"quantity"`
		LineItemCost ebayAmount `json:"lineItemCost"`
		Total        ebayAmount `json:"total"`
	} `json:"lineItems"`
	Shipments []struct {
		ShipmentID             string `json:"shipmentId"`
		ShipmentTrackingNumber string `json:"shipmentTrackingNumber"`
		ShippingCarrierCode    string `json:"shippingCarrierCode"`
	} `json:"shipments"`
}

type ebayReturn struct {
	ReturnID     string `json:"returnId"`
	OrderID      string `json:"orderId"`
	State        string `json:"state"`
	CreationDate struct {
		Value time.Time `json:"value"`
	} `json:"creationDate"`
	RefundAmount ebayAmount `json:"refundAmount"`
}

func (c *EbayConnector) mapInventoryItem(item ebayInventoryItem) (*catalog.Product, error) {
	if item.SKU == "" {
		return nil, fmt.Errorf("%w: inventory item without SKU", connector.ErrMapping)
	}

	p := &catalog.Product{
		Platform:   string(connector.PlatformEbay),
		ExternalID: item.SKU,
		SKU:        item.SKU,
		Title:      item.Product.Title,
		Currency:   "USD",
		Status:     catalog.ProductStatusDraft,
	}
	if len(item.Offers) > 0 {
		offer := item.Offers[0]
		price, err := parseAmount(offer.PricingSummary.Price.Value)
		if err != nil {
			return nil, err
		}
		p.Price = price
		if offer.PricingSummary.Price.Currency != "" {
			p.Currency = offer.PricingSummary.Price.Currency
		}
		if offer.Status == "PUBLISHED" {
			p.Status = catalog.ProductStatusActive
		}
	}
	return p, nil
}

func (c *EbayConnector) mapOrder(eo ebayOrder) (*trade.Order, error) {
	if eo.OrderID == "" {
		return nil, fmt.Errorf("%w: order without id", connector.ErrMapping)
	}

	subtotal, err := parseAmount(eo.PricingSummary.PriceSubtotal.Value)
	if err != nil {
		return nil, err
	}
	shipping, err := parseAmount(eo.PricingSummary.DeliveryCost.Value)
	if err != nil {
		return nil, err
	}
	tax, err := parseAmount(eo.PricingSummary.Tax.Value)
	if err != nil {
		return nil, err
	}
	total, err := parseAmount(eo.PricingSummary.Total.Value)
	if err != nil {
		return nil, err
	}

	order := &trade.Order{
		Platform:          string(connector.PlatformEbay),
		ExternalID:        eo.OrderID,
		Status:            ebayOrderStatus(eo),
		FulfillmentStatus: ebayFulfillmentState[eo.OrderFulfillmentStatus],
		PaymentStatus:     ebayPaymentState[eo.OrderPaymentStatus],
		Currency:          defaultString(eo.PricingSummary.Total.Currency, "USD"),
		Subtotal:          subtotal,
		Tax:               tax,
		Shipping:          shipping,
		Total:             total,
		OrderedAt:         eo.CreationDate,
	}
	if order.FulfillmentStatus == "" {
		order.FulfillmentStatus = trade.FulfillmentStatusPending
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = trade.PaymentStatusUnpaid
	}

	for _, li := range eo.LineItems {
		if li.SKU == "" {
			continue
		}
		unit, err := parseAmount(li.LineItemCost.Value)
		if err != nil {
			c.logger.Warn("skipping malformed line item", zap.String("sku", li.SKU), zap.Error(err))
			continue
		}
		lineTotal, err := parseAmount(li.Total.Value)
		if err != nil {
			c.logger.Warn("skipping malformed line item", zap.String("sku", li.SKU), zap.Error(err))
			continue
		}
		order.Items = append(order.Items, trade.OrderItem{
			SKU:      li.SKU,
			Quantity: li.Quantity,
			Price:    unit,
			Total:    lineTotal,
		})
	}

	for _, s := range eo.Shipments {
		if s.ShipmentID == "" {
			continue
		}
		order.Fulfillments = append(order.Fulfillments, trade.Fulfillment{
			ExternalID:     s.ShipmentID,
			Carrier:        s.ShippingCarrierCode,
			TrackingNumber: s.ShipmentTrackingNumber,
			Status:         trade.FulfillmentStatusShipped,
		})
	}
	return order, nil
}

func (c *EbayConnector) mapReturn(er ebayReturn) (*trade.Return, error) {
	if er.ReturnID == "" || er.OrderID == "" {
		return nil, fmt.Errorf("%w: return without ids", connector.ErrMapping)
	}
	amount, err := parseAmount(er.RefundAmount.Value)
	if err != nil {
		return nil, err
	}
	status := ebayReturnState[er.State]
	if status == "" {
		status = trade.ReturnStatusRequested
	}
	return &trade.Return{
		ExternalID:      er.ReturnID,
		ExternalOrderID: er.OrderID,
		RefundAmount:    amount,
		Currency:        defaultString(er.RefundAmount.Currency, "USD"),
		Status:          status,
		RequestedAt:     er.CreationDate.Value,
	}, nil
}

// ebayOrderStatus folds the cancel state and the payment/fulfillment pair
// into the canonical lifecycle status
func ebayOrderStatus(eo ebayOrder) trade.OrderStatus {
	if eo.CancelState == "CANCELED" {
		return trade.OrderStatusCancelled
	}
	switch eo.OrderPaymentStatus {
	case "FULLY_REFUNDED", "PARTIALLY_REFUNDED":
		return trade.OrderStatusRefunded
	case "PAID":
		if eo.OrderFulfillmentStatus == "FULFILLED" {
			return trade.OrderStatusCompleted
		}
		return trade.OrderStatusPaid
	default:
		return trade.OrderStatusPending
	}
}

var ebayFulfillmentState = map[string]trade.FulfillmentStatus{
	"NOT_STARTED": trade.FulfillmentStatusPending,
	"IN_PROGRESS": trade.FulfillmentStatusPending,
	"FULFILLED":   trade.FulfillmentStatusShipped,
}

var ebayPaymentState = map[string]trade.PaymentStatus{
	"PENDING":            trade.PaymentStatusUnpaid,
	"PAID":               trade.PaymentStatusPaid,
	"FULLY_REFUNDED":     trade.PaymentStatusRefunded,
	"PARTIALLY_REFUNDED": trade.PaymentStatusRefunded,
}

var ebayReturnState = map[string]trade.ReturnStatus{
	"RETURN_REQUESTED": trade.ReturnStatusRequested,
	"RETURN_APPROVED":  trade.ReturnStatusApproved,
	"ITEM_DELIVERED":   trade.ReturnStatusReceived,
	"REFUND_ISSUED":    trade.ReturnStatusRefunded,
	"RETURN_REJECTED":  trade.ReturnStatusRejected,
	"CLOSED":           trade.ReturnStatusRejected,
}

var _ connector.Connector = (*EbayConnector)(nil)
