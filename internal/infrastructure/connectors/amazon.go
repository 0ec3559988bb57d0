package connectors

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
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

const amazonDefaultEndpoint = "https://sellingpartnerapi-na.amazon.com"

// AmazonConnector implements the Connector port for Amazon's Selling
// Partner API. Pagination is token-based: each page carries a NextToken
// until the provider omits it.
type AmazonConnector struct {
	logger  *zap.Logger
	baseURL string // test override

	// Immutable after Initialize
	sellerID      string
	marketplaceID string
	client        *apiClient
}

// NewAmazonConnector creates an uninitialized Amazon connector
func NewAmazonConnector(logger *zap.Logger) *AmazonConnector {
	return &AmazonConnector{logger: pageLogger(logger, "amazon")}
}

// NewAmazonConnectorWithBaseURL points the connector at a fixed endpoint,
// used by tests
func NewAmazonConnectorWithBaseURL(logger *zap.Logger, baseURL string) *AmazonConnector {
	c := NewAmazonConnector(logger)
	c.baseURL = baseURL
	return c
}

// Platform returns the platform code this connector handles
func (c *AmazonConnector) Platform() connector.Platform {
	return connector.PlatformAmazon
}

// Initialize validates credentials and captures the per-store configuration
func (c *AmazonConnector) Initialize(creds connector.Credentials) error {
	if err := creds.Require("access_token", "seller_id", "marketplace_id"); err != nil {
		return err
	}

	c.sellerID = creds.Get("seller_id")
	c.marketplaceID = creds.Get("marketplace_id")

	baseURL := c.baseURL
	if baseURL == "" {
		baseURL = amazonDefaultEndpoint
	}

	token := creds.Get("access_token")
	executor := resilience.NewExecutor(resilience.ExecutorConfig{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		MaxJitter:   time.Second,
	}, nil, c.logger)

	c.client = newAPIClient(baseURL, 30*time.Second, executor, func(req *http.Request) {
		req.Header.Set("x-amz-access-token", token)
	})
	return nil
}

// SupportsReturns reports that Amazon exposes a pollable returns feed
func (c *AmazonConnector) SupportsReturns() bool { return true }

// WebhookScheme describes Amazon's notification signing
func (c *AmazonConnector) WebhookScheme() connector.WebhookScheme {
	return connector.WebhookScheme{
		SignatureHeader: "X-Amz-Notification-Signature",
		Encoding:        connector.SignatureEncodingBase64,
		TopicHeader:     "X-Amz-Notification-Type",
	}
}

// ---------------------------------------------------------------------------
// Fetching
// ---------------------------------------------------------------------------

// FetchProducts walks the listings feed page by page
func (c *AmazonConnector) FetchProducts(ctx context.Context, since *time.Time) ([]catalog.Product, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}

	var products []catalog.Product
	token := ""
	for {
		query := url.Values{}
		query.Set("marketplaceIds", c.marketplaceID)
		query.Set("pageSize", "20")
		if token != "" {
			query.Set("pageToken", token)
		}

		var page amazonListingsPage
		path := fmt.Sprintf("/listings/2021-08-01/items/%s", c.sellerID)
		if _, err := c.client.getJSON(ctx, "amazon.listings", path, query, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			p, err := c.mapListing(item)
			if err != nil {
				c.logger.Warn("skipping malformed listing", zap.String("sku", item.SKU), zap.Error(err))
				continue
			}
			products = append(products, *p)
		}

		token = page.Pagination.NextToken
		if token == "" || len(page.Items) == 0 {
			break
		}
	}
	return products, nil
}

// FetchOrders walks the orders feed, then loads items per order
func (c *AmazonConnector) FetchOrders(ctx context.Context, since *time.Time) ([]trade.Order, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}

	var orders []trade.Order
	token := ""
	for {
		query := url.Values{}
		query.Set("MarketplaceIds", c.marketplaceID)
		if since != nil {
			query.Set("LastUpdatedAfter", since.UTC().Format(time.RFC3339))
		} else {
			query.Set("CreatedAfter", time.Now().AddDate(-2, 0, 0).UTC().Format(time.RFC3339))
		}
		if token != "" {
			query.Set("NextToken", token)
		}

		var page struct {
			Payload struct {
				Orders    []amazonOrder `json:"Orders"`
				NextToken string        `json:"NextToken"`
			} `json:"payload"`
		}
		if _, err := c.client.getJSON(ctx, "amazon.orders", "/orders/v0/orders", query, &page); err != nil {
			return nil, err
		}

		for _, ao := range page.Payload.Orders {
			order, err := c.mapOrder(ao)
			if err != nil {
				c.logger.Warn("skipping malformed order", zap.String("external_id", ao.AmazonOrderID), zap.Error(err))
				continue
			}
			items, err := c.fetchOrderItems(ctx, ao.AmazonOrderID)
			if err != nil {
				return nil, err
			}
			order.Items = items
			orders = append(orders, *order)
		}

		token = page.Payload.NextToken
		if token == "" || len(page.Payload.Orders) == 0 {
			break
		}
	}
	return orders, nil
}

// FetchInventory reads FBA inventory summaries for the given products in
// SKU batches
func (c *AmazonConnector) FetchInventory(ctx context.Context, products []catalog.Product) (map[string]catalog.InventoryLevel, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}

	storeBySKU := make(map[string]uuid.UUID, len(products))
	skus := make([]string, 0, len(products))
	for _, p := range products {
		skus = append(skus, p.SKU)
		storeBySKU[p.SKU] = p.StoreID
	}

	levels := make(map[string]catalog.InventoryLevel)
	for start := 0; start < len(skus); start += 50 {
		end := start + 50
		if end > len(skus) {
			end = len(skus)
		}

		query := url.Values{}
		query.Set("marketplaceIds", c.marketplaceID)
		query.Set("details", "true")
		query.Set("sellerSkus", strings.Join(skus[start:end], ","))

		var page struct {
			Payload struct {
				InventorySummaries []amazonInventorySummary `json:"inventorySummaries"`
			} `json:"payload"`
		}
		if _, err := c.client.getJSON(ctx, "amazon.inventory", "/fba/inventory/v1/summaries", query, &page); err != nil {
			return nil, err
		}

		for _, s := range page.Payload.InventorySummaries {
			qty := s.TotalQuantity
			level := catalog.InventoryLevel{
				StoreID:          storeBySKU[s.SellerSKU],
				SKU:              s.SellerSKU,
				PlatformQuantity: qty,
				Status:           catalog.DeriveInventoryStatus(qty, catalog.UntrackedAsInStock),
			}
			if s.InventoryDetails != nil {
				level.WarehouseQuantity = s.InventoryDetails.FulfillableQuantity
				level.InboundQuantity = s.InventoryDetails.InboundWorkingQuantity
				if s.InventoryDetails.ReservedQuantity != nil {
					level.ReservedQuantity = s.InventoryDetails.ReservedQuantity.TotalReservedQuantity
				}
			}
			levels[s.SellerSKU] = level
		}
	}
	return levels, nil
}

// FetchReturns walks the returns feed since the watermark
func (c *AmazonConnector) FetchReturns(ctx context.Context, since *time.Time) ([]trade.Return, error) {
	if err := c.requireInit(); err != nil {
		return nil, err
	}

	created := time.Now().AddDate(-2, 0, 0)
	if since != nil {
		created = *since
	}

	var returns []trade.Return
	token := ""
	for {
		query := url.Values{}
		query.Set("marketplaceId", c.marketplaceID)
		query.Set("createdAfter", created.UTC().Format(time.RFC3339))
		if token != "" {
			query.Set("nextToken", token)
		}

		var page struct {
			Payload struct {
				Returns   []amazonReturn `json:"returns"`
				NextToken string         `json:"nextToken"`
			} `json:"payload"`
		}
		if _, err := c.client.getJSON(ctx, "amazon.returns", "/returns/2021-09-01/returns", query, &page); err != nil {
			return nil, err
		}

		for _, ar := range page.Payload.Returns {
			r, err := c.mapReturn(ar)
			if err != nil {
				c.logger.Warn("skipping malformed return", zap.String("external_id", ar.ReturnID), zap.Error(err))
				continue
			}
			returns = append(returns, *r)
		}

		token = page.Payload.NextToken
		if token == "" || len(page.Payload.Returns) == 0 {
			break
		}
	}
	return returns, nil
}

func (c *AmazonConnector) fetchOrderItems(ctx context.Context, orderID string) ([]trade.OrderItem, error) {
	var page struct {
		Payload struct {
			OrderItems []amazonOrderItem `json:"OrderItems"`
		} `json:"payload"`
	}
	path := fmt.Sprintf("/orders/v0/orders/%s/orderItems", orderID)
	if _, err := c.client.getJSON(ctx, "amazon.orderItems", path, nil, &page); err != nil {
		return nil, err
	}

	var items []trade.OrderItem
	for _, ai := range page.Payload.OrderItems {
		if ai.SellerSKU == "" {
			continue
		}
		price, err := parseAmount(ai.ItemPrice.Amount)
		if err != nil {
			c.logger.Warn("skipping malformed order item", zap.String("sku", ai.SellerSKU), zap.Error(err))
			continue
		}
		unit := price
		if ai.QuantityOrdered > 0 {
			unit = price.Div(decimal.NewFromInt(ai.QuantityOrdered))
		}
		items = append(items, trade.OrderItem{
			SKU:               ai.SellerSKU,
			Quantity:          ai.QuantityOrdered,
			FulfilledQuantity: ai.QuantityShipped,
			Price:             unit,
			Total:             price,
		})
	}
	return items, nil
}

func (c *AmazonConnector) requireInit() error {
	if c.client == nil {
		return fmt.Errorf("%w: connector not initialized", connector.ErrConfiguration)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Wire types and mapping
// ---------------------------------------------------------------------------

type amazonMoney struct {
	CurrencyCode string `json:"CurrencyCode"`
	Amount       string `json:"Amount"`
}

type amazonOrder struct {
	AmazonOrderID string      `json:"AmazonOrderId"`
	PurchaseDate  time.Time   `json:"PurchaseDate"`
	OrderStatus   string      `json:"OrderStatus"`
	OrderTotal    amazonMoney `json:"OrderTotal"`
	PaymentMethod string      `json:"PaymentMethod"`
}

type amazonOrderItem struct {
	SellerSKU       string      `json:"SellerSKU"`
	QuantityOrdered int64       `json:"QuantityOrdered"`
	QuantityShipped int64       `json:"QuantityShipped"`
	ItemPrice       amazonMoney `json:"ItemPrice"`
}

type amazonListingsPage struct {
	Items      []amazonListing `json:"items"`
	Pagination struct {
		NextToken string `json:"nextToken"`
	} `json:"pagination"`
}

type amazonListing struct {
	SKU       string `json:"sku"`
	Summaries []struct {
		ItemName string   `json:"itemName"`
		Status   []string `json:"status"`
	} `json:"summaries"`
	Offers []struct {
		Price amazonMoney `json:"price"`
	} `json:"offers"`
}

type amazonInventorySummary struct {
	SellerSKU        string `json:"sellerSku"`
	TotalQuantity    *int64 `json:"totalQuantity"`
	InventoryDetails *struct {
		FulfillableQuantity    *int64 `json:"fulfillableQuantity"`
		InboundWorkingQuantity *int64 `json:"inboundWorkingQuantity"`
		ReservedQuantity       *struct {
			TotalReservedQuantity *int64 `json:"totalReservedQuantity"`
		} `json:"reservedQuantity"`
	} `json:"inventoryDetails"`
}

type amazonReturn struct {
	ReturnID      string      `json:"returnId"`
	AmazonOrderID string      `json:"amazonOrderId"`
	Status        string      `json:"status"`
	RefundAmount  amazonMoney `json:"refundAmount"`
	CreatedDate   time.Time   `json:"createdDate"`
}

func (c *AmazonConnector) mapListing(item amazonListing) (*catalog.Product, error) {
	if item.SKU == "" {
		return nil, fmt.Errorf("%w: listing without SKU", connector.ErrMapping)
	}

	p := &catalog.Product{
		Platform:   string(connector.PlatformAmazon),
		ExternalID: item.SKU,
		SKU:        item.SKU,
		Currency:   "USD",
		Status:     catalog.ProductStatusDraft,
	}
	if len(item.Summaries) > 0 {
		p.Title = item.Summaries[0].ItemName
		for _, s := range item.Summaries[0].Status {
			if s == "BUYABLE" || s == "DISCOVERABLE" {
				p.Status = catalog.ProductStatusActive
			}
		}
	}
	if len(item.Offers) > 0 {
		price, err := parseAmount(item.Offers[0].Price.Amount)
		if err != nil {
			return nil, err
		}
		p.Price = price
		if item.Offers[0].Price.CurrencyCode != "" {
			p.Currency = item.Offers[0].Price.CurrencyCode
		}
	}
	return p, nil
}

func (c *AmazonConnector) mapOrder(ao amazonOrder) (*trade.Order, error) {
	if ao.AmazonOrderID == "" {
		return nil, fmt.Errorf("%w: order without id", connector.ErrMapping)
	}
	total, err := parseAmount(ao.OrderTotal.Amount)
	if err != nil {
		return nil, err
	}

	status := amazonOrderStatus[ao.OrderStatus]
	if status == "" {
		status = trade.OrderStatusPending
	}
	payment := trade.PaymentStatusPaid
	if status == trade.OrderStatusPending {
		payment = trade.PaymentStatusUnpaid
	}
	fulfillment := trade.FulfillmentStatusPending
	if ao.OrderStatus == "Shipped" {
		fulfillment = trade.FulfillmentStatusShipped
	}

	return &trade.Order{
		Platform:          string(connector.PlatformAmazon),
		ExternalID:        ao.AmazonOrderID,
		Status:            status,
		FulfillmentStatus: fulfillment,
		PaymentStatus:     payment,
		Currency:          defaultString(ao.OrderTotal.CurrencyCode, "USD"),
		Subtotal:          total,
		Total:             total,
		OrderedAt:         ao.PurchaseDate,
	}, nil
}

func (c *AmazonConnector) mapReturn(ar amazonReturn) (*trade.Return, error) {
	if ar.ReturnID == "" || ar.AmazonOrderID == "" {
		return nil, fmt.Errorf("%w: return without ids", connector.ErrMapping)
	}
	amount, err := parseAmount(ar.RefundAmount.Amount)
	if err != nil {
		return nil, err
	}
	status := amazonReturnStatus[ar.Status]
	if status == "" {
		status = trade.ReturnStatusRequested
	}
	return &trade.Return{
		ExternalID:      ar.ReturnID,
		ExternalOrderID: ar.AmazonOrderID,
		RefundAmount:    amount,
		Currency:        defaultString(ar.RefundAmount.CurrencyCode, "USD"),
		Status:          status,
		RequestedAt:     ar.CreatedDate,
	}, nil
}

var amazonOrderStatus = map[string]trade.OrderStatus{
	"Pending":          trade.OrderStatusPending,
	"Unshipped":        trade.OrderStatusPaid,
	"PartiallyShipped": trade.OrderStatusPaid,
	"Shipped":          trade.OrderStatusCompleted,
	"Canceled":         trade.OrderStatusCancelled,
}

var amazonReturnStatus = map[string]trade.ReturnStatus{
	"Created":  trade.ReturnStatusRequested,
	"Approved": trade.ReturnStatusApproved,
	"Received": trade.ReturnStatusReceived,
	"Refunded": trade.ReturnStatusRefunded,
	"Rejected": trade.ReturnStatusRejected,
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

var _ connector.Connector = (*AmazonConnector)(nil)
