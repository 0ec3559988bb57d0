package connector

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/channelsync/backend/internal/domain/catalog"
	"github.com/channelsync/backend/internal/domain/trade"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	// ErrConfiguration indicates missing or invalid connector credentials.
	// Fatal: never retried, surfaces as store-unhealthy immediately.
	ErrConfiguration = errors.New("connector: invalid configuration")
	// ErrProviderTransient indicates a retryable provider failure (429, 5xx, transport)
	ErrProviderTransient = errors.New("connector: transient provider error")
	// ErrProviderTerminal indicates a non-retryable provider failure (4xx other than 429)
	ErrProviderTerminal = errors.New("connector: terminal provider error")
	// ErrMapping indicates a malformed provider payload; the offending
	// record is skipped and the sync continues
	ErrMapping = errors.New("connector: malformed provider record")
	// ErrNotSupported indicates the connector does not implement the capability
	ErrNotSupported = errors.New("connector: capability not supported")
	// ErrPlatformNotRegistered indicates no connector is registered for a platform
	ErrPlatformNotRegistered = errors.New("connector: platform not registered")
)

// ---------------------------------------------------------------------------
// Platform
// ---------------------------------------------------------------------------

// Platform identifies a marketplace
type Platform string

const (
	PlatformShopify     Platform = "SHOPIFY"
	PlatformAmazon      Platform = "AMAZON"
	PlatformEbay        Platform = "EBAY"
	PlatformEtsy        Platform = "ETSY"
	PlatformWooCommerce Platform = "WOOCOMMERCE"
)

// IsValid returns true if the platform code is known
func (p Platform) IsValid() bool {
	switch p {
	case PlatformShopify, PlatformAmazon, PlatformEbay, PlatformEtsy, PlatformWooCommerce:
		return true
	default:
		return false
	}
}

// String returns the string representation of Platform
func (p Platform) String() string {
	return string(p)
}

// ---------------------------------------------------------------------------
// Credentials
// ---------------------------------------------------------------------------

// Credentials is the decrypted, opaque credential payload produced by the
// OAuth subsystem. Connectors validate the fields they require.
type Credentials map[string]string

// Get returns the named field, or "" when absent
func (c Credentials) Get(key string) string {
	return c[key]
}

// Require returns ErrConfiguration when any named field is empty
func (c Credentials) Require(keys ...string) error {
	for _, k := range keys {
		if c[k] == "" {
			return errors.Join(ErrConfiguration, errors.New("connector: missing credential field "+k))
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Webhook scheme
// ---------------------------------------------------------------------------

// SignatureEncoding is the encoding of the webhook HMAC digest
type SignatureEncoding string

const (
	SignatureEncodingBase64 SignatureEncoding = "base64"
	SignatureEncodingHex    SignatureEncoding = "hex"
)

// WebhookScheme describes how a marketplace signs its webhook deliveries.
// The HMAC is always computed over the exact raw request body.
type WebhookScheme struct {
	// SignatureHeader carries the HMAC digest
	SignatureHeader string
	// Encoding of the digest value
	Encoding SignatureEncoding
	// DomainHeader optionally carries the originating shop domain for the
	// cross-tenant replay check; empty when the platform has no such header
	DomainHeader string
	// TopicHeader carries the event topic (e.g. orders/updated)
	TopicHeader string
}

// ---------------------------------------------------------------------------
// Connector port
// ---------------------------------------------------------------------------

// Connector is the fixed capability set implemented once per marketplace.
// Initialize must be called before any fetch; it is not safe for concurrent
// calls, but fetches after a successful Initialize are. A nil since means
// full historical sync. Fetches return canonical candidate rows with
// internal ids unset; field mapping is pure and table-driven inside each
// connector.
type Connector interface {
	// Platform returns the marketplace this connector handles
	Platform() Platform

	// Initialize validates required credential fields and captures an
	// immutable per-store configuration
	Initialize(creds Credentials) error

	// FetchProducts returns products created or changed since the watermark
	FetchProducts(ctx context.Context, since *time.Time) ([]catalog.Product, error)

	// FetchOrders returns orders created or changed since the watermark,
	// with items and fulfillments attached
	FetchOrders(ctx context.Context, since *time.Time) ([]trade.Order, error)

	// FetchInventory returns stock levels keyed by SKU for the given products
	FetchInventory(ctx context.Context, products []catalog.Product) (map[string]catalog.InventoryLevel, error)

	// FetchReturns returns return requests changed since the watermark.
	// Connectors without a returns API return ErrNotSupported.
	FetchReturns(ctx context.Context, since *time.Time) ([]trade.Return, error)

	// SupportsReturns reports whether FetchReturns is implemented
	SupportsReturns() bool

	// WebhookScheme describes the marketplace's webhook signing
	WebhookScheme() WebhookScheme
}

// OrderEventDecoder is implemented by connectors whose webhook payloads can
// be mapped synchronously to canonical rows
type OrderEventDecoder interface {
	// DecodeOrderEvent maps a raw webhook body to a canonical order candidate
	DecodeOrderEvent(storeID uuid.UUID, body []byte) (*trade.Order, error)
	// DecodeProductEvent maps a raw webhook body to canonical product
	// candidates, one per variant
	DecodeProductEvent(storeID uuid.UUID, body []byte) ([]catalog.Product, error)
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Registry provides access to the configured marketplace connectors.
// Connectors returned by New are fresh instances so one store's Initialize
// never leaks configuration into another's.
type Registry interface {
	// New returns an uninitialized connector for the platform
	New(platform Platform) (Connector, error)
	// Platforms lists the registered platform codes
	Platforms() []Platform
	// SupportsReturns reports whether the platform is on the returns allow-list
	SupportsReturns(platform Platform) bool
}
