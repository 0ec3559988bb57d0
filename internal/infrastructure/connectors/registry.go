package connectors

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/connector"
)

// Registry implements the connector registry over a factory table. New
// always returns a fresh instance so one store's Initialize never leaks
// credentials into another's.
type Registry struct {
	factories map[connector.Platform]func() connector.Connector
}

// NewRegistry creates a registry with all supported marketplaces wired
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		factories: map[connector.Platform]func() connector.Connector{
			connector.PlatformShopify:     func() connector.Connector { return NewShopifyConnector(logger) },
			connector.PlatformAmazon:      func() connector.Connector { return NewAmazonConnector(logger) },
			connector.PlatformEbay:        func() connector.Connector { return NewEbayConnector(logger) },
			connector.PlatformEtsy:        func() connector.Connector { return NewEtsyConnector(logger) },
			connector.PlatformWooCommerce: func() connector.Connector { return NewWooCommerceConnector(logger) },
		},
	}
}

// New returns an uninitialized connector for the platform
func (r *Registry) New(platform connector.Platform) (connector.Connector, error) {
	factory, ok := r.factories[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", connector.ErrPlatformNotRegistered, platform)
	}
	return factory(), nil
}

// Platforms lists the registered platform codes in stable order
func (r *Registry) Platforms() []connector.Platform {
	platforms := make([]connector.Platform, 0, len(r.factories))
	for p := range r.factories {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
	return platforms
}

// SupportsReturns reports whether the platform is on the returns allow-list.
// The list is intentionally narrower than the per-connector capability so a
// misconfigured connector cannot start polling a feed operations never vetted.
func (r *Registry) SupportsReturns(platform connector.Platform) bool {
	switch platform {
	case connector.PlatformAmazon, connector.PlatformEbay:
		return true
	default:
		return false
	}
}

var _ connector.Registry = (*Registry)(nil)
