package connectors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelsync/backend/internal/domain/connector"
)

func TestRegistry_NewReturnsFreshInstances(t *testing.T) {
	r := NewRegistry(nil)

	first, err := r.New(connector.PlatformShopify)
	require.NoError(t, err)
	second, err := r.New(connector.PlatformShopify)
	require.NoError(t, err)

	// Initializing one store must not leak credentials into another
	require.NoError(t, first.Initialize(connector.Credentials{
		"shop_domain":  "a.myshopify.com",
		"access_token": "token-a",
	}))
	assert.NotSame(t, first, second)
	assert.Error(t, second.(*ShopifyConnector).requireInit())
}

func TestRegistry_UnknownPlatform(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.New(connector.Platform("MAGENTO"))
	require.Error(t, err)
	assert.ErrorIs(t, err, connector.ErrPlatformNotRegistered)
}

func TestRegistry_Platforms(t *testing.T) {
	r := NewRegistry(nil)
	assert.Equal(t, []connector.Platform{
		connector.PlatformAmazon,
		connector.PlatformEbay,
		connector.PlatformEtsy,
		connector.PlatformShopify,
		connector.PlatformWooCommerce,
	}, r.Platforms())
}

func TestRegistry_ReturnsAllowList(t *testing.T) {
	r := NewRegistry(nil)

	assert.True(t, r.SupportsReturns(connector.PlatformAmazon))
	assert.True(t, r.SupportsReturns(connector.PlatformEbay))
	assert.False(t, r.SupportsReturns(connector.PlatformShopify))
	assert.False(t, r.SupportsReturns(connector.PlatformEtsy))
	assert.False(t, r.SupportsReturns(connector.PlatformWooCommerce))
}
