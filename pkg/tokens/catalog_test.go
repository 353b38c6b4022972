package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogLookup(t *testing.T) {
	c := Default()

	usdc, ok := c.Lookup("usdc", "arbitrum")
	require.True(t, ok)
	assert.Equal(t, "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", usdc.Address)
	assert.Equal(t, uint8(6), usdc.Decimals)
	assert.False(t, usdc.IsNative())

	eth, ok := c.Lookup("ETH", "Base")
	require.True(t, ok)
	assert.True(t, eth.IsNative())

	_, ok = c.Lookup("USDT", "Base")
	assert.False(t, ok)
}

func TestCatalogFilter(t *testing.T) {
	c := Default()

	for _, tok := range c.OnChain("Polygon") {
		assert.Equal(t, "Polygon", tok.Chain)
	}

	usdcs := c.Filter("", "usdc")
	require.NotEmpty(t, usdcs)
	for _, tok := range usdcs {
		assert.Contains(t, tok.Symbol, "USDC")
	}

	assert.Len(t, c.All(), len(c.Filter("", "")))
}
