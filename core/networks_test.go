package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupNetworkKnown(t *testing.T) {
	desc := LookupNetwork("0x1")
	assert.Equal(t, "Ethereum Mainnet", desc.Name)
	assert.True(t, desc.IsSupported)

	// case-insensitive on the hex digits
	desc = LookupNetwork("0xA4B1")
	assert.Equal(t, "Arbitrum One", desc.Name)
	assert.Equal(t, "0xa4b1", desc.ChainID)
	assert.True(t, desc.IsSupported)
}

func TestLookupNetworkUnknown(t *testing.T) {
	desc := LookupNetwork("0x539")
	assert.False(t, desc.IsSupported)
	assert.Equal(t, "0x539", desc.ChainID)
	assert.Contains(t, desc.Name, "0x539")
}
