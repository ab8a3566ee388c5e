package core

import (
	"fmt"
	"strings"
)

// NetworkDescriptor describes the ledger network a chain id refers to.
type NetworkDescriptor struct {
	ChainID     string `json:"chain_id"`
	Name        string `json:"name"`
	IsSupported bool   `json:"is_supported"`
}

// knownNetworks maps hex-encoded chain ids to the networks the marketplace
// supports.
var knownNetworks = map[string]string{
	"0x1":      "Ethereum Mainnet",
	"0x89":     "Polygon",
	"0x2105":   "Base",
	"0xa":      "OP Mainnet",
	"0xa4b1":   "Arbitrum One",
	"0xaa36a7": "Sepolia",
}

// LookupNetwork resolves a chain id to its descriptor. Unknown ids resolve
// to an unsupported descriptor with a synthesized name, never an error.
func LookupNetwork(chainID string) NetworkDescriptor {
	id := strings.ToLower(chainID)
	if name, ok := knownNetworks[id]; ok {
		return NetworkDescriptor{ChainID: id, Name: name, IsSupported: true}
	}
	return NetworkDescriptor{
		ChainID:     id,
		Name:        fmt.Sprintf("Unknown Network (%s)", chainID),
		IsSupported: false,
	}
}
