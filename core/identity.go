package core

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// WalletKind identifies how the wallet capability is provided.
type WalletKind string

const (
	WalletKindUnknown          WalletKind = "unknown"
	WalletKindBrowserExtension WalletKind = "browser_extension"
)

// WalletIdentity is the reconciled view of the external wallet connection.
// It is owned exclusively by the connection manager; everyone else reads
// snapshots.
type WalletIdentity struct {
	Address         string     `json:"address"`
	ChainID         string     `json:"chain_id"`
	IsConnected     bool       `json:"is_connected"`
	Kind            WalletKind `json:"wallet_kind"`
	LastConnectedAt time.Time  `json:"last_connected_at"`
}

// NormalizeAddress validates addr as a 20-byte hex address and returns it
// lowercased, the canonical form used everywhere in this module.
func NormalizeAddress(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

// ConnState is the connection lifecycle state.
type ConnState int

const (
	StateUninitialized ConnState = iota
	StateReconciling
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReconciling:
		return "reconciling"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
