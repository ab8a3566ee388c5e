package core

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable is returned when no wallet provider capability exists
	ErrProviderUnavailable = errors.New("no wallet provider available")

	// ErrUserRejected is returned when the user rejects a wallet request
	ErrUserRejected = errors.New("request rejected by user")

	// ErrRequestPending is returned when the wallet already has a request in flight
	ErrRequestPending = errors.New("a wallet request is already pending, check your wallet")

	// ErrNoAccounts is returned when the provider reports no accounts
	ErrNoAccounts = errors.New("wallet returned no accounts")

	// ErrNetworkUnsupported signals a chain the marketplace does not support
	ErrNetworkUnsupported = errors.New("network is not supported")

	// ErrBackendUnavailable signals the identity backend could not be reached
	ErrBackendUnavailable = errors.New("identity backend unavailable")

	// ErrCredentialExpired signals the session credential is past its expiry
	ErrCredentialExpired = errors.New("session credential has expired")

	// ErrAuthenticationRequired is returned when no wallet identity is available
	ErrAuthenticationRequired = errors.New("authentication required: no wallet identity")

	// ErrTimeout is returned when a provider or backend call exceeds its deadline
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidAddress is returned when an address is not 20-byte hex
	ErrInvalidAddress = errors.New("invalid wallet address")

	// ErrConnectInProgress is returned when connect is called while one is in flight
	ErrConnectInProgress = errors.New("connect already in progress")

	// ErrManagerClosed is returned after the connection manager is torn down
	ErrManagerClosed = errors.New("connection manager closed")

	// ErrKeyNotFound is returned by a persistence store for an absent key
	ErrKeyNotFound = errors.New("key not found")
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected   = 4001
	CodeRequestPending = -32002
)

// ProviderError carries the raw error code returned by a wallet provider.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// Is maps well-known provider codes onto their sentinel errors so callers
// can branch with errors.Is without knowing raw codes.
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrUserRejected:
		return e.Code == CodeUserRejected
	case ErrRequestPending:
		return e.Code == CodeRequestPending
	}
	return false
}
