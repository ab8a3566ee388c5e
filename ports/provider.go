package ports

import "context"

// ProviderEventType identifies an asynchronous wallet provider notification.
type ProviderEventType string

const (
	AccountsChanged ProviderEventType = "accountsChanged"
	ChainChanged    ProviderEventType = "chainChanged"
)

// ProviderEvent is a notification pushed by the wallet provider outside any
// caller-invoked method.
type ProviderEvent struct {
	Type     ProviderEventType
	Accounts []string
	ChainID  string
}

// WalletProvider is the capability surface of an external wallet. Absence of
// a provider is a valid configuration: the connection manager accepts a nil
// provider and reports it as a typed error on connect.
type WalletProvider interface {
	// RequestAccounts prompts the wallet to expose its accounts. May reject
	// with a ProviderError (user rejection, pending request).
	RequestAccounts(ctx context.Context) ([]string, error)

	// Accounts returns the currently exposed accounts without prompting.
	Accounts(ctx context.Context) ([]string, error)

	// ChainID returns the hex-encoded id of the chain the wallet targets.
	ChainID(ctx context.Context) (string, error)

	// SwitchChain asks the wallet to target another chain. May reject with a
	// ProviderError when the user declines.
	SwitchChain(ctx context.Context, chainID string) error

	// Events delivers accountsChanged and chainChanged notifications. The
	// channel is closed when the provider shuts down.
	Events() <-chan ProviderEvent

	Close() error
}
