package provider

import (
	"context"
	"sync"

	"github.com/datamesh-labs/walletgate/ports"
)

// MemoryProvider is a scriptable in-process wallet provider for tests and
// development. Exported override hooks let tests script rejections, hangs and
// races without a real wallet.
type MemoryProvider struct {
	// OnRequestAccounts, when set, replaces the default RequestAccounts
	// behavior entirely.
	OnRequestAccounts func(ctx context.Context) ([]string, error)

	// SwitchErr, when set, is returned from SwitchChain.
	SwitchErr error

	mu       sync.Mutex
	accounts []string
	chainID  string
	closed   bool

	events chan ports.ProviderEvent
}

// NewMemoryProvider creates a provider preloaded with the given accounts and
// chain id.
func NewMemoryProvider(chainID string, accounts ...string) *MemoryProvider {
	return &MemoryProvider{
		accounts: accounts,
		chainID:  chainID,
		events:   make(chan ports.ProviderEvent, 16),
	}
}

var _ ports.WalletProvider = (*MemoryProvider)(nil)

func (p *MemoryProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	if p.OnRequestAccounts != nil {
		return p.OnRequestAccounts(ctx)
	}
	return p.Accounts(ctx)
}

func (p *MemoryProvider) Accounts(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.accounts))
	copy(out, p.accounts)
	return out, nil
}

func (p *MemoryProvider) ChainID(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID, nil
}

func (p *MemoryProvider) SwitchChain(ctx context.Context, chainID string) error {
	if p.SwitchErr != nil {
		return p.SwitchErr
	}
	p.EmitChainChanged(chainID)
	return nil
}

func (p *MemoryProvider) Events() <-chan ports.ProviderEvent {
	return p.events
}

func (p *MemoryProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.events)
	return nil
}

// EmitAccountsChanged updates the exposed accounts and pushes the
// corresponding notification, as an external wallet would. The send happens
// under the mutex so a concurrent Close cannot close the channel mid-send.
func (p *MemoryProvider) EmitAccountsChanged(accounts ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts = accounts
	if p.closed {
		return
	}
	p.events <- ports.ProviderEvent{Type: ports.AccountsChanged, Accounts: accounts}
}

// EmitChainChanged updates the target chain and pushes the corresponding
// notification.
func (p *MemoryProvider) EmitChainChanged(chainID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chainID = chainID
	if p.closed {
		return
	}
	p.events <- ports.ProviderEvent{Type: ports.ChainChanged, ChainID: chainID}
}
