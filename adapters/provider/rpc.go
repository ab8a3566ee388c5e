package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/datamesh-labs/walletgate/core"
	"github.com/datamesh-labs/walletgate/ports"
)

const defaultPollInterval = 2 * time.Second

// RPCProvider bridges a wallet exposed over JSON-RPC (a local wallet daemon
// or a browser-extension bridge). Account and chain changes are observed by
// polling and synthesized into provider events.
type RPCProvider struct {
	client       *rpc.Client
	logger       zerolog.Logger
	pollInterval time.Duration

	events chan ports.ProviderEvent
	stop   chan struct{}
	wg     sync.WaitGroup

	mu           sync.Mutex
	lastAccounts []string
	lastChainID  string
	closed       bool
}

// Option configures an RPCProvider.
type Option func(*RPCProvider)

// WithPollInterval overrides the notification polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(p *RPCProvider) { p.pollInterval = d }
}

// Dial connects to the wallet RPC endpoint and starts the notification poll
// loop.
func Dial(ctx context.Context, url string, logger zerolog.Logger, opts ...Option) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial wallet provider: %w", err)
	}

	p := &RPCProvider{
		client:       client,
		logger:       logger.With().Str("component", "rpc_provider").Logger(),
		pollInterval: defaultPollInterval,
		events:       make(chan ports.ProviderEvent, 16),
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(1)
	go p.poll()

	return p, nil
}

var _ ports.WalletProvider = (*RPCProvider)(nil)

// RequestAccounts prompts the wallet to expose its accounts.
func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, mapRPCError(err)
	}
	p.remember(accounts, "")
	return accounts, nil
}

// Accounts returns the currently exposed accounts without prompting.
func (p *RPCProvider) Accounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, mapRPCError(err)
	}
	p.remember(accounts, "")
	return accounts, nil
}

// ChainID returns the hex-encoded chain id the wallet targets.
func (p *RPCProvider) ChainID(ctx context.Context) (string, error) {
	var chainID string
	if err := p.client.CallContext(ctx, &chainID, "eth_chainId"); err != nil {
		return "", mapRPCError(err)
	}
	p.remember(nil, chainID)
	return chainID, nil
}

// SwitchChain asks the wallet to target another chain.
func (p *RPCProvider) SwitchChain(ctx context.Context, chainID string) error {
	param := map[string]string{"chainId": chainID}
	if err := p.client.CallContext(ctx, nil, "wallet_switchEthereumChain", param); err != nil {
		return mapRPCError(err)
	}
	return nil
}

// Disconnect asks the wallet to revoke the account permission grant. Not all
// wallets implement the method; callers treat failure as non-fatal.
func (p *RPCProvider) Disconnect(ctx context.Context) error {
	param := map[string]any{"eth_accounts": map[string]any{}}
	if err := p.client.CallContext(ctx, nil, "wallet_revokePermissions", param); err != nil {
		return mapRPCError(err)
	}
	return nil
}

// Events delivers synthesized accountsChanged and chainChanged notifications.
func (p *RPCProvider) Events() <-chan ports.ProviderEvent {
	return p.events
}

// Close stops the poll loop and releases the RPC connection.
func (p *RPCProvider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stop)
	p.wg.Wait()
	p.client.Close()
	close(p.events)
	return nil
}

// remember records the latest observed facts so the poll loop does not emit
// a notification for state the caller has already seen.
func (p *RPCProvider) remember(accounts []string, chainID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if accounts != nil {
		p.lastAccounts = accounts
	}
	if chainID != "" {
		p.lastChainID = chainID
	}
}

func (p *RPCProvider) poll() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.pollOnce()
		}
	}
}

func (p *RPCProvider) pollOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), p.pollInterval)
	defer cancel()

	var accounts []string
	if err := p.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		p.logger.Debug().Err(err).Msg("account poll failed")
		return
	}

	var chainID string
	if err := p.client.CallContext(ctx, &chainID, "eth_chainId"); err != nil {
		p.logger.Debug().Err(err).Msg("chain poll failed")
		return
	}

	p.mu.Lock()
	accountsChanged := !equalAccounts(accounts, p.lastAccounts)
	chainChanged := chainID != p.lastChainID && p.lastChainID != ""
	p.lastAccounts = accounts
	first := p.lastChainID == ""
	p.lastChainID = chainID
	p.mu.Unlock()

	if first {
		return
	}
	if accountsChanged {
		p.send(ports.ProviderEvent{Type: ports.AccountsChanged, Accounts: accounts})
	}
	if chainChanged {
		p.send(ports.ProviderEvent{Type: ports.ChainChanged, ChainID: chainID})
	}
}

func (p *RPCProvider) send(ev ports.ProviderEvent) {
	select {
	case p.events <- ev:
	default:
		p.logger.Warn().Str("type", string(ev.Type)).Msg("provider event dropped, channel full")
	}
}

func equalAccounts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// mapRPCError converts transport errors into the module's error taxonomy,
// preserving EIP-1193 codes.
func mapRPCError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("wallet provider call: %w", core.ErrTimeout)
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &core.ProviderError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	}
	return fmt.Errorf("wallet provider call failed: %w", err)
}
