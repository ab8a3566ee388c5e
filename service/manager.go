package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/datamesh-labs/walletgate/core"
	"github.com/datamesh-labs/walletgate/metrics"
	"github.com/datamesh-labs/walletgate/ports"
)

const (
	defaultConnectTimeout = 30 * time.Second

	// suppressWindow keeps a just-disconnected wallet from being resurrected
	// by a concurrent initialization pass.
	suppressWindow = 5 * time.Second
)

// disconnecter is implemented by providers that support revoking the
// connection. Best effort: absence or failure is non-fatal.
type disconnecter interface {
	Disconnect(ctx context.Context) error
}

// Manager owns the wallet connection lifecycle: it reconciles persisted
// state against the live provider, serializes connect/disconnect/switch
// commands with asynchronous provider notifications, and emits one audit
// event per transition.
//
// Transitions are serialized by one mutex. Provider calls happen outside it;
// a notification applied while a connect is in flight bumps notifySeq, and
// the stale connect result is then discarded in favor of the live data.
type Manager struct {
	provider ports.WalletProvider // nil when no capability exists
	persist  ports.Store
	auth     *Authenticator
	emitter  *AuditEmitter
	logger   zerolog.Logger

	mu            sync.Mutex
	state         core.ConnState
	identity      core.WalletIdentity
	lastErr       error
	active        bool
	initialized   bool
	notifySeq     uint64
	suppressUntil time.Time

	connectTimeout time.Duration
	now            func() time.Time

	wg sync.WaitGroup
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithConnectTimeout overrides the deadline applied to connect requests.
func WithConnectTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.connectTimeout = d }
}

// NewManager creates the connection manager and starts consuming provider
// notifications. A nil provider is a valid configuration meaning no wallet
// capability is present.
func NewManager(provider ports.WalletProvider, persist ports.Store, auth *Authenticator, emitter *AuditEmitter, logger zerolog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		provider:       provider,
		persist:        persist,
		auth:           auth,
		emitter:        emitter,
		logger:         logger.With().Str("component", "conn_manager").Logger(),
		state:          core.StateUninitialized,
		active:         true,
		connectTimeout: defaultConnectTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	if provider != nil {
		m.wg.Add(1)
		go m.watchProvider()
	}
	return m
}

// Status is a consistent snapshot for presentation layers.
type Status struct {
	State         string                 `json:"state"`
	Identity      core.WalletIdentity    `json:"identity"`
	Network       core.NetworkDescriptor `json:"network"`
	Authenticated bool                   `json:"authenticated"`
	LastError     string                 `json:"last_error,omitempty"`
}

// Initialize reconciles persisted wallet state against the live provider.
// Runs once; later calls are no-ops. A persisted connection the provider no
// longer confirms is purged so a ghost session cannot survive a restart.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return core.ErrManagerClosed
	}
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = true
	m.state = core.StateReconciling
	startSeq := m.notifySeq
	suppressed := m.now().Before(m.suppressUntil)
	m.mu.Unlock()

	persistedAddr, _ := m.persist.Get(ctx, ports.KeyWalletAddress)
	connectedFlag, _ := m.persist.Get(ctx, ports.KeyWalletConnected)
	wantReconnect := connectedFlag == "true" && persistedAddr != "" && !suppressed

	if !wantReconnect || m.provider == nil {
		if wantReconnect {
			// persisted connection but no capability to confirm it
			m.purgeWalletKeys(ctx)
		}
		m.commitDisconnected(ctx, startSeq, "no_prior_connection")
		return nil
	}

	accounts, err := m.provider.Accounts(ctx)
	var chainID string
	if err == nil && len(accounts) > 0 {
		chainID, err = m.provider.ChainID(ctx)
	}
	if err != nil || len(accounts) == 0 {
		// provider silent or wallet disconnected outside the application
		m.purgeWalletKeys(ctx)
		m.commitDisconnected(ctx, startSeq, "stale_persisted_state")
		return nil
	}

	addr, err := core.NormalizeAddress(accounts[0])
	if err != nil {
		m.purgeWalletKeys(ctx)
		m.commitDisconnected(ctx, startSeq, "invalid_provider_address")
		return nil
	}

	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return core.ErrManagerClosed
	}
	if m.notifySeq != startSeq {
		m.mu.Unlock()
		return nil
	}
	m.identity = core.WalletIdentity{
		Address:         addr,
		ChainID:         strings.ToLower(chainID),
		IsConnected:     true,
		Kind:            core.WalletKindBrowserExtension,
		LastConnectedAt: m.now(),
	}
	m.state = core.StateConnected
	m.persistWallet(ctx, addr)
	m.emitter.Emit(core.AuditWalletConnect, map[string]any{
		"address":    addr,
		"chainId":    m.identity.ChainID,
		"reconciled": true,
		"success":    true,
	})
	m.mu.Unlock()

	if err := m.auth.Restore(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("failed to restore persisted session")
	}
	return nil
}

// Connect requests wallet accounts and establishes the connection. Valid
// from Uninitialized or Disconnected; when already connected it returns the
// current identity unchanged. Rejections are not retried automatically.
func (m *Manager) Connect(ctx context.Context) (core.WalletIdentity, error) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return core.WalletIdentity{}, core.ErrManagerClosed
	}
	if m.provider == nil {
		m.state = core.StateDisconnected
		m.lastErr = core.ErrProviderUnavailable
		m.emitter.Emit(core.AuditWalletConnect, map[string]any{
			"success":      false,
			"errorMessage": core.ErrProviderUnavailable.Error(),
		})
		m.mu.Unlock()
		return core.WalletIdentity{}, core.ErrProviderUnavailable
	}
	switch m.state {
	case core.StateConnecting, core.StateReconciling:
		m.mu.Unlock()
		return core.WalletIdentity{}, core.ErrConnectInProgress
	case core.StateConnected:
		identity := m.identity
		m.mu.Unlock()
		return identity, nil
	}
	m.state = core.StateConnecting
	startSeq := m.notifySeq
	m.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	accounts, err := m.provider.RequestAccounts(cctx)
	if err == nil && len(accounts) == 0 {
		err = core.ErrNoAccounts
	}
	var chainID string
	if err == nil {
		chainID, err = m.provider.ChainID(cctx)
	}
	var addr string
	if err == nil {
		addr, err = core.NormalizeAddress(accounts[0])
	}

	if err != nil {
		err = mapConnectError(err)
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.active {
			return core.WalletIdentity{}, core.ErrManagerClosed
		}
		if m.notifySeq != startSeq {
			// live notification took over mid-flight; its state wins and the
			// stale request outcome is dropped
			return m.identity, nil
		}
		m.state = core.StateDisconnected
		m.lastErr = err
		m.emitter.Emit(core.AuditWalletConnect, map[string]any{
			"success":      false,
			"errorMessage": err.Error(),
		})
		return core.WalletIdentity{}, err
	}

	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return core.WalletIdentity{}, core.ErrManagerClosed
	}
	if m.notifySeq != startSeq {
		identity := m.identity
		m.mu.Unlock()
		return identity, nil
	}
	m.identity = core.WalletIdentity{
		Address:         addr,
		ChainID:         strings.ToLower(chainID),
		IsConnected:     true,
		Kind:            core.WalletKindBrowserExtension,
		LastConnectedAt: m.now(),
	}
	m.state = core.StateConnected
	m.lastErr = nil
	m.persistWallet(ctx, addr)
	m.emitter.Emit(core.AuditWalletConnect, map[string]any{
		"address": addr,
		"chainId": m.identity.ChainID,
		"success": true,
	})
	metrics.WalletConnects.Inc()
	identity := m.identity
	m.mu.Unlock()

	if _, err := m.auth.Login(ctx, addr); err != nil {
		m.logger.Warn().Err(err).Str("address", addr).Msg("session login after connect failed")
	}
	return identity, nil
}

// Disconnect clears the connection and the session. Valid from any state and
// idempotent. Sets a short suppress window so a concurrent initialization
// pass cannot resurrect the wallet, and invalidates any in-flight connect.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return core.ErrManagerClosed
	}
	m.notifySeq++
	m.suppressUntil = m.now().Add(suppressWindow)
	m.identity = core.WalletIdentity{}
	m.state = core.StateDisconnected
	m.lastErr = nil
	m.purgeWalletKeys(ctx)
	m.emitter.Emit(core.AuditWalletDisconnect, map[string]any{"requested": true})
	metrics.WalletDisconnects.Inc()
	provider := m.provider
	m.mu.Unlock()

	if d, ok := provider.(disconnecter); ok {
		if err := d.Disconnect(ctx); err != nil {
			m.logger.Debug().Err(err).Msg("provider disconnect notification failed")
		}
	}

	return m.auth.Logout(ctx)
}

// SwitchNetwork asks the wallet to target another chain. A user rejection is
// an informational outcome, not an error: declined is returned true and the
// connection state is untouched. The chain id itself only changes when the
// provider delivers the ensuing chainChanged notification.
func (m *Manager) SwitchNetwork(ctx context.Context, targetChainID string) (declined bool, err error) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return false, core.ErrManagerClosed
	}
	if m.provider == nil {
		m.mu.Unlock()
		return false, core.ErrProviderUnavailable
	}
	m.mu.Unlock()

	target := strings.ToLower(targetChainID)
	if desc := core.LookupNetwork(target); !desc.IsSupported {
		m.logger.Info().Str("chain_id", target).Msg("switching to a network the marketplace does not support")
	}

	if err := m.provider.SwitchChain(ctx, target); err != nil {
		if errors.Is(err, core.ErrUserRejected) {
			m.logger.Info().Str("chain_id", target).Msg("network switch declined by user")
			return true, nil
		}
		return false, fmt.Errorf("network switch failed: %w", err)
	}
	return false, nil
}

// Status returns a snapshot of the connection and session state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	s := Status{
		State:    m.state.String(),
		Identity: m.identity,
	}
	if m.identity.ChainID != "" {
		s.Network = core.LookupNetwork(m.identity.ChainID)
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	m.mu.Unlock()

	s.Authenticated = m.auth.IsAuthenticated()
	return s
}

// CurrentAddress returns the reconciled wallet address, or empty when not
// connected.
func (m *Manager) CurrentAddress() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.identity.IsConnected {
		return ""
	}
	return m.identity.Address
}

// State returns the current connection state.
func (m *Manager) State() core.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Identity returns a snapshot of the wallet identity.
func (m *Manager) Identity() core.WalletIdentity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Close tears the manager down. State writes racing the teardown are
// discarded, not applied.
func (m *Manager) Close() error {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return nil
	}
	m.active = false
	provider := m.provider
	m.mu.Unlock()

	if provider != nil {
		if err := provider.Close(); err != nil {
			m.logger.Debug().Err(err).Msg("provider close failed")
		}
	}
	m.wg.Wait()
	return nil
}

func (m *Manager) watchProvider() {
	defer m.wg.Done()
	for event := range m.provider.Events() {
		switch event.Type {
		case ports.AccountsChanged:
			m.handleAccountsChanged(event.Accounts)
		case ports.ChainChanged:
			m.handleChainChanged(event.ChainID)
		}
	}
}

// handleAccountsChanged routes an asynchronous provider notification. An
// empty account list is an externally initiated disconnect; a different
// address is a Connected-to-Connected identity update that re-resolves the
// session without a reconnect handshake.
func (m *Manager) handleAccountsChanged(accounts []string) {
	ctx := context.Background()

	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.notifySeq++

	if len(accounts) == 0 {
		m.identity = core.WalletIdentity{}
		m.state = core.StateDisconnected
		m.purgeWalletKeys(ctx)
		m.emitter.Emit(core.AuditWalletDisconnect, map[string]any{
			"reason": "accounts_changed_empty",
		})
		metrics.WalletDisconnects.Inc()
		m.mu.Unlock()

		if err := m.auth.Logout(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("session logout after external disconnect failed")
		}
		return
	}

	addr, err := core.NormalizeAddress(accounts[0])
	if err != nil {
		m.logger.Warn().Err(err).Str("address", accounts[0]).Msg("ignoring notification with invalid address")
		m.mu.Unlock()
		return
	}
	if m.identity.IsConnected && m.identity.Address == addr {
		m.mu.Unlock()
		return
	}

	m.identity = core.WalletIdentity{
		Address:         addr,
		ChainID:         m.identity.ChainID,
		IsConnected:     true,
		Kind:            core.WalletKindBrowserExtension,
		LastConnectedAt: m.now(),
	}
	m.state = core.StateConnected
	m.lastErr = nil
	m.persistWallet(ctx, addr)
	m.emitter.Emit(core.AuditWalletAccountChanged, map[string]any{"address": addr})
	m.mu.Unlock()

	if _, err := m.auth.Login(ctx, addr); err != nil {
		m.logger.Warn().Err(err).Str("address", addr).Msg("session login after account change failed")
	}
}

// handleChainChanged updates the chain id in place; no reconnect required.
// Only a connected identity carries a chain id, so the notification is
// dropped in any other state.
func (m *Manager) handleChainChanged(chainID string) {
	chainID = strings.ToLower(chainID)

	m.mu.Lock()
	if !m.active || !m.identity.IsConnected || m.identity.ChainID == chainID {
		m.mu.Unlock()
		return
	}
	m.identity.ChainID = chainID
	desc := core.LookupNetwork(chainID)
	m.emitter.Emit(core.AuditWalletChainChanged, map[string]any{
		"chainId":     chainID,
		"network":     desc.Name,
		"isSupported": desc.IsSupported,
	})
	m.mu.Unlock()

	if !desc.IsSupported {
		m.logger.Warn().Str("chain_id", chainID).Msg("wallet switched to an unsupported network")
	}
}

// commitDisconnected finishes a reconciliation pass in Disconnected unless a
// notification already owns the state.
func (m *Manager) commitDisconnected(ctx context.Context, startSeq uint64, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active || m.notifySeq != startSeq {
		return
	}
	m.identity = core.WalletIdentity{}
	m.state = core.StateDisconnected
	m.emitter.Emit(core.AuditWalletDisconnect, map[string]any{"reason": reason})
}

func (m *Manager) persistWallet(ctx context.Context, addr string) {
	if err := m.persist.Set(ctx, ports.KeyWalletAddress, addr); err != nil {
		m.logger.Warn().Err(err).Msg("failed to persist wallet address")
	}
	if err := m.persist.Set(ctx, ports.KeyWalletConnected, "true"); err != nil {
		m.logger.Warn().Err(err).Msg("failed to persist connection flag")
	}
}

func (m *Manager) purgeWalletKeys(ctx context.Context) {
	if err := m.persist.Delete(ctx, ports.KeyWalletAddress); err != nil {
		m.logger.Warn().Err(err).Msg("failed to clear persisted wallet address")
	}
	if err := m.persist.Delete(ctx, ports.KeyWalletConnected); err != nil {
		m.logger.Warn().Err(err).Msg("failed to clear persisted connection flag")
	}
}

func mapConnectError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, core.ErrTimeout) {
		return fmt.Errorf("connect: %w", core.ErrTimeout)
	}
	return err
}
