package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datamesh-labs/walletgate/adapters/provider"
	"github.com/datamesh-labs/walletgate/core"
	"github.com/datamesh-labs/walletgate/ports"
)

const (
	addrMixed = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
	addrLower = "0xab5801a7d398351b8be11c439e05c5b3259aec9b"

	addrOther      = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	addrOtherLower = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
)

func TestConnectEstablishesIdentity(t *testing.T) {
	r := newRig(t, provider.NewMemoryProvider("0x1", addrMixed))
	ctx := context.Background()

	identity, err := r.manager.Connect(ctx)
	require.NoError(t, err)

	assert.Equal(t, addrLower, identity.Address)
	assert.Equal(t, "0x1", identity.ChainID)
	assert.True(t, identity.IsConnected)
	assert.Equal(t, core.StateConnected, r.manager.State())

	persistedAddr, ok := r.persisted(ports.KeyWalletAddress)
	require.True(t, ok)
	assert.Equal(t, addrLower, persistedAddr)
	flag, ok := r.persisted(ports.KeyWalletConnected)
	require.True(t, ok)
	assert.Equal(t, "true", flag)

	// connect downstream-triggers the session authenticator
	assert.True(t, r.auth.IsAuthenticated())

	r.drainAudit()
	connects := r.sink.byType(core.AuditWalletConnect)
	require.Len(t, connects, 1)
	assert.Equal(t, true, connects[0].Payload["success"])
	assert.Equal(t, addrLower, connects[0].Payload["address"])
}

func TestConnectWithoutProvider(t *testing.T) {
	r := newRig(t, nil)

	_, err := r.manager.Connect(context.Background())
	require.ErrorIs(t, err, core.ErrProviderUnavailable)

	// no persistence writes occurred
	_, ok := r.persisted(ports.KeyWalletAddress)
	assert.False(t, ok)
	_, ok = r.persisted(ports.KeyWalletConnected)
	assert.False(t, ok)

	assert.Equal(t, core.StateDisconnected, r.manager.State())
}

func TestConnectUserRejection(t *testing.T) {
	p := provider.NewMemoryProvider("0x1")
	p.OnRequestAccounts = func(ctx context.Context) ([]string, error) {
		return nil, &core.ProviderError{Code: core.CodeUserRejected, Message: "user denied"}
	}
	r := newRig(t, p)

	_, err := r.manager.Connect(context.Background())
	require.ErrorIs(t, err, core.ErrUserRejected)
	assert.Equal(t, core.StateDisconnected, r.manager.State())

	// not retried automatically: a second explicit call reaches the provider
	// again and may succeed
	p.OnRequestAccounts = func(ctx context.Context) ([]string, error) {
		return []string{addrMixed}, nil
	}
	identity, err := r.manager.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, addrLower, identity.Address)

	r.drainAudit()
	failures := 0
	for _, ev := range r.sink.byType(core.AuditWalletConnect) {
		if ev.Payload["success"] == false {
			failures++
			assert.NotEmpty(t, ev.Payload["errorMessage"])
		}
	}
	assert.Equal(t, 1, failures)
}

func TestConnectPendingRequest(t *testing.T) {
	p := provider.NewMemoryProvider("0x1")
	p.OnRequestAccounts = func(ctx context.Context) ([]string, error) {
		return nil, &core.ProviderError{Code: core.CodeRequestPending, Message: "request pending"}
	}
	r := newRig(t, p)

	_, err := r.manager.Connect(context.Background())
	require.ErrorIs(t, err, core.ErrRequestPending)
	assert.NotErrorIs(t, err, core.ErrUserRejected)
}

func TestConnectTimesOut(t *testing.T) {
	p := provider.NewMemoryProvider("0x1")
	p.OnRequestAccounts = func(ctx context.Context) ([]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r := newRig(t, p, WithConnectTimeout(20*time.Millisecond))

	_, err := r.manager.Connect(context.Background())
	require.ErrorIs(t, err, core.ErrTimeout)
	assert.Equal(t, core.StateDisconnected, r.manager.State())
}

func TestExternalDisconnect(t *testing.T) {
	p := provider.NewMemoryProvider("0x1", addrMixed)
	r := newRig(t, p)
	ctx := context.Background()

	_, err := r.manager.Connect(ctx)
	require.NoError(t, err)
	require.True(t, r.auth.IsAuthenticated())

	p.EmitAccountsChanged()

	require.Eventually(t, func() bool {
		return r.manager.State() == core.StateDisconnected
	}, time.Second, 5*time.Millisecond)

	_, ok := r.persisted(ports.KeyWalletAddress)
	assert.False(t, ok)
	_, ok = r.persisted(ports.KeyWalletConnected)
	assert.False(t, ok)

	// the session is torn down once, asynchronously
	require.Eventually(t, func() bool {
		return len(r.sink.byType(core.AuditAuthLogout)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.False(t, r.auth.IsAuthenticated())

	r.drainAudit()
	assert.Len(t, r.sink.byType(core.AuditAuthLogout), 1)
}

func TestAccountChangedUpdatesIdentityInPlace(t *testing.T) {
	p := provider.NewMemoryProvider("0x1", addrMixed)
	r := newRig(t, p)
	ctx := context.Background()

	_, err := r.manager.Connect(ctx)
	require.NoError(t, err)
	loginsBefore := r.backend.logins()

	p.EmitAccountsChanged(addrOther)

	require.Eventually(t, func() bool {
		return r.manager.CurrentAddress() == addrOtherLower
	}, time.Second, 5*time.Millisecond)

	// no reconnect handshake: state stayed Connected and the session was
	// re-resolved for the new address
	assert.Equal(t, core.StateConnected, r.manager.State())
	require.Eventually(t, func() bool {
		cred := r.auth.Credential()
		return cred != nil && cred.Profile != nil && cred.Profile.Address == addrOtherLower
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, loginsBefore+1, r.backend.logins())
}

func TestChainChangedUpdatesInPlace(t *testing.T) {
	p := provider.NewMemoryProvider("0x1", addrMixed)
	r := newRig(t, p)

	_, err := r.manager.Connect(context.Background())
	require.NoError(t, err)

	p.EmitChainChanged("0x89")
	require.Eventually(t, func() bool {
		return r.manager.Identity().ChainID == "0x89"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, core.StateConnected, r.manager.State())
	assert.True(t, r.manager.Status().Network.IsSupported)

	p.EmitChainChanged("0xdeadbeef")
	require.Eventually(t, func() bool {
		return r.manager.Identity().ChainID == "0xdeadbeef"
	}, time.Second, 5*time.Millisecond)

	status := r.manager.Status()
	assert.False(t, status.Network.IsSupported)
	assert.Equal(t, "connected", status.State)
}

func TestChainChangedIgnoredWhileDisconnected(t *testing.T) {
	p := provider.NewMemoryProvider("0x1")
	r := newRig(t, p)

	p.EmitChainChanged("0x89")
	// a later notification marks the point where the first one was processed
	p.EmitAccountsChanged()
	require.Eventually(t, func() bool {
		return r.manager.State() == core.StateDisconnected
	}, time.Second, 5*time.Millisecond)

	// the chain notification left no trace on the zero identity
	assert.Equal(t, core.WalletIdentity{}, r.manager.Identity())
	assert.Equal(t, core.NetworkDescriptor{}, r.manager.Status().Network)

	r.drainAudit()
	assert.Empty(t, r.sink.byType(core.AuditWalletChainChanged))
}

func TestNotificationWinsOverInflightConnect(t *testing.T) {
	p := provider.NewMemoryProvider("0x1", addrMixed)
	release := make(chan struct{})
	p.OnRequestAccounts = func(ctx context.Context) ([]string, error) {
		<-release
		return []string{addrMixed}, nil
	}
	r := newRig(t, p)

	type result struct {
		identity core.WalletIdentity
		err      error
	}
	done := make(chan result, 1)
	go func() {
		identity, err := r.manager.Connect(context.Background())
		done <- result{identity, err}
	}()

	require.Eventually(t, func() bool {
		return r.manager.State() == core.StateConnecting
	}, time.Second, time.Millisecond)

	// a live notification lands while the request is still hanging
	p.EmitAccountsChanged(addrOther)
	require.Eventually(t, func() bool {
		return r.manager.CurrentAddress() == addrOtherLower
	}, time.Second, time.Millisecond)

	close(release)
	res := <-done

	// the notification's address is authoritative; the stale request result
	// is discarded without error
	require.NoError(t, res.err)
	assert.Equal(t, addrOtherLower, res.identity.Address)
	assert.Equal(t, addrOtherLower, r.manager.CurrentAddress())

	persistedAddr, ok := r.persisted(ports.KeyWalletAddress)
	require.True(t, ok)
	assert.Equal(t, addrOtherLower, persistedAddr)
}

func TestDisconnectIdempotent(t *testing.T) {
	p := provider.NewMemoryProvider("0x1", addrMixed)
	r := newRig(t, p)
	ctx := context.Background()

	_, err := r.manager.Connect(ctx)
	require.NoError(t, err)

	require.NoError(t, r.manager.Disconnect(ctx))
	assert.Equal(t, core.StateDisconnected, r.manager.State())

	// second disconnect: same terminal state, no error
	require.NoError(t, r.manager.Disconnect(ctx))
	assert.Equal(t, core.StateDisconnected, r.manager.State())
	assert.Equal(t, core.WalletIdentity{}, r.manager.Identity())

	_, ok := r.persisted(ports.KeyWalletAddress)
	assert.False(t, ok)
	assert.False(t, r.auth.IsAuthenticated())
}

func TestInitializeRestoresPersistedConnection(t *testing.T) {
	p := provider.NewMemoryProvider("0x89", addrMixed)
	r := newRig(t, p)
	ctx := context.Background()

	require.NoError(t, r.persist.Set(ctx, ports.KeyWalletAddress, addrLower))
	require.NoError(t, r.persist.Set(ctx, ports.KeyWalletConnected, "true"))
	require.NoError(t, r.persist.Set(ctx, ports.KeySessionToken, "persisted-token"))
	require.NoError(t, r.persist.Set(ctx, ports.KeySessionRefresh, "persisted-refresh"))
	require.NoError(t, r.persist.Set(ctx, ports.KeySessionExpiresAt, time.Now().Add(time.Hour).Format(time.RFC3339)))

	require.NoError(t, r.manager.Initialize(ctx))

	assert.Equal(t, core.StateConnected, r.manager.State())
	identity := r.manager.Identity()
	assert.Equal(t, addrLower, identity.Address)
	assert.Equal(t, "0x89", identity.ChainID)

	cred := r.auth.Credential()
	require.NotNil(t, cred)
	assert.Equal(t, "persisted-token", cred.Token)
	assert.True(t, r.auth.IsAuthenticated())
}

func TestInitializePurgesGhostState(t *testing.T) {
	// wallet was disconnected outside the application: provider reports no
	// accounts but persistence still says connected
	p := provider.NewMemoryProvider("0x1")
	r := newRig(t, p)
	ctx := context.Background()

	require.NoError(t, r.persist.Set(ctx, ports.KeyWalletAddress, addrLower))
	require.NoError(t, r.persist.Set(ctx, ports.KeyWalletConnected, "true"))

	require.NoError(t, r.manager.Initialize(ctx))

	assert.Equal(t, core.StateDisconnected, r.manager.State())
	_, ok := r.persisted(ports.KeyWalletAddress)
	assert.False(t, ok)
	_, ok = r.persisted(ports.KeyWalletConnected)
	assert.False(t, ok)
}

func TestInitializeWithoutPriorState(t *testing.T) {
	r := newRig(t, provider.NewMemoryProvider("0x1", addrMixed))
	require.NoError(t, r.manager.Initialize(context.Background()))
	assert.Equal(t, core.StateDisconnected, r.manager.State())
}

func TestInitializeRunsOnce(t *testing.T) {
	r := newRig(t, provider.NewMemoryProvider("0x1", addrMixed))
	ctx := context.Background()

	require.NoError(t, r.manager.Initialize(ctx))
	_, err := r.manager.Connect(ctx)
	require.NoError(t, err)

	// a second pass must not disturb the established connection
	require.NoError(t, r.manager.Initialize(ctx))
	assert.Equal(t, core.StateConnected, r.manager.State())
}

func TestDisconnectSuppressesReconnect(t *testing.T) {
	p := provider.NewMemoryProvider("0x1", addrMixed)
	r := newRig(t, p)
	ctx := context.Background()

	_, err := r.manager.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, r.manager.Disconnect(ctx))

	// a racing writer re-plants the connection keys right after disconnect;
	// the suppress window must keep reconciliation from resurrecting them
	require.NoError(t, r.persist.Set(ctx, ports.KeyWalletAddress, addrLower))
	require.NoError(t, r.persist.Set(ctx, ports.KeyWalletConnected, "true"))

	require.NoError(t, r.manager.Initialize(ctx))
	assert.Equal(t, core.StateDisconnected, r.manager.State())
	assert.Equal(t, core.WalletIdentity{}, r.manager.Identity())
}

func TestSwitchNetworkDeclinedIsInformational(t *testing.T) {
	p := provider.NewMemoryProvider("0x1", addrMixed)
	p.SwitchErr = &core.ProviderError{Code: core.CodeUserRejected, Message: "user declined"}
	r := newRig(t, p)
	ctx := context.Background()

	_, err := r.manager.Connect(ctx)
	require.NoError(t, err)

	declined, err := r.manager.SwitchNetwork(ctx, "0x89")
	require.NoError(t, err)
	assert.True(t, declined)

	// switching is optional: connection state untouched
	assert.Equal(t, core.StateConnected, r.manager.State())
	assert.Equal(t, "0x1", r.manager.Identity().ChainID)
}

func TestSwitchNetworkAppliesViaNotification(t *testing.T) {
	p := provider.NewMemoryProvider("0x1", addrMixed)
	r := newRig(t, p)
	ctx := context.Background()

	_, err := r.manager.Connect(ctx)
	require.NoError(t, err)

	declined, err := r.manager.SwitchNetwork(ctx, "0x2105")
	require.NoError(t, err)
	assert.False(t, declined)

	require.Eventually(t, func() bool {
		return r.manager.Identity().ChainID == "0x2105"
	}, time.Second, 5*time.Millisecond)
}

func TestSwitchNetworkWithoutProvider(t *testing.T) {
	r := newRig(t, nil)
	_, err := r.manager.SwitchNetwork(context.Background(), "0x1")
	require.ErrorIs(t, err, core.ErrProviderUnavailable)
}

func TestCloseDiscardsLateWrites(t *testing.T) {
	p := provider.NewMemoryProvider("0x1", addrMixed)
	release := make(chan struct{})
	p.OnRequestAccounts = func(ctx context.Context) ([]string, error) {
		<-release
		return []string{addrMixed}, nil
	}
	r := newRig(t, p)

	done := make(chan error, 1)
	go func() {
		_, err := r.manager.Connect(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool {
		return r.manager.State() == core.StateConnecting
	}, time.Second, time.Millisecond)

	require.NoError(t, r.manager.Close())
	close(release)

	require.ErrorIs(t, <-done, core.ErrManagerClosed)
	assert.Equal(t, core.WalletIdentity{}, r.manager.Identity())

	_, ok := r.persisted(ports.KeyWalletAddress)
	assert.False(t, ok)
}

func TestAuditEventsAreOrdered(t *testing.T) {
	p := provider.NewMemoryProvider("0x1", addrMixed)
	r := newRig(t, p)
	ctx := context.Background()

	_, err := r.manager.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, r.manager.Disconnect(ctx))

	r.drainAudit()
	events := r.sink.all()
	require.NotEmpty(t, events)

	var lastSeq uint64
	for _, ev := range events {
		assert.Greater(t, ev.Seq, lastSeq, "sequence must be strictly increasing in delivery order")
		lastSeq = ev.Seq
	}

	// the wallet-level ordering: connect before disconnect
	var saw []core.AuditEventType
	for _, ev := range events {
		if ev.Type == core.AuditWalletConnect || ev.Type == core.AuditWalletDisconnect {
			saw = append(saw, ev.Type)
		}
	}
	require.Equal(t, []core.AuditEventType{core.AuditWalletConnect, core.AuditWalletDisconnect}, saw)
}
