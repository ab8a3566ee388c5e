package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/datamesh-labs/walletgate/adapters/provider"
	"github.com/datamesh-labs/walletgate/adapters/store"
	"github.com/datamesh-labs/walletgate/core"
	"github.com/datamesh-labs/walletgate/ports"
)

// stubBackend is a scriptable identity backend. Unset hooks fall back to a
// well-behaved default that issues a fresh bundle per call.
type stubBackend struct {
	mu           sync.Mutex
	loginCalls   int
	refreshCalls int

	loginFn   func(ctx context.Context, address string) (*ports.LoginResult, error)
	refreshFn func(ctx context.Context, refreshToken string) (*ports.RefreshResult, error)
	logoutFn  func(ctx context.Context, token string) error
}

func (b *stubBackend) Login(ctx context.Context, address string) (*ports.LoginResult, error) {
	b.mu.Lock()
	b.loginCalls++
	n := b.loginCalls
	fn := b.loginFn
	b.mu.Unlock()

	if fn != nil {
		return fn(ctx, address)
	}
	return &ports.LoginResult{
		Token:        fmt.Sprintf("token-%d", n),
		RefreshToken: fmt.Sprintf("refresh-%d", n),
		ExpiresAt:    time.Now().Add(time.Hour),
		Profile:      &core.UserProfile{Address: address, Name: "Trader", Role: "user", CreatedAt: time.Now()},
	}, nil
}

func (b *stubBackend) Refresh(ctx context.Context, refreshToken string) (*ports.RefreshResult, error) {
	b.mu.Lock()
	b.refreshCalls++
	n := b.refreshCalls
	fn := b.refreshFn
	b.mu.Unlock()

	if fn != nil {
		return fn(ctx, refreshToken)
	}
	return &ports.RefreshResult{
		Token:        fmt.Sprintf("token-r%d", n),
		RefreshToken: fmt.Sprintf("refresh-r%d", n),
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (b *stubBackend) Logout(ctx context.Context, token string) error {
	b.mu.Lock()
	fn := b.logoutFn
	b.mu.Unlock()

	if fn != nil {
		return fn(ctx, token)
	}
	return nil
}

func (b *stubBackend) logins() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loginCalls
}

// captureSink records delivered audit events in order.
type captureSink struct {
	mu     sync.Mutex
	events []core.AuditEvent
}

func (s *captureSink) Record(ctx context.Context, event core.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) all() []core.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *captureSink) byType(t core.AuditEventType) []core.AuditEvent {
	var out []core.AuditEvent
	for _, ev := range s.all() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type rig struct {
	provider *provider.MemoryProvider
	persist  *store.MemoryStore
	backend  *stubBackend
	sink     *captureSink
	sessions *SessionStore
	emitter  *AuditEmitter
	auth     *Authenticator
	manager  *Manager
}

// newRig wires a manager around an in-memory provider. A nil provider means
// no wallet capability.
func newRig(t *testing.T, p *provider.MemoryProvider, opts ...ManagerOption) *rig {
	t.Helper()

	r := &rig{
		provider: p,
		persist:  store.NewMemoryStore(),
		backend:  &stubBackend{},
		sink:     &captureSink{},
		sessions: NewSessionStore(),
	}

	logger := zerolog.Nop()
	r.emitter = NewAuditEmitter(r.sink, logger)
	r.auth = NewAuthenticator(r.sessions, r.persist, r.backend, r.emitter, logger)

	var walletProvider ports.WalletProvider
	if p != nil {
		walletProvider = p
	}
	r.manager = NewManager(walletProvider, r.persist, r.auth, r.emitter, logger, opts...)
	r.auth.BindAddressSource(r.manager.CurrentAddress)

	t.Cleanup(func() {
		_ = r.manager.Close()
		r.emitter.Close()
	})
	return r
}

// drainAudit flushes the emitter so sink assertions see every event.
func (r *rig) drainAudit() {
	r.emitter.Close()
}

func (r *rig) persisted(key string) (string, bool) {
	v, err := r.persist.Get(context.Background(), key)
	return v, err == nil
}
