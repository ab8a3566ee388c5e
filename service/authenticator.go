package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/datamesh-labs/walletgate/core"
	"github.com/datamesh-labs/walletgate/metrics"
	"github.com/datamesh-labs/walletgate/ports"
)

const (
	defaultBackendTimeout = 30 * time.Second
	logoutTimeout         = 5 * time.Second
)

// Authenticator obtains and refreshes the session credential bound to the
// reconciled wallet address. It is the only mutator of the SessionStore and
// of the persisted session keys.
type Authenticator struct {
	sessions *SessionStore
	persist  ports.Store
	backend  ports.IdentityService
	emitter  *AuditEmitter
	logger   zerolog.Logger

	mu             sync.Mutex
	addressFn      func() string
	backendTimeout time.Duration
	now            func() time.Time
}

// NewAuthenticator creates an authenticator. The wallet address source is
// bound separately to break the construction cycle with the connection
// manager.
func NewAuthenticator(sessions *SessionStore, persist ports.Store, backend ports.IdentityService, emitter *AuditEmitter, logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		sessions:       sessions,
		persist:        persist,
		backend:        backend,
		emitter:        emitter,
		logger:         logger.With().Str("component", "authenticator").Logger(),
		backendTimeout: defaultBackendTimeout,
		now:            time.Now,
	}
}

// BindAddressSource wires the supplier of the current reconciled wallet
// address, normally Manager.CurrentAddress.
func (a *Authenticator) BindAddressSource(fn func() string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.addressFn = fn
}

// IsAuthenticated reports whether a real, unexpired token is held.
func (a *Authenticator) IsAuthenticated() bool {
	return a.sessions.Credential().Authenticated(a.now())
}

// Credential returns a snapshot of the current session bundle, or nil.
func (a *Authenticator) Credential() *core.SessionCredential {
	return a.sessions.Credential()
}

// EnsureValidToken is the single choke point guarded backend calls pass
// through. It returns a token that is valid strictly after now, refreshing
// or re-logging-in first when necessary.
func (a *Authenticator) EnsureValidToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cred := a.sessions.Credential()
	if cred.Authenticated(a.now()) {
		return cred.Token, nil
	}

	if cred != nil && cred.RefreshToken != "" {
		if err := a.refreshLocked(ctx); err == nil {
			if rotated := a.sessions.Credential(); rotated.Authenticated(a.now()) {
				return rotated.Token, nil
			}
			// the backend rotated to an already-expired or tokenless bundle;
			// it is unusable for guarded calls, so fall through to login
		}
		// refresh failure cleared the credential; fall through to login
	}

	address := a.currentAddress(cred)
	if address == "" {
		return "", core.ErrAuthenticationRequired
	}

	fresh, err := a.loginLocked(ctx, address)
	if err != nil {
		return "", err
	}
	if !fresh.Authenticated(a.now()) {
		// degraded placeholder session: usable for reads, not for guarded calls
		return "", fmt.Errorf("no token issued: %w", core.ErrBackendUnavailable)
	}
	return fresh.Token, nil
}

// Login obtains a session credential for the given wallet address. An
// existing unexpired credential for the same address is reused without a
// round trip. Backend unreachability degrades to a placeholder profile
// instead of failing; the returned bundle then carries no token.
func (a *Authenticator) Login(ctx context.Context, address string) (*core.SessionCredential, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loginLocked(ctx, address)
}

func (a *Authenticator) loginLocked(ctx context.Context, address string) (*core.SessionCredential, error) {
	addr, err := core.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	now := a.now()
	if cred := a.sessions.Credential(); cred.Authenticated(now) &&
		cred.Profile != nil && cred.Profile.Address == addr {
		return cred, nil
	}

	a.emitter.Emit(core.AuditAuthAttempt, map[string]any{"address": addr})
	metrics.AuthAttempts.Inc()

	cctx, cancel := context.WithTimeout(ctx, a.backendTimeout)
	defer cancel()

	result, err := a.backend.Login(cctx, addr)
	if err != nil {
		err = mapBackendError(err)
		metrics.AuthFailures.Inc()
		a.emitter.Emit(core.AuditAuthFailure, map[string]any{
			"address":      addr,
			"errorMessage": err.Error(),
		})

		if errors.Is(err, core.ErrBackendUnavailable) || errors.Is(err, core.ErrTimeout) {
			// degrade: synthesize a placeholder profile so read-mostly use
			// keeps working; no token is issued
			cred := &core.SessionCredential{Profile: core.DefaultProfile(addr, now)}
			a.sessions.Replace(cred)
			a.persistSession(ctx, cred)
			a.logger.Warn().Err(err).Str("address", addr).Msg("backend unreachable, degraded to placeholder profile")
			return cred, nil
		}
		return nil, fmt.Errorf("login failed: %w", err)
	}

	profile := result.Profile
	if profile == nil {
		profile = &core.UserProfile{Address: addr, CreatedAt: now}
	}
	cred := &core.SessionCredential{
		Token:        result.Token,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    result.ExpiresAt,
		Profile:      profile,
		IsNewUser:    result.IsNewUser,
	}
	a.sessions.Replace(cred)
	a.persistSession(ctx, cred)

	a.emitter.Emit(core.AuditAuthSuccess, map[string]any{
		"address":   addr,
		"isNewUser": result.IsNewUser,
	})
	if result.IsNewUser {
		a.emitter.Emit(core.AuditRegistrationSuccess, map[string]any{"address": addr})
	}
	return cred, nil
}

// Refresh exchanges the refresh token for a new bundle. Any failure clears
// the credential entirely; there is no half-valid state.
func (a *Authenticator) Refresh(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshLocked(ctx)
}

func (a *Authenticator) refreshLocked(ctx context.Context) error {
	cred := a.sessions.Credential()
	if cred == nil || cred.RefreshToken == "" {
		return core.ErrAuthenticationRequired
	}

	cctx, cancel := context.WithTimeout(ctx, a.backendTimeout)
	defer cancel()

	result, err := a.backend.Refresh(cctx, cred.RefreshToken)
	if err != nil {
		err = mapBackendError(err)
		a.sessions.Clear()
		a.clearSessionKeys(ctx)
		metrics.AuthFailures.Inc()
		a.emitter.Emit(core.AuditAuthFailure, map[string]any{
			"phase":        "refresh",
			"errorMessage": err.Error(),
		})
		return fmt.Errorf("refresh failed: %w", err)
	}

	cred.Token = result.Token
	cred.RefreshToken = result.RefreshToken
	cred.ExpiresAt = result.ExpiresAt
	a.sessions.Replace(cred)
	a.persistSession(ctx, cred)

	payload := map[string]any{"refreshed": true}
	if cred.Profile != nil {
		payload["address"] = cred.Profile.Address
	}
	a.emitter.Emit(core.AuditAuthSuccess, payload)
	return nil
}

// Logout clears the credential and the persisted session. Idempotent; the
// backend notification is best effort.
func (a *Authenticator) Logout(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cred := a.sessions.Credential()
	if cred != nil && cred.Token != "" {
		lctx, cancel := context.WithTimeout(ctx, logoutTimeout)
		if err := a.backend.Logout(lctx, cred.Token); err != nil {
			a.logger.Debug().Err(err).Msg("backend logout failed")
		}
		cancel()
	}

	a.sessions.Clear()
	a.clearSessionKeys(ctx)

	payload := map[string]any{}
	if cred != nil && cred.Profile != nil {
		payload["address"] = cred.Profile.Address
	}
	a.emitter.Emit(core.AuditAuthLogout, payload)
	return nil
}

// Restore loads a persisted session bundle after a restart. An expired
// bundle without a refresh token is discarded; one with a refresh token is
// kept so EnsureValidToken can rotate it lazily.
func (a *Authenticator) Restore(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	token, err := a.persist.Get(ctx, ports.KeySessionToken)
	if errors.Is(err, core.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read persisted session: %w", err)
	}

	expStr, err := a.persist.Get(ctx, ports.KeySessionExpiresAt)
	if err != nil {
		// token without expiry violates the bundle invariant: discard
		a.clearSessionKeys(ctx)
		return nil
	}
	expiresAt, err := time.Parse(time.RFC3339, expStr)
	if err != nil {
		a.clearSessionKeys(ctx)
		return nil
	}

	cred := &core.SessionCredential{
		Token:     token,
		ExpiresAt: expiresAt,
	}
	if refresh, err := a.persist.Get(ctx, ports.KeySessionRefresh); err == nil {
		cred.RefreshToken = refresh
	}
	if profileJSON, err := a.persist.Get(ctx, ports.KeySessionProfile); err == nil {
		var profile core.UserProfile
		if err := json.Unmarshal([]byte(profileJSON), &profile); err == nil {
			cred.Profile = &profile
		}
	}
	if isNew, err := a.persist.Get(ctx, ports.KeySessionIsNewUser); err == nil {
		cred.IsNewUser = isNew == "true"
	}

	if cred.Expired(a.now()) && cred.RefreshToken == "" {
		a.clearSessionKeys(ctx)
		return nil
	}

	a.sessions.Replace(cred)
	return nil
}

func (a *Authenticator) currentAddress(cred *core.SessionCredential) string {
	if a.addressFn != nil {
		if addr := a.addressFn(); addr != "" {
			return addr
		}
	}
	if cred != nil && cred.Profile != nil {
		return cred.Profile.Address
	}
	return ""
}

// persistSession mirrors the bundle into the persistence store. Persistence
// is a recovery cache; failures are logged, not propagated.
func (a *Authenticator) persistSession(ctx context.Context, cred *core.SessionCredential) {
	set := func(key, value string) {
		if err := a.persist.Set(ctx, key, value); err != nil {
			a.logger.Warn().Err(err).Str("key", key).Msg("failed to persist session state")
		}
	}
	del := func(key string) {
		if err := a.persist.Delete(ctx, key); err != nil {
			a.logger.Warn().Err(err).Str("key", key).Msg("failed to clear session state")
		}
	}

	if cred.Token == "" {
		del(ports.KeySessionToken)
		del(ports.KeySessionRefresh)
		del(ports.KeySessionExpiresAt)
	} else {
		set(ports.KeySessionToken, cred.Token)
		set(ports.KeySessionRefresh, cred.RefreshToken)
		set(ports.KeySessionExpiresAt, cred.ExpiresAt.Format(time.RFC3339))
	}
	if cred.Profile != nil {
		if profileJSON, err := json.Marshal(cred.Profile); err == nil {
			set(ports.KeySessionProfile, string(profileJSON))
		}
	}
	set(ports.KeySessionIsNewUser, strconv.FormatBool(cred.IsNewUser))
}

func (a *Authenticator) clearSessionKeys(ctx context.Context) {
	for _, key := range []string{
		ports.KeySessionToken,
		ports.KeySessionRefresh,
		ports.KeySessionExpiresAt,
		ports.KeySessionProfile,
		ports.KeySessionIsNewUser,
	} {
		if err := a.persist.Delete(ctx, key); err != nil {
			a.logger.Warn().Err(err).Str("key", key).Msg("failed to clear session state")
		}
	}
}

func mapBackendError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("identity backend: %w", core.ErrTimeout)
	}
	return err
}
