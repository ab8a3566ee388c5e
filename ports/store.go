package ports

import "context"

// Persisted state keys. Values are strings; timestamps are RFC 3339 and the
// profile is JSON.
const (
	KeyWalletAddress    = "wallet.address"
	KeyWalletConnected  = "wallet.connected"
	KeySessionToken     = "session.token"
	KeySessionRefresh   = "session.refreshToken"
	KeySessionExpiresAt = "session.expiresAt"
	KeySessionProfile   = "session.profile"
	KeySessionIsNewUser = "session.isNewUser"
)

// Store is a scoped key-value store surviving process restarts. Get returns
// core.ErrKeyNotFound for absent keys; Delete of an absent key is a no-op.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
