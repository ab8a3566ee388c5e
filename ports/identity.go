package ports

import (
	"context"
	"time"

	"github.com/datamesh-labs/walletgate/core"
)

// LoginResult is the bundle issued by the identity backend on login.
type LoginResult struct {
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
	Profile      *core.UserProfile
	IsNewUser    bool
}

// RefreshResult is the rotated bundle issued on refresh.
type RefreshResult struct {
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
}

// IdentityService is the external backend that exchanges a wallet address
// for a session credential. Implementations map unreachability onto
// core.ErrBackendUnavailable.
type IdentityService interface {
	Login(ctx context.Context, address string) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error)
	Logout(ctx context.Context, token string) error
}
