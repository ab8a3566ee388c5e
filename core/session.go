package core

import "time"

// UserProfile is the minimal identity projection returned by the backend.
// IsDefaultProfile marks a locally synthesized placeholder issued when the
// backend was unreachable; callers must treat such profiles as unverified.
type UserProfile struct {
	Address          string    `json:"address"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	CreatedAt        time.Time `json:"created_at"`
	IsDefaultProfile bool      `json:"is_default_profile"`
}

// DefaultProfile synthesizes a placeholder profile for an address when the
// identity backend cannot be reached.
func DefaultProfile(address string, now time.Time) *UserProfile {
	return &UserProfile{
		Address:          address,
		Name:             "Anonymous",
		Role:             "user",
		CreatedAt:        now,
		IsDefaultProfile: true,
	}
}

// SessionCredential is the bearer token bundle bound to a wallet address.
// Token and ExpiresAt are always set together; a credential with an empty
// Token is a degraded, unauthenticated bundle carrying only a profile.
type SessionCredential struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    time.Time    `json:"expires_at"`
	Profile      *UserProfile `json:"profile"`
	IsNewUser    bool         `json:"is_new_user"`
}

// Expired reports whether the credential is unusable at the given instant.
// The comparison is closed at the boundary: a token whose expiry equals now
// is already expired.
func (c *SessionCredential) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// Authenticated reports whether the credential carries a real, unexpired
// token. A degraded placeholder bundle is never authenticated.
func (c *SessionCredential) Authenticated(now time.Time) bool {
	return c != nil && c.Token != "" && !c.Expired(now)
}
