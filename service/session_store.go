package service

import (
	"sync"
	"time"

	"github.com/datamesh-labs/walletgate/core"
)

// SessionStore holds the in-memory authoritative view of the session
// credential. The Authenticator is its only mutator; everyone else reads
// snapshots.
type SessionStore struct {
	mu   sync.RWMutex
	cred *core.SessionCredential
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

// Replace atomically installs a new credential bundle.
func (s *SessionStore) Replace(cred *core.SessionCredential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = copyCredential(cred)
}

// Clear atomically removes the credential bundle.
func (s *SessionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
}

// Credential returns a snapshot of the current bundle, or nil.
func (s *SessionStore) Credential() *core.SessionCredential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyCredential(s.cred)
}

// Token returns the current bearer token, or empty.
func (s *SessionStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return ""
	}
	return s.cred.Token
}

// IsAuthenticated reports whether a real, unexpired token is held right now.
func (s *SessionStore) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.Authenticated(time.Now())
}

func copyCredential(cred *core.SessionCredential) *core.SessionCredential {
	if cred == nil {
		return nil
	}
	out := *cred
	if cred.Profile != nil {
		profile := *cred.Profile
		out.Profile = &profile
	}
	return &out
}
