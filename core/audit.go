package core

import "time"

// AuditEventType enumerates the compliance event kinds emitted on identity
// transitions.
type AuditEventType string

const (
	AuditAuthAttempt         AuditEventType = "AUTH_ATTEMPT"
	AuditAuthSuccess         AuditEventType = "AUTH_SUCCESS"
	AuditAuthFailure         AuditEventType = "AUTH_FAILURE"
	AuditAuthLogout          AuditEventType = "AUTH_LOGOUT"
	AuditRegistrationAttempt AuditEventType = "REGISTRATION_ATTEMPT"
	AuditRegistrationSuccess AuditEventType = "REGISTRATION_SUCCESS"
	AuditRegistrationFailure AuditEventType = "REGISTRATION_FAILURE"

	AuditWalletConnect        AuditEventType = "WALLET_CONNECT"
	AuditWalletDisconnect     AuditEventType = "WALLET_DISCONNECT"
	AuditWalletAccountChanged AuditEventType = "WALLET_ACCOUNT_CHANGED"
	AuditWalletChainChanged   AuditEventType = "WALLET_CHAIN_CHANGED"
)

// AuditEvent is an append-only compliance record. Seq is a logical timestamp
// assigned at emission; it is monotonically non-decreasing and orders events
// relative to the transitions that produced them.
type AuditEvent struct {
	ID        string         `json:"id"`
	Seq       uint64         `json:"seq"`
	Type      AuditEventType `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}
