// Package metrics exposes the gateway's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AuthAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletgate_auth_attempts_total",
		Help: "Number of login attempts against the identity backend.",
	})

	AuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletgate_auth_failures_total",
		Help: "Number of failed or degraded authentication attempts.",
	})

	WalletConnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletgate_wallet_connects_total",
		Help: "Number of successful wallet connections.",
	})

	WalletDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletgate_wallet_disconnects_total",
		Help: "Number of wallet disconnections, explicit or external.",
	})

	AuditEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletgate_audit_events_dropped_total",
		Help: "Number of audit events dropped because the emitter queue was full.",
	})
)
