package ports

import (
	"context"

	"github.com/datamesh-labs/walletgate/core"
)

// AuditSink receives compliance events. Delivery is observational: a sink
// error never vetoes or rolls back the transition that produced the event.
type AuditSink interface {
	Record(ctx context.Context, event core.AuditEvent) error
}
