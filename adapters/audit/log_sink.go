package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/datamesh-labs/walletgate/core"
	"github.com/datamesh-labs/walletgate/ports"
)

// LogSink writes audit events to the structured log. Used when no message
// broker is configured.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a log-backed audit sink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

var _ ports.AuditSink = (*LogSink)(nil)

// Record logs one audit event.
func (s *LogSink) Record(ctx context.Context, event core.AuditEvent) error {
	s.logger.Info().
		Str("audit_event", string(event.Type)).
		Uint64("seq", event.Seq).
		Time("audit_timestamp", event.Timestamp).
		Fields(event.Payload).
		Msg("AUDIT")
	return nil
}
