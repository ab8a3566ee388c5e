package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/datamesh-labs/walletgate/core"
	"github.com/datamesh-labs/walletgate/ports"
)

// DefaultTopic is the stream compliance consumers subscribe to.
const DefaultTopic = "walletgate.audit"

// WatermillSink delivers audit events to a watermill publisher.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillSink creates a sink publishing to the given topic. An empty
// topic defaults to DefaultTopic.
func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillSink{
		publisher: publisher,
		topic:     topic,
	}
}

var _ ports.AuditSink = (*WatermillSink)(nil)

// Record publishes one audit event.
func (s *WatermillSink) Record(ctx context.Context, event core.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	if err := s.publisher.Publish(s.topic, msg); err != nil {
		return fmt.Errorf("failed to publish audit event: %w", err)
	}

	return nil
}
