package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/datamesh-labs/walletgate/core"
	"github.com/datamesh-labs/walletgate/metrics"
	"github.com/datamesh-labs/walletgate/ports"
)

const emitterQueueSize = 256

// AuditEmitter turns state transitions into ordered audit events. Producers
// assign the sequence number and enqueue under one lock, so channel order is
// transition order; a single consumer goroutine delivers to the sink. Audit
// is observational: delivery failure is logged and never reaches the caller.
type AuditEmitter struct {
	sink   ports.AuditSink
	logger zerolog.Logger

	mu     sync.Mutex
	seq    uint64
	closed bool

	ch   chan core.AuditEvent
	done chan struct{}
}

// NewAuditEmitter creates an emitter delivering to the given sink.
func NewAuditEmitter(sink ports.AuditSink, logger zerolog.Logger) *AuditEmitter {
	e := &AuditEmitter{
		sink:   sink,
		logger: logger.With().Str("component", "audit_emitter").Logger(),
		ch:     make(chan core.AuditEvent, emitterQueueSize),
		done:   make(chan struct{}),
	}
	go e.run()
	return e
}

// Emit records one event for a transition. Never blocks: when the queue is
// full the event is dropped and counted, which only delays the sink, never
// the state machine.
func (e *AuditEmitter) Emit(eventType core.AuditEventType, payload map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	e.seq++
	event := core.AuditEvent{
		ID:        uuid.New().String(),
		Seq:       e.seq,
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}

	select {
	case e.ch <- event:
	default:
		metrics.AuditEventsDropped.Inc()
		e.logger.Warn().Str("type", string(eventType)).Msg("audit event dropped, queue full")
	}
}

// Close drains the queue and stops the consumer.
func (e *AuditEmitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.ch)
	e.mu.Unlock()

	<-e.done
}

func (e *AuditEmitter) run() {
	defer close(e.done)
	for event := range e.ch {
		if err := e.sink.Record(context.Background(), event); err != nil {
			e.logger.Warn().Err(err).Str("type", string(event.Type)).Uint64("seq", event.Seq).
				Msg("audit delivery failed")
		}
	}
}
