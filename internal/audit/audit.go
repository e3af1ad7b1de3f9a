// Package audit delivers the engine's append-only state-change events to a
// collaborator-owned sink. Delivery is fire-and-forget: allocation never
// blocks on the sink, and hash-chaining or persistence of the trail is the
// collaborator's concern.
package audit

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ManhHE170124/SEP490-G172-sub009/internal/domain"
)

// Sink receives audit events. Emit must not block the caller.
type Sink interface {
	Emit(ev domain.AuditEvent)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(domain.AuditEvent) {}

// MemorySink collects events in memory for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (s *MemorySink) Emit(ev domain.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// Events returns a copy of everything emitted so far.
func (s *MemorySink) Events() []domain.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

// LogSink forwards events to a zap logger on a background worker. Emit drops
// the event when the buffer is full rather than blocking allocation.
type LogSink struct {
	logger *zap.Logger
	ch     chan domain.AuditEvent
	done   chan struct{}
}

// NewLogSink starts the worker. buffer <= 0 falls back to 256.
func NewLogSink(logger *zap.Logger, buffer int) *LogSink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &LogSink{
		logger: logger,
		ch:     make(chan domain.AuditEvent, buffer),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *LogSink) Emit(ev domain.AuditEvent) {
	select {
	case s.ch <- ev:
	default:
		// Buffer full. Dropping is preferable to stalling an allocation.
		s.logger.Warn("audit buffer full, event dropped",
			zap.String("action", ev.Action),
			zap.String("entity_id", ev.EntityID),
		)
	}
}

// Close stops the worker after draining buffered events.
func (s *LogSink) Close() {
	close(s.ch)
	<-s.done
}

func (s *LogSink) run() {
	defer close(s.done)
	for ev := range s.ch {
		fields := []zap.Field{
			zap.String("audit_id", ev.ID),
			zap.String("action", ev.Action),
			zap.String("entity_id", ev.EntityID),
			zap.Time("occurred_at", ev.OccurredAt),
		}
		for k, v := range ev.Detail {
			fields = append(fields, zap.String(k, v))
		}
		s.logger.Info("audit", fields...)
	}
}
