package worker

import (
	"go.uber.org/zap"

	"github.com/Miky-131/dXdY-starkex-peripheral/internal/proxy"
)

// DefaultSinkCapacity bounds the in-flight event buffer.
const DefaultSinkCapacity = 256

// ChannelSink buffers conversion events between the engine and the
// recorder. Emission never blocks a deposit; if the buffer is full the
// event is dropped and logged, the audit log in the database is best
// effort while the engine log line remains authoritative.
type ChannelSink struct {
	events chan proxy.ConversionEvent
	logger *zap.Logger
}

// NewChannelSink creates a sink with the given buffer capacity.
func NewChannelSink(capacity int, logger *zap.Logger) *ChannelSink {
	if capacity <= 0 {
		capacity = DefaultSinkCapacity
	}
	return &ChannelSink{
		events: make(chan proxy.ConversionEvent, capacity),
		logger: logger.Named("sink"),
	}
}

// DepositConverted implements proxy.EventSink.
func (s *ChannelSink) DepositConverted(event proxy.ConversionEvent) {
	select {
	case s.events <- event:
	default:
		s.logger.Warn("Event buffer full, dropping conversion event",
			zap.String("event_id", event.ID.String()),
			zap.String("sender", event.Sender.Hex()))
	}
}

// Events exposes the buffered events for the recorder.
func (s *ChannelSink) Events() <-chan proxy.ConversionEvent {
	return s.events
}
