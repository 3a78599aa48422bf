package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Miky-131/dXdY-starkex-peripheral/internal/database"
	"github.com/Miky-131/dXdY-starkex-peripheral/internal/models"
	"github.com/Miky-131/dXdY-starkex-peripheral/internal/proxy"
)

// Constants for worker configuration
const (
	MaxRetries     = 3
	BaseRetryDelay = 500 * time.Millisecond
	InsertTimeout  = 10 * time.Second
)

// Recorder drains conversion events from the sink and persists them.
type Recorder struct {
	db     *database.DB
	sink   *ChannelSink
	logger *zap.Logger
}

// NewRecorder creates a new event recorder
func NewRecorder(db *database.DB, sink *ChannelSink, logger *zap.Logger) *Recorder {
	return &Recorder{
		db:     db,
		sink:   sink,
		logger: logger.Named("recorder"),
	}
}

// Run starts the recorder loop
func (r *Recorder) Run(ctx context.Context) {
	r.logger.Info("Recorder started")

	for {
		select {
		case <-ctx.Done():
			r.drain()
			r.logger.Info("Recorder stopping")
			return
		case event, ok := <-r.sink.Events():
			if !ok {
				r.logger.Info("Event channel closed, recorder stopping")
				return
			}
			r.persist(ctx, event)
		}
	}
}

// drain persists whatever is still buffered at shutdown.
func (r *Recorder) drain() {
	for {
		select {
		case event := <-r.sink.Events():
			r.persist(context.Background(), event)
		default:
			return
		}
	}
}

// persist writes one event, retrying transient database failures with
// exponential backoff.
func (r *Recorder) persist(ctx context.Context, event proxy.ConversionEvent) {
	occurredAt := event.OccurredAt.UTC().Format(time.RFC3339Nano)
	row := &models.ConversionEvent{
		ID:               event.ID.String(),
		Sender:           event.Sender.Hex(),
		SourceToken:      event.SourceToken.Hex(),
		SourceAmount:     event.SourceAmount.String(),
		StablecoinAmount: event.StablecoinAmount.String(),
		OccurredAt:       &occurredAt,
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			delay := BaseRetryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		insertCtx, cancel := context.WithTimeout(ctx, InsertTimeout)
		lastErr = r.db.CreateConversionEvent(insertCtx, row)
		cancel()
		if lastErr == nil {
			r.logger.Debug("Conversion event recorded",
				zap.String("event_id", row.ID),
				zap.String("sender", row.Sender),
				zap.String("stablecoin_amount", row.StablecoinAmount))
			return
		}
	}

	r.logger.Error("Failed to record conversion event",
		zap.String("event_id", row.ID),
		zap.Int("attempts", MaxRetries+1),
		zap.Error(lastErr))
}
