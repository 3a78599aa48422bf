package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Miky-131/dXdY-starkex-peripheral/internal/database"
)

// WorkerManager orchestrates the background event recorder
type WorkerManager struct {
	db     *database.DB
	sink   *ChannelSink
	logger *zap.Logger

	recorder *Recorder

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerManager creates a new worker manager with all required dependencies
func NewWorkerManager(db *database.DB, sink *ChannelSink, logger *zap.Logger) *WorkerManager {
	logger = logger.Named("worker")

	ctx, cancel := context.WithCancel(context.Background())

	wm := &WorkerManager{
		db:     db,
		sink:   sink,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	wm.recorder = NewRecorder(db, sink, logger)

	return wm
}

// Start starts all worker goroutines
func (wm *WorkerManager) Start() {
	wm.logger.Info("Starting worker manager")

	wm.wg.Add(1)
	go func() {
		defer wm.wg.Done()
		wm.recorder.Run(wm.ctx)
	}()

	wm.logger.Info("Worker manager started")
}

// Shutdown gracefully stops all workers
func (wm *WorkerManager) Shutdown(timeout time.Duration) error {
	wm.logger.Info("Shutting down worker manager")

	// Signal workers to stop
	wm.cancel()

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		wm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wm.logger.Info("Workers stopped gracefully")
	case <-time.After(timeout):
		wm.logger.Warn("Worker shutdown timed out")
	}

	wm.logger.Info("Worker manager shutdown complete")
	return nil
}
