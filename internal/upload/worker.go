package upload

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rapport-app/rapport/internal/config"
	"github.com/rapport-app/rapport/internal/logging"
	"go.uber.org/zap"
)

// Retrier runs one pass over the pending-upload queue and reconciles the
// results into the session records.
type Retrier interface {
	RetryPendingUploads(ctx context.Context, onStatus func(sessionID string, status RetryStatus)) error
}

// Worker periodically drains the pending-upload queue so a client that was
// offline catches up once connectivity returns.
type Worker struct {
	WorkerPool *ants.Pool
	Retrier    Retrier
}

func NewWorker(retrier Retrier) (*Worker, error) {
	workerPool, err := ants.NewPool(config.Conf.ReconcilePoolSize, ants.WithPreAlloc(true))
	if err != nil {
		return nil, err
	}

	return &Worker{
		WorkerPool: workerPool,
		Retrier:    retrier,
	}, nil
}

func (worker *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(config.Conf.ReconcileIntervalMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			worker.reconcile(ctx)
		}
	}
}

func (worker *Worker) reconcile(ctx context.Context) {
	err := worker.WorkerPool.Submit(func() {
		passErr := worker.Retrier.RetryPendingUploads(ctx, func(sessionID string, status RetryStatus) {
			logging.Logger.Info("pending upload status",
				zap.String("session_id", sessionID),
				zap.String("status", string(status)),
			)
		})
		if passErr != nil && !errors.Is(passErr, ErrRetryPassRunning) {
			logging.Logger.Error("pending upload retry pass failed",
				zap.String("error", passErr.Error()),
			)
		}
	})
	if err != nil {
		logging.Logger.Error("failed to submit retry pass to worker pool",
			zap.String("error", err.Error()),
		)
	}
}

func (worker *Worker) Release() {
	worker.WorkerPool.Release()
}
