package localcache

import (
	"context"
	"time"

	"github.com/rapport-app/rapport/internal/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PendingQueue holds upload attempts that could not complete synchronously.
// Enqueue is an idempotent replace: at most one entry exists per session id.
type PendingQueue struct {
	CacheDB *gorm.DB
}

func NewPendingQueue(cacheDB *gorm.DB) *PendingQueue {
	return &PendingQueue{CacheDB: cacheDB}
}

// Enqueue records a retry unit for sessionID, replacing any prior entry.
// The retry count of an existing entry is preserved; a fresh entry starts
// at zero.
func (pendingQueue *PendingQueue) Enqueue(ctx context.Context, sessionID string, audio []byte) error {
	now := time.Now()
	entry := PendingUpload{
		SessionID:   sessionID,
		Audio:       audio,
		LastAttempt: &now,
	}

	err := pendingQueue.CacheDB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Assign(map[string]interface{}{
			"audio":        audio,
			"last_attempt": &now,
		}).
		FirstOrCreate(&entry).Error
	if err != nil {
		err = wrapWriteError(err)
		logging.Logger.Error("failed to enqueue pending upload",
			zap.String("session_id", sessionID),
			zap.String("error", err.Error()),
		)

		return err
	}

	logging.Logger.Info("pending upload enqueued",
		zap.String("session_id", sessionID),
		zap.Int("retry_count", entry.RetryCount),
	)

	return nil
}

// List returns the queue snapshot in enqueue order.
func (pendingQueue *PendingQueue) List(ctx context.Context) ([]PendingUpload, error) {
	var entries []PendingUpload

	err := pendingQueue.CacheDB.WithContext(ctx).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		logging.Logger.Error("failed to list pending uploads", zap.String("error", err.Error()))
		return nil, err
	}

	return entries, nil
}

// Remove drops the entry for sessionID. Removing an absent entry is not an
// error.
func (pendingQueue *PendingQueue) Remove(ctx context.Context, sessionID string) error {
	return pendingQueue.CacheDB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&PendingUpload{}).Error
}

func (pendingQueue *PendingQueue) IncrementRetry(ctx context.Context, sessionID string) error {
	updates := map[string]any{
		"retry_count":  gorm.Expr("retry_count + 1"),
		"last_attempt": time.Now(),
	}

	err := pendingQueue.CacheDB.WithContext(ctx).
		Model(&PendingUpload{}).
		Where("session_id = ?", sessionID).
		Updates(updates).Error
	if err != nil {
		logging.Logger.Error("failed to increase pending upload retry count",
			zap.String("session_id", sessionID),
			zap.String("error", err.Error()),
		)

		return err
	}

	return nil
}

func (pendingQueue *PendingQueue) Count(ctx context.Context) (int64, error) {
	var count int64

	err := pendingQueue.CacheDB.WithContext(ctx).
		Model(&PendingUpload{}).
		Count(&count).Error

	return count, err
}
