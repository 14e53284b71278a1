package localcache

import (
	"context"
	"errors"
	"time"

	"github.com/rapport-app/rapport/internal/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BlobStore owns the on-device audio blob copies, keyed by session id with
// overwrite semantics.
type BlobStore struct {
	CacheDB *gorm.DB
}

func NewBlobStore(cacheDB *gorm.DB) *BlobStore {
	return &BlobStore{CacheDB: cacheDB}
}

func (blobStore *BlobStore) Store(ctx context.Context, sessionID string, data []byte) error {
	now := time.Now()
	blob := AudioBlob{
		SessionID: sessionID,
		Data:      data,
		UpdatedAt: now,
	}

	err := blobStore.CacheDB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Assign(map[string]interface{}{
			"data":       data,
			"updated_at": now,
		}).
		FirstOrCreate(&blob).Error
	if err != nil {
		err = wrapWriteError(err)
		logging.Logger.Error("failed to store audio blob",
			zap.String("session_id", sessionID),
			zap.Int("size", len(data)),
			zap.String("error", err.Error()),
		)

		return err
	}

	return nil
}

func (blobStore *BlobStore) Get(ctx context.Context, sessionID string) ([]byte, error) {
	var blob AudioBlob

	err := blobStore.CacheDB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&blob).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBlobNotFound
	}

	if err != nil {
		return nil, err
	}

	return blob.Data, nil
}

func (blobStore *BlobStore) Delete(ctx context.Context, sessionID string) error {
	return blobStore.CacheDB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&AudioBlob{}).Error
}
