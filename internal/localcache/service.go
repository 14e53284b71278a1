package localcache

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rapport-app/rapport/internal/logging"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Static errors for local cache operations
var (
	ErrStorageFull  = errors.New("local cache storage exhausted")
	ErrBlobNotFound = errors.New("audio blob not found in local cache")
)

// Open opens the embedded SQLite database backing the durable local cache
// and migrates its schema. The cache must stay usable while every remote
// dependency is down, so it never depends on network state.
func Open(path string) (*gorm.DB, error) {
	gormLoggerInstance := gormLogger.Default.LogMode(gormLogger.Silent)

	cacheDB, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormLoggerInstance,
	})
	if err != nil {
		logging.Logger.Error("Failed to open local cache database",
			zap.String("path", path),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	err = cacheDB.AutoMigrate(&Record{}, &AudioBlob{}, &PendingUpload{})
	if err != nil {
		logging.Logger.Error("Failed to migrate local cache schema", zap.String("error", err.Error()))
		return nil, err
	}

	logging.Logger.Info("Local cache opened", zap.String("path", path))

	return cacheDB, nil
}

// wrapWriteError surfaces quota exhaustion as ErrStorageFull so callers can
// tell "the disk is full" apart from a corrupted write. Each write is a
// single statement, so a failing blob write never touches other tables.
func wrapWriteError(err error) error {
	if err == nil {
		return nil
	}

	if strings.Contains(err.Error(), "database or disk is full") {
		return fmt.Errorf("%w: %v", ErrStorageFull, err)
	}

	return err
}
