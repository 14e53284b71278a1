package healthchecker

import (
	"github.com/rapport-app/rapport/internal/beacon"
	"github.com/rapport-app/rapport/internal/logging"
	"go.uber.org/zap"
)

func CheckBeacon() bool {
	producer, err := beacon.NewProducer()
	if err != nil {
		logging.Logger.Error("failed to create beacon producer", zap.String("error", err.Error()))
		return false
	}

	defer func() {
		_ = producer.Close()
	}()

	err = producer.Ping()
	if err != nil {
		logging.Logger.Error("beacon heartbeat publish failed", zap.String("error", err.Error()))
		return false
	}

	return true
}
