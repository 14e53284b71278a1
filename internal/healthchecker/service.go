package healthchecker

import (
	"context"
	"time"

	"github.com/rapport-app/rapport/internal/circuitbreak"
	"github.com/rapport-app/rapport/internal/config"
	"github.com/rapport-app/rapport/internal/logging"
	"go.uber.org/zap"
)

// Healthchecker tears the app down when a circuit opens and keeps probing
// the failed dependency until it recovers, at which point the caller
// restarts the app.
type Healthchecker struct {
	CtxCancelFunc context.CancelFunc
	ErrorService  string
}

func NewService(ctxCancelFunc context.CancelFunc) *Healthchecker {
	return &Healthchecker{
		CtxCancelFunc: ctxCancelFunc,
	}
}

func (h *Healthchecker) Monitor() {
	logging.Logger.Info("health checker monitor start successfully")

	serviceName := <-circuitbreak.CircuitBreakChan

	logging.Logger.Info("circuit break happened", zap.String("service", serviceName))
	h.ErrorService = serviceName
	h.CtxCancelFunc()
}

func (h *Healthchecker) Check() {
	if h.ErrorService == "" {
		logging.Logger.Error("healthchecker error service is empty")
	}

	ticker := time.NewTicker(time.Duration(config.Conf.HealthCheckerMonitorInterval) * time.Second)
	defer ticker.Stop()

	for {
		<-ticker.C

		ok := h.checkErrorService()
		if ok {
			return
		}
	}
}

func (h *Healthchecker) checkErrorService() bool {
	type checkFunc func() bool

	checks := map[string]checkFunc{
		circuitbreak.DBService:          CheckDB,
		circuitbreak.ObjectStoreService: CheckObjectStore,
		circuitbreak.BeaconService:      CheckBeacon,
	}

	check, ok := checks[h.ErrorService]
	if !ok {
		logging.Logger.Warn("Unknown service in checkErrorService", zap.String("service", h.ErrorService))
		return false
	}

	isHealthy := check()
	if isHealthy {
		logging.Logger.Info(h.ErrorService + " service back healthy")
	}

	return isHealthy
}
