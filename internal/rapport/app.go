package rapport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rapport-app/rapport/internal/api/handlers"
	"github.com/rapport-app/rapport/internal/api/routes"
	"github.com/rapport-app/rapport/internal/beacon"
	"github.com/rapport-app/rapport/internal/circuitbreak"
	"github.com/rapport-app/rapport/internal/config"
	"github.com/rapport-app/rapport/internal/customer"
	"github.com/rapport-app/rapport/internal/database"
	"github.com/rapport-app/rapport/internal/healthchecker"
	"github.com/rapport-app/rapport/internal/identity"
	"github.com/rapport-app/rapport/internal/localcache"
	"github.com/rapport-app/rapport/internal/logging"
	"github.com/rapport-app/rapport/internal/objectstore"
	"github.com/rapport-app/rapport/internal/orchestrator"
	"github.com/rapport-app/rapport/internal/records"
	"github.com/rapport-app/rapport/internal/session"
	"github.com/rapport-app/rapport/internal/transcriber"
	"github.com/rapport-app/rapport/internal/upload"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Rapport holds every wired component of the portal backend.
type Rapport struct {
	DBConn               *gorm.DB
	CacheDB              *gorm.DB
	ObjectStoreClient    *objectstore.Client
	TranscriberClient    *transcriber.Client
	BeaconProducer       *beacon.Producer
	Pipeline             *upload.Pipeline
	ReconcileWorker      *upload.Worker
	Orchestrator         *orchestrator.Orchestrator
	IdentityHub          *identity.Hub
	PendingQueue         *localcache.PendingQueue
	HTTPServer           *http.Server
	HealthCheckerService *healthchecker.Healthchecker
}

func NewApp(ctxCancelFunc context.CancelFunc) (*Rapport, error) {
	logging.Logger.Info("[NewApp] Initializing Rapport application...")

	healthcheckerService := healthchecker.NewService(ctxCancelFunc)

	dbConn, err := database.NewDatabase()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to initialize database", zap.Error(err))
		return nil, err
	}

	logging.Logger.Info("[NewApp] Database connection established")

	cacheDB, err := localcache.Open(config.Conf.CachePath)
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to open local cache", zap.Error(err))
		return nil, err
	}

	logging.Logger.Info("[NewApp] Local cache opened", zap.String("path", config.Conf.CachePath))

	objectStoreClient, err := objectstore.NewClient()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to initialize object store client", zap.Error(err))
		return nil, err
	}

	transcriberClient := transcriber.NewClient()

	beaconProducer, err := initializeBeacon()
	if err != nil {
		return nil, err
	}

	pendingQueue := localcache.NewPendingQueue(cacheDB)
	blobStore := localcache.NewBlobStore(cacheDB)

	pipeline := upload.NewPipeline(objectStoreClient, transcriberClient, pendingQueue, blobStore)

	orchestratorService := orchestrator.NewOrchestrator(
		records.NewTieredCustomers(localcache.NewCustomerCache(cacheDB), customer.NewRepository(dbConn)),
		records.NewTieredSessions(localcache.NewSessionCache(cacheDB), session.NewRepository(dbConn)),
		blobStore,
		pendingQueue,
		pipeline,
		objectStoreClient,
	)

	reconcileWorker, err := upload.NewWorker(orchestratorService)
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create reconcile worker", zap.Error(err))
		return nil, err
	}

	identityHub := identity.NewHub()

	handler := handlers.New(orchestratorService, identityHub, beaconProducer, pendingQueue)
	router := routes.Setup(handler)

	httpServer := &http.Server{
		Addr:         ":" + config.Conf.HTTPPort,
		Handler:      router,
		ReadTimeout:  time.Duration(config.Conf.HTTPTimeout) * time.Second,
		WriteTimeout: time.Duration(config.Conf.HTTPTimeout) * time.Second,
	}

	logging.Logger.Info("[NewApp] Initializing circuit breakers...")
	circuitbreak.Init()

	return &Rapport{
		DBConn:               dbConn,
		CacheDB:              cacheDB,
		ObjectStoreClient:    objectStoreClient,
		TranscriberClient:    transcriberClient,
		BeaconProducer:       beaconProducer,
		Pipeline:             pipeline,
		ReconcileWorker:      reconcileWorker,
		Orchestrator:         orchestratorService,
		IdentityHub:          identityHub,
		PendingQueue:         pendingQueue,
		HTTPServer:           httpServer,
		HealthCheckerService: healthcheckerService,
	}, nil
}

func initializeBeacon() (*beacon.Producer, error) {
	if !config.Conf.BeaconEnabled {
		logging.Logger.Info("[NewApp] Beacon disabled, visit tracking off")
		return nil, nil
	}

	beaconProducer, err := beacon.NewProducer()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create beacon producer", zap.Error(err))
		return nil, err
	}

	return beaconProducer, nil
}

// Run starts the background goroutines and blocks serving HTTP until the
// context is canceled.
func (app *Rapport) Run(ctx context.Context) error {
	logging.Logger.Info("[Run] Starting app goroutines...")

	go app.HealthCheckerService.Monitor()
	go app.ReconcileWorker.Run(ctx)
	go app.Orchestrator.Watch(ctx, app.IdentityHub.Subscribe())

	errChan := make(chan error, 1)

	go func() {
		logging.Logger.Info("[Run] HTTP server listening", zap.String("addr", app.HTTPServer.Addr))

		serveErr := app.HTTPServer.ListenAndServe()
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	select {
	case err := <-errChan:
		logging.Logger.Error("[Run] HTTP server failed", zap.String("error", err.Error()))
		app.shutdown()

		return err
	case <-ctx.Done():
		logging.Logger.Warn("[Run] Context canceled, beginning shutdown...")
		app.shutdown()

		return nil
	}
}

func (app *Rapport) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := app.HTTPServer.Shutdown(shutdownCtx)
	if err != nil {
		logging.Logger.Error("[Run] Failed to shut down HTTP server", zap.String("error", err.Error()))
	}

	app.ReconcileWorker.Release()

	if app.BeaconProducer != nil {
		err = app.BeaconProducer.Close()
		if err != nil {
			logging.Logger.Error("[Run] Failed to close beacon producer", zap.String("error", err.Error()))
		}
	}

	logging.Logger.Info("[Run] ===== App shutdown complete =====")
}
