package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rapport-app/rapport/internal/beacon"
	"github.com/rapport-app/rapport/internal/customer"
	"github.com/rapport-app/rapport/internal/identity"
	"github.com/rapport-app/rapport/internal/localcache"
	"github.com/rapport-app/rapport/internal/orchestrator"
)

// Handler exposes the portal operations over HTTP.
type Handler struct {
	Orchestrator *orchestrator.Orchestrator
	Hub          *identity.Hub
	Beacon       *beacon.Producer
	Queue        *localcache.PendingQueue
}

func New(
	orchestratorService *orchestrator.Orchestrator,
	hub *identity.Hub,
	beaconProducer *beacon.Producer,
	queue *localcache.PendingQueue,
) *Handler {
	return &Handler{
		Orchestrator: orchestratorService,
		Hub:          hub,
		Beacon:       beaconProducer,
		Queue:        queue,
	}
}

func (handler *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (handler *Handler) track(c *gin.Context, customerID, action string) {
	if handler.Beacon == nil {
		return
	}

	visit := beacon.Visit{
		CustomerID: customerID,
		Action:     action,
		OccurredAt: time.Now(),
	}

	claims := claimsFrom(c)
	if claims != nil {
		visit.UserID = claims.UserID
	}

	handler.Beacon.Track(visit)
}

func (handler *Handler) findCustomer(ctx context.Context, customerID string) (*customer.Customer, error) {
	customers, err := handler.Orchestrator.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}

	for idx := range customers {
		if customers[idx].ID == customerID {
			return &customers[idx], nil
		}
	}

	return nil, nil
}
