package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rapport-app/rapport/internal/logging"
	"go.uber.org/zap"
)

type createCustomerRequest struct {
	Name  string `json:"name"  binding:"required"`
	Email string `json:"email" binding:"omitempty,email"`
	Phone string `json:"phone"`
}

func (handler *Handler) CreateCustomer(c *gin.Context) {
	var request createCustomerRequest

	err := c.ShouldBindJSON(&request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := handler.Orchestrator.AddCustomer(c.Request.Context(), request.Name, request.Email, request.Phone)
	if err != nil {
		logging.Logger.Error("Failed to create customer", zap.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create customer"})

		return
	}

	handler.track(c, record.ID, "customer_created")

	c.JSON(http.StatusCreated, record)
}

func (handler *Handler) ListCustomers(c *gin.Context) {
	customers, err := handler.Orchestrator.ListCustomers(c.Request.Context())
	if err != nil {
		logging.Logger.Error("Failed to list customers", zap.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list customers"})

		return
	}

	c.JSON(http.StatusOK, customers)
}

func (handler *Handler) DeleteCustomer(c *gin.Context) {
	customerID := c.Param("id")

	err := handler.Orchestrator.DeleteCustomer(c.Request.Context(), customerID)
	if err != nil {
		logging.Logger.Error("Failed to delete customer",
			zap.String("customer_id", customerID),
			zap.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete customer"})

		return
	}

	handler.track(c, customerID, "customer_deleted")

	c.Status(http.StatusNoContent)
}

func (handler *Handler) ListSessions(c *gin.Context) {
	customerID := c.Param("id")

	sessions, err := handler.Orchestrator.ListSessions(c.Request.Context(), customerID)
	if err != nil {
		logging.Logger.Error("Failed to list sessions",
			zap.String("customer_id", customerID),
			zap.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})

		return
	}

	c.JSON(http.StatusOK, sessions)
}
