package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/rapport-app/rapport/internal/api/handlers"
	"github.com/rapport-app/rapport/internal/api/middleware"
)

// Setup wires the portal routes onto a gin engine.
func Setup(handler *handlers.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())

	router.GET("/healthz", handler.Healthz)

	api := router.Group("/api")
	api.Use(middleware.Auth())
	{
		api.POST("/customers", handler.CreateCustomer)
		api.GET("/customers", handler.ListCustomers)
		api.DELETE("/customers/:id", handler.DeleteCustomer)
		api.GET("/customers/:id/sessions", handler.ListSessions)
		api.POST("/customers/:id/recordings", handler.UploadRecording)

		api.GET("/uploads/pending", handler.ListPendingUploads)
		api.POST("/uploads/retry", handler.RetryUploads)

		api.POST("/auth/signout", handler.SignOut)
	}

	return router
}
