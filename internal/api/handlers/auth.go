package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rapport-app/rapport/internal/api/middleware"
	"github.com/rapport-app/rapport/internal/identity"
)

func claimsFrom(c *gin.Context) *identity.Claims {
	return middleware.ClaimsFrom(c)
}

// SignOut publishes a sign-out event; the orchestrator reacts by clearing
// its in-memory state.
func (handler *Handler) SignOut(c *gin.Context) {
	event := identity.Event{Type: identity.SignedOut}

	claims := claimsFrom(c)
	if claims != nil {
		event.UserID = claims.UserID
	}

	handler.Hub.Publish(event)

	c.JSON(http.StatusOK, gin.H{"status": "signed out"})
}
