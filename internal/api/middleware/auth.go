package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rapport-app/rapport/internal/identity"
)

const ClaimsKey = "identity_claims"

// Auth validates the bearer token and stores the parsed claims on the
// request context.
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header missing"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		claims, err := identity.ParseToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// ClaimsFrom returns the authenticated claims stored by Auth.
func ClaimsFrom(c *gin.Context) *identity.Claims {
	value, exists := c.Get(ClaimsKey)
	if !exists {
		return nil
	}

	claims, ok := value.(*identity.Claims)
	if !ok {
		return nil
	}

	return claims
}
