package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"socialdraft/internal/auth"
)

const externalIDKey = "externalID"

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// AuthMiddleware validates the identity provider's session token and
// injects the caller's external id into the context.
func AuthMiddleware(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			abortUnauthorized(c)
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		rawToken := parts[1]
		if strings.TrimSpace(rawToken) == "" {
			abortUnauthorized(c)
			return
		}

		claims, err := verifier.VerifyToken(rawToken)
		if err != nil {
			abortUnauthorized(c)
			return
		}

		c.Set(externalIDKey, claims.ExternalID())
		c.Next()
	}
}

// ExternalIDFromContext returns the authenticated caller's external id.
func ExternalIDFromContext(c *gin.Context) (string, bool) {
	value, exists := c.Get(externalIDKey)
	if !exists {
		return "", false
	}
	id, ok := value.(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
