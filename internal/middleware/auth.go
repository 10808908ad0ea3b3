package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/identity"
	"messaging-service/internal/repositories"
)

const (
	// ClaimsKey holds the verified session claims in the gin context.
	ClaimsKey = "sessionClaims"
	// UserIDKey holds the resolved internal user id in the gin context.
	UserIDKey = "userID"
)

// Session validates the Authorization header against the identity provider's
// session tokens. The acting identity always comes from the verified token,
// never from a client-supplied field.
func Session(verifier *identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := verifier.Verify(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// RequireUser resolves the session identity to a directory user and stores the
// internal id. Runs after Session; rejects callers whose profile has not been
// synced yet.
func RequireUser(userRepo repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := SessionClaims(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
			return
		}

		user, err := userRepo.GetByExternalID(c.Request.Context(), claims.Subject)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "profile not synced, sync and retry"})
			return
		}

		c.Set(UserIDKey, user.ID)
		c.Next()
	}
}

// SessionClaims returns the verified claims stored by Session, or nil.
func SessionClaims(c *gin.Context) *identity.SessionClaims {
	if val, ok := c.Get(ClaimsKey); ok {
		if claims, ok := val.(*identity.SessionClaims); ok {
			return claims
		}
	}
	return nil
}
