package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/middleware"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// UserHandler manages user directory endpoints.
type UserHandler struct {
	userRepo repositories.UserRepository
	audit    *telemetry.AuditEmitter
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(userRepo repositories.UserRepository, audit *telemetry.AuditEmitter) *UserHandler {
	return &UserHandler{userRepo: userRepo, audit: audit}
}

// SyncUser upserts the caller's directory entry from the verified session
// claims. The external id always comes from the token; the body may only fill
// profile fields the token did not carry.
func (h *UserHandler) SyncUser(c *gin.Context) {
	claims := middleware.SessionClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}

	var req struct {
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	// Body is optional; ignore bind errors on an empty body.
	_ = c.ShouldBindJSON(&req)

	name := claims.Name
	if name == "" {
		name = req.Name
	}
	email := claims.Email
	if email == "" {
		email = req.Email
	}
	avatarURL := claims.AvatarURL
	if avatarURL == "" {
		avatarURL = req.AvatarURL
	}

	user, err := h.userRepo.Upsert(c.Request.Context(), claims.Subject, name, email, avatarURL)
	if err != nil {
		emitAudit(c, h.audit, "ERROR", "user sync failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not sync user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": user.ID})
}

// Me returns the caller's directory entry.
func (h *UserHandler) Me(c *gin.Context) {
	claims := middleware.SessionClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}

	user, err := h.userRepo.GetByExternalID(c.Request.Context(), claims.Subject)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// Heartbeat refreshes the caller's presence timestamp. The target user is the
// session's resolved user, so presence cannot be spoofed for someone else.
func (h *UserHandler) Heartbeat(c *gin.Context) {
	userID := c.GetInt64(middleware.UserIDKey)

	if err := h.userRepo.TouchPresence(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update presence"})
		return
	}

	c.Status(http.StatusNoContent)
}

// ListUsers returns every other user, optionally filtered by a search term.
func (h *UserHandler) ListUsers(c *gin.Context) {
	userID := c.GetInt64(middleware.UserIDKey)

	users, err := h.userRepo.ListOthers(c.Request.Context(), userID, c.Query("search"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}
