package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/middleware"
	"messaging-service/internal/repositories"
	"messaging-service/internal/ws"
)

// PresenceHandler manages typing state and read tracking endpoints.
type PresenceHandler struct {
	typingRepo repositories.TypingRepository
	readRepo   repositories.ReadRepository
	hub        *ws.Hub
}

// NewPresenceHandler builds a PresenceHandler.
func NewPresenceHandler(typingRepo repositories.TypingRepository, readRepo repositories.ReadRepository, hub *ws.Hub) *PresenceHandler {
	return &PresenceHandler{typingRepo: typingRepo, readRepo: readRepo, hub: hub}
}

// SetTyping upserts the caller's typing flag for the conversation. Clients
// send true on keystrokes and false on send or after their inactivity
// debounce; the server never times stale flags out itself.
func (h *PresenceHandler) SetTyping(c *gin.Context) {
	conversationID, err := strconv.ParseInt(c.Param("conversation_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	var req struct {
		IsTyping *bool `json:"is_typing" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt64(middleware.UserIDKey)
	if err := h.typingRepo.SetTyping(c.Request.Context(), conversationID, userID, *req.IsTyping); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update typing state"})
		return
	}

	h.hub.BroadcastTyping(conversationID, userID, *req.IsTyping)
	c.Status(http.StatusNoContent)
}

// GetTypingUsers lists users currently typing in the conversation. The caller
// filters out its own id for display.
func (h *PresenceHandler) GetTypingUsers(c *gin.Context) {
	conversationID, err := strconv.ParseInt(c.Param("conversation_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	users, err := h.typingRepo.TypingUsers(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load typing users"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"typing": users})
}

// AdvanceRead moves the caller's read marker to the conversation's newest
// message. No-op for empty conversations.
func (h *PresenceHandler) AdvanceRead(c *gin.Context) {
	conversationID, err := strconv.ParseInt(c.Param("conversation_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	userID := c.GetInt64(middleware.UserIDKey)
	if err := h.readRepo.AdvanceReadPosition(c.Request.Context(), conversationID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not advance read position"})
		return
	}

	c.Status(http.StatusNoContent)
}

// UnreadCounts returns the caller's unread count per conversation.
func (h *PresenceHandler) UnreadCounts(c *gin.Context) {
	userID := c.GetInt64(middleware.UserIDKey)

	counts, err := h.readRepo.UnreadCounts(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load unread counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread_counts": counts})
}
