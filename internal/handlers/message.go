package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

// MessageHandler manages message endpoints.
type MessageHandler struct {
	messageRepo      repositories.MessageRepository
	conversationRepo repositories.ConversationRepository
	userRepo         repositories.UserRepository
	hub              *ws.Hub
	audit            *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messageRepo repositories.MessageRepository, conversationRepo repositories.ConversationRepository, userRepo repositories.UserRepository, hub *ws.Hub, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		userRepo:         userRepo,
		hub:              hub,
		audit:            audit,
	}
}

// PostMessage stores a message and broadcasts it to the conversation room.
// Sender membership is not verified here; only the websocket subscribe path
// enforces membership.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	conversationID, err := strconv.ParseInt(c.Param("conversation_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	var req struct {
		Content  string  `json:"content"`
		ImageURL *string `json:"image_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// A message must carry text or an image; blank sends are rejected
	// before any row is written.
	if strings.TrimSpace(req.Content) == "" && (req.ImageURL == nil || *req.ImageURL == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is empty"})
		return
	}

	if _, err := h.conversationRepo.GetConversation(c.Request.Context(), conversationID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "conversation not found"})
		return
	}

	userID := c.GetInt64(middleware.UserIDKey)
	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), conversationID, userID, req.Content, req.ImageURL)
	if err != nil {
		emitAudit(c, h.audit, "ERROR", "message store failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	observability.IncMessageSent()
	h.hub.BroadcastMessage(conversationID, msg)
	c.JSON(http.StatusCreated, msg)
}

type messageResponse struct {
	models.Message
	SenderName     string                 `json:"sender_name,omitempty"`
	Reactions      []models.Reaction      `json:"reactions"`
	ReactionGroups []models.ReactionGroup `json:"reaction_groups,omitempty"`
}

// ListMessages returns up to 100 messages in creation order with reactions
// attached; the per-emoji aggregation is derived here, never stored.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	conversationID, err := strconv.ParseInt(c.Param("conversation_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	msgs, err := h.messageRepo.ListRecent(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	messageIDs := make([]int64, 0, len(msgs))
	senderIDs := make([]int64, 0, len(msgs))
	senderIDSet := map[int64]struct{}{}
	for _, m := range msgs {
		messageIDs = append(messageIDs, m.ID)
		if _, ok := senderIDSet[m.SenderID]; !ok {
			senderIDSet[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}

	reactions, err := h.messageRepo.ReactionsForMessages(c.Request.Context(), messageIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load reactions"})
		return
	}
	reactionsByMessage := map[int64][]models.Reaction{}
	for _, r := range reactions {
		reactionsByMessage[r.MessageID] = append(reactionsByMessage[r.MessageID], r)
	}

	senders, err := h.userRepo.BulkUsers(c.Request.Context(), senderIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load senders"})
		return
	}
	senderNames := map[int64]string{}
	for _, u := range senders {
		senderNames[u.ID] = u.Name
	}

	resp := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		msgReactions := reactionsByMessage[m.ID]
		if msgReactions == nil {
			msgReactions = []models.Reaction{}
		}
		resp = append(resp, messageResponse{
			Message:        m,
			SenderName:     senderNames[m.SenderID],
			Reactions:      msgReactions,
			ReactionGroups: models.AggregateReactions(msgReactions),
		})
	}

	c.JSON(http.StatusOK, gin.H{"messages": resp})
}

// DeleteMessage soft-deletes a message. Only the sender may delete; the row
// survives and stays addressable for reactions and read markers.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	conversationID, messageID, ok := parseIDs(c)
	if !ok {
		return
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return
	}
	if msg.ConversationID != conversationID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message does not belong to conversation"})
		return
	}

	userID := c.GetInt64(middleware.UserIDKey)
	if err := h.messageRepo.SoftDelete(c.Request.Context(), messageID, userID); err != nil {
		switch {
		case errors.Is(err, repositories.ErrMessageNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		case errors.Is(err, repositories.ErrNotSender):
			c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can delete a message"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete message"})
		}
		return
	}

	h.hub.BroadcastDeletion(conversationID, messageID)
	c.Status(http.StatusNoContent)
}

// ToggleReaction applies the one-reaction-per-user toggle for the caller.
func (h *MessageHandler) ToggleReaction(c *gin.Context) {
	messageID, err := strconv.ParseInt(c.Param("message_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	var req struct {
		EmojiIndex *int `json:"emoji_index" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if *req.EmojiIndex < 0 || *req.EmojiIndex >= models.EmojiCount {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown emoji index"})
		return
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return
	}

	userID := c.GetInt64(middleware.UserIDKey)
	if err := h.messageRepo.ToggleReaction(c.Request.Context(), messageID, userID, *req.EmojiIndex); err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not toggle reaction"})
		return
	}

	observability.IncReactionToggled()
	h.hub.BroadcastReaction(msg.ConversationID, messageID, userID, *req.EmojiIndex)
	c.Status(http.StatusNoContent)
}

func parseIDs(c *gin.Context) (int64, int64, bool) {
	conversationID, err := strconv.ParseInt(c.Param("conversation_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return 0, 0, false
	}
	messageID, err := strconv.ParseInt(c.Param("message_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return 0, 0, false
	}
	return conversationID, messageID, true
}
