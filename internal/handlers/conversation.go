package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// ConversationHandler manages conversation endpoints, including the enriched
// listing that joins memberships, the user directory and live presence.
type ConversationHandler struct {
	conversationRepo repositories.ConversationRepository
	userRepo         repositories.UserRepository
	audit            *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(conversationRepo repositories.ConversationRepository, userRepo repositories.UserRepository, audit *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{
		conversationRepo: conversationRepo,
		userRepo:         userRepo,
		audit:            audit,
	}
}

// CreateDirect creates or returns the existing direct conversation with the
// other user.
func (h *ConversationHandler) CreateDirect(c *gin.Context) {
	var req struct {
		OtherUserID int64 `json:"other_user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt64(middleware.UserIDKey)
	if req.OtherUserID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}

	other, err := h.userRepo.GetUser(c.Request.Context(), req.OtherUserID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}

	conversation, err := h.conversationRepo.CreateDirect(c.Request.Context(), userID, other.ID, other.Name)
	if err != nil {
		if errors.Is(err, repositories.ErrInvalidConversation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
			return
		}
		emitAudit(c, h.audit, "ERROR", "direct conversation create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation_id": conversation.ID})
}

// CreateGroup creates a group conversation with the caller as a member.
func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Name      string  `json:"name" binding:"required"`
		MemberIDs []int64 `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt64(middleware.UserIDKey)
	conversation, err := h.conversationRepo.CreateGroup(c.Request.Context(), userID, req.Name, req.MemberIDs)
	if err != nil {
		if errors.Is(err, repositories.ErrInvalidConversation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "group must have at least 2 members"})
			return
		}
		emitAudit(c, h.audit, "ERROR", "group conversation create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	emitAudit(c, h.audit, "INFO", "group conversation created")
	c.JSON(http.StatusCreated, gin.H{"conversation_id": conversation.ID})
}

type conversationResponse struct {
	ID          int64        `json:"id"`
	IsGroup     bool         `json:"is_group"`
	Name        string       `json:"name"`
	MemberIDs   []int64      `json:"member_ids"`
	CreatedAt   time.Time    `json:"created_at"`
	OnlineCount *int         `json:"online_count,omitempty"`
	OtherUser   *models.User `json:"other_user,omitempty"`
	IsOnline    *bool        `json:"is_online,omitempty"`
}

// ListConversations returns the caller's conversations enriched per request:
// groups carry the count of other members currently online, direct chats carry
// the other member's current record and online state. Nothing here is cached,
// so renames and presence are always live even though the stored direct-chat
// name is a creation-time snapshot.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := c.GetInt64(middleware.UserIDKey)

	conversations, err := h.conversationRepo.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	memberIDSet := map[int64]struct{}{}
	for _, conversation := range conversations {
		for _, id := range conversation.MemberIDs {
			memberIDSet[id] = struct{}{}
		}
	}
	memberIDs := make([]int64, 0, len(memberIDSet))
	for id := range memberIDSet {
		memberIDs = append(memberIDs, id)
	}

	users, err := h.userRepo.BulkUsers(c.Request.Context(), memberIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
		return
	}
	userByID := make(map[int64]models.User, len(users))
	for _, u := range users {
		userByID[u.ID] = u
	}

	now := time.Now()
	responses := make([]conversationResponse, 0, len(conversations))
	for _, conversation := range conversations {
		resp := conversationResponse{
			ID:        conversation.ID,
			IsGroup:   conversation.IsGroup,
			Name:      conversation.Name,
			MemberIDs: conversation.MemberIDs,
			CreatedAt: conversation.CreatedAt,
		}

		if conversation.IsGroup {
			online := 0
			for _, id := range conversation.MemberIDs {
				if id == userID {
					continue
				}
				if u, ok := userByID[id]; ok && u.OnlineAt(now) {
					online++
				}
			}
			resp.OnlineCount = &online
		} else {
			for _, id := range conversation.MemberIDs {
				if id == userID {
					continue
				}
				if u, ok := userByID[id]; ok {
					other := u
					isOnline := other.OnlineAt(now)
					resp.OtherUser = &other
					resp.IsOnline = &isOnline
				}
				break
			}
		}

		responses = append(responses, resp)
	}

	c.JSON(http.StatusOK, gin.H{"conversations": responses})
}

// GetDisplayName resolves a conversation's display name. Groups use the stored
// name; direct chats resolve the other member's current name, overriding the
// stored snapshot.
func (h *ConversationHandler) GetDisplayName(c *gin.Context) {
	conversationID, err := strconv.ParseInt(c.Param("conversation_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	conversation, err := h.conversationRepo.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "conversation not found"})
		return
	}

	if conversation.IsGroup {
		c.JSON(http.StatusOK, gin.H{"name": conversation.Name})
		return
	}

	userID := c.GetInt64(middleware.UserIDKey)
	var otherID int64
	for _, id := range conversation.MemberIDs {
		if id != userID {
			otherID = id
			break
		}
	}
	if otherID == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "other member not found"})
		return
	}

	other, err := h.userRepo.GetUser(c.Request.Context(), otherID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "other member not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"name": other.Name})
}
