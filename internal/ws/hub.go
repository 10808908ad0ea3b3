package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

const eventsRoutingKey = "ws_events.conversations"

// Hub maintains the active websocket room per conversation. It is the
// live-update substrate: handlers push state changes here after committing
// them, and every subscribed client of the conversation receives the event.
type Hub struct {
	rooms  map[int64]map[*websocket.Conn]ConnInfo
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:  make(map[int64]map[*websocket.Conn]ConnInfo),
		logger: logger,
	}
}

// AddClient registers a websocket connection to a conversation room.
func (h *Hub) AddClient(conversationID int64, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.rooms[conversationID][conn] = info
}

// RemoveClient removes a websocket connection from a conversation room.
func (h *Hub) RemoveClient(conversationID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[conversationID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// BroadcastMessage pushes a new message to the conversation's subscribers.
func (h *Hub) BroadcastMessage(conversationID int64, msg models.Message) {
	h.broadcast(conversationID, models.ConversationEvent{Type: "message", Message: &msg})
}

// BroadcastDeletion notifies subscribers that a message was soft-deleted.
func (h *Hub) BroadcastDeletion(conversationID, messageID int64) {
	h.broadcast(conversationID, models.ConversationEvent{Type: "message_deleted", MessageID: messageID})
}

// BroadcastReaction notifies subscribers of a reaction toggle. Clients
// re-derive the aggregated view from the message list.
func (h *Hub) BroadcastReaction(conversationID, messageID, userID int64, emojiIndex int) {
	h.broadcast(conversationID, models.ConversationEvent{
		Type:       "reaction",
		MessageID:  messageID,
		UserID:     userID,
		EmojiIndex: &emojiIndex,
	})
}

// BroadcastTyping pushes a typing flag change to the conversation room.
func (h *Hub) BroadcastTyping(conversationID, userID int64, isTyping bool) {
	h.broadcast(conversationID, models.ConversationEvent{
		Type:     "typing",
		UserID:   userID,
		IsTyping: &isTyping,
	})
}

func (h *Hub) broadcast(conversationID int64, event models.ConversationEvent) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.rooms[conversationID]))
	for conn := range h.rooms[conversationID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	payload, _ := json.Marshal(event)
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Warn("websocket write error", zap.Error(err), zap.Int64("conversation_id", conversationID))
			conn.Close()
			h.publishError(conversationID, conn, err)
			h.RemoveClient(conversationID, conn)
		}
	}
}

func (h *Hub) publishError(conversationID int64, conn *websocket.Conn, err error) {
	h.mu.RLock()
	info, ok := h.rooms[conversationID][conn]
	h.mu.RUnlock()
	if !ok {
		return
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), eventsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   eventPayload(conversationID, "ws_error", info, time.Since(info.ConnectedAt), err.Error()),
	}, headers)
	observability.IncWSEvent("ws_error")
}

func eventPayload(conversationID int64, event string, info ConnInfo, connected time.Duration, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"conversation_id": conversationID,
			"event":           event,
			"conn_id":         info.ConnID,
			"duration_ms":     connected.Milliseconds(),
			"reason":          reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}
