package models

import "time"

// EmojiCount is the size of the fixed emoji set shared with clients. Reactions
// persist the index, not the emoji, so changing the set is a coordinated
// migration.
const EmojiCount = 5

// Message is a conversation message. Soft-deleted messages stay addressable by
// id but are excluded from listings.
type Message struct {
	ID             int64     `db:"id" json:"id"`
	ConversationID int64     `db:"conversation_id" json:"conversation_id"`
	SenderID       int64     `db:"sender_id" json:"sender_id"`
	Content        string    `db:"content" json:"content"`
	ImageURL       *string   `db:"image_url" json:"image_url,omitempty"`
	IsDeleted      bool      `db:"is_deleted" json:"is_deleted"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Reaction is one user's active reaction on a message. At most one row exists
// per (message, user); switching emoji replaces the row.
type Reaction struct {
	MessageID  int64 `db:"message_id" json:"message_id"`
	UserID     int64 `db:"user_id" json:"user_id"`
	EmojiIndex int   `db:"emoji_index" json:"emoji_index"`
}

// ReactionGroup is the aggregated per-emoji view of a message's reactions.
// Derived on read, never stored.
type ReactionGroup struct {
	EmojiIndex int     `json:"emoji_index"`
	Count      int     `json:"count"`
	UserIDs    []int64 `json:"user_ids"`
}

// AggregateReactions groups reactions by emoji index, ordered by index.
func AggregateReactions(reactions []Reaction) []ReactionGroup {
	var groups []ReactionGroup
	for idx := 0; idx < EmojiCount; idx++ {
		group := ReactionGroup{EmojiIndex: idx}
		for _, r := range reactions {
			if r.EmojiIndex == idx {
				group.Count++
				group.UserIDs = append(group.UserIDs, r.UserID)
			}
		}
		if group.Count > 0 {
			groups = append(groups, group)
		}
	}
	return groups
}

// ConversationEvent is broadcasted through websockets to conversation rooms.
type ConversationEvent struct {
	Type       string   `json:"type"`
	Message    *Message `json:"message,omitempty"`
	MessageID  int64    `json:"message_id,omitempty"`
	UserID     int64    `json:"user_id,omitempty"`
	EmojiIndex *int     `json:"emoji_index,omitempty"`
	IsTyping   *bool    `json:"is_typing,omitempty"`
}
