package models

import (
	"time"

	"github.com/lib/pq"
)

// Conversation is a direct or group conversation. MemberIDs on the row is the
// authoritative membership; the conversation_members table is a derived index
// and must never win a disagreement between the two.
type Conversation struct {
	ID        int64         `db:"id" json:"id"`
	IsGroup   bool          `db:"is_group" json:"is_group"`
	Name      string        `db:"name" json:"name"`
	MemberIDs pq.Int64Array `db:"member_ids" json:"member_ids"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// HasMember checks the authoritative member array.
func (c Conversation) HasMember(userID int64) bool {
	for _, id := range c.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// TypingUser is a typing row joined with the directory for display.
type TypingUser struct {
	UserID int64  `db:"user_id" json:"user_id"`
	Name   string `db:"name" json:"name"`
}
