package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

// TypingRepository holds the ephemeral per (conversation, user) typing flag.
// Rows are overwritten in place; the store never times a stale flag out, the
// client is expected to clear it on send or after its debounce.
type TypingRepository interface {
	SetTyping(ctx context.Context, conversationID, userID int64, isTyping bool) error
	TypingUsers(ctx context.Context, conversationID int64) ([]models.TypingUser, error)
}

// TypingRepo is a sqlx implementation of TypingRepository.
type TypingRepo struct {
	db *sqlx.DB
}

// NewTypingRepo constructs a TypingRepo.
func NewTypingRepo(db *sqlx.DB) *TypingRepo {
	return &TypingRepo{db: db}
}

// SetTyping upserts the typing flag, last write wins.
func (r *TypingRepo) SetTyping(ctx context.Context, conversationID, userID int64, isTyping bool) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO typing_states (conversation_id, user_id, is_typing) VALUES ($1, $2, $3)
        ON CONFLICT (conversation_id, user_id) DO UPDATE SET is_typing = EXCLUDED.is_typing, updated_at = NOW()`,
		conversationID, userID, isTyping)
	return err
}

// TypingUsers returns users currently typing in the conversation, joined with
// the directory for display names. Callers filter out their own id.
func (r *TypingRepo) TypingUsers(ctx context.Context, conversationID int64) ([]models.TypingUser, error) {
	var users []models.TypingUser
	err := r.db.SelectContext(ctx, &users, `SELECT t.user_id, u.name FROM typing_states t
        INNER JOIN users u ON u.id = t.user_id
        WHERE t.conversation_id=$1 AND t.is_typing = TRUE
        ORDER BY t.user_id ASC`, conversationID)
	return users, err
}
