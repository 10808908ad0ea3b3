package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"messaging-service/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotSender       = errors.New("not the message sender")
)

// recentMessageLimit caps listRecent; no cursor pagination in this scope.
const recentMessageLimit = 100

// MessageRepository defines interactions for conversation messages and their
// reactions.
type MessageRepository interface {
	CreateMessage(ctx context.Context, conversationID, senderID int64, content string, imageURL *string) (models.Message, error)
	ListRecent(ctx context.Context, conversationID int64) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	SoftDelete(ctx context.Context, messageID, requesterID int64) error
	ToggleReaction(ctx context.Context, messageID, userID int64, emojiIndex int) error
	ReactionsForMessages(ctx context.Context, messageIDs []int64) ([]models.Reaction, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB, logger *zap.Logger) *MessageRepo {
	return &MessageRepo{db: db, logger: logger}
}

const messageColumns = `id, conversation_id, sender_id, content, image_url, is_deleted, created_at`

// CreateMessage stores a message in a conversation.
func (r *MessageRepo) CreateMessage(ctx context.Context, conversationID, senderID int64, content string, imageURL *string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (conversation_id, sender_id, content, image_url) VALUES ($1, $2, $3, $4) RETURNING `+messageColumns,
		conversationID, senderID, content, imageURL).StructScan(&msg)
	return msg, err
}

// ListRecent returns up to 100 messages in creation order, soft-deleted
// excluded.
func (r *MessageRepo) ListRecent(ctx context.Context, conversationID int64) ([]models.Message, error) {
	var msgs []models.Message
	query := `SELECT ` + messageColumns + ` FROM messages
        WHERE conversation_id=$1 AND is_deleted = FALSE
        ORDER BY created_at ASC, id ASC
        LIMIT $2`
	err := r.db.SelectContext(ctx, &msgs, query, conversationID, recentMessageLimit)
	return msgs, err
}

// GetMessage retrieves a single message, deleted or not.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// SoftDelete marks a message deleted. Only the sender may delete; the row is
// retained and stays addressable by id.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID, requesterID int64) error {
	msg, err := r.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != requesterID {
		return ErrNotSender
	}
	if _, err = r.db.ExecContext(ctx, `UPDATE messages SET is_deleted = TRUE WHERE id=$1`, messageID); err != nil {
		return err
	}
	r.logger.Debug("message soft-deleted", zap.Int64("message_id", messageID))
	return nil
}

// ToggleReaction applies the one-reaction-per-user policy: reacting with the
// user's current emoji removes it, any other emoji replaces it. The row lock
// keeps concurrent toggles by different users from losing each other's writes;
// the (message_id, user_id) primary key rules out stacked reactions.
func (r *MessageRepo) ToggleReaction(ctx context.Context, messageID, userID int64, emojiIndex int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var exists bool
	if err = tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM messages WHERE id=$1)`, messageID); err != nil {
		return err
	}
	if !exists {
		err = ErrMessageNotFound
		return err
	}

	var existing int
	current := &existing
	err = tx.GetContext(ctx, &existing, `SELECT emoji_index FROM message_reactions WHERE message_id=$1 AND user_id=$2 FOR UPDATE`, messageID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		current = nil
		err = nil
	} else if err != nil {
		return err
	}

	if reactionToggleClears(current, emojiIndex) {
		if _, err = tx.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id=$1 AND user_id=$2`, messageID, userID); err != nil {
			return err
		}
	} else {
		if _, err = tx.ExecContext(ctx, `INSERT INTO message_reactions (message_id, user_id, emoji_index) VALUES ($1, $2, $3)
            ON CONFLICT (message_id, user_id) DO UPDATE SET emoji_index = EXCLUDED.emoji_index`, messageID, userID, emojiIndex); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// reactionToggleClears decides the toggle outcome given the user's current
// reaction (nil when none): reacting with the current emoji clears it, any
// other emoji sets or replaces it.
func reactionToggleClears(current *int, requested int) bool {
	return current != nil && *current == requested
}

// ReactionsForMessages loads the reaction rows for a batch of messages.
func (r *MessageRepo) ReactionsForMessages(ctx context.Context, messageIDs []int64) ([]models.Reaction, error) {
	if len(messageIDs) == 0 {
		return []models.Reaction{}, nil
	}
	var reactions []models.Reaction
	err := r.db.SelectContext(ctx, &reactions, `SELECT message_id, user_id, emoji_index FROM message_reactions WHERE message_id = ANY($1)`, pq.Array(messageIDs))
	return reactions, err
}
