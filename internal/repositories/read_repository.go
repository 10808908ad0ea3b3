package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

// ReadRepository tracks per-user read positions and derives unread counts.
type ReadRepository interface {
	AdvanceReadPosition(ctx context.Context, conversationID, userID int64) error
	UnreadCounts(ctx context.Context, userID int64) (map[int64]int, error)
}

// ReadRepo is a sqlx implementation of ReadRepository.
type ReadRepo struct {
	db *sqlx.DB
}

// NewReadRepo constructs a ReadRepo.
func NewReadRepo(db *sqlx.DB) *ReadRepo {
	return &ReadRepo{db: db}
}

// AdvanceReadPosition points the user's read marker at the newest message in
// the conversation, deleted or not. No-op when the conversation has no
// messages. Targeting the absolute newest message keeps the marker from ever
// moving backward: a soft-deleted tail still pins it in place instead of
// re-surfacing as unread.
func (r *ReadRepo) AdvanceReadPosition(ctx context.Context, conversationID, userID int64) error {
	var latest models.Message
	err := r.db.GetContext(ctx, &latest, `SELECT `+messageColumns+` FROM messages
        WHERE conversation_id=$1
        ORDER BY created_at DESC, id DESC LIMIT 1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO conversation_reads (conversation_id, user_id, last_read_message_id) VALUES ($1, $2, $3)
        ON CONFLICT (conversation_id, user_id) DO UPDATE SET last_read_message_id = EXCLUDED.last_read_message_id`,
		conversationID, userID, latest.ID)
	return err
}

// UnreadCounts returns, for every conversation the user belongs to, how many
// messages were created after the user's last-read message. A missing read
// marker counts everything. One aggregate query over the membership index; at
// this scale a denormalized running count is not worth its write cost.
func (r *ReadRepo) UnreadCounts(ctx context.Context, userID int64) (map[int64]int, error) {
	query := `SELECT cm.conversation_id, COUNT(m.id) AS unread
        FROM conversation_members cm
        LEFT JOIN conversation_reads cr ON cr.conversation_id = cm.conversation_id AND cr.user_id = cm.user_id
        LEFT JOIN messages lr ON lr.id = cr.last_read_message_id
        LEFT JOIN messages m ON m.conversation_id = cm.conversation_id
            AND m.created_at > COALESCE(lr.created_at, 'epoch'::timestamptz)
        WHERE cm.user_id=$1
        GROUP BY cm.conversation_id`

	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var conversationID int64
		var unread int
		if err := rows.Scan(&conversationID, &unread); err != nil {
			return nil, err
		}
		counts[conversationID] = unread
	}
	return counts, rows.Err()
}
