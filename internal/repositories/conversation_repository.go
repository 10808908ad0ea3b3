package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"messaging-service/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidConversation  = errors.New("invalid conversation")
)

// ConversationRepository abstracts conversation persistence and the derived
// membership index.
type ConversationRepository interface {
	CreateDirect(ctx context.Context, requesterID, otherUserID int64, nameSnapshot string) (models.Conversation, error)
	CreateGroup(ctx context.Context, requesterID int64, name string, memberIDs []int64) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error)
	ListForUser(ctx context.Context, userID int64) ([]models.Conversation, error)
	IsMember(ctx context.Context, conversationID, userID int64) (bool, error)
	BackfillMembershipIndex(ctx context.Context) (int64, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB, logger *zap.Logger) *ConversationRepo {
	return &ConversationRepo{db: db, logger: logger}
}

const conversationColumns = `id, is_group, name, member_ids, created_at`

// CreateDirect creates a direct conversation or returns the existing one for
// this unordered user pair. The name is a snapshot of the other user's display
// name at creation time; display paths re-resolve it live. Two concurrent
// first-contact calls can still both insert, an accepted rare duplicate since
// no unordered-pair uniqueness constraint exists.
func (r *ConversationRepo) CreateDirect(ctx context.Context, requesterID, otherUserID int64, nameSnapshot string) (models.Conversation, error) {
	if requesterID == otherUserID {
		return models.Conversation{}, ErrInvalidConversation
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// Scan the requester's membership index for an existing two-member
	// direct conversation that includes the other user.
	var existing models.Conversation
	lookup := `SELECT c.id, c.is_group, c.name, c.member_ids, c.created_at
        FROM conversations c
        INNER JOIN conversation_members cm ON cm.conversation_id = c.id AND cm.user_id=$1
        WHERE c.is_group = FALSE AND cardinality(c.member_ids) = 2 AND $2 = ANY(c.member_ids)
        LIMIT 1`
	err = tx.GetContext(ctx, &existing, lookup, requesterID, otherUserID)
	if err == nil {
		if commitErr := tx.Commit(); commitErr != nil {
			return models.Conversation{}, commitErr
		}
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, err
	}
	err = nil

	var conversation models.Conversation
	members := []int64{requesterID, otherUserID}
	if err = tx.QueryRowxContext(ctx, `INSERT INTO conversations (is_group, name, member_ids) VALUES (FALSE, $1, $2) RETURNING `+conversationColumns,
		nameSnapshot, pq.Array(members)).StructScan(&conversation); err != nil {
		return models.Conversation{}, err
	}

	for _, id := range members {
		if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_members (conversation_id, user_id) VALUES ($1, $2)`, conversation.ID, id); err != nil {
			return models.Conversation{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	r.logger.Info("direct conversation created", zap.Int64("conversation_id", conversation.ID))
	return conversation, nil
}

// CreateGroup creates a group conversation and its membership rows atomically.
// The member set is the deduplicated union of the requester and the given ids.
func (r *ConversationRepo) CreateGroup(ctx context.Context, requesterID int64, name string, memberIDs []int64) (models.Conversation, error) {
	members := uniqueMembers(requesterID, memberIDs)
	if len(members) < 2 {
		return models.Conversation{}, ErrInvalidConversation
	}

	groupName := strings.TrimSpace(name)
	if groupName == "" {
		groupName = "Group"
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var conversation models.Conversation
	if err = tx.QueryRowxContext(ctx, `INSERT INTO conversations (is_group, name, member_ids) VALUES (TRUE, $1, $2) RETURNING `+conversationColumns,
		groupName, pq.Array(members)).StructScan(&conversation); err != nil {
		return models.Conversation{}, err
	}

	for _, id := range members {
		if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_members (conversation_id, user_id) VALUES ($1, $2)`, conversation.ID, id); err != nil {
			return models.Conversation{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	r.logger.Info("group conversation created",
		zap.Int64("conversation_id", conversation.ID),
		zap.Int("members", len(members)),
	)
	return conversation, nil
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.GetContext(ctx, &conversation, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conversation, err
}

// ListForUser returns the user's conversations via the membership index, not a
// full conversations scan.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int64) ([]models.Conversation, error) {
	var conversations []models.Conversation
	query := `SELECT c.id, c.is_group, c.name, c.member_ids, c.created_at FROM conversations c
        INNER JOIN conversation_members cm ON cm.conversation_id = c.id
        WHERE cm.user_id=$1 ORDER BY c.created_at DESC`
	err := r.db.SelectContext(ctx, &conversations, query, userID)
	return conversations, err
}

// IsMember checks membership against the authoritative member array. An
// unknown conversation is reported as a non-member, not an error.
func (r *ConversationRepo) IsMember(ctx context.Context, conversationID, userID int64) (bool, error) {
	conversation, err := r.GetConversation(ctx, conversationID)
	if errors.Is(err, ErrConversationNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return conversation.HasMember(userID), nil
}

// BackfillMembershipIndex repairs the derived membership index from the
// authoritative member arrays. Idempotent; returns the number of rows added.
func (r *ConversationRepo) BackfillMembershipIndex(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO conversation_members (conversation_id, user_id)
        SELECT c.id, unnest(c.member_ids) FROM conversations c
        ON CONFLICT (conversation_id, user_id) DO NOTHING`)
	if err != nil {
		return 0, err
	}
	added, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if added > 0 {
		r.logger.Info("membership index backfilled", zap.Int64("rows_added", added))
	}
	return added, nil
}

// uniqueMembers dedupes the requester plus requested member ids into a sorted
// member set.
func uniqueMembers(requesterID int64, memberIDs []int64) []int64 {
	memberSet := map[int64]struct{}{requesterID: {}}
	for _, id := range memberIDs {
		memberSet[id] = struct{}{}
	}
	ids := make([]int64, 0, len(memberSet))
	for id := range memberSet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
