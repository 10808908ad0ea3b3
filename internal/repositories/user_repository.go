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

var ErrUserNotFound = errors.New("user not found")

// UserRepository abstracts the user directory.
type UserRepository interface {
	Upsert(ctx context.Context, externalID, name, email, avatarURL string) (models.User, error)
	GetByExternalID(ctx context.Context, externalID string) (models.User, error)
	GetUser(ctx context.Context, userID int64) (models.User, error)
	BulkUsers(ctx context.Context, ids []int64) ([]models.User, error)
	TouchPresence(ctx context.Context, userID int64) error
	ListOthers(ctx context.Context, excludeUserID int64, search string) ([]models.User, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB, logger *zap.Logger) *UserRepo {
	return &UserRepo{db: db, logger: logger}
}

// Upsert creates the user on first sync from the identity provider and
// refreshes profile fields on every later sync. Presence fields are only set
// on insert, so repeated syncs never disturb lastActiveAt.
func (r *UserRepo) Upsert(ctx context.Context, externalID, name, email, avatarURL string) (models.User, error) {
	var user models.User
	query := `INSERT INTO users (external_id, name, email, avatar_url)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (external_id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, avatar_url = EXCLUDED.avatar_url
        RETURNING id, external_id, name, email, avatar_url, last_active_at`
	err := r.db.QueryRowxContext(ctx, query, externalID, name, email, avatarURL).StructScan(&user)
	if err != nil {
		return models.User{}, err
	}
	r.logger.Debug("user synced", zap.Int64("user_id", user.ID))
	return user, nil
}

// GetByExternalID looks a user up by identity-provider id.
func (r *UserRepo) GetByExternalID(ctx context.Context, externalID string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, external_id, name, email, avatar_url, last_active_at FROM users WHERE external_id=$1`, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetUser fetches a user by internal id.
func (r *UserRepo) GetUser(ctx context.Context, userID int64) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, external_id, name, email, avatar_url, last_active_at FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// BulkUsers fetches multiple users in one query.
func (r *UserRepo) BulkUsers(ctx context.Context, ids []int64) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT id, external_id, name, email, avatar_url, last_active_at FROM users WHERE id = ANY($1)`, pq.Array(ids))
	return users, err
}

// TouchPresence refreshes the caller's last-active timestamp. The user id must
// come from the resolved session, never from a client field.
func (r *UserRepo) TouchPresence(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_active_at = NOW() WHERE id=$1`, userID)
	return err
}

// ListOthers returns every user except the given one, optionally filtered by a
// case-insensitive name/email substring match.
func (r *UserRepo) ListOthers(ctx context.Context, excludeUserID int64, search string) ([]models.User, error) {
	var users []models.User
	if search == "" {
		err := r.db.SelectContext(ctx, &users, `SELECT id, external_id, name, email, avatar_url, last_active_at FROM users WHERE id<>$1 ORDER BY name ASC`, excludeUserID)
		return users, err
	}
	pattern := "%" + search + "%"
	err := r.db.SelectContext(ctx, &users, `SELECT id, external_id, name, email, avatar_url, last_active_at FROM users
        WHERE id<>$1 AND (name ILIKE $2 OR email ILIKE $2) ORDER BY name ASC`, excludeUserID, pattern)
	return users, err
}
