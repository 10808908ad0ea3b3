package repositories

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReactionToggleClears(t *testing.T) {
	current := 2

	tests := []struct {
		name      string
		current   *int
		requested int
		clears    bool
	}{
		{"no existing reaction sets", nil, 2, false},
		{"same emoji clears", &current, 2, true},
		{"different emoji replaces", &current, 4, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.clears, reactionToggleClears(tt.current, tt.requested))
		})
	}
}

func expectReactionTx(mock sqlmock.Sqlmock, messageID int64) {
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(messageID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
}

func TestToggleReactionSameEmojiRemoves(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db, zap.NewNop())

	expectReactionTx(mock, 7)
	mock.ExpectQuery(`SELECT emoji_index FROM message_reactions`).
		WithArgs(int64(7), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"emoji_index"}).AddRow(2))
	mock.ExpectExec(`DELETE FROM message_reactions`).
		WithArgs(int64(7), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ToggleReaction(context.Background(), 7, 1, 2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToggleReactionDifferentEmojiReplaces(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db, zap.NewNop())

	expectReactionTx(mock, 7)
	mock.ExpectQuery(`SELECT emoji_index FROM message_reactions`).
		WithArgs(int64(7), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"emoji_index"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO message_reactions`).
		WithArgs(int64(7), int64(1), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ToggleReaction(context.Background(), 7, 1, 2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToggleReactionFirstReactionInserts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db, zap.NewNop())

	expectReactionTx(mock, 7)
	mock.ExpectQuery(`SELECT emoji_index FROM message_reactions`).
		WithArgs(int64(7), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"emoji_index"}))
	mock.ExpectExec(`INSERT INTO message_reactions`).
		WithArgs(int64(7), int64(1), 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ToggleReaction(context.Background(), 7, 1, 3))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToggleReactionMissingMessage(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := repo.ToggleReaction(context.Background(), 99, 1, 0)
	require.ErrorIs(t, err, ErrMessageNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
