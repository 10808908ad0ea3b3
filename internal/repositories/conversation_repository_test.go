package repositories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestUniqueMembers(t *testing.T) {
	tests := []struct {
		name        string
		requesterID int64
		memberIDs   []int64
		want        []int64
	}{
		{"dedups and sorts", 1, []int64{3, 2, 3, 2}, []int64{1, 2, 3}},
		{"requester already listed", 1, []int64{1, 2}, []int64{1, 2}},
		{"requester always included", 5, []int64{2, 3}, []int64{2, 3, 5}},
		{"empty member list", 1, nil, []int64{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, uniqueMembers(tt.requesterID, tt.memberIDs))
		})
	}
}

func conversationRows(id int64, isGroup bool, name, memberIDs string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "is_group", "name", "member_ids", "created_at"}).
		AddRow(id, isGroup, name, memberIDs, time.Now())
}

func TestIsMemberChecksMemberArray(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepo(db, zap.NewNop())

	mock.ExpectQuery(`SELECT (.+) FROM conversations`).
		WithArgs(int64(5)).
		WillReturnRows(conversationRows(5, false, "Bob", "{1,2}"))

	member, err := repo.IsMember(context.Background(), 5, 2)
	require.NoError(t, err)
	assert.True(t, member)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsMemberOutsiderRejected(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepo(db, zap.NewNop())

	mock.ExpectQuery(`SELECT (.+) FROM conversations`).
		WithArgs(int64(5)).
		WillReturnRows(conversationRows(5, false, "Bob", "{1,2}"))

	member, err := repo.IsMember(context.Background(), 5, 9)
	require.NoError(t, err)
	assert.False(t, member)
}

func TestIsMemberUnknownConversation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepo(db, zap.NewNop())

	mock.ExpectQuery(`SELECT (.+) FROM conversations`).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	member, err := repo.IsMember(context.Background(), 99, 1)
	require.NoError(t, err)
	assert.False(t, member)
}
