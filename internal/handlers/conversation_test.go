package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/middleware"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

func setupConversationRouter(handler *ConversationHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, int64(1))
		c.Next()
	})
	r.POST("/conversations/direct", handler.CreateDirect)
	r.POST("/conversations/group", handler.CreateGroup)
	r.GET("/conversations", handler.ListConversations)
	r.GET("/conversations/:conversation_id/name", handler.GetDisplayName)
	return r
}

func TestCreateDirectSuccess(t *testing.T) {
	conversationRepo := new(mocks.ConversationRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewConversationHandler(conversationRepo, userRepo, nil)
	router := setupConversationRouter(handler)

	userRepo.On("GetUser", mock.Anything, int64(2)).
		Return(models.User{ID: 2, Name: "Bob"}, nil).Once()
	conversationRepo.On("CreateDirect", mock.Anything, int64(1), int64(2), "Bob").
		Return(models.Conversation{ID: 10}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/direct", bytes.NewBufferString(`{"other_user_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int64
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(10), resp["conversation_id"])
	conversationRepo.AssertExpectations(t)
	userRepo.AssertExpectations(t)
}

func TestCreateDirectRepeatedReturnsSameConversation(t *testing.T) {
	conversationRepo := new(mocks.ConversationRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewConversationHandler(conversationRepo, userRepo, nil)
	router := setupConversationRouter(handler)

	userRepo.On("GetUser", mock.Anything, int64(2)).
		Return(models.User{ID: 2, Name: "Bob"}, nil).Twice()
	conversationRepo.On("CreateDirect", mock.Anything, int64(1), int64(2), "Bob").
		Return(models.Conversation{ID: 10}, nil).Twice()

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/conversations/direct", bytes.NewBufferString(`{"other_user_id":2}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]int64
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, int64(10), resp["conversation_id"])
	}
	conversationRepo.AssertExpectations(t)
}

func TestCreateDirectWithSelf(t *testing.T) {
	conversationRepo := new(mocks.ConversationRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewConversationHandler(conversationRepo, userRepo, nil)
	router := setupConversationRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/conversations/direct", bytes.NewBufferString(`{"other_user_id":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	userRepo.AssertNotCalled(t, "GetUser", mock.Anything, mock.Anything)
	conversationRepo.AssertNotCalled(t, "CreateDirect", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateDirectUnknownUser(t *testing.T) {
	conversationRepo := new(mocks.ConversationRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewConversationHandler(conversationRepo, userRepo, nil)
	router := setupConversationRouter(handler)

	userRepo.On("GetUser", mock.Anything, int64(99)).
		Return(models.User{}, repositories.ErrUserNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/direct", bytes.NewBufferString(`{"other_user_id":99}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	conversationRepo.AssertNotCalled(t, "CreateDirect", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateGroupSuccess(t *testing.T) {
	conversationRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(conversationRepo, new(mocks.UserRepositoryMock), nil)
	router := setupConversationRouter(handler)

	conversationRepo.On("CreateGroup", mock.Anything, int64(1), "Team", []int64{2, 3}).
		Return(models.Conversation{ID: 20}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/group", bytes.NewBufferString(`{"name":"Team","member_ids":[2,3]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	conversationRepo.AssertExpectations(t)
}

func TestCreateGroupTooFewMembers(t *testing.T) {
	conversationRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(conversationRepo, new(mocks.UserRepositoryMock), nil)
	router := setupConversationRouter(handler)

	conversationRepo.On("CreateGroup", mock.Anything, int64(1), "Team", []int64(nil)).
		Return(models.Conversation{}, repositories.ErrInvalidConversation).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/group", bytes.NewBufferString(`{"name":"Team"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at least 2 members")
}

func TestListConversationsEnrichment(t *testing.T) {
	conversationRepo := new(mocks.ConversationRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewConversationHandler(conversationRepo, userRepo, nil)
	router := setupConversationRouter(handler)

	now := time.Now()
	conversationRepo.On("ListForUser", mock.Anything, int64(1)).Return([]models.Conversation{
		{ID: 5, IsGroup: true, Name: "Team", MemberIDs: pq.Int64Array{1, 2, 3}},
		{ID: 6, IsGroup: false, Name: "Bob", MemberIDs: pq.Int64Array{1, 2}},
	}, nil).Once()
	userRepo.On("BulkUsers", mock.Anything, mock.MatchedBy(func(ids []int64) bool {
		return len(ids) == 3
	})).Return([]models.User{
		{ID: 1, Name: "Alice", LastActiveAt: now},
		{ID: 2, Name: "Bob", LastActiveAt: now},
		{ID: 3, Name: "Carol", LastActiveAt: now.Add(-2 * models.PresenceWindow)},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversations []conversationResponse `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 2)

	group := resp.Conversations[0]
	require.NotNil(t, group.OnlineCount)
	assert.Equal(t, 1, *group.OnlineCount, "only Bob is inside the presence window")
	assert.Nil(t, group.OtherUser)

	direct := resp.Conversations[1]
	require.NotNil(t, direct.OtherUser)
	assert.Equal(t, int64(2), direct.OtherUser.ID)
	require.NotNil(t, direct.IsOnline)
	assert.True(t, *direct.IsOnline)
	userRepo.AssertExpectations(t)
}

func TestGetDisplayNameDirectResolvesLiveName(t *testing.T) {
	conversationRepo := new(mocks.ConversationRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewConversationHandler(conversationRepo, userRepo, nil)
	router := setupConversationRouter(handler)

	// Stored snapshot says "Bob"; the member has since renamed.
	conversationRepo.On("GetConversation", mock.Anything, int64(6)).
		Return(models.Conversation{ID: 6, IsGroup: false, Name: "Bob", MemberIDs: pq.Int64Array{1, 2}}, nil).Once()
	userRepo.On("GetUser", mock.Anything, int64(2)).
		Return(models.User{ID: 2, Name: "Bobby"}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/6/name", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Bobby", resp["name"])
}

func TestGetDisplayNameGroupUsesStoredName(t *testing.T) {
	conversationRepo := new(mocks.ConversationRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewConversationHandler(conversationRepo, userRepo, nil)
	router := setupConversationRouter(handler)

	conversationRepo.On("GetConversation", mock.Anything, int64(5)).
		Return(models.Conversation{ID: 5, IsGroup: true, Name: "Team", MemberIDs: pq.Int64Array{1, 2, 3}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/5/name", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Team")
	userRepo.AssertNotCalled(t, "GetUser", mock.Anything, mock.Anything)
}

func TestGetDisplayNameMissingConversation(t *testing.T) {
	conversationRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(conversationRepo, new(mocks.UserRepositoryMock), nil)
	router := setupConversationRouter(handler)

	conversationRepo.On("GetConversation", mock.Anything, int64(99)).
		Return(models.Conversation{}, repositories.ErrConversationNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/99/name", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
