package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/middleware"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/ws"
)

func setupPresenceRouter(handler *PresenceHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, int64(1))
		c.Next()
	})
	r.PUT("/conversations/:conversation_id/typing", handler.SetTyping)
	r.GET("/conversations/:conversation_id/typing", handler.GetTypingUsers)
	r.POST("/conversations/:conversation_id/read", handler.AdvanceRead)
	r.GET("/unread-counts", handler.UnreadCounts)
	return r
}

func TestSetTyping(t *testing.T) {
	typingRepo := new(mocks.TypingRepositoryMock)
	handler := NewPresenceHandler(typingRepo, new(mocks.ReadRepositoryMock), ws.NewHub(nil))
	router := setupPresenceRouter(handler)

	typingRepo.On("SetTyping", mock.Anything, int64(5), int64(1), true).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/conversations/5/typing", bytes.NewBufferString(`{"is_typing":true}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	typingRepo.AssertExpectations(t)
}

func TestSetTypingFalseIsExplicit(t *testing.T) {
	typingRepo := new(mocks.TypingRepositoryMock)
	handler := NewPresenceHandler(typingRepo, new(mocks.ReadRepositoryMock), ws.NewHub(nil))
	router := setupPresenceRouter(handler)

	typingRepo.On("SetTyping", mock.Anything, int64(5), int64(1), false).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/conversations/5/typing", bytes.NewBufferString(`{"is_typing":false}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	typingRepo.AssertExpectations(t)
}

func TestSetTypingMissingFlag(t *testing.T) {
	typingRepo := new(mocks.TypingRepositoryMock)
	handler := NewPresenceHandler(typingRepo, new(mocks.ReadRepositoryMock), ws.NewHub(nil))
	router := setupPresenceRouter(handler)

	req := httptest.NewRequest(http.MethodPut, "/conversations/5/typing", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	typingRepo.AssertNotCalled(t, "SetTyping", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetTypingUsers(t *testing.T) {
	typingRepo := new(mocks.TypingRepositoryMock)
	handler := NewPresenceHandler(typingRepo, new(mocks.ReadRepositoryMock), ws.NewHub(nil))
	router := setupPresenceRouter(handler)

	typingRepo.On("TypingUsers", mock.Anything, int64(5)).
		Return([]models.TypingUser{{UserID: 2, Name: "Bob"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/5/typing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Typing []models.TypingUser `json:"typing"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Typing, 1)
	assert.Equal(t, "Bob", resp.Typing[0].Name)
}

func TestAdvanceRead(t *testing.T) {
	readRepo := new(mocks.ReadRepositoryMock)
	handler := NewPresenceHandler(new(mocks.TypingRepositoryMock), readRepo, ws.NewHub(nil))
	router := setupPresenceRouter(handler)

	readRepo.On("AdvanceReadPosition", mock.Anything, int64(5), int64(1)).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/5/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	readRepo.AssertExpectations(t)
}

func TestUnreadCounts(t *testing.T) {
	readRepo := new(mocks.ReadRepositoryMock)
	handler := NewPresenceHandler(new(mocks.TypingRepositoryMock), readRepo, ws.NewHub(nil))
	router := setupPresenceRouter(handler)

	readRepo.On("UnreadCounts", mock.Anything, int64(1)).
		Return(map[int64]int{5: 3, 6: 0}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/unread-counts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		UnreadCounts map[string]int `json:"unread_counts"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 3, resp.UnreadCounts["5"])
	assert.Equal(t, 0, resp.UnreadCounts["6"])
}
