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

	"messaging-service/internal/identity"
	"messaging-service/internal/middleware"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
)

func setupUserRouter(handler *UserHandler, withSession bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if withSession {
			claims := &identity.SessionClaims{Name: "Alice", Email: "alice@example.com"}
			claims.Subject = "ext_1"
			c.Set(middleware.ClaimsKey, claims)
			c.Set(middleware.UserIDKey, int64(1))
		}
		c.Next()
	})
	r.POST("/users/sync", handler.SyncUser)
	r.GET("/users/me", handler.Me)
	r.POST("/users/heartbeat", handler.Heartbeat)
	r.GET("/users", handler.ListUsers)
	return r
}

func TestSyncUserSuccess(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewUserHandler(userRepo, nil)
	router := setupUserRouter(handler, true)

	userRepo.On("Upsert", mock.Anything, "ext_1", "Alice", "alice@example.com", "").
		Return(models.User{ID: 1, ExternalID: "ext_1", Name: "Alice"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/users/sync", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int64
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(1), resp["user_id"])
	userRepo.AssertExpectations(t)
}

func TestSyncUserBodyFillsMissingClaims(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewUserHandler(userRepo, nil)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		claims := &identity.SessionClaims{}
		claims.Subject = "ext_2"
		c.Set(middleware.ClaimsKey, claims)
		c.Next()
	})
	router.POST("/users/sync", handler.SyncUser)

	userRepo.On("Upsert", mock.Anything, "ext_2", "Bob", "bob@example.com", "https://cdn/avatar.png").
		Return(models.User{ID: 2}, nil).Once()

	body := bytes.NewBufferString(`{"name":"Bob","email":"bob@example.com","avatar_url":"https://cdn/avatar.png"}`)
	req := httptest.NewRequest(http.MethodPost, "/users/sync", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	userRepo.AssertExpectations(t)
}

func TestSyncUserMissingSession(t *testing.T) {
	handler := NewUserHandler(new(mocks.UserRepositoryMock), nil)
	router := setupUserRouter(handler, false)

	req := httptest.NewRequest(http.MethodPost, "/users/sync", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeNotSynced(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewUserHandler(userRepo, nil)
	router := setupUserRouter(handler, true)

	userRepo.On("GetByExternalID", mock.Anything, "ext_1").Return(models.User{}, assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	userRepo.AssertExpectations(t)
}

func TestHeartbeatTouchesPresence(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewUserHandler(userRepo, nil)
	router := setupUserRouter(handler, true)

	userRepo.On("TouchPresence", mock.Anything, int64(1)).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/users/heartbeat", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	userRepo.AssertExpectations(t)
}

func TestListUsersPassesSearchTerm(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewUserHandler(userRepo, nil)
	router := setupUserRouter(handler, true)

	userRepo.On("ListOthers", mock.Anything, int64(1), "bo").
		Return([]models.User{{ID: 2, Name: "Bob"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/users?search=bo", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	userRepo.AssertExpectations(t)
}
