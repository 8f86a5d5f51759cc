package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"wafferli-chat-service/internal/mocks"
	"wafferli-chat-service/internal/models"
)

func setupRouter(handler *ConversationHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", int64(1))
		c.Next()
	})
	r.GET("/conversations", handler.List)
	r.GET("/conversations/:conversation_id/messages", handler.Messages)
	return r
}

func TestListConversationsSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewConversationHandler(convRepo, msgRepo, userRepo)
	router := setupRouter(handler)

	at := time.Now().UTC()
	convRepo.On("ListForUser", mock.Anything, int64(1)).Return([]models.Conversation{
		{ID: 10, User1ID: 1, User2ID: 2, LastMessage: "hi", LastMessageAt: &at, UnreadCount: 3},
	}, nil).Once()
	userRepo.On("GetProfiles", mock.Anything, []int64{2}).Return(map[int64]models.UserProfile{
		2: {ID: 2, Username: "bob", AvatarURL: "https://cdn/bob.png"},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversations []struct {
			ID          int64 `json:"id"`
			UnreadCount int   `json:"unread_count"`
			Peer        struct {
				Username string `json:"username"`
			} `json:"peer"`
		} `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, int64(10), resp.Conversations[0].ID)
	assert.Equal(t, 3, resp.Conversations[0].UnreadCount)
	assert.Equal(t, "bob", resp.Conversations[0].Peer.Username)

	convRepo.AssertExpectations(t)
	userRepo.AssertExpectations(t)
}

func TestListConversationsRepoError(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(convRepo, new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock))
	router := setupRouter(handler)

	convRepo.On("ListForUser", mock.Anything, int64(1)).Return(([]models.Conversation)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	convRepo.AssertExpectations(t)
}

func TestMessagesForbiddenForNonParticipant(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	handler := NewConversationHandler(convRepo, msgRepo, new(mocks.UserRepositoryMock))
	router := setupRouter(handler)

	convRepo.On("IsParticipant", mock.Anything, int64(10), int64(1)).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/10/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	msgRepo.AssertNotCalled(t, "ListForConversation", mock.Anything, mock.Anything)
}

func TestMessagesInvalidConversationID(t *testing.T) {
	handler := NewConversationHandler(new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock))
	router := setupRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/conversations/abc/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessagesDeletedComeBackAsTombstones(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	handler := NewConversationHandler(convRepo, msgRepo, new(mocks.UserRepositoryMock))
	router := setupRouter(handler)

	convRepo.On("IsParticipant", mock.Anything, int64(10), int64(1)).Return(true, nil).Once()
	msgRepo.On("ListForConversation", mock.Anything, int64(10)).Return([]models.Message{
		{ID: 5, ConversationID: 10, AuthorID: 2, Body: "secret", Status: models.StatusDeleted},
		{ID: 6, ConversationID: 10, AuthorID: 1, Body: "visible", Status: models.StatusActive},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/10/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []struct {
			ID      int64  `json:"id"`
			Message string `json:"message"`
			Deleted bool   `json:"deleted"`
		} `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 2)
	assert.True(t, resp.Messages[0].Deleted)
	assert.Empty(t, resp.Messages[0].Message)
	assert.Equal(t, "visible", resp.Messages[1].Message)

	convRepo.AssertExpectations(t)
	msgRepo.AssertExpectations(t)
}
