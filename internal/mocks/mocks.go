package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"wafferli-chat-service/internal/models"
	"wafferli-chat-service/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) Upsert(ctx context.Context, userA, userB int64) (models.Conversation, error) {
	args := m.Called(ctx, userA, userB)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) Get(ctx context.Context, conversationID int64) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID int64) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	var convs []models.Conversation
	if val := args.Get(0); val != nil {
		convs = val.([]models.Conversation)
	}
	return convs, args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) SetLastMessage(ctx context.Context, conversationID int64, preview string, at time.Time) error {
	args := m.Called(ctx, conversationID, preview, at)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) IncrementUnread(ctx context.Context, conversationID int64) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) ResetUnread(ctx context.Context, conversationID int64) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) ListForConversation(ctx context.Context, conversationID int64) ([]models.Message, error) {
	args := m.Called(ctx, conversationID)
	var out []models.Message
	if val := args.Get(0); val != nil {
		out = val.([]models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateBody(ctx context.Context, messageID int64, body string) (models.Message, error) {
	args := m.Called(ctx, messageID, body)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, messageID int64) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) MarkDelivered(ctx context.Context, messageID int64, at time.Time) error {
	args := m.Called(ctx, messageID, at)
	return args.Error(0)
}

func (m *MessageRepositoryMock) MarkUndeliveredFromPeers(ctx context.Context, userID int64, at time.Time) ([]repositories.DeliveryUpdate, error) {
	args := m.Called(ctx, userID, at)
	var out []repositories.DeliveryUpdate
	if val := args.Get(0); val != nil {
		out = val.([]repositories.DeliveryUpdate)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, conversationID, readerID int64, at time.Time) ([]int64, error) {
	args := m.Called(ctx, conversationID, readerID, at)
	var out []int64
	if val := args.Get(0); val != nil {
		out = val.([]int64)
	}
	return out, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) Exists(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *UserRepositoryMock) GetProfile(ctx context.Context, userID int64) (models.UserProfile, error) {
	args := m.Called(ctx, userID)
	var out models.UserProfile
	if val := args.Get(0); val != nil {
		out = val.(models.UserProfile)
	}
	return out, args.Error(1)
}

func (m *UserRepositoryMock) GetProfiles(ctx context.Context, userIDs []int64) (map[int64]models.UserProfile, error) {
	args := m.Called(ctx, userIDs)
	var out map[int64]models.UserProfile
	if val := args.Get(0); val != nil {
		out = val.(map[int64]models.UserProfile)
	}
	return out, args.Error(1)
}

type UploaderMock struct {
	mock.Mock
}

func (m *UploaderMock) Upload(ctx context.Context, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, contentType, data)
	return args.String(0), args.Error(1)
}

func (m *UploaderMock) Delete(ctx context.Context, ref string) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}
