package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"wafferli-chat-service/internal/chat"
	"wafferli-chat-service/internal/mocks"
	"wafferli-chat-service/internal/models"
	"wafferli-chat-service/internal/presence"
	"wafferli-chat-service/internal/typing"
)

// chatServiceStub records pipeline calls without touching storage.
type chatServiceStub struct {
	mu        sync.Mutex
	syncedFor []int64
}

func (s *chatServiceStub) SendMessage(ctx context.Context, authUserID int64, in chat.SendMessageInput) error {
	return nil
}

func (s *chatServiceStub) EditMessage(ctx context.Context, authUserID, conversationID, messageID int64, body string) error {
	return nil
}

func (s *chatServiceStub) DeleteMessage(ctx context.Context, authUserID, conversationID, messageID int64) error {
	return nil
}

func (s *chatServiceStub) MarkMessagesRead(ctx context.Context, authUserID, conversationID int64) error {
	return nil
}

func (s *chatServiceStub) SyncDeliveries(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncedFor = append(s.syncedFor, userID)
	return nil
}

type sessionFixture struct {
	hub           *Hub
	registry      *presence.MemoryRegistry
	tracker       *typing.Tracker
	service       *chatServiceStub
	users         *mocks.UserRepositoryMock
	conversations *mocks.ConversationRepositoryMock
	server        *httptest.Server
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &sessionFixture{
		hub:           NewHub(),
		registry:      presence.NewMemoryRegistry(),
		tracker:       typing.NewTracker(),
		service:       &chatServiceStub{},
		users:         new(mocks.UserRepositoryMock),
		conversations: new(mocks.ConversationRepositoryMock),
	}
	handler := NewSessionHandler(f.hub, f.registry, f.tracker, f.service, f.users, f.conversations, Config{})

	r := gin.New()
	r.GET("/ws", handler.Handle)
	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func (f *sessionFixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws" + query
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func readEvent(t *testing.T, client *websocket.Conn) models.Envelope {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := client.ReadMessage()
	require.NoError(t, err)
	var env models.Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	return env
}

func TestHandshakeRequiresUserID(t *testing.T) {
	f := newSessionFixture(t)

	resp, err := http.Get(f.server.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandshakeRejectsUnknownUser(t *testing.T) {
	f := newSessionFixture(t)
	f.users.On("Exists", mock.Anything, int64(9)).Return(false, nil).Once()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?user_id=9"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	f.users.AssertExpectations(t)
}

func TestConnectRunsHandshakeSequence(t *testing.T) {
	f := newSessionFixture(t)
	f.users.On("Exists", mock.Anything, int64(1)).Return(true, nil).Once()

	client := f.dial(t, "?user_id=1")

	env := readEvent(t, client)
	assert.Equal(t, models.EventConnectionSuccess, env.Event)

	env = readEvent(t, client)
	assert.Equal(t, models.EventOnlineUsers, env.Event)
	var online []int64
	require.NoError(t, json.Unmarshal(env.Data, &online))
	assert.Equal(t, []int64{1}, online)

	// Catch-up delivery sync ran for the connecting user.
	require.Eventually(t, func() bool {
		f.service.mu.Lock()
		defer f.service.mu.Unlock()
		return len(f.service.syncedFor) == 1 && f.service.syncedFor[0] == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, online1 := f.registry.Lookup(1)
	assert.True(t, online1)
}

func TestUnknownEventGetsErrorReply(t *testing.T) {
	f := newSessionFixture(t)
	f.users.On("Exists", mock.Anything, int64(1)).Return(true, nil).Once()

	client := f.dial(t, "?user_id=1")
	readEvent(t, client) // connection_success
	readEvent(t, client) // online_users_updated

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"event":"warp_drive","data":{}}`)))

	env := readEvent(t, client)
	assert.Equal(t, models.EventError, env.Event)
}

func TestDisconnectMidTypingEmitsSingleStop(t *testing.T) {
	f := newSessionFixture(t)
	f.users.On("Exists", mock.Anything, int64(1)).Return(true, nil).Once()

	// The peer holds a plain in-process connection joined to the room.
	peer := testConn("conn-peer", 2)
	f.hub.JoinRoom(10, peer)

	client := f.dial(t, "?user_id=1")
	readEvent(t, client)
	readEvent(t, client)

	require.NoError(t, client.WriteMessage(websocket.TextMessage,
		[]byte(`{"event":"typing_start","data":{"chat_room_id":10,"user_id":1}}`)))

	var start typingNotice
	select {
	case payload := <-peer.send:
		var env models.Envelope
		require.NoError(t, json.Unmarshal(payload, &env))
		require.Equal(t, models.EventUserTyping, env.Event)
		require.NoError(t, json.Unmarshal(env.Data, &start))
	case <-time.After(2 * time.Second):
		t.Fatal("peer never saw typing_start")
	}
	assert.True(t, start.IsTyping)

	// Drop the socket without a typing_stop.
	client.Close()

	var stop typingNotice
	select {
	case payload := <-peer.send:
		var env models.Envelope
		require.NoError(t, json.Unmarshal(payload, &env))
		require.Equal(t, models.EventUserTyping, env.Event)
		require.NoError(t, json.Unmarshal(env.Data, &stop))
	case <-time.After(2 * time.Second):
		t.Fatal("peer never saw the typing indicator clear")
	}
	assert.False(t, stop.IsTyping)
	assert.Equal(t, int64(10), stop.ChatRoomID)
	assert.Equal(t, int64(1), stop.UserID)

	// Exactly one stop: nothing further arrives for the peer.
	require.Eventually(t, func() bool {
		_, online := f.registry.Lookup(1)
		return !online
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, peer.send)
}

func TestJoinRoomRequiresMembership(t *testing.T) {
	f := newSessionFixture(t)
	f.users.On("Exists", mock.Anything, int64(1)).Return(true, nil).Once()
	f.conversations.On("IsParticipant", mock.Anything, int64(10), int64(1)).Return(false, nil).Once()

	client := f.dial(t, "?user_id=1")
	readEvent(t, client)
	readEvent(t, client)

	require.NoError(t, client.WriteMessage(websocket.TextMessage,
		[]byte(`{"event":"join_chat_room","data":{"chat_room_id":10}}`)))

	env := readEvent(t, client)
	assert.Equal(t, models.EventError, env.Event)
	f.conversations.AssertExpectations(t)
}
