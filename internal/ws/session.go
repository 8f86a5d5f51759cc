package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"wafferli-chat-service/internal/chat"
	"wafferli-chat-service/internal/models"
	"wafferli-chat-service/internal/observability"
	"wafferli-chat-service/internal/presence"
	"wafferli-chat-service/internal/repositories"
	"wafferli-chat-service/internal/typing"
)

// ChatService is the slice of the message pipeline the session dispatches
// into.
type ChatService interface {
	SendMessage(ctx context.Context, authUserID int64, in chat.SendMessageInput) error
	EditMessage(ctx context.Context, authUserID, conversationID, messageID int64, body string) error
	DeleteMessage(ctx context.Context, authUserID, conversationID, messageID int64) error
	MarkMessagesRead(ctx context.Context, authUserID, conversationID int64) error
	SyncDeliveries(ctx context.Context, userID int64) error
}

// Config bounds the websocket transport.
type Config struct {
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

func (c *Config) applyDefaults() {
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 1 << 22 // attachments travel base64-encoded
	}
}

// SessionHandler owns the per-connection lifecycle:
// Connecting -> Authenticated -> Active -> Disconnected.
type SessionHandler struct {
	hub           *Hub
	registry      presence.Registry
	tracker       *typing.Tracker
	service       ChatService
	users         repositories.UserRepository
	conversations repositories.ConversationRepository
	cfg           Config
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(
	hub *Hub,
	registry presence.Registry,
	tracker *typing.Tracker,
	service ChatService,
	users repositories.UserRepository,
	conversations repositories.ConversationRepository,
	cfg Config,
) *SessionHandler {
	cfg.applyDefaults()
	return &SessionHandler{
		hub:           hub,
		registry:      registry,
		tracker:       tracker,
		service:       service,
		users:         users,
		conversations: conversations,
		cfg:           cfg,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle performs the handshake and runs the session until disconnect. The
// user_id query parameter must resolve to a known, verified account;
// anything else is rejected before upgrade.
func (h *SessionHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("wafferli-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	rawID := c.Query("user_id")
	if rawID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	userID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	known, err := h.users.Exists(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "identity check failed"})
		return
	}
	if !known {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	conn := NewConn(userID, wsConn, h.cfg.SendBuffer, h.cfg.WriteWait, h.cfg.PingInterval)
	conn.Start()

	session := &session{handler: h, conn: conn, userID: userID}
	go session.run()
}

// session is one authenticated connection.
type session struct {
	handler *SessionHandler
	conn    *Conn
	userID  int64

	cleanupOnce sync.Once
}

func (s *session) run() {
	h := s.handler

	observability.IncWSActive()
	log.Info().Int64("user_id", s.userID).Str("conn_id", s.conn.ID).Msg("ws connected")

	// Presence and the personal channel first, so events raised by our own
	// catch-up sync can reach us.
	h.registry.Register(s.userID, s.conn.ID)
	h.hub.AddUser(s.conn)

	s.send(models.EventConnectionSuccess, gin.H{"user_id": s.userID, "conn_id": s.conn.ID})

	ctx := context.Background()
	if err := h.service.SyncDeliveries(ctx, s.userID); err != nil {
		log.Error().Err(err).Int64("user_id", s.userID).Msg("catch-up sync failed")
	}

	h.hub.BroadcastAll(models.EventOnlineUsers, h.registry.ListOnline())

	defer s.cleanup()
	s.readLoop()
}

func (s *session) readLoop() {
	ws := s.conn.ws
	ws.SetReadLimit(s.handler.cfg.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(s.handler.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.handler.cfg.PongWait))
	})

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Int64("user_id", s.userID).Msg("ws read ended")
			}
			return
		}
		s.dispatch(payload)
	}
}

// dispatch routes one inbound event. Panics and errors are contained per
// event: a failing operation reports an error to this connection and never
// terminates the session.
func (s *session) dispatch(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int64("user_id", s.userID).Msg("event handler panicked")
			s.sendError("internal error")
		}
	}()

	var env models.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		s.sendError("malformed event")
		return
	}
	observability.IncWSEvent(env.Event)

	ctx := context.Background()
	var err error
	switch env.Event {
	case models.EventSendMessage:
		var in chat.SendMessageInput
		if err = json.Unmarshal(env.Data, &in); err == nil {
			err = s.handler.service.SendMessage(ctx, s.userID, in)
		}
	case models.EventEditMessage:
		var in struct {
			ChatRoomID int64  `json:"chat_room_id"`
			MessageID  int64  `json:"message_id"`
			Message    string `json:"message"`
		}
		if err = json.Unmarshal(env.Data, &in); err == nil {
			err = s.handler.service.EditMessage(ctx, s.userID, in.ChatRoomID, in.MessageID, in.Message)
		}
	case models.EventDeleteMessage:
		var in struct {
			ChatRoomID int64 `json:"chat_room_id"`
			MessageID  int64 `json:"message_id"`
		}
		if err = json.Unmarshal(env.Data, &in); err == nil {
			err = s.handler.service.DeleteMessage(ctx, s.userID, in.ChatRoomID, in.MessageID)
		}
	case models.EventMarkMessagesRead:
		var in struct {
			ChatRoomID int64 `json:"chat_room_id"`
			UserID     int64 `json:"user_id"`
		}
		if err = json.Unmarshal(env.Data, &in); err == nil {
			if in.UserID != 0 && in.UserID != s.userID {
				err = chat.ErrUnauthorized
			} else {
				err = s.handler.service.MarkMessagesRead(ctx, s.userID, in.ChatRoomID)
			}
		}
	case models.EventTypingStart:
		err = s.handleTyping(env.Data, true)
	case models.EventTypingStop:
		err = s.handleTyping(env.Data, false)
	case models.EventJoinChatRoom:
		err = s.handleJoin(ctx, env.Data, true)
	case models.EventLeaveChatRoom:
		err = s.handleJoin(ctx, env.Data, false)
	default:
		err = chat.ErrValidation
	}

	if err != nil {
		log.Debug().Err(err).Str("event", env.Event).Int64("user_id", s.userID).Msg("event rejected")
		s.sendError(err.Error())
	}
}

type typingPayload struct {
	ChatRoomID int64 `json:"chat_room_id"`
	UserID     int64 `json:"user_id"`
}

type typingNotice struct {
	ChatRoomID int64 `json:"chat_room_id"`
	UserID     int64 `json:"user_id"`
	IsTyping   bool  `json:"is_typing"`
}

func (s *session) handleTyping(data json.RawMessage, start bool) error {
	var in typingPayload
	if err := json.Unmarshal(data, &in); err != nil {
		return chat.ErrValidation
	}
	if in.ChatRoomID <= 0 {
		return chat.ErrValidation
	}
	if in.UserID != s.userID {
		return chat.ErrUnauthorized
	}

	if start {
		s.handler.tracker.Start(s.conn.ID, in.ChatRoomID, s.userID)
	} else {
		s.handler.tracker.Stop(s.conn.ID)
	}
	s.handler.hub.SendToConversationExcept(in.ChatRoomID, s.conn.ID, models.EventUserTyping, typingNotice{
		ChatRoomID: in.ChatRoomID,
		UserID:     s.userID,
		IsTyping:   start,
	})
	return nil
}

func (s *session) handleJoin(ctx context.Context, data json.RawMessage, join bool) error {
	var in struct {
		ChatRoomID int64 `json:"chat_room_id"`
	}
	if err := json.Unmarshal(data, &in); err != nil || in.ChatRoomID <= 0 {
		return chat.ErrValidation
	}
	if !join {
		s.handler.hub.LeaveRoom(in.ChatRoomID, s.conn)
		return nil
	}

	member, err := s.handler.conversations.IsParticipant(ctx, in.ChatRoomID, s.userID)
	if err != nil {
		return err
	}
	if !member {
		return chat.ErrUnauthorized
	}
	s.handler.hub.JoinRoom(in.ChatRoomID, s.conn)
	return nil
}

// cleanup is the single exit routine shared by every disconnect cause:
// normal close, read error, missed keepalive. It is idempotent, so a
// duplicate disconnect signal is harmless.
func (s *session) cleanup() {
	s.cleanupOnce.Do(func() {
		h := s.handler

		if state, ok := h.tracker.Clear(s.conn.ID); ok {
			h.hub.SendToConversationExcept(state.ConversationID, s.conn.ID, models.EventUserTyping, typingNotice{
				ChatRoomID: state.ConversationID,
				UserID:     state.UserID,
				IsTyping:   false,
			})
		}

		h.hub.Remove(s.conn)
		s.conn.Close(websocket.CloseNormalClosure, "session ended")

		if h.registry.Unregister(s.userID, s.conn.ID) {
			h.hub.BroadcastAll(models.EventOnlineUsers, h.registry.ListOnline())
		}

		observability.DecWSActive()
		log.Info().Int64("user_id", s.userID).Str("conn_id", s.conn.ID).Msg("ws disconnected")
	})
}

func (s *session) send(event string, data any) {
	if payload := encodeEvent(event, data); payload != nil {
		_ = s.conn.Send(payload)
	}
}

func (s *session) sendError(message string) {
	s.send(models.EventError, gin.H{"message": message})
}
