package chat

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"wafferli-chat-service/internal/media"
	"wafferli-chat-service/internal/models"
	"wafferli-chat-service/internal/observability"
	"wafferli-chat-service/internal/presence"
	"wafferli-chat-service/internal/rabbitmq"
	"wafferli-chat-service/internal/repositories"
)

const (
	maxBodyLen        = 5000
	maxAttachments    = 5
	uploadParallelism = 3
)

// Broadcaster forwards events to live connections. Sending to an offline
// user is a silent no-op.
type Broadcaster interface {
	SendToUser(userID int64, event string, data any)
	SendToConversation(conversationID int64, event string, data any)
	SendToConversationExcept(conversationID int64, exceptConnID, event string, data any)
	BroadcastAll(event string, data any)
}

// AttachmentInput is one attachment payload of a send_message request.
type AttachmentInput struct {
	Data        string `json:"data"`
	ContentType string `json:"content_type"`
}

// SendMessageInput is the send_message contract.
type SendMessageInput struct {
	SenderID    int64             `json:"sender_id"`
	ReceiverID  int64             `json:"receiver_id"`
	Body        string            `json:"message"`
	Attachments []AttachmentInput `json:"images"`
	Location    *models.GeoPoint  `json:"location"`
	ReplyTo     *models.ReplyRef  `json:"reply_to"`
	Item        *models.ItemRef   `json:"product_reference"`
}

// DeliveryNotice tells a sender one of their messages reached the receiver.
type DeliveryNotice struct {
	ChatRoomID  int64     `json:"chat_room_id"`
	MessageID   int64     `json:"message_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// ReadNotice tells an author which of their messages were just read.
type ReadNotice struct {
	ChatRoomID int64   `json:"chat_room_id"`
	MessageIDs []int64 `json:"message_ids"`
}

// DeletionNotice identifies a soft-deleted message.
type DeletionNotice struct {
	ChatRoomID int64 `json:"chat_room_id"`
	MessageID  int64 `json:"message_id"`
}

// Service is the message pipeline: it validates, enriches, persists and
// dispatches every durable chat operation.
type Service struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	users         repositories.UserRepository
	uploader      media.Uploader
	presence      presence.Registry
	broadcaster   Broadcaster
	publisher     rabbitmq.Publisher
}

// NewService wires the pipeline.
func NewService(
	conversations repositories.ConversationRepository,
	messages repositories.MessageRepository,
	users repositories.UserRepository,
	uploader media.Uploader,
	registry presence.Registry,
	broadcaster Broadcaster,
	publisher rabbitmq.Publisher,
) *Service {
	return &Service{
		conversations: conversations,
		messages:      messages,
		users:         users,
		uploader:      uploader,
		presence:      registry,
		broadcaster:   broadcaster,
		publisher:     publisher,
	}
}

// SendMessage runs the full send pipeline for an authenticated sender.
// Validation failures abort before any side effect; an attachment upload
// failure aborts before anything is persisted.
func (s *Service) SendMessage(ctx context.Context, authUserID int64, in SendMessageInput) error {
	ctx, span := otel.Tracer("wafferli-chat/pipeline").Start(ctx, "chat.send_message")
	defer span.End()
	start := time.Now()

	if in.SenderID == 0 || in.ReceiverID == 0 {
		return validationErr("sender and receiver are required")
	}
	if in.SenderID == in.ReceiverID {
		return validationErr("cannot send a message to yourself")
	}
	if in.SenderID != authUserID {
		return ErrUnauthorized
	}
	if in.SenderID < 0 || in.ReceiverID < 0 {
		return validationErr("malformed user id")
	}
	body := strings.TrimSpace(in.Body)
	if len(body) > maxBodyLen {
		return validationErr("message exceeds %d characters", maxBodyLen)
	}
	if len(in.Attachments) > maxAttachments {
		return validationErr("at most %d attachments are allowed", maxAttachments)
	}
	if body == "" && len(in.Attachments) == 0 && in.Location == nil {
		return validationErr("message has no content")
	}

	refs, err := s.uploadAll(ctx, in.Attachments)
	if err != nil {
		return fmt.Errorf("upload attachments: %w", err)
	}

	conv, err := s.conversations.Upsert(ctx, in.SenderID, in.ReceiverID)
	if err != nil {
		return fmt.Errorf("find or create conversation: %w", err)
	}

	msg, err := s.messages.Create(ctx, models.Message{
		ConversationID: conv.ID,
		AuthorID:       in.SenderID,
		Body:           body,
		Attachments:    refs,
		Location:       models.NewNullGeoPoint(in.Location),
		ReplyTo:        models.NewNullReplyRef(in.ReplyTo),
		Item:           models.NewNullItemRef(in.Item),
	})
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}

	preview := previewFor(body, len(refs), in.Location != nil)
	if err := s.conversations.SetLastMessage(ctx, conv.ID, preview, msg.CreatedAt); err != nil {
		log.Error().Err(err).Int64("conversation_id", conv.ID).Msg("last message snapshot update failed")
	}
	if err := s.conversations.IncrementUnread(ctx, conv.ID); err != nil {
		log.Error().Err(err).Int64("conversation_id", conv.ID).Msg("unread increment failed")
	}
	conv.LastMessage = preview
	conv.LastMessageAt = &msg.CreatedAt
	conv.UnreadCount++

	s.publish(ctx, "chat.message_sent", conv.ID, msg)
	s.broadcaster.SendToUser(in.SenderID, models.EventMessageSent, msg)

	if _, online := s.presence.Lookup(in.ReceiverID); online {
		now := time.Now().UTC()
		if err := s.messages.MarkDelivered(ctx, msg.ID, now); err != nil {
			log.Error().Err(err).Int64("message_id", msg.ID).Msg("mark delivered failed")
		} else {
			if now.Before(msg.CreatedAt) {
				now = msg.CreatedAt
			}
			msg.DeliveredAt = &now
			s.broadcaster.SendToUser(in.ReceiverID, models.EventNewMessage, msg)
			s.broadcaster.SendToUser(in.SenderID, models.EventMessageDelivered, DeliveryNotice{
				ChatRoomID:  conv.ID,
				MessageID:   msg.ID,
				DeliveredAt: now,
			})
			s.publish(ctx, "chat.message_delivered", conv.ID, msg)
		}
	}

	s.pushSummaries(ctx, conv)

	observability.IncMessagesSent()
	observability.ObserveSendDuration(time.Since(start))
	return nil
}

// uploadAll uploads every attachment with bounded parallelism. The policy is
// all-or-nothing: one failed upload aborts the send. Objects already
// uploaded by the failed batch are not rolled back; that leak is accepted.
func (s *Service) uploadAll(ctx context.Context, attachments []AttachmentInput) (pq.StringArray, error) {
	if len(attachments) == 0 {
		return pq.StringArray{}, nil
	}

	refs := make([]string, len(attachments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadParallelism)
	for i, att := range attachments {
		i, att := i, att
		g.Go(func() error {
			data, err := base64.StdEncoding.DecodeString(att.Data)
			if err != nil {
				return validationErr("attachment %d is not valid base64", i+1)
			}
			contentType := att.ContentType
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			ref, err := s.uploader.Upload(gctx, contentType, data)
			if err != nil {
				return err
			}
			refs[i] = ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}

// EditMessage replaces the body of the caller's own message.
func (s *Service) EditMessage(ctx context.Context, authUserID, conversationID, messageID int64, body string) error {
	if conversationID <= 0 || messageID <= 0 {
		return validationErr("conversation and message ids are required")
	}
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.ConversationID != conversationID {
		return validationErr("message does not belong to conversation")
	}
	if msg.AuthorID != authUserID {
		return ErrUnauthorized
	}
	if msg.Deleted() {
		return validationErr("message is deleted")
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return validationErr("message has no content")
	}
	if len(body) > maxBodyLen {
		body = body[:maxBodyLen]
	}

	updated, err := s.messages.UpdateBody(ctx, messageID, body)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	s.publish(ctx, "chat.message_edited", conv.ID, updated)
	s.broadcaster.SendToUser(conv.User1ID, models.EventMessageEdited, updated)
	s.broadcaster.SendToUser(conv.User2ID, models.EventMessageEdited, updated)
	return nil
}

// DeleteMessage soft-deletes the caller's own message. Attachment objects
// are removed best-effort: individual failures are logged, not retried, and
// never block the deletion.
func (s *Service) DeleteMessage(ctx context.Context, authUserID, conversationID, messageID int64) error {
	if conversationID <= 0 || messageID <= 0 {
		return validationErr("conversation and message ids are required")
	}
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.ConversationID != conversationID {
		return validationErr("message does not belong to conversation")
	}
	if msg.AuthorID != authUserID {
		return ErrUnauthorized
	}

	if err := s.messages.SoftDelete(ctx, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	for _, ref := range msg.Attachments {
		if err := s.uploader.Delete(ctx, ref); err != nil {
			log.Warn().Err(err).Str("ref", ref).Int64("message_id", messageID).
				Msg("attachment cleanup failed")
		}
	}

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	notice := DeletionNotice{ChatRoomID: conversationID, MessageID: messageID}
	s.publish(ctx, "chat.message_deleted", conv.ID, notice)
	s.broadcaster.SendToUser(conv.User1ID, models.EventMessageDeleted, notice)
	s.broadcaster.SendToUser(conv.User2ID, models.EventMessageDeleted, notice)
	return nil
}

// MarkMessagesRead marks every peer-authored unread message of the
// conversation read, resets the unread counter and notifies the peer.
func (s *Service) MarkMessagesRead(ctx context.Context, authUserID, conversationID int64) error {
	if conversationID <= 0 {
		return validationErr("conversation id is required")
	}
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(authUserID) {
		return ErrUnauthorized
	}

	ids, err := s.messages.MarkRead(ctx, conversationID, authUserID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if err := s.conversations.ResetUnread(ctx, conversationID); err != nil {
		log.Error().Err(err).Int64("conversation_id", conversationID).Msg("unread reset failed")
	}
	conv.UnreadCount = 0

	notice := ReadNotice{ChatRoomID: conversationID, MessageIDs: ids}
	s.publish(ctx, "chat.messages_read", conv.ID, notice)
	s.broadcaster.SendToUser(conv.PeerOf(authUserID), models.EventMessagesRead, notice)
	s.pushSummaries(ctx, conv)
	return nil
}

// SyncDeliveries is catch-up sync, run when a user connects: every message
// sent to them while offline is marked delivered, and authors that are
// online right now are told.
func (s *Service) SyncDeliveries(ctx context.Context, userID int64) error {
	at := time.Now().UTC()
	updates, err := s.messages.MarkUndeliveredFromPeers(ctx, userID, at)
	if err != nil {
		return fmt.Errorf("delivery sync: %w", err)
	}
	for _, u := range updates {
		if _, online := s.presence.Lookup(u.AuthorID); online {
			s.broadcaster.SendToUser(u.AuthorID, models.EventMessageDelivered, DeliveryNotice{
				ChatRoomID:  u.ConversationID,
				MessageID:   u.MessageID,
				DeliveredAt: at,
			})
		}
	}
	if len(updates) > 0 {
		log.Info().Int64("user_id", userID).Int("count", len(updates)).Msg("catch-up deliveries applied")
	}
	return nil
}

// pushSummaries refreshes the conversation list entry on both participants'
// personal channels.
func (s *Service) pushSummaries(ctx context.Context, conv models.Conversation) {
	profiles, err := s.users.GetProfiles(ctx, []int64{conv.User1ID, conv.User2ID})
	if err != nil {
		log.Error().Err(err).Int64("conversation_id", conv.ID).Msg("profile enrichment failed")
		profiles = map[int64]models.UserProfile{}
	}
	for _, userID := range []int64{conv.User1ID, conv.User2ID} {
		s.broadcaster.SendToUser(userID, models.EventChatRoomUpdated, models.ConversationSummary{
			Conversation: conv,
			Peer:         profiles[conv.PeerOf(userID)],
		})
	}
}

func (s *Service) publish(ctx context.Context, routingKey string, conversationID int64, payload any) {
	if s.publisher == nil {
		return
	}
	envelope := rabbitmq.EventEnvelope{
		SchemaVersion:  1,
		EventType:      routingKey,
		OccurredAt:     time.Now().UTC().Format(time.RFC3339Nano),
		ConversationID: conversationID,
		Payload:        payload,
	}
	if err := s.publisher.Publish(ctx, routingKey, envelope); err != nil {
		log.Error().Err(err).Str("routing_key", routingKey).Msg("event publish failed")
	}
}

func previewFor(body string, attachmentCount int, hasLocation bool) string {
	switch {
	case body != "":
		return body
	case attachmentCount == 1:
		return "1 attachment"
	case attachmentCount > 1:
		return fmt.Sprintf("%d attachments", attachmentCount)
	case hasLocation:
		return "location"
	default:
		return ""
	}
}
