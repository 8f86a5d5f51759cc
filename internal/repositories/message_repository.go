package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"wafferli-chat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// DeliveryUpdate identifies a message whose delivered_at was just set by
// catch-up sync, so the author can be notified if still online.
type DeliveryUpdate struct {
	ConversationID int64 `db:"conversation_id"`
	MessageID      int64 `db:"id"`
	AuthorID       int64 `db:"author_id"`
}

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	Create(ctx context.Context, msg models.Message) (models.Message, error)
	Get(ctx context.Context, messageID int64) (models.Message, error)
	ListForConversation(ctx context.Context, conversationID int64) ([]models.Message, error)
	UpdateBody(ctx context.Context, messageID int64, body string) (models.Message, error)
	SoftDelete(ctx context.Context, messageID int64) error
	MarkDelivered(ctx context.Context, messageID int64, at time.Time) error
	MarkUndeliveredFromPeers(ctx context.Context, userID int64, at time.Time) ([]DeliveryUpdate, error)
	MarkRead(ctx context.Context, conversationID, readerID int64, at time.Time) ([]int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, conversation_id, author_id, body, attachments, location, reply_to, item_ref, status, created_at, delivered_at, read_at`

// Create appends a message. created_at is set by the database; delivered_at
// and read_at start null.
func (r *MessageRepo) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	var out models.Message
	query := `INSERT INTO messages (conversation_id, author_id, body, attachments, location, reply_to, item_ref, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING ` + messageColumns
	err := r.db.GetContext(ctx, &out, query,
		msg.ConversationID, msg.AuthorID, msg.Body, pq.Array([]string(msg.Attachments)),
		msg.Location, msg.ReplyTo, msg.Item, models.StatusActive)
	return out, err
}

// Get retrieves a single message.
func (r *MessageRepo) Get(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListForConversation returns all messages of a conversation in send order.
// Deleted messages are included as tombstones; their content is stripped at
// the serialization boundary.
func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID int64) ([]models.Message, error) {
	var msgs []models.Message
	query := `SELECT ` + messageColumns + ` FROM messages
        WHERE conversation_id=$1 ORDER BY created_at ASC, id ASC`
	err := r.db.SelectContext(ctx, &msgs, query, conversationID)
	return msgs, err
}

// UpdateBody replaces the body of a non-deleted message and marks it edited.
func (r *MessageRepo) UpdateBody(ctx context.Context, messageID int64, body string) (models.Message, error) {
	var msg models.Message
	query := `UPDATE messages SET body=$2, status=$3
        WHERE id=$1 AND status <> $4
        RETURNING ` + messageColumns
	err := r.db.GetContext(ctx, &msg, query, messageID, body, models.StatusEdited, models.StatusDeleted)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// SoftDelete moves a message into the deleted state. The row is retained.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET status=$2 WHERE id=$1`, messageID, models.StatusDeleted)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// MarkDelivered sets delivered_at once for a single message. GREATEST keeps
// delivered_at >= created_at even when the app clock lags the database's.
func (r *MessageRepo) MarkDelivered(ctx context.Context, messageID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET delivered_at=GREATEST(created_at, $2) WHERE id=$1 AND delivered_at IS NULL`,
		messageID, at)
	return err
}

// MarkUndeliveredFromPeers is the catch-up sync query: across every
// conversation the user participates in, messages authored by the other
// participant that were never delivered get delivered_at set now.
func (r *MessageRepo) MarkUndeliveredFromPeers(ctx context.Context, userID int64, at time.Time) ([]DeliveryUpdate, error) {
	var updates []DeliveryUpdate
	query := `UPDATE messages m SET delivered_at=GREATEST(m.created_at, $2)
        FROM conversations c
        WHERE m.conversation_id = c.id
          AND (c.user1_id=$1 OR c.user2_id=$1)
          AND m.author_id <> $1
          AND m.delivered_at IS NULL
        RETURNING m.id, m.conversation_id, m.author_id`
	err := r.db.SelectContext(ctx, &updates, query, userID, at)
	return updates, err
}

// MarkRead sets read_at on every peer-authored unread message of the
// conversation and returns the affected ids.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationID, readerID int64, at time.Time) ([]int64, error) {
	var ids []int64
	query := `UPDATE messages
        SET delivered_at = COALESCE(delivered_at, GREATEST(created_at, $3)),
            read_at = GREATEST(COALESCE(delivered_at, created_at), $3)
        WHERE conversation_id=$1 AND author_id <> $2 AND read_at IS NULL
        RETURNING id`
	err := r.db.SelectContext(ctx, &ids, query, conversationID, readerID, at)
	return ids, err
}
