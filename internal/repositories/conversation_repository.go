package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"wafferli-chat-service/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	Upsert(ctx context.Context, userA, userB int64) (models.Conversation, error)
	Get(ctx context.Context, conversationID int64) (models.Conversation, error)
	ListForUser(ctx context.Context, userID int64) ([]models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
	SetLastMessage(ctx context.Context, conversationID int64, preview string, at time.Time) error
	IncrementUnread(ctx context.Context, conversationID int64) error
	ResetUnread(ctx context.Context, conversationID int64) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `id, user1_id, user2_id, last_message, last_message_at, unread_count, created_at`

// Upsert finds or creates the conversation for the unordered participant
// pair in a single statement. Two near-simultaneous first messages between
// the same pair race on creation; the ON CONFLICT clause against the unique
// (user1_id, user2_id) index makes both resolve to the same row.
func (r *ConversationRepo) Upsert(ctx context.Context, userA, userB int64) (models.Conversation, error) {
	if userA == userB {
		return models.Conversation{}, errors.New("cannot create conversation with self")
	}
	user1, user2 := userA, userB
	if user1 > user2 {
		user1, user2 = user2, user1
	}

	var conv models.Conversation
	query := `INSERT INTO conversations (user1_id, user2_id) VALUES ($1, $2)
        ON CONFLICT (user1_id, user2_id) DO UPDATE SET user1_id = EXCLUDED.user1_id
        RETURNING ` + conversationColumns
	err := r.db.GetContext(ctx, &conv, query, user1, user2)
	return conv, err
}

// Get fetches a conversation by id.
func (r *ConversationRepo) Get(ctx context.Context, conversationID int64) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv,
		`SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// ListForUser returns the user's conversations, most recently active first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int64) ([]models.Conversation, error) {
	var convs []models.Conversation
	query := `SELECT ` + conversationColumns + ` FROM conversations
        WHERE user1_id=$1 OR user2_id=$1
        ORDER BY last_message_at DESC NULLS LAST, created_at DESC`
	err := r.db.SelectContext(ctx, &convs, query, userID)
	return convs, err
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM conversations WHERE id=$1 AND (user1_id=$2 OR user2_id=$2))`,
		conversationID, userID)
	return exists, err
}

// SetLastMessage refreshes the denormalized lastMessage snapshot.
func (r *ConversationRepo) SetLastMessage(ctx context.Context, conversationID int64, preview string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET last_message=$2, last_message_at=$3 WHERE id=$1`,
		conversationID, preview, at)
	return err
}

// IncrementUnread bumps the unread counter after a new message.
func (r *ConversationRepo) IncrementUnread(ctx context.Context, conversationID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET unread_count = unread_count + 1 WHERE id=$1`, conversationID)
	return err
}

// ResetUnread clears the unread counter when the conversation is read.
// Conversations are strictly two-party, so a single counter is enough: it
// always counts messages unread by the participant who did not write last.
func (r *ConversationRepo) ResetUnread(ctx context.Context, conversationID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET unread_count = 0 WHERE id=$1`, conversationID)
	return err
}
