package models

import "time"

// Conversation is a private chat between exactly two users. The participant
// pair is stored ordered (user1_id < user2_id) and is unique, so the same
// pair always resolves to the same row regardless of who wrote first.
type Conversation struct {
	ID            int64      `db:"id" json:"id"`
	User1ID       int64      `db:"user1_id" json:"user1_id"`
	User2ID       int64      `db:"user2_id" json:"user2_id"`
	LastMessage   string     `db:"last_message" json:"last_message"`
	LastMessageAt *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	UnreadCount   int        `db:"unread_count" json:"unread_count"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c Conversation) HasParticipant(userID int64) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// PeerOf returns the other participant of the conversation.
func (c Conversation) PeerOf(userID int64) int64 {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// ConversationSummary is the list-view projection pushed to clients as
// chat_room_updated: the conversation plus the peer's display fields.
type ConversationSummary struct {
	Conversation
	Peer UserProfile `json:"peer"`
}
