package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// MessageStatus is the lifecycle state of a message. Rows are never removed;
// deletion only moves a message into StatusDeleted.
type MessageStatus string

const (
	StatusActive  MessageStatus = "active"
	StatusEdited  MessageStatus = "edited"
	StatusDeleted MessageStatus = "deleted"
)

// Message is a single chat message.
//
// Delivery state machine: delivered_at is null until the receiver is online
// (set immediately on send, or by catch-up sync on the receiver's next
// connect); read_at is null until the receiver marks the conversation read.
// delivered_at is never before created_at and read_at never before
// delivered_at.
type Message struct {
	ID             int64          `db:"id"`
	ConversationID int64          `db:"conversation_id"`
	AuthorID       int64          `db:"author_id"`
	Body           string         `db:"body"`
	Attachments    pq.StringArray `db:"attachments"`
	Location       NullGeoPoint   `db:"location"`
	ReplyTo        NullReplyRef   `db:"reply_to"`
	Item           NullItemRef    `db:"item_ref"`
	Status         MessageStatus  `db:"status"`
	CreatedAt      time.Time      `db:"created_at"`
	DeliveredAt    *time.Time     `db:"delivered_at"`
	ReadAt         *time.Time     `db:"read_at"`
}

// Edited reports whether the message body has been replaced.
func (m Message) Edited() bool { return m.Status == StatusEdited }

// Deleted reports whether the message has been soft-deleted.
func (m Message) Deleted() bool { return m.Status == StatusDeleted }

// MarshalJSON renders the wire shape of a message. Deleted messages keep
// their row but expose no content.
func (m Message) MarshalJSON() ([]byte, error) {
	body := m.Body
	attachments := []string(m.Attachments)
	if m.Deleted() {
		body = ""
		attachments = nil
	}
	if attachments == nil {
		attachments = []string{}
	}
	return json.Marshal(struct {
		ID          int64      `json:"id"`
		ChatRoomID  int64      `json:"chat_room_id"`
		SenderID    int64      `json:"sender_id"`
		Message     string     `json:"message"`
		Images      []string   `json:"images"`
		Location    *GeoPoint  `json:"location,omitempty"`
		ReplyTo     *ReplyRef  `json:"reply_to,omitempty"`
		Item        *ItemRef   `json:"product_reference,omitempty"`
		Edited      bool       `json:"edited"`
		Deleted     bool       `json:"deleted"`
		CreatedAt   time.Time  `json:"created_at"`
		DeliveredAt *time.Time `json:"delivered_at"`
		ReadAt      *time.Time `json:"read_at"`
	}{
		ID:          m.ID,
		ChatRoomID:  m.ConversationID,
		SenderID:    m.AuthorID,
		Message:     body,
		Images:      attachments,
		Location:    m.Location.Ptr(),
		ReplyTo:     m.ReplyTo.Ptr(),
		Item:        m.Item.Ptr(),
		Edited:      m.Edited(),
		Deleted:     m.Deleted(),
		CreatedAt:   m.CreatedAt,
		DeliveredAt: m.DeliveredAt,
		ReadAt:      m.ReadAt,
	})
}
