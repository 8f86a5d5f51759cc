package models

import "encoding/json"

// Client -> server events.
const (
	EventSendMessage      = "send_message"
	EventEditMessage      = "edit_message"
	EventDeleteMessage    = "delete_message"
	EventTypingStart      = "typing_start"
	EventTypingStop       = "typing_stop"
	EventMarkMessagesRead = "mark_messages_read"
	EventJoinChatRoom     = "join_chat_room"
	EventLeaveChatRoom    = "leave_chat_room"
)

// Server -> client events.
const (
	EventConnectionSuccess = "connection_success"
	EventError             = "error"
	EventMessageSent       = "message_sent"
	EventNewMessage        = "new_message"
	EventMessageDelivered  = "message_delivered"
	EventMessageEdited     = "message_edited"
	EventMessageDeleted    = "message_deleted"
	EventMessagesRead      = "messages_read"
	EventChatRoomUpdated   = "chat_room_updated"
	EventUserTyping        = "user_typing"
	EventOnlineUsers       = "online_users_updated"
)

// Envelope is the wire frame of every inbound websocket event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
