package ws

import (
	"encoding/json"
	"testing"
)

func testConn(id string, userID int64) *Conn {
	return &Conn{
		ID:     id,
		UserID: userID,
		send:   make(chan []byte, 8),
		closed: make(chan struct{}),
	}
}

func received(t *testing.T, conn *Conn) outbound {
	t.Helper()
	select {
	case payload := <-conn.send:
		var out outbound
		if err := json.Unmarshal(payload, &out); err != nil {
			t.Fatalf("malformed payload: %v", err)
		}
		return out
	default:
		t.Fatalf("expected a payload on %s", conn.ID)
		return outbound{}
	}
}

func TestHubSendToUser(t *testing.T) {
	hub := NewHub()
	conn := testConn("conn-a", 1)
	hub.AddUser(conn)

	hub.SendToUser(1, "message_sent", map[string]int{"id": 5})

	out := received(t, conn)
	if out.Event != "message_sent" {
		t.Fatalf("unexpected event %q", out.Event)
	}
}

func TestHubSendToOfflineUserIsNoop(t *testing.T) {
	hub := NewHub()

	// Must not panic or block.
	hub.SendToUser(42, "message_sent", nil)
}

func TestHubAddUserReplacesPriorConnection(t *testing.T) {
	hub := NewHub()
	first := testConn("conn-a", 1)
	second := testConn("conn-b", 1)
	hub.AddUser(first)
	hub.AddUser(second)

	hub.SendToUser(1, "message_sent", nil)

	received(t, second)
	if len(first.send) != 0 {
		t.Fatalf("stale connection should not receive events")
	}
}

func TestHubRemoveIsIdentityChecked(t *testing.T) {
	hub := NewHub()
	first := testConn("conn-a", 1)
	second := testConn("conn-b", 1)
	hub.AddUser(first)
	hub.AddUser(second)

	// The replaced connection's cleanup must not evict the replacement.
	hub.Remove(first)

	hub.SendToUser(1, "message_sent", nil)
	received(t, second)
}

func TestHubRemoveIdempotent(t *testing.T) {
	hub := NewHub()
	conn := testConn("conn-a", 1)
	hub.AddUser(conn)
	hub.JoinRoom(10, conn)

	hub.Remove(conn)
	hub.Remove(conn)

	if len(hub.users) != 0 || len(hub.rooms) != 0 || len(hub.roomsByConn) != 0 {
		t.Fatalf("hub should be empty after removal")
	}
}

func TestHubConversationFanoutSkipsExcepted(t *testing.T) {
	hub := NewHub()
	a := testConn("conn-a", 1)
	b := testConn("conn-b", 2)
	hub.JoinRoom(10, a)
	hub.JoinRoom(10, b)

	hub.SendToConversationExcept(10, "conn-a", "user_typing", nil)

	if len(a.send) != 0 {
		t.Fatalf("excepted connection should not receive the event")
	}
	out := received(t, b)
	if out.Event != "user_typing" {
		t.Fatalf("unexpected event %q", out.Event)
	}
}

func TestHubLeaveRoomStopsFanout(t *testing.T) {
	hub := NewHub()
	a := testConn("conn-a", 1)
	hub.JoinRoom(10, a)
	hub.LeaveRoom(10, a)

	hub.SendToConversation(10, "user_typing", nil)

	if len(a.send) != 0 {
		t.Fatalf("left connection should not receive the event")
	}
	if len(hub.rooms) != 0 {
		t.Fatalf("empty room should be dropped")
	}
}

func TestHubBroadcastAll(t *testing.T) {
	hub := NewHub()
	a := testConn("conn-a", 1)
	b := testConn("conn-b", 2)
	hub.AddUser(a)
	hub.AddUser(b)

	hub.BroadcastAll("online_users_updated", []int64{1, 2})

	received(t, a)
	received(t, b)
}
