package mocks

import (
	"context"
	"sync"
)

// BroadcastCall records one event forwarded through the broadcaster.
type BroadcastCall struct {
	Target string // "user", "conversation", "all"
	UserID int64
	ConvID int64
	Except string
	Event  string
	Data   any
}

// BroadcasterRecorder captures fanout instead of delivering it, so tests
// can assert exactly which events which participant would have seen.
type BroadcasterRecorder struct {
	mu    sync.Mutex
	Calls []BroadcastCall
}

func (b *BroadcasterRecorder) SendToUser(userID int64, event string, data any) {
	b.record(BroadcastCall{Target: "user", UserID: userID, Event: event, Data: data})
}

func (b *BroadcasterRecorder) SendToConversation(conversationID int64, event string, data any) {
	b.record(BroadcastCall{Target: "conversation", ConvID: conversationID, Event: event, Data: data})
}

func (b *BroadcasterRecorder) SendToConversationExcept(conversationID int64, exceptConnID, event string, data any) {
	b.record(BroadcastCall{Target: "conversation", ConvID: conversationID, Except: exceptConnID, Event: event, Data: data})
}

func (b *BroadcasterRecorder) BroadcastAll(event string, data any) {
	b.record(BroadcastCall{Target: "all", Event: event, Data: data})
}

func (b *BroadcasterRecorder) record(call BroadcastCall) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, call)
}

// EventsFor returns the event names sent to one user, in order.
func (b *BroadcasterRecorder) EventsFor(userID int64) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var events []string
	for _, call := range b.Calls {
		if call.Target == "user" && call.UserID == userID {
			events = append(events, call.Event)
		}
	}
	return events
}

// PublisherMock records published routing keys.
type PublisherMock struct {
	mu     sync.Mutex
	Events []string
}

func (p *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, routingKey)
	return nil
}

func (p *PublisherMock) Close() error { return nil }
