package typing

import "sync"

// State records an in-progress typing signal for a single connection.
type State struct {
	ConversationID int64
	UserID         int64
}

// Tracker keeps the ephemeral typing state per connection. Entries vanish on
// typing_stop and on disconnect; they are never persisted.
type Tracker struct {
	mu     sync.Mutex
	states map[string]State
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]State)}
}

// Start records that the connection is typing in a conversation. A second
// Start overwrites the first, matching a user switching conversations
// without an explicit stop.
func (t *Tracker) Start(connID string, conversationID, userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[connID] = State{ConversationID: conversationID, UserID: userID}
}

// Stop removes the connection's typing state if present.
func (t *Tracker) Stop(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, connID)
}

// Clear removes and returns any typing state for the connection. The
// disconnect path calls it on every exit so the peer never sees a stuck
// typing indicator; calling it when no entry exists is a no-op.
func (t *Tracker) Clear(connID string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.states[connID]
	if ok {
		delete(t.states, connID)
	}
	return state, ok
}
