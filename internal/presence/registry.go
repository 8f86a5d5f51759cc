package presence

import "sync"

// Registry tracks which users currently hold a live connection. At most one
// connection per user is recorded; a later Register for the same user
// overwrites the earlier one (last-registered wins).
//
// The registry is injected rather than held as package state so it can be
// unit-tested and swapped for the Redis implementation in multi-instance
// deployments.
type Registry interface {
	// Register records connID as the user's live connection, replacing any
	// prior entry.
	Register(userID int64, connID string)
	// Unregister removes the entry only if connID still owns it, so a stale
	// socket's disconnect cannot evict its replacement. It reports whether
	// an entry was removed and is safe to call repeatedly.
	Unregister(userID int64, connID string) bool
	// Lookup returns the user's connection id if the user is online.
	Lookup(userID int64) (string, bool)
	// ListOnline returns the ids of all online users.
	ListOnline() []int64
}

// MemoryRegistry is the default single-process Registry.
type MemoryRegistry struct {
	mu    sync.RWMutex
	conns map[int64]string
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{conns: make(map[int64]string)}
}

func (r *MemoryRegistry) Register(userID int64, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[userID] = connID
}

func (r *MemoryRegistry) Unregister(userID int64, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.conns[userID]; ok && current == connID {
		delete(r.conns, userID)
		return true
	}
	return false
}

func (r *MemoryRegistry) Lookup(userID int64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.conns[userID]
	return connID, ok
}

func (r *MemoryRegistry) ListOnline() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	online := make([]int64, 0, len(r.conns))
	for userID := range r.conns {
		online = append(online, userID)
	}
	return online
}
