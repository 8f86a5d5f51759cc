package presence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistryLastRegistrationWins(t *testing.T) {
	reg := NewMemoryRegistry()

	reg.Register(1, "conn-a")
	reg.Register(1, "conn-b")

	connID, online := reg.Lookup(1)
	require.True(t, online)
	assert.Equal(t, "conn-b", connID)
}

func TestMemoryRegistryStaleUnregisterKeepsReplacement(t *testing.T) {
	reg := NewMemoryRegistry()

	reg.Register(1, "conn-a")
	reg.Register(1, "conn-b")

	// The old socket's disconnect fires after the replacement registered.
	removed := reg.Unregister(1, "conn-a")
	assert.False(t, removed)

	_, online := reg.Lookup(1)
	assert.True(t, online)

	removed = reg.Unregister(1, "conn-b")
	assert.True(t, removed)
	_, online = reg.Lookup(1)
	assert.False(t, online)
}

func TestMemoryRegistryUnregisterIdempotent(t *testing.T) {
	reg := NewMemoryRegistry()

	reg.Register(1, "conn-a")
	assert.True(t, reg.Unregister(1, "conn-a"))
	assert.False(t, reg.Unregister(1, "conn-a"))
	assert.False(t, reg.Unregister(2, "conn-x"))
}

func TestMemoryRegistryListOnline(t *testing.T) {
	reg := NewMemoryRegistry()

	assert.Empty(t, reg.ListOnline())

	reg.Register(1, "conn-a")
	reg.Register(2, "conn-b")
	reg.Register(3, "conn-c")
	reg.Unregister(2, "conn-b")

	online := reg.ListOnline()
	assert.ElementsMatch(t, []int64{1, 3}, online)
}

func TestMemoryRegistryConcurrentAccess(t *testing.T) {
	reg := NewMemoryRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		userID := int64(i % 10)
		wg.Add(2)
		go func() {
			defer wg.Done()
			reg.Register(userID, "conn")
		}()
		go func() {
			defer wg.Done()
			reg.Lookup(userID)
			reg.ListOnline()
		}()
	}
	wg.Wait()
}
