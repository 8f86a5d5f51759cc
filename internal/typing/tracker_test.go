package typing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerStartOverwrites(t *testing.T) {
	tracker := NewTracker()

	tracker.Start("conn-a", 10, 1)
	tracker.Start("conn-a", 11, 1)

	state, ok := tracker.Clear("conn-a")
	require.True(t, ok)
	assert.Equal(t, int64(11), state.ConversationID)
	assert.Equal(t, int64(1), state.UserID)
}

func TestTrackerClearReturnsStateOnce(t *testing.T) {
	tracker := NewTracker()
	tracker.Start("conn-a", 10, 1)

	_, ok := tracker.Clear("conn-a")
	require.True(t, ok)

	// Second clear of the same connection finds nothing.
	_, ok = tracker.Clear("conn-a")
	assert.False(t, ok)
}

func TestTrackerStopThenClear(t *testing.T) {
	tracker := NewTracker()
	tracker.Start("conn-a", 10, 1)
	tracker.Stop("conn-a")

	_, ok := tracker.Clear("conn-a")
	assert.False(t, ok)
}

func TestTrackerIsolatesConnections(t *testing.T) {
	tracker := NewTracker()
	tracker.Start("conn-a", 10, 1)
	tracker.Start("conn-b", 10, 2)

	tracker.Stop("conn-a")

	state, ok := tracker.Clear("conn-b")
	require.True(t, ok)
	assert.Equal(t, int64(2), state.UserID)
}
