package presence_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omochice/roomlink/internal/presence"
)

func TestTracker_ApplyIsIdempotent(t *testing.T) {
	tracker := presence.NewTracker(nil)

	tracker.Apply("bob", true)
	tracker.Apply("bob", true)

	roster := tracker.List()
	require.Len(t, roster, 1, "never two entries for the same username")
	require.Equal(t, presence.Participant{Username: "bob", Connected: true}, roster[0])
}

func TestTracker_SeedOnce(t *testing.T) {
	tracker := presence.NewTracker(nil)

	err := tracker.Seed([]presence.Participant{
		{Username: "alice", Connected: true},
		{Username: "bob", Connected: false},
	})
	require.NoError(t, err)

	err = tracker.Seed([]presence.Participant{{Username: "carol", Connected: true}})
	require.ErrorIs(t, err, presence.ErrAlreadySeeded)
	require.Equal(t, 2, tracker.Len(), "rejected seed must not alter the roster")
}

func TestTracker_InsertionOrderPreserved(t *testing.T) {
	tracker := presence.NewTracker(nil)
	require.NoError(t, tracker.Seed([]presence.Participant{
		{Username: "alice", Connected: true},
		{Username: "bob", Connected: true},
	}))

	tracker.Apply("carol", true)
	tracker.Apply("alice", false)

	roster := tracker.List()
	require.Equal(t, []string{"alice", "bob", "carol"}, []string{
		roster[0].Username, roster[1].Username, roster[2].Username,
	})
}

func TestTracker_DisconnectedStaysListed(t *testing.T) {
	tracker := presence.NewTracker(nil)
	tracker.Apply("alice", true)
	tracker.Apply("alice", false)

	roster := tracker.List()
	require.Len(t, roster, 1)
	require.False(t, roster[0].Connected)
}

func TestTracker_LateJoinerInserted(t *testing.T) {
	tracker := presence.NewTracker(nil)
	require.NoError(t, tracker.Seed([]presence.Participant{{Username: "alice", Connected: true}}))

	// dave was not in the snapshot; a live event introduces him.
	tracker.Apply("dave", true)

	roster := tracker.List()
	require.Len(t, roster, 2)
	require.Equal(t, "dave", roster[1].Username)
}

func TestTracker_EmptyUsernameDropped(t *testing.T) {
	tracker := presence.NewTracker(nil)
	tracker.Apply("", true)
	require.Zero(t, tracker.Len())
}

func TestTracker_ListReturnsCopy(t *testing.T) {
	tracker := presence.NewTracker(nil)
	tracker.Apply("alice", true)

	roster := tracker.List()
	roster[0].Connected = false

	require.True(t, tracker.List()[0].Connected)
}
