package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPresence_Online_Offline_Cycle(t *testing.T) {
	req := require.New(t)
	presence := NewPresence()

	// Given an unknown identity
	req.False(presence.Online("alice"))
	_, ok := presence.Status("alice")
	req.False(ok)

	// When it comes online
	presence.MarkOnline("alice")
	req.True(presence.Online("alice"))

	// And goes offline
	presence.MarkOffline("alice")

	// Then lastSeen is stamped
	status, ok := presence.Status("alice")
	req.True(ok)
	req.False(status.Online)
	req.False(status.LastSeen.IsZero())
}

func TestPresence_Typing_Last_Write_Wins(t *testing.T) {
	req := require.New(t)
	presence := NewPresence()
	presence.MarkOnline("alice")

	presence.SetTyping("alice", DirectContext("bob"), true)
	presence.SetTyping("alice", GroupContext(7), true)

	status, _ := presence.Status("alice")
	req.Len(status.Typing, 2)

	// A follow-up false clears exactly that context
	presence.SetTyping("alice", DirectContext("bob"), false)
	status, _ = presence.Status("alice")
	req.Len(status.Typing, 1)
	req.True(status.Typing[GroupContext(7)])
}

func TestPresence_Disconnect_Clears_Typing(t *testing.T) {
	req := require.New(t)
	presence := NewPresence()
	presence.MarkOnline("alice")
	presence.SetTyping("alice", DirectContext("bob"), true)

	presence.MarkOffline("alice")

	status, _ := presence.Status("alice")
	req.Empty(status.Typing)
}

func TestPresence_Status_Returns_A_Copy(t *testing.T) {
	req := require.New(t)
	presence := NewPresence()
	presence.MarkOnline("alice")
	presence.SetTyping("alice", DirectContext("bob"), true)

	status, _ := presence.Status("alice")
	status.Typing[DirectContext("clara")] = true

	// Mutating the snapshot never leaks into the tracker
	fresh, _ := presence.Status("alice")
	req.Len(fresh.Typing, 1)
}
