package repositories

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Reaction_Toggle_Adds_Then_Removes(t *testing.T) {
	req := require.New(t)
	repository := NewReactionRepository(openDB(t), slog.Default())

	// When the same user toggles the same emoji twice
	reaction, removed, err := repository.Toggle(1, "alice", "👍")
	req.NoError(err)
	req.False(removed)
	req.Equal("alice", reaction.UserID)

	_, removed, err = repository.Toggle(1, "alice", "👍")
	req.NoError(err)
	req.True(removed)

	// Then the state is back where it started
	reactions, err := repository.List(1)
	req.NoError(err)
	req.Empty(reactions)
}

func Test_Reaction_Distinct_Users_And_Emojis_Coexist(t *testing.T) {
	req := require.New(t)
	repository := NewReactionRepository(openDB(t), slog.Default())

	_, _, err := repository.Toggle(1, "alice", "👍")
	req.NoError(err)
	_, _, err = repository.Toggle(1, "alice", "🎉")
	req.NoError(err)
	_, _, err = repository.Toggle(1, "bob", "👍")
	req.NoError(err)
	_, _, err = repository.Toggle(2, "alice", "👍")
	req.NoError(err)

	reactions, err := repository.List(1)
	req.NoError(err)
	req.Len(reactions, 3)
}

func Test_Reaction_Remove(t *testing.T) {
	req := require.New(t)
	repository := NewReactionRepository(openDB(t), slog.Default())

	_, _, err := repository.Toggle(1, "alice", "👍")
	req.NoError(err)

	req.NoError(repository.Remove(1, "alice", "👍"))
	// Removing again stays a no-op
	req.NoError(repository.Remove(1, "alice", "👍"))

	reactions, err := repository.List(1)
	req.NoError(err)
	req.Empty(reactions)
}
