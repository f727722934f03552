package repositories

import (
	"log/slog"
	"testing"

	"chat-hub/domain"
	chaterrors "chat-hub/errors"

	"github.com/stretchr/testify/require"
)

func Test_User_Create_Defaults(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openDB(t), slog.Default())

	user, err := repository.Create(domain.User{ID: "alice", Username: "Alice"})
	req.NoError(err)
	req.Equal("light", user.Theme)
	req.False(user.LastSeen.IsZero())

	fetched, err := repository.Get("alice")
	req.NoError(err)
	req.Equal(user.Username, fetched.Username)
}

func Test_User_Offline_Stamps_LastSeen(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openDB(t), slog.Default())

	user, err := repository.Create(domain.User{ID: "alice", Username: "Alice"})
	req.NoError(err)

	// When the user goes online then offline
	req.NoError(repository.SetOnline("alice", true))
	online, err := repository.Get("alice")
	req.NoError(err)
	req.True(online.IsOnline)

	req.NoError(repository.SetOnline("alice", false))

	// Then lastSeen moved forward
	offline, err := repository.Get("alice")
	req.NoError(err)
	req.False(offline.IsOnline)
	req.False(offline.LastSeen.Before(user.LastSeen))
}

func Test_User_Preferences(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openDB(t), slog.Default())

	_, err := repository.Create(domain.User{ID: "alice", Username: "Alice"})
	req.NoError(err)

	req.NoError(repository.SetTheme("alice", "dark"))
	req.NoError(repository.SetStatus("alice", "out for lunch"))

	user, err := repository.Get("alice")
	req.NoError(err)
	req.Equal("dark", user.Theme)
	req.Equal("out for lunch", user.Status)
}

func Test_User_Mutate_Unknown(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openDB(t), slog.Default())

	req.ErrorIs(repository.SetTheme("ghost", "dark"), chaterrors.ErrNotFound)
}
