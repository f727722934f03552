// Package domain contains the core entities of the chat system.
// Identities are issued by an external provider; the server only
// references them, it never mints one.
package domain

import "time"

// User is keyed by its external identity string, stable across reconnects.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	IsOnline  bool      `json:"isOnline"`
	Status    string    `json:"status,omitempty"`
	LastSeen  time.Time `json:"lastSeen"`
	Theme     string    `json:"theme,omitempty"`
}
