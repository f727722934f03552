package domain

import "time"

// Reaction is unique per (message, user, emoji); re-adding the same
// triple toggles it off instead of duplicating.
type Reaction struct {
	MessageID int64     `json:"messageId"`
	UserID    string    `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}
