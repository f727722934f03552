package domain

import "time"

type Group struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	CreatedBy   string    `json:"createdBy"`
}

// GroupMember links a group to a user. Membership is checked by the
// router before any group-targeted event is persisted or relayed.
type GroupMember struct {
	GroupID  int64     `json:"groupId"`
	UserID   string    `json:"userId"`
	IsAdmin  bool      `json:"isAdmin"`
	JoinedAt time.Time `json:"joinedAt"`
}
