package domain

import "time"

// Message is a persisted chat event. Exactly one of ReceiverID and
// GroupID may be set; a message carrying both is invalid. Deletion is
// logical only, which keeps reply chains intact.
type Message struct {
	ID         int64      `json:"id"`
	Content    string     `json:"content"`
	SenderID   string     `json:"senderId"`
	ReceiverID string     `json:"receiverId,omitempty"`
	GroupID    int64      `json:"groupId,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	IsRead     bool       `json:"isRead"`
	IsEdited   bool       `json:"isEdited"`
	EditedAt   *time.Time `json:"editedAt,omitempty"`
	IsDeleted  bool       `json:"isDeleted"`
	ReplyToID  int64      `json:"replyToId,omitempty"`
}

// Direct reports whether the message targets a single peer.
func (m Message) Direct() bool { return m.ReceiverID != "" }

// Grouped reports whether the message targets a group.
func (m Message) Grouped() bool { return m.GroupID != 0 }
