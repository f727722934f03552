// Package event defines the wire frames exchanged over a connection and
// the domain events fanned out to in-process sinks.
package event

import (
	"time"

	"chat-hub/domain"
)

type Type string

const (
	TypeMessage  Type = "message"
	TypeTyping   Type = "typing"
	TypePresence Type = "presence"
	TypeEdit     Type = "edit"
	TypeDelete   Type = "delete"
	TypeReaction Type = "reaction"
	TypeRead     Type = "read"

	// Server-originated frames.
	TypeAck   Type = "ack"
	TypeError Type = "error"
)

// Frame is the tagged union carried over the transport. The Type
// discriminator decides which fields are meaningful; unrecognized types
// are logged and dropped, never propagated.
type Frame struct {
	Type Type `json:"type"`

	// Message fields. Persist defaults to true when absent.
	Content       string `json:"content,omitempty"`
	SenderID      string `json:"senderId,omitempty"`
	ReceiverID    string `json:"receiverId,omitempty"`
	GroupID       int64  `json:"groupId,omitempty"`
	ReplyToID     int64  `json:"replyToId,omitempty"`
	Persist       *bool  `json:"persist,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`

	// Typing and presence fields.
	UserID   string `json:"userId,omitempty"`
	IsTyping bool   `json:"isTyping,omitempty"`
	IsOnline bool   `json:"isOnline,omitempty"`

	// Mutation fields (edit, delete, reaction, read).
	MessageID int64  `json:"messageId,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
	Removed   bool   `json:"removed,omitempty"`

	// Server-assigned at dispatch; client timestamps are not trusted.
	Timestamp time.Time `json:"timestamp,omitempty"`

	// Canonical persisted state, set on relays and acks so clients
	// reconcile against the store-assigned id, not content matching.
	Message *domain.Message `json:"message,omitempty"`

	// Error fields.
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// Persisted reports whether the frame asks for durable storage.
func (f Frame) Persisted() bool { return f.Persist == nil || *f.Persist }

// Ack builds the sender-only confirmation for a dispatched message.
func Ack(msg domain.Message, correlationID string) Frame {
	return Frame{
		Type:          TypeAck,
		Message:       &msg,
		CorrelationID: correlationID,
		Timestamp:     msg.Timestamp,
	}
}

// Failure builds the sender-only error frame for a rejected event.
func Failure(code, detail, correlationID string) Frame {
	return Frame{
		Type:          TypeError,
		Code:          code,
		Error:         detail,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
	}
}
