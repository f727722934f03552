package event

import "chat-hub/domain"

// DomainEvent is a post-relay notification consumed by side-effect
// sinks (search index, metrics, logs). Delivery is best-effort and
// never on the relay path.
type DomainEvent interface {
	Kind() string
}

type MessagePersisted struct {
	Message domain.Message
}

func (MessagePersisted) Kind() string { return "message_persisted" }

type MessageRelayed struct {
	Message  domain.Message
	Audience int
}

func (MessageRelayed) Kind() string { return "message_relayed" }

type MessageEdited struct {
	Message domain.Message
}

func (MessageEdited) Kind() string { return "message_edited" }

type MessageDeleted struct {
	Message domain.Message
}

func (MessageDeleted) Kind() string { return "message_deleted" }

type ReactionToggled struct {
	Reaction domain.Reaction
	Removed  bool
}

func (ReactionToggled) Kind() string { return "reaction_toggled" }

type PresenceChanged struct {
	UserID   string
	IsOnline bool
}

func (PresenceChanged) Kind() string { return "presence_changed" }
