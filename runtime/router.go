package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/domain/event"
	chaterrors "chat-hub/errors"
	"chat-hub/moderation"
	"chat-hub/observability"
	"chat-hub/repositories"
)

// Error codes reported back to the sender.
const (
	CodeValidation  = "validation"
	CodeForbidden   = "forbidden"
	CodePersistence = "persistence"
	CodeNotFound    = "not_found"
	CodeInternal    = "internal"
)

// Router is the per-event state machine: it validates inbound frames,
// decides persistence versus pure relay, resolves the audience and
// hands delivery to the registry. Frames from one connection are
// processed in arrival order by that connection's read loop; no global
// ordering exists across connections.
type Router struct {
	log       *slog.Logger
	metrics   *observability.Metrics
	registry  contract.ISessionRegistry
	presence  *Presence
	users     repositories.IUserRepository
	messages  repositories.IMessageRepository
	groups    repositories.IGroupRepository
	reactions repositories.IReactionRepository
	moderator *moderation.Moderator
	events    chan<- event.DomainEvent

	// Whether the sender's other devices receive its own direct and
	// group messages, keeping multiple devices in sync.
	relaySenderDevices bool
}

func NewRouter(
	log *slog.Logger,
	metrics *observability.Metrics,
	registry contract.ISessionRegistry,
	presence *Presence,
	users repositories.IUserRepository,
	messages repositories.IMessageRepository,
	groups repositories.IGroupRepository,
	reactions repositories.IReactionRepository,
	moderator *moderation.Moderator,
	events chan<- event.DomainEvent,
	relaySenderDevices bool,
) *Router {
	return &Router{
		log:                log,
		metrics:            metrics,
		registry:           registry,
		presence:           presence,
		users:              users,
		messages:           messages,
		groups:             groups,
		reactions:          reactions,
		moderator:          moderator,
		events:             events,
		relaySenderDevices: relaySenderDevices,
	}
}

// Attach registers a connection and optimistically flips its identity
// online.
func (r *Router) Attach(conn contract.Conn, identity string) error {
	if err := r.registry.Register(conn, identity); err != nil {
		return err
	}
	r.presence.MarkOnline(identity)
	return nil
}

// Detach unregisters a connection. When the identity's last connection
// leaves, it is marked offline, lastSeen is stamped and peers get a
// presence-offline event.
func (r *Router) Detach(conn contract.Conn) {
	identity := conn.Identity()
	r.registry.Unregister(conn)

	if len(r.registry.ConnectionsFor(identity)) > 0 {
		return
	}
	r.presence.MarkOffline(identity)
	if err := r.users.SetOnline(identity, false); err != nil {
		r.log.Debug("Presence flush skipped", "identity", identity, "error", err)
	}
	r.registry.Broadcast(event.Frame{
		Type:      event.TypePresence,
		UserID:    identity,
		IsOnline:  false,
		Timestamp: time.Now().UTC(),
	}, conn)
	r.emit(event.PresenceChanged{UserID: identity, IsOnline: false})
}

// Handle classifies one inbound frame. Unknown types are logged and
// dropped; failures are reported to the sender only and never tear the
// connection down.
func (r *Router) Handle(ctx context.Context, conn contract.Conn, frame event.Frame) {
	start := time.Now()
	var err error

	switch frame.Type {
	case event.TypeMessage:
		err = r.handleMessage(ctx, conn, frame)
	case event.TypeTyping:
		err = r.handleTyping(conn, frame)
	case event.TypePresence:
		err = r.handlePresence(conn, frame)
	case event.TypeEdit:
		err = r.handleEdit(conn, frame)
	case event.TypeDelete:
		err = r.handleDelete(conn, frame)
	case event.TypeReaction:
		err = r.handleReaction(conn, frame)
	case event.TypeRead:
		err = r.handleRead(conn, frame)
	default:
		r.log.Warn("Unknown event type, dropping", "type", frame.Type, "conn_id", conn.ID())
		r.metrics.DroppedEvents.Inc()
		return
	}

	r.metrics.EventsTotal.WithLabelValues(string(frame.Type)).Inc()
	r.metrics.EventDuration.WithLabelValues(string(frame.Type)).Observe(time.Since(start).Seconds())

	if err != nil {
		r.reject(conn, frame, err)
	}
}

// reject reports a failure to the sender only; the audience never sees
// an event its sender believes failed.
func (r *Router) reject(conn contract.Conn, frame event.Frame, err error) {
	code := codeOf(err)
	r.metrics.EventErrors.WithLabelValues(string(frame.Type), code).Inc()
	r.log.Info("Event rejected",
		"type", frame.Type,
		"code", code,
		"conn_id", conn.ID(),
		"error", err)
	if sendErr := conn.Send(event.Failure(code, err.Error(), frame.CorrelationID)); sendErr != nil {
		r.log.Debug("Failure report not delivered", "conn_id", conn.ID(), "error", sendErr)
	}
}

func codeOf(err error) string {
	switch {
	case errors.Is(err, chaterrors.ErrValidation):
		return CodeValidation
	case errors.Is(err, chaterrors.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, chaterrors.ErrPersistence):
		return CodePersistence
	case errors.Is(err, chaterrors.ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

func (r *Router) handleMessage(_ context.Context, conn contract.Conn, f event.Frame) error {
	if f.SenderID == "" {
		return fmt.Errorf("missing senderId: %w", chaterrors.ErrValidation)
	}
	if f.Content == "" {
		return fmt.Errorf("missing content: %w", chaterrors.ErrValidation)
	}
	if f.ReceiverID != "" && f.GroupID != 0 {
		return fmt.Errorf("receiverId and groupId are mutually exclusive: %w", chaterrors.ErrValidation)
	}
	if f.GroupID != 0 {
		if err := r.requireMembership(f.GroupID, f.SenderID); err != nil {
			return err
		}
	}

	msg := domain.Message{
		Content:    r.moderator.Censor(f.Content),
		SenderID:   f.SenderID,
		ReceiverID: f.ReceiverID,
		GroupID:    f.GroupID,
		ReplyToID:  f.ReplyToID,
	}

	if f.Persisted() {
		persisted, err := r.messages.Create(msg)
		if err != nil {
			return fmt.Errorf("create message: %v: %w", err, chaterrors.ErrPersistence)
		}
		msg = persisted
		r.emit(event.MessagePersisted{Message: msg})
	} else {
		// Ephemeral: skip storage, stamp and relay immediately.
		msg.Timestamp = time.Now().UTC()
	}

	relay := event.Frame{
		Type:          event.TypeMessage,
		Message:       &msg,
		CorrelationID: f.CorrelationID,
		Timestamp:     msg.Timestamp,
	}

	audience, err := r.audienceOf(msg)
	if err != nil {
		// The message is already durable; a failed audience lookup is a
		// delivery gap healed by history fetch, not a sender error.
		r.log.Error("Audience resolution failed after persist",
			"message_id", msg.ID, "error", err)
		return nil
	}
	if audience == nil {
		r.registry.Broadcast(relay, conn)
	} else {
		r.registry.DeliverTo(audience, relay, conn)
	}

	if err := conn.Send(event.Ack(msg, f.CorrelationID)); err != nil {
		r.log.Debug("Ack not delivered", "conn_id", conn.ID(), "error", err)
	}
	r.emit(event.MessageRelayed{Message: msg, Audience: len(audience)})
	return nil
}

func (r *Router) handleTyping(conn contract.Conn, f event.Frame) error {
	if f.UserID == "" {
		return fmt.Errorf("missing userId: %w", chaterrors.ErrValidation)
	}
	if f.ReceiverID != "" && f.GroupID != 0 {
		return fmt.Errorf("receiverId and groupId are mutually exclusive: %w", chaterrors.ErrValidation)
	}
	if f.ReceiverID == "" && f.GroupID == 0 {
		return fmt.Errorf("typing requires a receiverId or groupId: %w", chaterrors.ErrValidation)
	}

	f.Timestamp = time.Now().UTC()

	if f.GroupID != 0 {
		if err := r.requireMembership(f.GroupID, f.UserID); err != nil {
			return err
		}
		members, err := r.groups.MemberIDs(f.GroupID)
		if err != nil {
			return fmt.Errorf("group members: %v: %w", err, chaterrors.ErrPersistence)
		}
		r.presence.SetTyping(f.UserID, GroupContext(f.GroupID), f.IsTyping)
		audience := members[:0:0]
		for _, id := range members {
			if id != f.UserID {
				audience = append(audience, id)
			}
		}
		r.registry.DeliverTo(audience, f, conn)
		return nil
	}

	r.presence.SetTyping(f.UserID, DirectContext(f.ReceiverID), f.IsTyping)
	r.registry.DeliverTo([]string{f.ReceiverID}, f, conn)
	return nil
}

func (r *Router) handlePresence(conn contract.Conn, f event.Frame) error {
	if f.UserID == "" {
		return fmt.Errorf("missing userId: %w", chaterrors.ErrValidation)
	}
	if f.IsOnline {
		r.presence.MarkOnline(f.UserID)
	} else {
		r.presence.MarkOffline(f.UserID)
	}
	// Best effort: the durable row is a convenience mirror, presence
	// correctness lives in the tracker.
	if err := r.users.SetOnline(f.UserID, f.IsOnline); err != nil {
		r.log.Debug("Presence flush skipped", "identity", f.UserID, "error", err)
	}

	f.Timestamp = time.Now().UTC()
	r.registry.Broadcast(f, conn)
	r.emit(event.PresenceChanged{UserID: f.UserID, IsOnline: f.IsOnline})
	return nil
}

func (r *Router) handleEdit(conn contract.Conn, f event.Frame) error {
	if f.SenderID == "" || f.MessageID == 0 || f.Content == "" {
		return fmt.Errorf("edit requires senderId, messageId and content: %w", chaterrors.ErrValidation)
	}
	msg, err := r.messages.Get(f.MessageID)
	if err != nil {
		return err
	}
	if msg.SenderID != f.SenderID {
		return fmt.Errorf("only the sender may edit message %d: %w", f.MessageID, chaterrors.ErrForbidden)
	}

	updated, err := r.messages.Edit(f.MessageID, r.moderator.Censor(f.Content))
	if err != nil {
		return fmt.Errorf("edit message: %v: %w", err, chaterrors.ErrPersistence)
	}
	r.relayCanonical(conn, event.TypeEdit, updated, f.CorrelationID)
	r.emit(event.MessageEdited{Message: updated})
	return nil
}

func (r *Router) handleDelete(conn contract.Conn, f event.Frame) error {
	if f.SenderID == "" || f.MessageID == 0 {
		return fmt.Errorf("delete requires senderId and messageId: %w", chaterrors.ErrValidation)
	}
	msg, err := r.messages.Get(f.MessageID)
	if err != nil {
		return err
	}
	if msg.SenderID != f.SenderID {
		return fmt.Errorf("only the sender may delete message %d: %w", f.MessageID, chaterrors.ErrForbidden)
	}

	updated, err := r.messages.SoftDelete(f.MessageID)
	if err != nil {
		return fmt.Errorf("delete message: %v: %w", err, chaterrors.ErrPersistence)
	}
	r.relayCanonical(conn, event.TypeDelete, updated, f.CorrelationID)
	r.emit(event.MessageDeleted{Message: updated})
	return nil
}

func (r *Router) handleReaction(conn contract.Conn, f event.Frame) error {
	actor := f.UserID
	if actor == "" {
		actor = f.SenderID
	}
	if actor == "" || f.MessageID == 0 || f.Emoji == "" {
		return fmt.Errorf("reaction requires userId, messageId and emoji: %w", chaterrors.ErrValidation)
	}
	msg, err := r.messages.Get(f.MessageID)
	if err != nil {
		return err
	}
	switch {
	case msg.Grouped():
		if err := r.requireMembership(msg.GroupID, actor); err != nil {
			return err
		}
	case msg.Direct():
		if actor != msg.SenderID && actor != msg.ReceiverID {
			return fmt.Errorf("user %s is not part of the conversation: %w", actor, chaterrors.ErrForbidden)
		}
	}

	reaction, removed, err := r.reactions.Toggle(f.MessageID, actor, f.Emoji)
	if err != nil {
		return fmt.Errorf("toggle reaction: %v: %w", err, chaterrors.ErrPersistence)
	}

	relay := event.Frame{
		Type:          event.TypeReaction,
		MessageID:     f.MessageID,
		UserID:        actor,
		Emoji:         f.Emoji,
		Removed:       removed,
		CorrelationID: f.CorrelationID,
		Timestamp:     time.Now().UTC(),
	}
	audience, err := r.conversationOf(msg)
	if err != nil {
		r.log.Error("Audience resolution failed after toggle",
			"message_id", msg.ID, "error", err)
		return nil
	}
	// The actor's own connection receives the canonical result too.
	r.registry.DeliverTo(audience, relay, nil)
	r.emit(event.ReactionToggled{Reaction: reaction, Removed: removed})
	return nil
}

func (r *Router) handleRead(conn contract.Conn, f event.Frame) error {
	if f.UserID == "" || f.MessageID == 0 {
		return fmt.Errorf("read requires userId and messageId: %w", chaterrors.ErrValidation)
	}
	msg, err := r.messages.Get(f.MessageID)
	if err != nil {
		return err
	}
	switch {
	case msg.Grouped():
		if err := r.requireMembership(msg.GroupID, f.UserID); err != nil {
			return err
		}
	case msg.Direct():
		if f.UserID != msg.ReceiverID {
			return fmt.Errorf("only the receiver may mark message %d read: %w", f.MessageID, chaterrors.ErrForbidden)
		}
	}

	updated, err := r.messages.MarkRead(f.MessageID)
	if err != nil {
		return fmt.Errorf("mark read: %v: %w", err, chaterrors.ErrPersistence)
	}
	// Read receipts flow back to the author.
	r.registry.DeliverTo([]string{msg.SenderID}, event.Frame{
		Type:      event.TypeRead,
		Message:   &updated,
		Timestamp: time.Now().UTC(),
	}, conn)
	return nil
}

// relayCanonical pushes the stored state of a mutated message to its
// audience, including the actor's own connections.
func (r *Router) relayCanonical(conn contract.Conn, t event.Type, msg domain.Message, correlationID string) {
	relay := event.Frame{
		Type:          t,
		Message:       &msg,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
	}
	audience, err := r.conversationOf(msg)
	if err != nil {
		r.log.Error("Audience resolution failed after mutation",
			"message_id", msg.ID, "error", err)
		return
	}
	if audience == nil {
		r.registry.Broadcast(relay, nil)
		return
	}
	r.registry.DeliverTo(audience, relay, nil)
}

// audienceOf resolves the identities that should observe a message's
// events. nil means global broadcast (the target-less debug case).
func (r *Router) audienceOf(msg domain.Message) ([]string, error) {
	switch {
	case msg.Grouped():
		members, err := r.groups.MemberIDs(msg.GroupID)
		if err != nil {
			return nil, fmt.Errorf("group members: %w", err)
		}
		if r.relaySenderDevices {
			return members, nil
		}
		audience := members[:0:0]
		for _, id := range members {
			if id != msg.SenderID {
				audience = append(audience, id)
			}
		}
		return audience, nil
	case msg.Direct():
		if r.relaySenderDevices {
			return []string{msg.ReceiverID, msg.SenderID}, nil
		}
		return []string{msg.ReceiverID}, nil
	default:
		return nil, nil
	}
}

// conversationOf resolves every identity in a message's conversation,
// author included. Mutations (edits, deletes, reactions) go to all of
// them; only the initial relay of a fresh message uses audienceOf.
func (r *Router) conversationOf(msg domain.Message) ([]string, error) {
	switch {
	case msg.Grouped():
		members, err := r.groups.MemberIDs(msg.GroupID)
		if err != nil {
			return nil, fmt.Errorf("group members: %w", err)
		}
		return members, nil
	case msg.Direct():
		return []string{msg.SenderID, msg.ReceiverID}, nil
	default:
		return nil, nil
	}
}

func (r *Router) requireMembership(groupID int64, userID string) error {
	ok, err := r.groups.IsMember(groupID, userID)
	if err != nil {
		return fmt.Errorf("membership check: %v: %w", err, chaterrors.ErrPersistence)
	}
	if !ok {
		return fmt.Errorf("user %s is not a member of group %d: %w", userID, groupID, chaterrors.ErrForbidden)
	}
	return nil
}

// emit offers a domain event to the side-effect pipeline without ever
// blocking the relay path.
func (r *Router) emit(e event.DomainEvent) {
	if r.events == nil {
		return
	}
	select {
	case r.events <- e:
	default:
		r.metrics.DroppedEvents.Inc()
		r.log.Debug("Side-effect event lost", "kind", e.Kind())
	}
}
