package runtime

import (
	"context"
	"log/slog"
	"testing"

	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/moderation"
	"chat-hub/observability"
	"chat-hub/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type routerFixture struct {
	router   *Router
	registry *Registry
	presence *Presence
	users    *repositories.UserRepository
	messages *repositories.MessageRepository
	groups   *repositories.GroupRepository
	events   chan event.DomainEvent
}

func newRouterFixture(t *testing.T, relaySenderDevices bool) *routerFixture {
	t.Helper()
	req := require.New(t)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	users := repositories.NewUserRepository(db, log)
	messages, err := repositories.NewMessageRepository(db, log, nil)
	req.NoError(err)
	t.Cleanup(func() { _ = messages.Close() })
	groups, err := repositories.NewGroupRepository(db, log)
	req.NoError(err)
	t.Cleanup(func() { _ = groups.Close() })
	reactions := repositories.NewReactionRepository(db, log)

	moderator, err := moderation.NewModerator([]string{"badger"}, '*')
	req.NoError(err)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	registry := NewRegistry(log, metrics)
	presence := NewPresence()
	events := make(chan event.DomainEvent, 64)

	router := NewRouter(log, metrics, registry, presence,
		users, messages, groups, reactions,
		&moderator, events, relaySenderDevices)

	return &routerFixture{
		router:   router,
		registry: registry,
		presence: presence,
		users:    users,
		messages: messages,
		groups:   groups,
		events:   events,
	}
}

func (f *routerFixture) attach(t *testing.T, identity string) *fakeConn {
	t.Helper()
	conn := newFakeConn(identity)
	require.NoError(t, f.router.Attach(conn, identity))
	return conn
}

func TestRouter_Direct_Message_Relayed_And_Acked(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, false)
	alice := f.attach(t, "alice")
	bob := f.attach(t, "bob")

	// When alice sends a direct message
	f.router.Handle(context.Background(), alice, event.Frame{
		Type:          event.TypeMessage,
		SenderID:      "alice",
		ReceiverID:    "bob",
		Content:       "hello bob",
		CorrelationID: "corr-1",
	})

	// Then bob receives the canonical record
	relayed := bob.ofType(event.TypeMessage)
	req.Len(relayed, 1)
	req.NotNil(relayed[0].Message)
	req.NotZero(relayed[0].Message.ID)
	req.Equal("hello bob", relayed[0].Message.Content)

	// And alice receives an ack carrying the same correlation id
	acks := alice.ofType(event.TypeAck)
	req.Len(acks, 1)
	req.Equal("corr-1", acks[0].CorrelationID)
	req.Equal(relayed[0].Message.ID, acks[0].Message.ID)

	// And the message is durable
	history, err := f.messages.ListForUser("bob")
	req.NoError(err)
	req.Len(history, 1)
}

func TestRouter_Message_Content_Is_Censored_Before_Persist(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, false)
	alice := f.attach(t, "alice")
	bob := f.attach(t, "bob")

	f.router.Handle(context.Background(), alice, event.Frame{
		Type:       event.TypeMessage,
		SenderID:   "alice",
		ReceiverID: "bob",
		Content:    "the badger strikes",
	})

	// The relayed and the stored copy are both censored
	relayed := bob.ofType(event.TypeMessage)
	req.Len(relayed, 1)
	req.Equal("the ****** strikes", relayed[0].Message.Content)

	history, err := f.messages.ListForUser("bob")
	req.NoError(err)
	req.Equal("the ****** strikes", history[0].Content)
}

func TestRouter_Rejects_Ambiguous_Target(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, false)
	alice := f.attach(t, "alice")
	bob := f.attach(t, "bob")

	// When a frame names both a receiver and a group
	f.router.Handle(context.Background(), alice, event.Frame{
		Type:       event.TypeMessage,
		SenderID:   "alice",
		ReceiverID: "bob",
		GroupID:    7,
		Content:    "confused",
	})

	// Then only alice hears about it, as a validation error
	failures := alice.ofType(event.TypeError)
	req.Len(failures, 1)
	req.Equal(CodeValidation, failures[0].Code)
	req.Empty(bob.received())

	// And nothing was persisted
	history, err := f.messages.ListForUser("bob")
	req.NoError(err)
	req.Empty(history)
}

func TestRouter_Group_Message_Requires_Membership(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, false)

	group, err := f.groups.Create(domain.Group{Name: "gophers", CreatedBy: "alice"})
	req.NoError(err)
	_, err = f.groups.AddMember(domain.GroupMember{GroupID: group.ID, UserID: "alice"})
	req.NoError(err)
	_, err = f.groups.AddMember(domain.GroupMember{GroupID: group.ID, UserID: "bob"})
	req.NoError(err)

	mallory := f.attach(t, "mallory")
	bob := f.attach(t, "bob")

	// When a non-member posts to the group
	f.router.Handle(context.Background(), mallory, event.Frame{
		Type:     event.TypeMessage,
		SenderID: "mallory",
		GroupID:  group.ID,
		Content:  "let me in",
	})

	// Then the send is forbidden, no member sees anything
	failures := mallory.ofType(event.TypeError)
	req.Len(failures, 1)
	req.Equal(CodeForbidden, failures[0].Code)
	req.Empty(bob.received())

	history, err := f.messages.ListForGroup(group.ID)
	req.NoError(err)
	req.Empty(history)
}

func TestRouter_Group_Message_Reaches_All_Members(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, false)

	group, err := f.groups.Create(domain.Group{Name: "gophers", CreatedBy: "alice"})
	req.NoError(err)
	for _, id := range []string{"alice", "bob", "clara"} {
		_, err = f.groups.AddMember(domain.GroupMember{GroupID: group.ID, UserID: id})
		req.NoError(err)
	}

	alice := f.attach(t, "alice")
	bob := f.attach(t, "bob")
	clara := f.attach(t, "clara")
	outsider := f.attach(t, "mallory")

	f.router.Handle(context.Background(), alice, event.Frame{
		Type:     event.TypeMessage,
		SenderID: "alice",
		GroupID:  group.ID,
		Content:  "standup in 5",
	})

	// Every member except the origin connection gets exactly one copy
	req.Len(bob.ofType(event.TypeMessage), 1)
	req.Len(clara.ofType(event.TypeMessage), 1)
	req.Empty(alice.ofType(event.TypeMessage))
	req.Empty(outsider.received())
}

func TestRouter_Ephemeral_Message_Skips_Storage(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, false)
	alice := f.attach(t, "alice")
	bob := f.attach(t, "bob")

	persist := false
	f.router.Handle(context.Background(), alice, event.Frame{
		Type:       event.TypeMessage,
		SenderID:   "alice",
		ReceiverID: "bob",
		Content:    "now you see me",
		Persist:    &persist,
	})

	// Relayed with a timestamp but never stored
	relayed := bob.ofType(event.TypeMessage)
	req.Len(relayed, 1)
	req.False(relayed[0].Message.Timestamp.IsZero())
	req.Zero(relayed[0].Message.ID)

	history, err := f.messages.ListForUser("bob")
	req.NoError(err)
	req.Empty(history)
}

func TestRouter_Multi_Device_Receives_Exactly_Once(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, true)
	alicePhone := f.attach(t, "alice")
	aliceLaptop := f.attach(t, "alice")
	bob := f.attach(t, "bob")

	// When alice sends from her phone
	f.router.Handle(context.Background(), alicePhone, event.Frame{
		Type:       event.TypeMessage,
		SenderID:   "alice",
		ReceiverID: "bob",
		Content:    "from my phone",
	})

	// Then bob gets one copy and alice's other device stays in sync
	req.Len(bob.ofType(event.TypeMessage), 1)
	req.Len(aliceLaptop.ofType(event.TypeMessage), 1)

	// The origin connection only gets the ack
	req.Empty(alicePhone.ofType(event.TypeMessage))
	req.Len(alicePhone.ofType(event.TypeAck), 1)
}

func TestRouter_Message_Ids_Are_Monotonic(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, false)
	alice := f.attach(t, "alice")
	bob := f.attach(t, "bob")

	for i := 0; i < 5; i++ {
		f.router.Handle(context.Background(), alice, event.Frame{
			Type:       event.TypeMessage,
			SenderID:   "alice",
			ReceiverID: "bob",
			Content:    "tick",
		})
	}

	relayed := bob.ofType(event.TypeMessage)
	req.Len(relayed, 5)
	for i := 1; i < len(relayed); i++ {
		req.Greater(relayed[i].Message.ID, relayed[i-1].Message.ID)
	}
}

func TestRouter_Typing_Is_Never_Stored(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, false)
	alice := f.attach(t, "alice")
	bob := f.attach(t, "bob")

	// When alice starts and stops typing
	f.router.Handle(context.Background(), alice, event.Frame{
		Type: event.TypeTyping, UserID: "alice", ReceiverID: "bob", IsTyping: true,
	})
	f.router.Handle(context.Background(), alice, event.Frame{
		Type: event.TypeTyping, UserID: "alice", ReceiverID: "bob", IsTyping: false,
	})

	// Then bob observed both transitions
	typing := bob.ofType(event.TypeTyping)
	req.Len(typing, 2)
	req.True(typing[0].IsTyping)
	req.False(typing[1].IsTyping)

	// The tracker cleared the flag and nothing reached storage
	status, _ := f.presence.Status("alice")
	req.Empty(status.Typing)
	history, err := f.messages.ListForUser("bob")
	req.NoError(err)
	req.Empty(history)
}

func TestRouter_Typing_Requires_A_Target(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, false)
	alice := f.attach(t, "alice")

	f.router.Handle(context.Background(), alice, event.Frame{
		Type: event.TypeTyping, UserID: "alice", IsTyping: true,
	})

	failures := alice.ofType(event.TypeError)
	req.Len(failures, 1)
	req.Equal(CodeValidation, failures[0].Code)
}

func TestRouter_Presence_Broadcast_Skips_Origin(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, false)
	alice := f.attach(t, "alice")
	bob := f.attach(t, "bob")

	f.router.Handle(context.Background(), alice, event.Frame{
		Type: event.TypePresence, UserID: "alice", IsOnline: true,
	})

	req.Len(bob.ofType(event.TypePresence), 1)
	req.Empty(alice.ofType(event.TypePresence))
	req.True(f.presence.Online("alice"))
}

func TestRouter_Detach_Last_Connection_Goes_Offline(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, false)
	alicePhone := f.attach(t, "alice")
	aliceLaptop := f.attach(t, "alice")
	bob := f.attach(t, "bob")

	// Dropping one device changes nothing
	f.router.Detach(alicePhone)
	req.True(f.presence.Online("alice"))
	req.Empty(bob.ofType(event.TypePresence))

	// Dropping the last one flips the identity offline and tells peers
	f.router.Detach(aliceLaptop)
	req.False(f.presence.Online("alice"))
	offline := bob.ofType(event.TypePresence)
	req.Len(offline, 1)
	req.False(offline[0].IsOnline)
	req.Equal("alice", offline[0].UserID)
}

func TestRouter_Edit_Only_By_Sender(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, false)
	alice := f.attach(t, "alice")
	bob := f.attach(t, "bob")
	mallory := f.attach(t, "mallory")

	msg, err := f.messages.Create(domain.Message{Content: "draft", SenderID: "alice", ReceiverID: "bob"})
	req.NoError(err)

	// A stranger's edit is refused
	f.router.Handle(context.Background(), mallory, event.Frame{
		Type: event.TypeEdit, SenderID: "mallory", MessageID: msg.ID, Content: "hacked",
	})
	failures := mallory.ofType(event.TypeError)
	req.Len(failures, 1)
	req.Equal(CodeForbidden, failures[0].Code)

	// The author's edit goes through and the canonical state is relayed
	f.router.Handle(context.Background(), alice, event.Frame{
		Type: event.TypeEdit, SenderID: "alice", MessageID: msg.ID, Content: "final",
	})
	edits := bob.ofType(event.TypeEdit)
	req.Len(edits, 1)
	req.Equal("final", edits[0].Message.Content)
	req.True(edits[0].Message.IsEdited)

	stored, err := f.messages.Get(msg.ID)
	req.NoError(err)
	req.Equal("final", stored.Content)
}

func TestRouter_Delete_Is_Logical(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, false)
	alice := f.attach(t, "alice")
	bob := f.attach(t, "bob")

	msg, err := f.messages.Create(domain.Message{Content: "oops", SenderID: "alice", ReceiverID: "bob"})
	req.NoError(err)

	f.router.Handle(context.Background(), alice, event.Frame{
		Type: event.TypeDelete, SenderID: "alice", MessageID: msg.ID,
	})

	deletes := bob.ofType(event.TypeDelete)
	req.Len(deletes, 1)
	req.True(deletes[0].Message.IsDeleted)

	stored, err := f.messages.Get(msg.ID)
	req.NoError(err)
	req.True(stored.IsDeleted)
}

func TestRouter_Reaction_Toggle_Roundtrip(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, false)
	alice := f.attach(t, "alice")
	bob := f.attach(t, "bob")

	msg, err := f.messages.Create(domain.Message{Content: "nice", SenderID: "alice", ReceiverID: "bob"})
	req.NoError(err)

	// First toggle adds, second removes, both relayed to the whole
	// conversation including the actor
	for _, wantRemoved := range []bool{false, true} {
		f.router.Handle(context.Background(), bob, event.Frame{
			Type: event.TypeReaction, UserID: "bob", MessageID: msg.ID, Emoji: "👍",
		})
		reactions := alice.ofType(event.TypeReaction)
		req.NotEmpty(reactions)
		req.Equal(wantRemoved, reactions[len(reactions)-1].Removed)
	}
	req.Len(alice.ofType(event.TypeReaction), 2)
	req.Len(bob.ofType(event.TypeReaction), 2)
}

func TestRouter_Reaction_Outside_Conversation_Is_Forbidden(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, false)
	mallory := f.attach(t, "mallory")

	msg, err := f.messages.Create(domain.Message{Content: "private", SenderID: "alice", ReceiverID: "bob"})
	req.NoError(err)

	f.router.Handle(context.Background(), mallory, event.Frame{
		Type: event.TypeReaction, UserID: "mallory", MessageID: msg.ID, Emoji: "👀",
	})

	failures := mallory.ofType(event.TypeError)
	req.Len(failures, 1)
	req.Equal(CodeForbidden, failures[0].Code)
}

func TestRouter_Read_Receipt_Reaches_The_Author(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, false)
	alice := f.attach(t, "alice")
	bob := f.attach(t, "bob")

	msg, err := f.messages.Create(domain.Message{Content: "seen?", SenderID: "alice", ReceiverID: "bob"})
	req.NoError(err)

	f.router.Handle(context.Background(), bob, event.Frame{
		Type: event.TypeRead, UserID: "bob", MessageID: msg.ID,
	})

	receipts := alice.ofType(event.TypeRead)
	req.Len(receipts, 1)
	req.True(receipts[0].Message.IsRead)
}

func TestRouter_Unknown_Type_Is_Dropped_Silently(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, false)
	alice := f.attach(t, "alice")
	bob := f.attach(t, "bob")

	f.router.Handle(context.Background(), alice, event.Frame{Type: "telepathy"})

	// No error frame, no relay, the connection stays up
	req.Empty(alice.received())
	req.Empty(bob.received())
}
