package contract

import (
	"context"
	"reflect"

	"chat-hub/domain/event"
)

// Conn is one live transport session bound to an identity. Send must be
// non-blocking: a slow consumer fails its own delivery without stalling
// the rest of the audience.
type Conn interface {
	ID() string
	Identity() string
	Send(frame event.Frame) error
}

// ISessionRegistry tracks live connections per identity. An identity may
// hold several concurrent connections (multi-device); all of them take
// part in fan-out.
type ISessionRegistry interface {
	Register(conn Conn, identity string) error
	Unregister(conn Conn)
	ConnectionsFor(identity string) []Conn
	Broadcast(frame event.Frame, exclude Conn)
	DeliverTo(identities []string, frame event.Frame, exclude Conn)
}

// EventSink consumes post-relay domain events.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Worker doesn't protect itself; the supervisor restarts it on panic.
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// for logging and supervision, avoiding manual naming on the interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
