// Package runtime owns the live connection registry, the presence
// tracker and the event router. It carries no storage logic.
package runtime

import (
	"log/slog"
	"sync"

	"chat-hub/contract"
	"chat-hub/domain/event"
	chaterrors "chat-hub/errors"
	"chat-hub/observability"
)

// Registry tracks live connections and their identity bindings. Many
// readers (delivery) and occasional writers (register/unregister), so
// the maps sit behind an RWMutex and are never exposed to callers.
type Registry struct {
	mu         sync.RWMutex
	log        *slog.Logger
	metrics    *observability.Metrics
	conns      map[string]contract.Conn
	byIdentity map[string]map[string]contract.Conn
}

func NewRegistry(log *slog.Logger, metrics *observability.Metrics) *Registry {
	return &Registry{
		log:        log,
		metrics:    metrics,
		conns:      make(map[string]contract.Conn),
		byIdentity: make(map[string]map[string]contract.Conn),
	}
}

// Register binds a connection to an identity. An identity may hold any
// number of concurrent connections; only re-registering the same
// physical handle is an error.
func (r *Registry) Register(conn contract.Conn, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn.ID()]; ok {
		return chaterrors.ErrDuplicateConnection
	}
	r.conns[conn.ID()] = conn

	if _, ok := r.byIdentity[identity]; !ok {
		r.byIdentity[identity] = make(map[string]contract.Conn)
	}
	r.byIdentity[identity][conn.ID()] = conn

	r.metrics.ActiveConnections.Inc()
	return nil
}

// Unregister removes the binding. Unregistering an absent connection is
// a no-op, not an error.
func (r *Registry) Unregister(conn contract.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn.ID()]; !ok {
		return
	}
	delete(r.conns, conn.ID())
	r.metrics.ActiveConnections.Dec()

	identity := conn.Identity()
	if peers, ok := r.byIdentity[identity]; ok {
		delete(peers, conn.ID())
		// No empty sets left behind.
		if len(peers) == 0 {
			delete(r.byIdentity, identity)
		}
	}
}

// ConnectionsFor returns the identity's live connections; empty when
// the identity is offline.
func (r *Registry) ConnectionsFor(identity string) []contract.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := r.byIdentity[identity]
	conns := make([]contract.Conn, 0, len(peers))
	for _, c := range peers {
		conns = append(conns, c)
	}
	return conns
}

// Broadcast delivers to every live connection except the excluded one.
func (r *Registry) Broadcast(frame event.Frame, exclude contract.Conn) {
	r.mu.RLock()
	targets := make([]contract.Conn, 0, len(r.conns))
	for _, c := range r.conns {
		if exclude != nil && c.ID() == exclude.ID() {
			continue
		}
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	r.deliver(targets, frame)
}

// DeliverTo delivers to the union of the identities' connections. A
// physical connection receives the frame at most once even when it
// matches several identities.
func (r *Registry) DeliverTo(identities []string, frame event.Frame, exclude contract.Conn) {
	r.mu.RLock()
	seen := make(map[string]struct{})
	var targets []contract.Conn
	for _, identity := range identities {
		for id, c := range r.byIdentity[identity] {
			if exclude != nil && id == exclude.ID() {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	r.deliver(targets, frame)
}

// deliver attempts each write independently; one failing connection
// never aborts delivery to the rest of the audience.
func (r *Registry) deliver(targets []contract.Conn, frame event.Frame) {
	for _, c := range targets {
		if err := c.Send(frame); err != nil {
			r.metrics.DeliveryFailures.Inc()
			r.log.Warn("Delivery failed",
				"conn_id", c.ID(),
				"identity", c.Identity(),
				"type", frame.Type,
				"error", err)
			continue
		}
		r.metrics.DeliveriesTotal.Inc()
	}
}
