package runtime

import (
	"fmt"
	"sync"
	"time"
)

// TypingContext identifies where an identity is typing: a direct peer
// or a group.
type TypingContext string

func DirectContext(peerID string) TypingContext {
	return TypingContext("user:" + peerID)
}

func GroupContext(groupID int64) TypingContext {
	return TypingContext(fmt.Sprintf("group:%d", groupID))
}

// Status is a snapshot of an identity's ephemeral state.
type Status struct {
	Online   bool
	LastSeen time.Time
	Typing   map[TypingContext]bool
}

// Presence keeps the short-lived online/typing state. Nothing here is
// persisted; entries are overwritten on every update and typing flags
// are cleared on disconnect. Expiry of stale typing flags is owned by
// the sender's client (a follow-up false), not by a server timer.
type Presence struct {
	mu      sync.RWMutex
	entries map[string]*Status
}

func NewPresence() *Presence {
	return &Presence{entries: make(map[string]*Status)}
}

func (p *Presence) entry(identity string) *Status {
	s, ok := p.entries[identity]
	if !ok {
		s = &Status{Typing: make(map[TypingContext]bool)}
		p.entries[identity] = s
	}
	return s
}

// MarkOnline flips the flag optimistically; no handshake ack required.
func (p *Presence) MarkOnline(identity string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entry(identity).Online = true
}

// MarkOffline stamps lastSeen and clears any typing contexts.
func (p *Presence) MarkOffline(identity string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.entry(identity)
	s.Online = false
	s.LastSeen = time.Now().UTC()
	s.Typing = make(map[TypingContext]bool)
}

// SetTyping stores the latest boolean per (identity, context);
// last write wins, stale orderings are not deduplicated.
func (p *Presence) SetTyping(identity string, ctx TypingContext, typing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.entry(identity)
	if typing {
		s.Typing[ctx] = true
		return
	}
	delete(s.Typing, ctx)
}

func (p *Presence) Online(identity string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.entries[identity]
	return ok && s.Online
}

// Status returns a copy of the identity's state.
func (p *Presence) Status(identity string) (Status, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.entries[identity]
	if !ok {
		return Status{}, false
	}
	typing := make(map[TypingContext]bool, len(s.Typing))
	for k, v := range s.Typing {
		typing[k] = v
	}
	return Status{Online: s.Online, LastSeen: s.LastSeen, Typing: typing}, true
}
