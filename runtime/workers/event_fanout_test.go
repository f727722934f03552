package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"chat-hub/domain"
	"chat-hub/domain/event"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
	fail   bool
}

func (s *recordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	if s.fail {
		return fmt.Errorf("sink on strike")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestFanout_Delivers_To_Every_Sink(t *testing.T) {
	req := require.New(t)
	events := make(chan event.DomainEvent, 4)
	first := &recordingSink{}
	second := &recordingSink{}
	fanout := NewEventFanout(slog.Default(), events, first, second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = fanout.Run(ctx)
		close(done)
	}()

	events <- event.MessagePersisted{Message: domain.Message{ID: 1}}
	events <- event.PresenceChanged{UserID: "alice", IsOnline: true}

	req.Eventually(func() bool {
		return first.count() == 2 && second.count() == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestFanout_Failing_Sink_Does_Not_Starve_Others(t *testing.T) {
	req := require.New(t)
	events := make(chan event.DomainEvent, 4)
	broken := &recordingSink{fail: true}
	healthy := &recordingSink{}
	fanout := NewEventFanout(slog.Default(), events, broken, healthy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fanout.Run(ctx) }()

	events <- event.MessagePersisted{Message: domain.Message{ID: 1}}

	req.Eventually(func() bool {
		return healthy.count() == 1
	}, time.Second, 10*time.Millisecond)
	req.Zero(broken.count())
}

func TestFanout_Stops_On_Closed_Channel(t *testing.T) {
	req := require.New(t)
	events := make(chan event.DomainEvent)
	fanout := NewEventFanout(slog.Default(), events, &recordingSink{})

	done := make(chan struct{})
	go func() {
		_ = fanout.Run(context.Background())
		close(done)
	}()

	close(events)

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		req.Fail("Fanout should stop when the event channel closes")
	}
}
