// Package client is a reconnecting WebSocket client for the hub. It
// dials, pumps inbound frames to subscribers, and on an unexpected
// disconnect retries on a fixed interval until the attempt budget is
// spent.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"chat-hub/domain/event"
	chaterrors "chat-hub/errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultReconnectInterval = 3 * time.Second
	defaultMaxReconnects     = 5
	writeWait                = 10 * time.Second
)

// FrameHandler receives every frame the server pushes.
type FrameHandler func(event.Frame)

// Subscription detaches its handler when cancelled.
type Subscription struct {
	cancel func()
	once   sync.Once
}

func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

type Options struct {
	// URL is the full WebSocket endpoint including credentials in the
	// query string, for example ws://host:8080/ws?userId=alice.
	URL               string
	Header            http.Header
	ReconnectInterval time.Duration
	MaxReconnects     int
	Log               *slog.Logger
}

// Client holds one logical connection to the hub across reconnects.
type Client struct {
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string]FrameHandler
	closed   bool
	done     chan struct{}
}

func New(opts Options) *Client {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = defaultReconnectInterval
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = defaultMaxReconnects
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		opts:     opts,
		log:      log,
		handlers: make(map[string]FrameHandler),
		done:     make(chan struct{}),
	}
}

// OnFrame registers a handler for every inbound frame. The returned
// subscription survives reconnects until cancelled.
func (c *Client) OnFrame(handler FrameHandler) *Subscription {
	token := uuid.NewString()
	c.mu.Lock()
	c.handlers[token] = handler
	c.mu.Unlock()
	return &Subscription{cancel: func() {
		c.mu.Lock()
		delete(c.handlers, token)
		c.mu.Unlock()
	}}
}

// Run dials and pumps frames until ctx is cancelled, Close is called,
// or the reconnect budget is exhausted. Exhaustion returns
// ErrPermanentDisconnect wrapped around the last dial failure.
func (c *Client) Run(ctx context.Context) error {
	attempts := 0
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, c.opts.Header)
		if err != nil {
			attempts++
			if attempts >= c.opts.MaxReconnects {
				return fmt.Errorf("%w: %d attempts: %v",
					chaterrors.ErrPermanentDisconnect, attempts, err)
			}
			c.log.Warn("Dial failed, retrying",
				"attempt", attempts, "max", c.opts.MaxReconnects, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.done:
				return nil
			case <-time.After(c.opts.ReconnectInterval):
			}
			continue
		}

		// A successful session resets the attempt budget.
		attempts = 0
		c.setConn(conn)
		c.log.Info("Connected", "url", c.opts.URL)

		err = c.pump(ctx, conn)
		c.setConn(nil)
		_ = conn.Close()

		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case c.isClosed():
			return nil
		default:
			c.log.Warn("Connection lost, reconnecting", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.done:
				return nil
			case <-time.After(c.opts.ReconnectInterval):
			}
		}
	}
}

func (c *Client) pump(ctx context.Context, conn *websocket.Conn) error {
	go func() {
		select {
		case <-ctx.Done():
		case <-c.done:
		}
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var frame event.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Warn("Malformed frame from server, skipping", "error", err)
			continue
		}
		for _, handler := range c.snapshotHandlers() {
			handler(frame)
		}
	}
}

// Close ends the client for good; Run returns nil.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Send writes one frame. It fails when no connection is live; callers
// retry after Run re-establishes the session.
func (c *Client) Send(frame event.Frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return chaterrors.ErrConnClosed
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}

// SendMessage pushes a chat message and returns the correlation id the
// server echoes back on the matching ack or error frame.
func (c *Client) SendMessage(senderID, receiverID string, groupID int64, content string) (string, error) {
	correlationID := uuid.NewString()
	err := c.Send(event.Frame{
		Type:          event.TypeMessage,
		CorrelationID: correlationID,
		SenderID:      senderID,
		ReceiverID:    receiverID,
		GroupID:       groupID,
		Content:       content,
	})
	return correlationID, err
}

// SendTyping publishes a typing indicator for a direct conversation.
func (c *Client) SendTyping(userID, peerID string, typing bool) error {
	return c.Send(event.Frame{
		Type:       event.TypeTyping,
		UserID:     userID,
		ReceiverID: peerID,
		IsTyping:   typing,
	})
}

// SendGroupTyping publishes a typing indicator inside a group.
func (c *Client) SendGroupTyping(userID string, groupID int64, typing bool) error {
	return c.Send(event.Frame{
		Type:     event.TypeTyping,
		UserID:   userID,
		GroupID:  groupID,
		IsTyping: typing,
	})
}

// SendPresence publishes an explicit online or offline transition.
func (c *Client) SendPresence(userID string, online bool) error {
	return c.Send(event.Frame{
		Type:     event.TypePresence,
		UserID:   userID,
		IsOnline: online,
	})
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) snapshotHandlers() []FrameHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	handlers := make([]FrameHandler, 0, len(c.handlers))
	for _, handler := range c.handlers {
		handlers = append(handlers, handler)
	}
	return handlers
}
