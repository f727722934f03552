// Package ws is the transport edge: it upgrades HTTP requests into
// WebSocket sessions and feeds decoded frames to the router.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chat-hub/domain/event"
	chaterrors "chat-hub/errors"
	"chat-hub/runtime"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	maxFrameSize = 64 << 10
)

// Session is one live connection bound to an identity. Frames read from
// it are handled sequentially, which gives the per-connection ordering
// guarantee; outbound frames go through a buffered channel so delivery
// to a slow peer fails fast instead of stalling fan-out.
type Session struct {
	id       string
	identity string
	conn     *websocket.Conn
	log      *slog.Logger
	send     chan event.Frame
	done     chan struct{}
	once     sync.Once

	// Local receive counter, ordering diagnostics only.
	seq atomic.Uint64
}

func newSession(conn *websocket.Conn, identity string, sendBuffer int, log *slog.Logger) *Session {
	return &Session{
		id:       uuid.NewString(),
		identity: identity,
		conn:     conn,
		log:      log,
		send:     make(chan event.Frame, sendBuffer),
		done:     make(chan struct{}),
	}
}

func (s *Session) ID() string       { return s.id }
func (s *Session) Identity() string { return s.identity }

// Send queues a frame without blocking. A closed session or a full
// buffer fails this delivery only; the registry isolates the failure.
func (s *Session) Send(frame event.Frame) error {
	select {
	case <-s.done:
		return chaterrors.ErrConnClosed
	default:
	}
	select {
	case s.send <- frame:
		return nil
	default:
		return chaterrors.ErrSlowConsumer
	}
}

func (s *Session) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// readLoop blocks until the connection closes. Malformed payloads are
// logged and skipped, never a reason to tear the connection down. An
// event already inside the router runs to completion; no frame read
// after close is ever processed.
func (s *Session) readLoop(ctx context.Context, router *runtime.Router) {
	defer s.close()

	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.log.Error("Read error", "conn_id", s.id, "error", err)
			}
			return
		}

		var frame event.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.log.Warn("Malformed frame, skipping", "conn_id", s.id, "error", err)
			continue
		}
		s.seq.Add(1)
		router.Handle(ctx, s, frame)
	}
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer s.close()

	for {
		select {
		case <-s.done:
			return
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(frame); err != nil {
				s.log.Debug("Write error", "conn_id", s.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
