package ws

import (
	"log/slog"
	"net/http"

	"chat-hub/auth"
	"chat-hub/runtime"

	"github.com/gorilla/websocket"
)

// Handler authenticates and upgrades connections, then runs the
// session loops until disconnect.
type Handler struct {
	log        *slog.Logger
	router     *runtime.Router
	verifier   auth.Verifier
	sendBuffer int
	upgrader   websocket.Upgrader
}

func NewHandler(log *slog.Logger, router *runtime.Router, verifier auth.Verifier, sendBuffer int) *Handler {
	return &Handler{
		log:        log,
		router:     router,
		verifier:   verifier,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from arbitrary origins; access
			// control is the credential check below.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Credential check happens before the upgrade completes.
	identity, err := h.verifier.Verify(r)
	if err != nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Upgrade failed", "error", err)
		return
	}

	session := newSession(conn, identity, h.sendBuffer, h.log)
	if err := h.router.Attach(session, identity); err != nil {
		h.log.Warn("Attach failed", "identity", identity, "error", err)
		_ = conn.Close()
		return
	}
	h.log.Info("Client connected", "conn_id", session.ID(), "identity", identity)

	// Closing the connection unregisters immediately; the read loop
	// lets an in-flight event finish before returning.
	defer func() {
		h.router.Detach(session)
		session.close()
		h.log.Info("Client disconnected", "conn_id", session.ID(), "identity", identity)
	}()

	go session.writeLoop()
	session.readLoop(r.Context(), h.router)
}
