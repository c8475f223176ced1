package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const writeTimeout = 10 * time.Second

// WebSocketHandler upgrades chat connections and pumps framed events
// between the transport and the supervisor.
type WebSocketHandler struct {
	sup           *Supervisor
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates the chat websocket endpoint handler.
func NewWebSocketHandler(sup *Supervisor, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		sup:           sup,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsConn adapts a websocket connection to the Conn interface. A mutex
// serializes writes; each write carries its own deadline so one stuck
// peer cannot wedge the sender.
type wsConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "addr", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	id := uuid.NewString()
	addr := originAddr(r)

	conn := &wsConn{ws: ws}
	if err := h.sup.Connect(id, addr, conn); err != nil {
		slog.Error("Failed to register session", "error", err, "session_id", id)
		return
	}
	defer h.sup.Disconnect(id)

	h.readLoop(r.Context(), ws, id)
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, id string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", id)
			} else {
				slog.Debug("WebSocket read error", "error", err, "session_id", id)
			}
			return
		}

		var frame InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Debug("Ignoring malformed frame", "session_id", id, "error", err)
			continue
		}
		h.sup.Handle(id, frame)
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// originAddr extracts the client address used for abuse tracking,
// trusting RemoteAddr as rewritten by the RealIP middleware.
func originAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
