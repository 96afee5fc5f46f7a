package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hyperengineering/traderack/internal/events"
)

// Websocket timing and buffer limits.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMsgSize     = 1 << 10
	defaultBuffer  = 64
	maxEventBuffer = 1024
)

// wsEnvelope frames every websocket message.
type wsEnvelope struct {
	Type  string        `json:"type"`
	Event *events.Event `json:"event,omitempty"`
	Data  any           `json:"data,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Same-origin checks are left to the deployment's reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// parseBuffer reads ?buffer=N, the subscriber queue length, with bounds.
func parseBuffer(r *http.Request) int {
	if s := r.URL.Query().Get("buffer"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= maxEventBuffer {
			return n
		}
	}
	return defaultBuffer
}

// Events handles GET /api/v1/events: a websocket that first sends the rack
// and selection as a "hello" message, then every published event in order.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error.
		slog.Warn("websocket upgrade failed", "component", "api", "action", "ws_upgrade", "error", err)
		return
	}
	defer conn.Close()

	sub := h.bus.Subscribe(parseBuffer(r))
	defer sub.Close()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go readPump(conn, done)

	hello := map[string]any{"rack": h.ws.Rack(), "selection": h.ws.Selection()}
	if err := writeEnvelope(conn, wsEnvelope{Type: "hello", Data: hello}); err != nil {
		return
	}
	slog.Info("event stream opened", "component", "api", "action", "ws_open", "remote_addr", r.RemoteAddr)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			slog.Info("event stream closed", "component", "api", "action", "ws_close", "remote_addr", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-sub.C:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}
			if err := writeEnvelope(conn, wsEnvelope{Type: "event", Event: &ev}); err != nil {
				slog.Info("event stream write failed", "component", "api", "action", "ws_write", "error", err)
				return
			}
		}
	}
}

// readPump drains client frames so control frames are processed, and
// closes done when the peer goes away.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeEnvelope(conn *websocket.Conn, env wsEnvelope) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}
