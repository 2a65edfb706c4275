package live

import (
	"net/http"
	"path"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// OriginChecker builds a websocket origin check from CORS-style patterns
// such as "https://snippi.me" or "http://localhost:*". Requests without an
// Origin header (non-browser clients) are accepted.
func OriginChecker(patterns []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, p := range patterns {
			if p == "*" || p == origin {
				return true
			}
			if ok, _ := path.Match(p, origin); ok {
				return true
			}
		}
		return false
	}
}

// Serve upgrades the request to a websocket and streams the events of topics
// to it as JSON until either side goes away. Incoming messages are ignored.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, topics []string, checkOrigin func(*http.Request) bool) {
	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}

	// Subscribe before the handshake completes so no event published after
	// the client sees the upgrade is missed.
	sub := h.Subscribe(topics...)
	defer sub.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("live: websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	h.logger.Debug("live: subscribed", "topics", topics, "remote", r.RemoteAddr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("live: websocket read", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Dropped by the hub for falling behind.
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber too slow"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("live: websocket write", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
