package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	nest "github.com/gleadbet/nest"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMsgSize      = 1 << 12 // 4 KB
	defaultInterval = 15 * time.Second
	minInterval     = 1 * time.Second
	maxInterval     = 60 * time.Second
)

// Envelope for all WebSocket messages.
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

const (
	wsTypeUpdate = "device-update"
	wsTypeError  = "error"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsDevice streams normalized state for one device. The client gets an
// immediate snapshot, then an update whenever a genuine upstream fetch
// happens: the connection's own polling, another client's poll, or a
// post-write refresh. The ?interval query (1s..60s, default 15s) sets how
// often this connection nudges the cache.
func (h *Handler) wsDevice(c *gin.Context) {
	sess := currentSession(c)
	deviceID := c.Param("id")
	interval := h.parseInterval(c)

	// Validate the device before upgrading so a bad id fails as plain HTTP.
	device, err := h.services.Get(c.Request.Context(), sess, deviceID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader goroutine handles control frames and detects disconnects.
	done := make(chan struct{})
	go h.startReader(conn, done)

	updates, cancel := h.services.Subscribe(deviceID)
	defer cancel()

	poll := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		poll.Stop()
		ping.Stop()
	}()

	if err := h.writeEnvelope(conn, wsEnvelope{Type: wsTypeUpdate, Data: device}); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err)
		}
		return
	}

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case d, ok := <-updates:
			if !ok {
				return
			}
			if err := h.writeEnvelope(conn, wsEnvelope{Type: wsTypeUpdate, Data: d}); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		case <-poll.C:
			// Refresh the cache; deliveries arrive via the subscription.
			if _, err := h.services.List(c.Request.Context(), sess, false); err != nil {
				if nest.Reauth(err) || nest.KindOf(err) == nest.KindAuthRequired {
					_ = h.writeEnvelope(conn, wsEnvelope{Type: wsTypeError, Error: string(nest.KindOf(err))})
					return
				}
				if h.log != nil {
					h.log.Infow("ws_poll_failed", "err", err)
				}
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
		}
	}
}

// parseInterval reads ?interval=5s with bounds, falling back to the default.
func (h *Handler) parseInterval(c *gin.Context) time.Duration {
	if s := c.Query("interval"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d >= minInterval && d <= maxInterval {
			return d
		}
	}
	return defaultInterval
}

// startReader drains incoming messages to service control frames and detect
// closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writeEnvelope(conn *websocket.Conn, env wsEnvelope) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}
