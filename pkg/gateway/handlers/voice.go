package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relaykit/voicerelay/pkg/gateway/config"
	"github.com/relaykit/voicerelay/pkg/gateway/live/agent"
	"github.com/relaykit/voicerelay/pkg/gateway/live/bridge"
	"github.com/relaykit/voicerelay/pkg/gateway/live/session"
	"github.com/relaykit/voicerelay/pkg/gateway/live/usage"
	"github.com/relaykit/voicerelay/pkg/gateway/mw"
)

// VoiceHandler handles /v1/voice websocket sessions. Each connection gets
// its own dispatcher goroutine; the handler blocks until the session ends.
type VoiceHandler struct {
	Config  config.Config
	Logger  *slog.Logger
	Backend bridge.Backend
	Agents  agent.Resolver
	Records session.RecordStore
	Usage   session.UsageReporter
	Rates   usage.Rates
}

func (h VoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !h.originAllowed(r) {
		writeError(w, r, http.StatusForbidden, "origin is not allowed")
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Config.WSMaxMessageBytes > 0 {
		conn.SetReadLimit(h.Config.WSMaxMessageBytes)
	}

	sessionID := "s_" + mw.RandHex(8)
	reqID, _ := mw.RequestIDFrom(r.Context())
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", sessionID, "request_id", reqID)

	writer := &wsWriter{conn: conn, timeout: h.Config.WSWriteTimeout}

	pongWait := 2 * h.Config.WSPingInterval
	if pongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	stopPing := make(chan struct{})
	defer close(stopPing)
	if h.Config.WSPingInterval > 0 {
		go h.pingLoop(conn, stopPing)
	}

	inbound := make(chan session.InboundFrame, 16)
	go func() {
		defer close(inbound)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if !isExpectedClose(err) {
					inbound <- session.InboundFrame{Err: err}
				}
				return
			}
			inbound <- session.InboundFrame{Data: data}
		}
	}()

	d := session.New(session.Dependencies{
		Client:    writer,
		Logger:    logger,
		Backend:   h.Backend,
		Agents:    h.Agents,
		Records:   h.Records,
		Usage:     h.Usage,
		Rates:     h.Rates,
		SessionID: sessionID,
	})
	d.Run(r.Context(), inbound)

	// Unblock the read loop if it is mid-send; it exits once the deferred
	// Close takes the connection down.
	go func() {
		for range inbound {
		}
	}()

	logger.Info("voice connection closed")
}

func (h VoiceHandler) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(h.Config.WSPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(h.Config.WSWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

func (h VoiceHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

// wsWriter serializes writes to the connection; the dispatcher and the ping
// loop write concurrently with the close handshake.
type wsWriter struct {
	conn    *websocket.Conn
	timeout time.Duration
	mu      sync.Mutex
}

func (w *wsWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	}
	return w.conn.WriteJSON(v)
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
