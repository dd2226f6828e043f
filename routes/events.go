package routes

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/musichost/hoster/events"
)

const (
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     checkWebSocketOrigin,
}

// checkWebSocketOrigin accepts non-browser clients (no Origin header) and
// same-host browser requests. The API is already admin-gated upstream.
func checkWebSocketOrigin(r *http.Request) bool {
	originHeader := strings.TrimSpace(r.Header.Get("Origin"))
	if originHeader == "" {
		return true
	}
	originURL, err := url.Parse(originHeader)
	if err != nil {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}

// EventSource is the subscription half of the lifecycle event bus.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan events.Event, func(), error)
}

// EventsHandler streams tenant lifecycle events to API clients over
// WebSocket.
type EventsHandler struct {
	Source EventSource
	log    *slog.Logger
}

func NewEventsHandler(source EventSource) *EventsHandler {
	return &EventsHandler{
		Source: source,
		log:    slog.Default().With("component", "events-stream"),
	}
}

// Mount registers the event stream route on the provided mux.
func (h *EventsHandler) Mount(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/events/stream", h.handleStream)
}

func (h *EventsHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stream, closeStream, err := h.Source.Subscribe(ctx)
	if err != nil {
		writeAPIError(w, http.StatusServiceUnavailable, "event stream is not configured")
		return
	}
	defer closeStream()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))

	// Read pump: drains control frames and cancels on client close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event, ok := <-stream:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "event source closed"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}
