package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"sitedash/internal/domain"
	"sitedash/internal/middleware"
	"sitedash/internal/observability"
	ws "sitedash/internal/websocket"
)

// EventsHandler upgrades a tab to the session change feed.
type EventsHandler struct {
	hub      *ws.Hub
	snapshot middleware.SnapshotFunc
	upgrader websocket.Upgrader
}

// NewEventsHandler creates the feed handler. Browsers may connect from the
// page's own host or from one of allowedOrigins.
func NewEventsHandler(hub *ws.Hub, snapshot middleware.SnapshotFunc, allowedOrigins []string) *EventsHandler {
	return &EventsHandler{
		hub:      hub,
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
					return true
				}
				return middleware.OriginAllowed(origin, allowedOrigins)
			},
		},
	}
}

// HandleConnection handles WebSocket upgrade and connection
func (h *EventsHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	sid, ok := middleware.GetSessionID(r.Context())
	if !ok {
		middleware.WriteError(w, domain.NewAPIError(http.StatusBadRequest, "session required"))
		return
	}
	log := observability.FromContext(r.Context())

	// Bootstrap before the upgrade so any cookie changes ride on the
	// handshake response.
	snap := h.snapshot(w, r)
	var header http.Header
	if cookies := w.Header().Values("Set-Cookie"); len(cookies) > 0 {
		header = http.Header{"Set-Cookie": cookies}
		w.Header().Del("Set-Cookie")
	}

	conn, err := h.upgrader.Upgrade(w, r, header)
	if err != nil {
		log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := ws.NewClient(h.hub, conn, sid)
	if err := client.SendSnapshot(snap); err != nil {
		log.Error("failed to encode snapshot", slog.String("error", err.Error()))
	}
	if !h.hub.Register(client) {
		_ = conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
