package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	"github.com/noah-isme/sma-roster-sync/pkg/middleware/cors"
)

const (
	eventWriteWait  = 10 * time.Second
	eventPongWait   = 60 * time.Second
	eventPingPeriod = (eventPongWait * 9) / 10
)

type eventSource interface {
	Subscribe(sessionID string) (<-chan models.SessionEvent, func())
}

// EventsHandler streams session events over a websocket so the editor can
// follow submission progress and edits made from another tab.
type EventsHandler struct {
	authorizer sessionAuthorizer
	events     eventSource
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

type sessionAuthorizer interface {
	Authorize(id, userID string, admin bool) error
}

// NewEventsHandler builds a websocket handler. Origins are checked against
// the same allow-list as CORS.
func NewEventsHandler(authorizer sessionAuthorizer, events eventSource, allowedOrigins []string, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := cors.OriginSet(allowedOrigins)
	return &EventsHandler{
		authorizer: authorizer,
		events:     events,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || cors.Allowed(origins, origin)
			},
		},
	}
}

// Stream godoc
// @Summary Stream session events
// @Description Upgrades to a websocket. Browsers pass the token as access_token.
// @Tags Sessions
// @Param id path string true "Session ID"
// @Param access_token query string false "Bearer token for websocket clients"
// @Success 101
// @Router /sessions/{id}/events [get]
func (h *EventsHandler) Stream(c *gin.Context) {
	id, ok := authorizeSession(c, h.authorizer)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.String("session_id", id), zap.Error(err))
		return
	}

	events, cancel := h.events.Subscribe(id)
	go h.readPump(conn, cancel)
	h.writePump(conn, id, events, cancel)
}

// readPump discards client messages and cancels the subscription when the
// peer goes away.
func (h *EventsHandler) readPump(conn *websocket.Conn, cancel func()) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(eventPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventPongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *EventsHandler) writePump(conn *websocket.Conn, id string, events <-chan models.SessionEvent, cancel func()) {
	ticker := time.NewTicker(eventPingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		conn.Close()
	}()

	for {
		select {
		case evt, open := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if !open {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				h.logger.Debug("websocket write failed", zap.String("session_id", id), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
