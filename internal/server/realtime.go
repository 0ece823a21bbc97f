package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/lodestar/internal/bookmarks"
)

const (
	realtimeEventChange    = "bookmark-change"
	realtimeEventHeartbeat = "heartbeat"
	heartbeatInterval      = 25 * time.Second
	socketWriteTimeout     = 10 * time.Second
)

type changeEventPayload struct {
	Kind              string        `json:"kind"`
	BookmarkID        string        `json:"bookmark_id"`
	Row               bookmarks.Row `json:"row,omitempty"`
	OccurredAtSeconds int64         `json:"occurred_at_s"`
}

func toChangeEventPayload(event bookmarks.ChangeEvent) changeEventPayload {
	return changeEventPayload{
		Kind:              string(event.Kind),
		BookmarkID:        event.BookmarkID,
		Row:               event.Row,
		OccurredAtSeconds: event.OccurredAt.Unix(),
	}
}

// handleEventStream pushes the owner's change feed over server-sent events.
// Missed events are not replayed; clients refresh with a bulk read after
// reconnecting when they need strict freshness.
func (h *httpHandler) handleEventStream(c *gin.Context) {
	ownerID, ok := h.ownerFromContext(c)
	if !ok {
		return
	}

	subscription := h.dispatcher.Subscribe(ownerID.String())
	defer subscription.Cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case event, open := <-subscription.Events():
			if !open {
				return false
			}
			c.SSEvent(realtimeEventChange, toChangeEventPayload(event))
			return true
		case <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, time.Now().UTC().Unix())
			return true
		case <-clientGone:
			return false
		}
	})
}

var socketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// handleEventSocket serves the same change feed over a websocket for
// clients that cannot hold an SSE connection open.
func (h *httpHandler) handleEventSocket(c *gin.Context) {
	ownerID, ok := h.ownerFromContext(c)
	if !ok {
		return
	}

	conn, err := socketUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	subscription := h.dispatcher.Subscribe(ownerID.String())
	defer subscription.Cancel()

	clientClosed := make(chan struct{})
	go func() {
		defer close(clientClosed)
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case event, open := <-subscription.Events():
			if !open {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
			if writeErr := conn.WriteJSON(toChangeEventPayload(event)); writeErr != nil {
				h.logger.Debug("websocket write failed", zap.Error(writeErr))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
			if writeErr := conn.WriteMessage(websocket.PingMessage, nil); writeErr != nil {
				return
			}
		case <-clientClosed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
