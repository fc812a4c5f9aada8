package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yourusername/mediagrab-go/internal/app"
	"github.com/yourusername/mediagrab-go/internal/domain"
	"go.uber.org/zap"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local service, the UI may be served from another port
	},
}

// ProgressHandler streams job progress by polling, SSE or WebSocket
type ProgressHandler struct {
	manager *app.JobManager
	logger  *zap.Logger
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(manager *app.JobManager, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{
		manager: manager,
		logger:  logger,
	}
}

// Poll handles GET /api/v1/jobs/:id/progress
func (h *ProgressHandler) Poll(c *gin.Context) {
	id := c.Param("id")

	if event, ok := h.manager.Broadcaster().Snapshot(id); ok {
		c.JSON(http.StatusOK, event)
		return
	}

	// A subscriber may have opened the topic before the job was submitted
	if _, err := h.manager.Get(id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, domain.ProgressEvent{JobID: id, Status: domain.StatusPending})
}

// subscribable reports whether a stream for id can ever see an event. Unknown
// ids are accepted so a client can subscribe before submitting with its clientId;
// ids of jobs already dropped by the janitor are not.
func (h *ProgressHandler) subscribable(id string) error {
	if _, ok := h.manager.Broadcaster().Snapshot(id); ok {
		return nil
	}
	if _, err := h.manager.Get(id); err != nil && h.manager.IsForgotten(id) {
		return err
	}
	return nil
}

// Events handles GET /api/v1/jobs/:id/events as a server-sent event stream.
// The stream ends after the terminal event.
func (h *ProgressHandler) Events(c *gin.Context) {
	id := c.Param("id")
	if err := h.subscribable(id); err != nil {
		respondError(c, err)
		return
	}

	sub := h.manager.Broadcaster().Subscribe(id)
	defer sub.Close()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			c.SSEvent("progress", event)
			c.Writer.Flush()
			if event.IsTerminal() {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// WebSocket handles GET /api/v1/jobs/:id/ws. Events are sent as JSON text
// messages; the server closes the connection after the terminal event.
func (h *ProgressHandler) WebSocket(c *gin.Context) {
	id := c.Param("id")
	if err := h.subscribable(id); err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := h.manager.Broadcaster().Subscribe(id)
	defer sub.Close()

	h.logger.Debug("WebSocket client connected",
		zap.String("job_id", id),
		zap.String("remote_addr", c.Request.RemoteAddr))

	// Read messages from client so close frames and pongs are processed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"),
					time.Now().Add(writeTimeout))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("Failed to send progress event", zap.String("job_id", id), zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}
