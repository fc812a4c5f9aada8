package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/mediagrab-go/internal/app"
	"github.com/yourusername/mediagrab-go/internal/domain"
)

// Version is reported by the health endpoint
var Version = "dev"

// ReadyCheck reports why the service cannot take jobs, or nil
type ReadyCheck func() error

// HealthHandler handles health check requests
type HealthHandler struct {
	manager *app.JobManager
	ready   ReadyCheck
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(manager *app.JobManager, ready ReadyCheck) *HealthHandler {
	return &HealthHandler{
		manager: manager,
		ready:   ready,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Jobs    struct {
		Pending int `json:"pending"`
		Running int `json:"running"`
	} `json:"jobs"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: Version,
	}
	for _, job := range h.manager.List() {
		switch job.Status {
		case domain.StatusPending:
			response.Jobs.Pending++
		case domain.StatusRunning:
			response.Jobs.Running++
		}
	}

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.ready != nil {
		if err := h.ready(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"reason": err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
