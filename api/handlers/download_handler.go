package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/mediagrab-go/internal/app"
	"github.com/yourusername/mediagrab-go/internal/domain"
	"go.uber.org/zap"
)

// DownloadHandler handles download and job HTTP requests
type DownloadHandler struct {
	manager *app.JobManager
	config  *domain.DownloadConfig
	logger  *zap.Logger
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(manager *app.JobManager, config *domain.DownloadConfig, logger *zap.Logger) *DownloadHandler {
	return &DownloadHandler{
		manager: manager,
		config:  config,
		logger:  logger,
	}
}

func bindRequest(c *gin.Context) (domain.DownloadRequest, bool) {
	var req domain.DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInput(c, "malformed request body")
		return req, false
	}
	return req, true
}

// Download handles POST /api/v1/download. It runs the job while the request is
// open and answers with the artifact bytes.
func (h *DownloadHandler) Download(c *gin.Context) {
	req, ok := bindRequest(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if !h.config.CancelOnDisconnect {
		ctx = context.WithoutCancel(ctx)
	}

	job, artifact, err := h.manager.Download(ctx, req)
	if err != nil {
		if job != nil {
			c.Header("X-Job-ID", job.ID)
		}
		if domain.KindOf(err) == domain.ErrorKindCancelled {
			h.logger.Info("Download abandoned by client", zap.String("url", req.URL))
		}
		respondError(c, err)
		return
	}
	defer artifact.Release()

	h.serveArtifact(c, job.ID, artifact)
}

func (h *DownloadHandler) serveArtifact(c *gin.Context, jobID string, artifact *app.Artifact) {
	c.Header("X-Job-ID", jobID)
	c.Header("Content-Type", artifact.ContentType)
	c.FileAttachment(artifact.Path, artifact.Name)

	h.logger.Info("Artifact delivered",
		zap.String("id", jobID),
		zap.String("name", artifact.Name),
		zap.Int64("size", artifact.Size))
}

// CreateJob handles POST /api/v1/jobs
func (h *DownloadHandler) CreateJob(c *gin.Context) {
	req, ok := bindRequest(c)
	if !ok {
		return
	}

	job, err := h.manager.Start(req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Location", "/api/v1/jobs/"+job.ID)
	c.JSON(http.StatusAccepted, job)
}

// ListJobs handles GET /api/v1/jobs
func (h *DownloadHandler) ListJobs(c *gin.Context) {
	jobs := h.manager.List()

	if status := c.Query("status"); status != "" {
		filtered := jobs[:0]
		for _, j := range jobs {
			if string(j.Status) == status {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// GetJob handles GET /api/v1/jobs/:id
func (h *DownloadHandler) GetJob(c *gin.Context) {
	job, err := h.manager.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// CancelJob handles POST /api/v1/jobs/:id/cancel
func (h *DownloadHandler) CancelJob(c *gin.Context) {
	id := c.Param("id")
	if err := h.manager.Cancel(id); err != nil {
		if _, getErr := h.manager.Get(id); getErr == nil {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "job already finished", Kind: domain.ErrorKindInput})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "cancel requested"})
}

// GetArtifact handles GET /api/v1/jobs/:id/artifact. The artifact can be fetched
// once and is removed afterwards.
func (h *DownloadHandler) GetArtifact(c *gin.Context) {
	id := c.Param("id")

	artifact, err := h.manager.TakeArtifact(id)
	if err != nil {
		respondError(c, err)
		return
	}
	defer artifact.Release()

	h.serveArtifact(c, id, artifact)
}
