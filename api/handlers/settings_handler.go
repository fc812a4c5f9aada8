package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/mediagrab-go/internal/domain"
	"go.uber.org/zap"
)

// SettingsHandler serves the persisted download preferences
type SettingsHandler struct {
	store  domain.SettingsStore
	logger *zap.Logger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(store domain.SettingsStore, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		store:  store,
		logger: logger,
	}
}

// SettingsResponse is the stored document plus what it resolves to
type SettingsResponse struct {
	domain.Settings
	ResolvedHeight  int    `json:"resolvedHeight"` // 0 means best available
	ResolvedBitrate string `json:"resolvedBitrate"`
}

func newSettingsResponse(s domain.Settings) SettingsResponse {
	return SettingsResponse{
		Settings:        s,
		ResolvedHeight:  domain.ResolveVideoQuality(s),
		ResolvedBitrate: domain.ResolveAudioBitrate(s),
	}
}

// GetSettings handles GET /api/v1/settings
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, newSettingsResponse(h.store.Load()))
}

// UpdateSettings handles PUT /api/v1/settings. Omitted fields keep their
// stored value; the merged document replaces the old one.
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var update domain.Settings
	if err := c.ShouldBindJSON(&update); err != nil {
		respondInput(c, "malformed settings document")
		return
	}

	merged := h.store.Load().Merge(update)
	if err := h.store.Save(merged); err != nil {
		h.logger.Error("Failed to save settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to save settings", Kind: domain.ErrorKindInternal})
		return
	}

	c.JSON(http.StatusOK, newSettingsResponse(merged))
}
