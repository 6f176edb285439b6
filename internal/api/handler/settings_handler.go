package handler

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/jmartinez0/rewards/internal/domain/settings"
)

// SettingsHandler manages the program configuration endpoints.
type SettingsHandler struct {
	logger  *slog.Logger
	program SettingsService
}

// NewSettingsHandler creates a settings handler.
func NewSettingsHandler(logger *slog.Logger, program SettingsService) *SettingsHandler {
	return &SettingsHandler{logger: logger, program: program}
}

// Get returns the current program configuration.
func (h *SettingsHandler) Get(c *gin.Context) {
	cfg, err := h.program.Get(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load program settings", "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapSettingsToResponse(cfg))
}

// Update replaces the program configuration.
func (h *SettingsHandler) Update(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	next := &settings.Settings{
		EarnRate:       *req.EarnRate,
		ExpirationDays: req.ExpirationDays,
		Enabled:        *req.Enabled,
	}

	saved, err := h.program.Update(c.Request.Context(), next)
	if err != nil {
		switch {
		case errors.Is(err, settings.ErrInvalidEarnRate):
			RespondFieldError(c, "earn_rate", err.Error())
		case errors.Is(err, settings.ErrInvalidExpirationDays):
			RespondFieldError(c, "expiration_days", err.Error())
		default:
			h.logger.Error("Failed to update program settings", "error", err)
			RespondInternalError(c)
		}
		return
	}

	RespondOK(c, mapSettingsToResponse(saved))
}
