package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/runcup-connect/internal/dto"
	"github.com/prperemyshlev/runcup-connect/internal/service"
	"go.uber.org/zap"
)

// AdminHandler exposes the Strava connection counter to operators
type AdminHandler struct {
	manager service.ConnectionManager
	logger  *zap.Logger
}

func NewAdminHandler(manager service.ConnectionManager, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{manager: manager, logger: logger}
}

func (h *AdminHandler) Quota(c *gin.Context) {
	status, err := h.manager.Quota(c.Request.Context())
	if err != nil {
		h.internalError(c, "Failed to read quota", err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// Recalculate rebuilds the counter from stored tokens
func (h *AdminHandler) Recalculate(c *gin.Context) {
	ctx := c.Request.Context()

	if _, err := h.manager.RecalculateQuota(ctx); err != nil {
		h.internalError(c, "Failed to recalculate quota", err)
		return
	}

	status, err := h.manager.Quota(ctx)
	if err != nil {
		h.internalError(c, "Failed to read quota", err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *AdminHandler) Sweep(c *gin.Context) {
	result, err := h.manager.SweepExpired(c.Request.Context())
	if err != nil {
		h.internalError(c, "Failed to sweep expired connections", err)
		return
	}

	c.JSON(http.StatusOK, dto.SweepResponse{
		AccountsCleared: result.AccountsCleared,
		GuestsDeleted:   result.GuestsDeleted,
		Connected:       result.Connected,
	})
}

func (h *AdminHandler) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
		Error:   "Internal server error",
		Message: msg,
	})
}
