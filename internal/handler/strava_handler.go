package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/runcup-connect/internal/domain"
	"github.com/prperemyshlev/runcup-connect/internal/dto"
	"github.com/prperemyshlev/runcup-connect/internal/provider/strava"
	"github.com/prperemyshlev/runcup-connect/internal/service"
	"github.com/prperemyshlev/runcup-connect/internal/utils"
	"go.uber.org/zap"
)

const (
	activitiesPath     = "/strava/activities"
	defaultPerPage     = 30
	maxPerPage         = 100
	guestIDBytes       = 24
	capacityMessage    = "Strava connections are temporarily full, please try again later"
	notConnectedReason = "Strava is not connected"
)

// StateStore issues and consumes one-time OAuth state values
type StateStore interface {
	Issue(ctx context.Context, payload service.OAuthState) (string, error)
	Consume(ctx context.Context, state string) (*service.OAuthState, error)
}

// SelectionStore keeps the activity a session imported
type SelectionStore interface {
	Save(ctx context.Context, sessionID string, summary strava.ActivitySummary) error
	Get(ctx context.Context, sessionID string) (*strava.ActivitySummary, error)
	Delete(ctx context.Context, sessionID string) error
}

// StravaHandler handles the Strava connection flow and activity import
type StravaHandler struct {
	manager    service.ConnectionManager
	api        service.ActivityProvider
	states     StateStore
	selections SelectionStore
	sessions   *SessionCookie
	logger     *zap.Logger
}

// NewStravaHandler creates a new Strava handler
func NewStravaHandler(
	manager service.ConnectionManager,
	api service.ActivityProvider,
	states StateStore,
	selections SelectionStore,
	sessions *SessionCookie,
	logger *zap.Logger,
) *StravaHandler {
	return &StravaHandler{
		manager:    manager,
		api:        api,
		states:     states,
		selections: selections,
		sessions:   sessions,
		logger:     logger,
	}
}

// Connect starts the authorization redirect. Sessions without a principal
// become guests here. A new connection must pass admission first.
func (h *StravaHandler) Connect(c *gin.Context) {
	ctx := c.Request.Context()
	session := CurrentSession(c)

	principal, ok := session.Principal()
	if !ok {
		guestID, err := utils.RandomToken(guestIDBytes)
		if err != nil {
			h.internalError(c, "Failed to create guest identity", err)
			return
		}
		session.GuestID = guestID
		principal = domain.Guest(guestID)
	}

	token, err := h.manager.GetActiveToken(ctx, principal, false)
	if err != nil {
		h.internalError(c, "Failed to load Strava connection", err)
		return
	}

	// A pending skip does not exempt a connection that no longer holds a live token.
	if token == "" {
		if _, err := h.manager.Admit(ctx); err != nil {
			if errors.Is(err, service.ErrQuotaExceeded) {
				c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
					Error:   "Service unavailable",
					Message: capacityMessage,
				})
				return
			}
			h.internalError(c, "Failed to check Strava capacity", err)
			return
		}
	}

	state, err := h.states.Issue(ctx, service.OAuthState{
		SessionID:     session.SessionID,
		AccountID:     session.UserID,
		GuestID:       session.GuestID,
		SkipIncrement: session.SkipIncrement,
	})
	if err != nil {
		h.internalError(c, "Failed to start Strava authorization", err)
		return
	}

	// The skip travels with the state now.
	session.SkipIncrement = false
	if err := h.sessions.Save(c, session); err != nil {
		h.internalError(c, "Failed to update session", err)
		return
	}

	c.Redirect(http.StatusFound, h.api.AuthCodeURL(state))
}

// Authorized finishes the authorization redirect
func (h *StravaHandler) Authorized(c *gin.Context) {
	ctx := c.Request.Context()
	session := CurrentSession(c)

	state, err := h.states.Consume(ctx, c.Query("state"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidOAuthState) {
			h.badRequest(c, err.Error())
			return
		}
		h.internalError(c, "Failed to verify Strava authorization", err)
		return
	}

	if state.SessionID != session.SessionID {
		h.logger.Warn("OAuth state issued to another session", zap.String("session_id", session.SessionID))
		h.badRequest(c, service.ErrInvalidOAuthState.Error())
		return
	}

	if reason := c.Query("error"); reason != "" {
		h.badRequest(c, "Strava authorization was denied")
		return
	}

	req := service.ConnectRequest{
		Code:          c.Query("code"),
		SkipIncrement: state.SkipIncrement,
	}
	switch {
	case state.AccountID != "":
		req.Principal = domain.Account(state.AccountID)
		req.PriorGuestID = state.GuestID
	case state.GuestID != "":
		req.Principal = domain.Guest(state.GuestID)
	default:
		h.badRequest(c, service.ErrInvalidOAuthState.Error())
		return
	}

	if _, err := h.manager.Connect(ctx, req); err != nil {
		switch {
		case errors.Is(err, service.ErrQuotaExceeded):
			c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
				Error:   "Service unavailable",
				Message: capacityMessage,
			})
		case errors.Is(err, service.ErrProviderExchange):
			c.JSON(http.StatusBadGateway, dto.ErrorResponse{
				Error:   "Bad gateway",
				Message: service.ErrProviderExchange.Error(),
			})
		default:
			h.internalError(c, "Failed to connect Strava", err)
		}
		return
	}

	c.Redirect(http.StatusFound, activitiesPath)
}

// Disconnect revokes the session's Strava connection
func (h *StravaHandler) Disconnect(c *gin.Context) {
	ctx := c.Request.Context()
	session := CurrentSession(c)

	principal, ok := session.Principal()
	if !ok {
		c.JSON(http.StatusOK, dto.SuccessResponse{Message: "No Strava account to disconnect"})
		return
	}

	cleared, err := h.manager.Disconnect(ctx, principal, session.SessionID)
	if err != nil {
		h.internalError(c, "Failed to disconnect Strava", err)
		return
	}

	if principal.IsGuest() {
		if err := h.selections.Delete(ctx, session.SessionID); err != nil {
			h.logger.Warn("Failed to drop activity selection", zap.Error(err))
		}
	}

	if !cleared {
		c.JSON(http.StatusOK, dto.SuccessResponse{Message: "No Strava account to disconnect"})
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "Strava disconnected"})
}

// Status reports whether the session can call Strava right now
func (h *StravaHandler) Status(c *gin.Context) {
	principal, token := h.activeToken(c)

	response := dto.StravaStatusResponse{Connected: token != ""}
	if response.Connected {
		response.Principal = principal.Kind.String()
	}

	c.JSON(http.StatusOK, response)
}

// Activities lists the session's runs together with the imported one
func (h *StravaHandler) Activities(c *gin.Context) {
	ctx := c.Request.Context()
	session := CurrentSession(c)

	response := dto.ActivityListResponse{Activities: []dto.ActivityItem{}}

	if selected, err := h.selections.Get(ctx, session.SessionID); err != nil {
		h.logger.Warn("Failed to load activity selection", zap.Error(err))
	} else if selected != nil {
		response.Selected = selected
	}

	_, token := h.activeToken(c)
	if token == "" {
		c.JSON(http.StatusOK, response)
		return
	}

	page := queryInt(c, "page", 1, 1, 1<<16)
	perPage := queryInt(c, "per_page", defaultPerPage, 1, maxPerPage)

	activities, err := h.api.ListActivities(ctx, token, page, perPage)
	if err != nil {
		if errors.Is(err, strava.ErrUnauthorized) {
			c.JSON(http.StatusOK, response)
			return
		}
		h.logger.Warn("Failed to list Strava activities", zap.Error(err))
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{
			Error:   "Bad gateway",
			Message: "Could not load Strava activities",
		})
		return
	}

	response.Connected = true
	for _, a := range strava.RunsOnly(activities) {
		summary := strava.Summarize(a)
		response.Activities = append(response.Activities, dto.ActivityItem{
			ID:        summary.ID,
			Name:      summary.Name,
			StartDate: a.StartDate.Format(time.RFC3339),
			Distance:  summary.Distance,
			Time:      summary.Time,
			Pace:      summary.Pace,
		})
	}

	c.JSON(http.StatusOK, response)
}

// Import stores one activity as the session's selection
func (h *StravaHandler) Import(c *gin.Context) {
	ctx := c.Request.Context()
	session := CurrentSession(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, "Invalid activity id")
		return
	}

	_, token := h.activeToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:   "Unauthorized",
			Message: notConnectedReason,
		})
		return
	}

	activity, err := h.api.GetActivity(ctx, token, id)
	if err != nil {
		switch {
		case errors.Is(err, strava.ErrActivityNotFound):
			c.JSON(http.StatusNotFound, dto.ErrorResponse{
				Error:   "Not found",
				Message: "Activity not found",
			})
		case errors.Is(err, strava.ErrUnauthorized):
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   "Unauthorized",
				Message: notConnectedReason,
			})
		default:
			h.logger.Warn("Failed to fetch Strava activity", zap.Int64("activity_id", id), zap.Error(err))
			c.JSON(http.StatusBadGateway, dto.ErrorResponse{
				Error:   "Bad gateway",
				Message: "Could not load the activity",
			})
		}
		return
	}

	summary := strava.Summarize(*activity)
	if err := h.selections.Save(ctx, session.SessionID, summary); err != nil {
		h.internalError(c, "Failed to save activity selection", err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Selected returns the imported activity
func (h *StravaHandler) Selected(c *gin.Context) {
	selected, err := h.selections.Get(c.Request.Context(), CurrentSession(c).SessionID)
	if err != nil {
		h.internalError(c, "Failed to load activity selection", err)
		return
	}
	if selected == nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error:   "Not found",
			Message: "No activity imported",
		})
		return
	}

	c.JSON(http.StatusOK, selected)
}

// activeToken resolves the session principal and its usable access token.
// Implicit refresh is skipped once right after a disconnect.
func (h *StravaHandler) activeToken(c *gin.Context) (domain.Principal, string) {
	ctx := c.Request.Context()
	session := CurrentSession(c)

	principal, ok := session.Principal()
	if !ok {
		return principal, ""
	}

	allowRefresh := h.manager.AllowImplicitRefresh(ctx, session.SessionID)
	token, err := h.manager.GetActiveToken(ctx, principal, allowRefresh)
	if err != nil {
		h.logger.Warn("Strava token unavailable",
			zap.String("principal", principal.String()),
			zap.Error(err),
		)
		return principal, ""
	}

	return principal, token
}

func (h *StravaHandler) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:   "Bad request",
		Message: msg,
	})
}

func (h *StravaHandler) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
		Error:   "Internal server error",
		Message: msg,
	})
}

func queryInt(c *gin.Context, name string, def, lo, hi int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return min(max(v, lo), hi)
}
