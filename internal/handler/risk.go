package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"propdesk/internal/repository"
	"propdesk/internal/risk"
)

type RiskHandler struct {
	Repo   repository.Repository
	Gate   *risk.Gate
	Logger *zap.Logger
}

func (h *RiskHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/risk")
	group.GET("/state", h.getState)
	group.GET("/events", h.listEvents)
	group.POST("/enable", h.enableTrading)
}

// @Summary Current risk state
// @Tags risk
// @Success 200 {object} apiResponse
// @Router /api/v1/risk/state [get]
func (h *RiskHandler) getState(c *gin.Context) {
	if h.Gate == nil {
		Error(c, http.StatusInternalServerError, "risk gate unavailable", nil)
		return
	}
	state, err := h.Gate.State(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if state == nil {
		Error(c, http.StatusNotFound, "risk state not initialized", nil)
		return
	}
	Ok(c, state, nil)
}

// @Summary Risk event audit trail
// @Tags risk
// @Param event_type query string false "event type filter"
// @Param since query string false "RFC3339 lower bound"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/risk/events [get]
func (h *RiskHandler) listEvents(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	items, err := h.Repo.ListRiskEvents(c.Request.Context(), repository.ListRiskEventsParams{
		Limit:     limit,
		Offset:    offset,
		EventType: strQueryPtr(c, "event_type"),
		Since:     timeQueryPtr(c, "since"),
		OrderBy:   "created_at",
		Asc:       boolPtr(false),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, int64(len(items))))
}

// @Summary Re-enable trading after an external review
// @Description Operator override: clears the halt and the failed flag. The
// @Description engine never calls this on its own.
// @Tags risk
// @Param operator query string true "who authorized the override"
// @Success 200 {object} apiResponse
// @Router /api/v1/risk/enable [post]
func (h *RiskHandler) enableTrading(c *gin.Context) {
	if h.Gate == nil {
		Error(c, http.StatusInternalServerError, "risk gate unavailable", nil)
		return
	}
	operator := c.Query("operator")
	if operator == "" {
		Error(c, http.StatusBadRequest, "operator is required", nil)
		return
	}
	if err := h.Gate.EnableTrading(c.Request.Context(), operator); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("enable trading failed", zap.Error(err))
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	state, err := h.Gate.State(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, state, nil)
}
