package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"propdesk/internal/repository"
	"propdesk/internal/service"
)

type TradeHandler struct {
	Repo    repository.Repository
	Monitor *service.Monitor
	Logger  *zap.Logger
}

func (h *TradeHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/trades")
	group.GET("", h.listTrades)
	group.GET("/:id", h.getTrade)
	group.GET("/:id/trailing", h.getTrailing)
	group.POST("/:id/close", h.closeTrade)
}

// @Summary List trades
// @Tags trades
// @Param status query string false "trade status filter"
// @Param symbol query string false "symbol filter"
// @Param since query string false "RFC3339 lower bound on opened_at"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/trades [get]
func (h *TradeHandler) listTrades(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListTradesParams{
		Limit:   limit,
		Offset:  offset,
		Status:  strQueryPtr(c, "status"),
		Symbol:  strQueryPtr(c, "symbol"),
		Since:   timeQueryPtr(c, "since"),
		OrderBy: "opened_at",
		Asc:     boolPtr(false),
	}
	items, err := h.Repo.ListTrades(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountTrades(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get one trade
// @Tags trades
// @Param id path int true "trade id"
// @Success 200 {object} apiResponse
// @Router /api/v1/trades/{id} [get]
func (h *TradeHandler) getTrade(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid trade id", nil)
		return
	}
	item, err := h.Repo.GetTrade(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "trade not found", nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Get a trade's trailing stop state
// @Tags trades
// @Param id path int true "trade id"
// @Success 200 {object} apiResponse
// @Router /api/v1/trades/{id}/trailing [get]
func (h *TradeHandler) getTrailing(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid trade id", nil)
		return
	}
	item, err := h.Repo.GetTrailingStop(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "no trailing state for trade", nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Close a trade at market
// @Tags trades
// @Param id path int true "trade id"
// @Param operator query string false "who requested the close"
// @Success 200 {object} apiResponse
// @Router /api/v1/trades/{id}/close [post]
func (h *TradeHandler) closeTrade(c *gin.Context) {
	if h.Monitor == nil {
		Error(c, http.StatusInternalServerError, "monitor unavailable", nil)
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid trade id", nil)
		return
	}
	operator := c.Query("operator")
	if err := h.Monitor.CloseManual(c.Request.Context(), id, operator); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("manual close failed", zap.Uint64("trade_id", id), zap.Error(err))
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	item, err := h.Repo.GetTrade(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}
