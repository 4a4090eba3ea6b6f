package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"propdesk/internal/models"
	"propdesk/internal/repository"
)

type SignalHandler struct {
	Repo repository.Repository
}

func (h *SignalHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/signals")
	group.GET("", h.listSignals)
	group.GET("/:id", h.getSignal)
	group.POST("", h.createSignal)
}

// @Summary List signals
// @Tags signals
// @Param status query string false "signal status filter"
// @Param channel query string false "channel filter"
// @Param symbol query string false "symbol filter"
// @Param since query string false "RFC3339 lower bound on received_at"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/signals [get]
func (h *SignalHandler) listSignals(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListSignalsParams{
		Limit:   limit,
		Offset:  offset,
		Status:  strQueryPtr(c, "status"),
		Channel: strQueryPtr(c, "channel"),
		Symbol:  strQueryPtr(c, "symbol"),
		Since:   timeQueryPtr(c, "since"),
		OrderBy: "received_at",
		Asc:     boolPtr(false),
	}
	items, err := h.Repo.ListSignals(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountSignals(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get one signal
// @Tags signals
// @Param id path int true "signal id"
// @Success 200 {object} apiResponse
// @Router /api/v1/signals/{id} [get]
func (h *SignalHandler) getSignal(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid signal id", nil)
		return
	}
	item, err := h.Repo.GetSignal(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "signal not found", nil)
		return
	}
	Ok(c, item, nil)
}

type createSignalRequest struct {
	Symbol     string          `json:"symbol" binding:"required"`
	Side       string          `json:"side" binding:"required,oneof=Buy Sell"`
	EntryPrice decimal.Decimal `json:"entry_price" binding:"required"`
	StopLoss   decimal.Decimal `json:"stop_loss" binding:"required"`
	TakeProfit decimal.Decimal `json:"take_profit" binding:"required"`
}

// @Summary Inject a signal manually
// @Description Inserts a pending signal as if a channel had posted it; the
// @Description next pipeline cycle evaluates it like any other.
// @Tags signals
// @Param body body createSignalRequest true "signal"
// @Success 200 {object} apiResponse
// @Router /api/v1/signals [post]
func (h *SignalHandler) createSignal(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req createSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if !req.EntryPrice.IsPositive() || !req.StopLoss.IsPositive() || !req.TakeProfit.IsPositive() {
		Error(c, http.StatusBadRequest, "prices must be positive", nil)
		return
	}
	if req.EntryPrice.Equal(req.StopLoss) {
		Error(c, http.StatusBadRequest, "entry equals stop loss", nil)
		return
	}

	now := time.Now().UTC()
	item := &models.Signal{
		Channel:         "manual",
		SourceMessageID: now.UnixNano(),
		ReceivedAt:      now,
		Symbol:          req.Symbol,
		Side:            req.Side,
		AssetClass:      models.AssetClassFor(req.Symbol),
		EntryPrice:      req.EntryPrice,
		StopLoss:        req.StopLoss,
		TakeProfit:      req.TakeProfit,
		Status:          models.SignalStatusPending,
		Raw:             datatypes.JSON([]byte(`{"source":"api"}`)),
	}
	created, err := h.Repo.InsertSignalIgnoreDuplicate(c.Request.Context(), item)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if !created {
		Error(c, http.StatusConflict, "duplicate signal", nil)
		return
	}
	Ok(c, item, nil)
}
