package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"propdesk/internal/repository"
)

type StatsHandler struct {
	Repo repository.Repository
}

func (h *StatsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/stats")
	group.GET("/daily", h.listDaily)
}

// @Summary Daily trading rollups
// @Tags stats
// @Param since query string false "RFC3339 lower bound on date"
// @Param until query string false "RFC3339 upper bound on date"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/stats/daily [get]
func (h *StatsHandler) listDaily(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 30)
	offset := intQuery(c, "offset", 0)
	items, err := h.Repo.ListDailyStats(c.Request.Context(), repository.ListDailyStatsParams{
		Limit:  limit,
		Offset: offset,
		Since:  timeQueryPtr(c, "since"),
		Until:  timeQueryPtr(c, "until"),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, int64(len(items))))
}
