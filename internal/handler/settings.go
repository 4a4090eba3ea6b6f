package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"propdesk/internal/repository"
	"propdesk/internal/service"
)

type SettingsHandler struct {
	Repo     repository.Repository
	Settings *service.SettingsService
}

func (h *SettingsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/settings")
	group.GET("", h.listSettings)
	group.GET("/effective", h.effective)
	group.PUT("/:key", h.putSetting)
}

// @Summary List stored settings
// @Tags settings
// @Success 200 {object} apiResponse
// @Router /api/v1/settings [get]
func (h *SettingsHandler) listSettings(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListSettings(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

// @Summary Effective configuration snapshot
// @Description The file config with all stored overrides applied, exactly as
// @Description the next pipeline cycle will see it.
// @Tags settings
// @Success 200 {object} apiResponse
// @Router /api/v1/settings/effective [get]
func (h *SettingsHandler) effective(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings unavailable", nil)
		return
	}
	Ok(c, h.Settings.Take(c.Request.Context()), nil)
}

// @Summary Update one setting
// @Description Switch keys (switch.*) take a JSON boolean body; override keys
// @Description (override.*) take the partial JSON object for their shape.
// @Tags settings
// @Param key path string true "setting key"
// @Success 200 {object} apiResponse
// @Router /api/v1/settings/{key} [put]
func (h *SettingsHandler) putSetting(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings unavailable", nil)
		return
	}
	key := strings.TrimSpace(c.Param("key"))
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<16))
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	switch {
	case strings.HasPrefix(key, "switch."):
		var enabled bool
		if err := json.Unmarshal(body, &enabled); err != nil {
			Error(c, http.StatusBadRequest, "switch value must be a JSON boolean", nil)
			return
		}
		if err := h.Settings.SetEnabled(c.Request.Context(), key, enabled); err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
	case key == service.SettingRiskOverride || key == service.SettingTrailOverride:
		if err := h.Settings.SetOverride(c.Request.Context(), key, body); err != nil {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
	default:
		Error(c, http.StatusBadRequest, "unknown setting key", nil)
		return
	}

	item, err := h.Repo.GetSettingByKey(c.Request.Context(), key)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}
