package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"

	"propdesk/internal/config"
	"propdesk/internal/models"
	"propdesk/internal/repository"
)

// Runtime switches. Stored in system_settings so operators can flip them
// without a redeploy; the file config only supplies boot defaults.
const (
	SettingAutoTrading    = "switch.auto_trading"
	SettingTelegramNotify = "switch.telegram_notify"
	SettingRiskOverride   = "override.risk"
	SettingTrailOverride  = "override.trailing"
)

// SettingsService merges DB-stored overrides over the file config into an
// immutable snapshot. Each evaluation cycle takes exactly one snapshot, so a
// setting edited mid-cycle only applies from the next cycle on.
type SettingsService struct {
	Repo repository.Repository
	Base config.Config
}

// Snapshot is the effective configuration for one cycle. Copies, never
// references, so a concurrent settings write cannot tear a running cycle.
type Snapshot struct {
	Risk     config.RiskConfig
	Trailing config.TrailingConfig

	AutoTradingEnabled    bool
	TelegramNotifyEnabled bool
}

// riskOverride is the tunable subset of RiskConfig. Account limits (loss
// limit, drawdown, profit target) live on the risk_state row and are not
// overridable here; an evaluation's terms do not change mid-flight.
type riskOverride struct {
	RiskPerTradePct    *float64           `json:"risk_per_trade_pct"`
	MaxPortfolioRisk   *float64           `json:"max_portfolio_risk_pct"`
	MaxPositionSizePct *float64           `json:"max_position_size_pct"`
	MinPositionSizeUSD *float64           `json:"min_position_size_usd"`
	MaxPositionSizeUSD *float64           `json:"max_position_size_usd"`
	MaxDailyTrades     *int               `json:"max_daily_trades"`
	MaxOpenTrades      *int               `json:"max_open_trades"`
	MinRRByAssetClass  map[string]float64 `json:"min_rr_by_asset_class"`
}

type trailingOverride struct {
	ActivationPct     *float64 `json:"activation_pct"`
	TrailDistancePct  *float64 `json:"trail_distance_pct"`
	FallbackProfitPct *float64 `json:"fallback_profit_pct"`
	MaxHoldHours      *int     `json:"max_hold_hours"`
}

// EnsureDefaults seeds the switches at first boot without overwriting
// operator changes on later boots.
func (s *SettingsService) EnsureDefaults(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	defaults := map[string]bool{
		SettingAutoTrading:    true,
		SettingTelegramNotify: s.Base.Telegram.Enabled,
	}
	now := time.Now().UTC()
	for key, enabled := range defaults {
		existing, err := s.Repo.GetSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		raw, _ := json.Marshal(enabled)
		item := &models.SystemSetting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: "runtime switch",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.UpsertSetting(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// Take builds the effective snapshot for one cycle.
func (s *SettingsService) Take(ctx context.Context) Snapshot {
	snap := Snapshot{
		AutoTradingEnabled:    true,
		TelegramNotifyEnabled: false,
	}
	if s != nil {
		snap.Risk = s.Base.Risk
		snap.Trailing = s.Base.Trailing
		snap.TelegramNotifyEnabled = s.Base.Telegram.Enabled
	}
	if s == nil || s.Repo == nil {
		return snap
	}

	snap.AutoTradingEnabled = s.IsEnabled(ctx, SettingAutoTrading, snap.AutoTradingEnabled)
	snap.TelegramNotifyEnabled = s.IsEnabled(ctx, SettingTelegramNotify, snap.TelegramNotifyEnabled)

	if item, err := s.Repo.GetSettingByKey(ctx, SettingRiskOverride); err == nil && item != nil && len(item.Value) > 0 {
		var ov riskOverride
		if err := json.Unmarshal(item.Value, &ov); err == nil {
			applyRiskOverride(&snap.Risk, ov)
		}
	}
	if item, err := s.Repo.GetSettingByKey(ctx, SettingTrailOverride); err == nil && item != nil && len(item.Value) > 0 {
		var ov trailingOverride
		if err := json.Unmarshal(item.Value, &ov); err == nil {
			applyTrailingOverride(&snap.Trailing, ov)
		}
	}
	return snap
}

func applyRiskOverride(cfg *config.RiskConfig, ov riskOverride) {
	if ov.RiskPerTradePct != nil && *ov.RiskPerTradePct > 0 {
		cfg.RiskPerTradePct = *ov.RiskPerTradePct
	}
	if ov.MaxPortfolioRisk != nil && *ov.MaxPortfolioRisk > 0 {
		cfg.MaxPortfolioRisk = *ov.MaxPortfolioRisk
	}
	if ov.MaxPositionSizePct != nil && *ov.MaxPositionSizePct > 0 {
		cfg.MaxPositionSizePct = *ov.MaxPositionSizePct
	}
	if ov.MinPositionSizeUSD != nil && *ov.MinPositionSizeUSD >= 0 {
		cfg.MinPositionSizeUSD = *ov.MinPositionSizeUSD
	}
	if ov.MaxPositionSizeUSD != nil && *ov.MaxPositionSizeUSD > 0 {
		cfg.MaxPositionSizeUSD = *ov.MaxPositionSizeUSD
	}
	if ov.MaxDailyTrades != nil && *ov.MaxDailyTrades > 0 {
		cfg.MaxDailyTrades = *ov.MaxDailyTrades
	}
	if ov.MaxOpenTrades != nil && *ov.MaxOpenTrades > 0 {
		cfg.MaxOpenTrades = *ov.MaxOpenTrades
	}
	if len(ov.MinRRByAssetClass) > 0 {
		merged := make(map[string]float64, len(cfg.MinRRByAssetClass))
		for k, v := range cfg.MinRRByAssetClass {
			merged[k] = v
		}
		for k, v := range ov.MinRRByAssetClass {
			if v > 0 {
				merged[k] = v
			}
		}
		cfg.MinRRByAssetClass = merged
	}
}

func applyTrailingOverride(cfg *config.TrailingConfig, ov trailingOverride) {
	if ov.ActivationPct != nil && *ov.ActivationPct > 0 {
		cfg.ActivationPct = *ov.ActivationPct
	}
	if ov.TrailDistancePct != nil && *ov.TrailDistancePct > 0 {
		cfg.TrailDistancePct = *ov.TrailDistancePct
	}
	if ov.FallbackProfitPct != nil && *ov.FallbackProfitPct >= 0 {
		cfg.FallbackProfitPct = *ov.FallbackProfitPct
	}
	if ov.MaxHoldHours != nil && *ov.MaxHoldHours > 0 {
		cfg.MaxHoldHours = *ov.MaxHoldHours
	}
}

func (s *SettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

func (s *SettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	raw, _ := json.Marshal(enabled)
	return s.Repo.UpsertSetting(ctx, &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "runtime switch",
		UpdatedAt:   time.Now().UTC(),
	})
}

// SetOverride stores a raw JSON override blob after checking it parses into
// the known shape for its key.
func (s *SettingsService) SetOverride(ctx context.Context, key string, raw []byte) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	switch key {
	case SettingRiskOverride:
		var ov riskOverride
		if err := json.Unmarshal(raw, &ov); err != nil {
			return err
		}
	case SettingTrailOverride:
		var ov trailingOverride
		if err := json.Unmarshal(raw, &ov); err != nil {
			return err
		}
	}
	return s.Repo.UpsertSetting(ctx, &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "tunable override",
		UpdatedAt:   time.Now().UTC(),
	})
}
