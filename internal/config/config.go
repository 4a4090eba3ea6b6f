package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Cron     CronConfig     `mapstructure:"cron"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Trailing TrailingConfig `mapstructure:"trailing"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Quotes   QuotesConfig   `mapstructure:"quotes"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type AppConfig struct {
	Env       string `mapstructure:"env"`
	AccountID string `mapstructure:"account_id" validate:"required"`
}

type ServerConfig struct {
	HTTPAddr  string `mapstructure:"http_addr"`
	AuthToken string `mapstructure:"auth_token"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	// DailyReset is a 6-field spec evaluated in UTC; prop-firm programs reset
	// daily counters shortly after midnight server time.
	DailyReset  string `mapstructure:"daily_reset"`
	EquitySync  string `mapstructure:"equity_sync"`
	StatsRollup string `mapstructure:"stats_rollup"`
}

type PipelineConfig struct {
	SignalPollInterval time.Duration `mapstructure:"signal_poll_interval" validate:"gt=0"`
	MonitorInterval    time.Duration `mapstructure:"monitor_interval" validate:"gt=0"`
}

// RiskConfig carries the account limits and sizing rules. Values here are the
// boot defaults; the settings service may override the tunable subset at
// runtime via the system_settings table.
type RiskConfig struct {
	InitialEquityUSD float64 `mapstructure:"initial_equity_usd" validate:"gt=0"`

	RiskPerTradePct    float64 `mapstructure:"risk_per_trade_pct" validate:"gt=0,lte=10"`
	MaxPortfolioRisk   float64 `mapstructure:"max_portfolio_risk_pct" validate:"gt=0,lte=100"`
	MaxPositionSizePct float64 `mapstructure:"max_position_size_pct" validate:"gt=0,lte=100"`
	MinPositionSizeUSD float64 `mapstructure:"min_position_size_usd" validate:"gte=0"`
	MaxPositionSizeUSD float64 `mapstructure:"max_position_size_usd" validate:"gt=0"`

	MaxDailyTrades int `mapstructure:"max_daily_trades" validate:"gt=0"`
	MaxOpenTrades  int `mapstructure:"max_open_trades" validate:"gt=0"`

	DailyLossLimitUSD float64 `mapstructure:"daily_loss_limit_usd" validate:"gt=0"`
	MaxDrawdownUSD    float64 `mapstructure:"max_drawdown_usd" validate:"gt=0"`
	ProfitTargetUSD   float64 `mapstructure:"profit_target_usd" validate:"gt=0"`

	// MinRRByAssetClass keys are asset classes (crypto, gold_fx). Tuned per
	// deployment, never hardcoded.
	MinRRByAssetClass map[string]float64 `mapstructure:"min_rr_by_asset_class"`
}

type TrailingConfig struct {
	ActivationPct     float64 `mapstructure:"activation_pct" validate:"gt=0"`
	TrailDistancePct  float64 `mapstructure:"trail_distance_pct" validate:"gt=0"`
	FallbackProfitPct float64 `mapstructure:"fallback_profit_pct" validate:"gte=0"`
	MaxHoldHours      int     `mapstructure:"max_hold_hours" validate:"gt=0"`
}

type BrokerConfig struct {
	// Mode selects the adapter: paper or binance.
	Mode    string        `mapstructure:"mode" validate:"oneof=paper binance"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`

	Binance BinanceConfig `mapstructure:"binance"`
}

type BinanceConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	Testnet   bool   `mapstructure:"testnet"`
}

type QuotesConfig struct {
	// Provider rest queries the book ticker on demand; stream keeps a local
	// cache fed by the combined bookTicker websocket.
	Provider   string        `mapstructure:"provider" validate:"oneof=rest stream"`
	StreamURL  string        `mapstructure:"stream_url"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

type TelegramConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Token       string        `mapstructure:"token"`
	ChatID      int64         `mapstructure:"chat_id"`
	Channels    []string      `mapstructure:"channels"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("app.account_id", "default")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.auth_token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "propdesk.db")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.daily_reset", "0 30 0 * * *")
	v.SetDefault("cron.equity_sync", "@every 5m")
	v.SetDefault("cron.stats_rollup", "@every 1h")
	v.SetDefault("pipeline.signal_poll_interval", "15m")
	v.SetDefault("pipeline.monitor_interval", "10s")

	v.SetDefault("risk.initial_equity_usd", 10000)
	v.SetDefault("risk.risk_per_trade_pct", 2.0)
	v.SetDefault("risk.max_portfolio_risk_pct", 10.0)
	v.SetDefault("risk.max_position_size_pct", 20.0)
	v.SetDefault("risk.min_position_size_usd", 100)
	v.SetDefault("risk.max_position_size_usd", 5000)
	v.SetDefault("risk.max_daily_trades", 10)
	v.SetDefault("risk.max_open_trades", 5)
	v.SetDefault("risk.daily_loss_limit_usd", 500)
	v.SetDefault("risk.max_drawdown_usd", 600)
	v.SetDefault("risk.profit_target_usd", 1000)
	v.SetDefault("risk.min_rr_by_asset_class", map[string]float64{
		"crypto":  2.0,
		"gold_fx": 2.5,
	})

	v.SetDefault("trailing.activation_pct", 4.5)
	v.SetDefault("trailing.trail_distance_pct", 1.5)
	v.SetDefault("trailing.fallback_profit_pct", 3.5)
	v.SetDefault("trailing.max_hold_hours", 48)

	v.SetDefault("broker.mode", "paper")
	v.SetDefault("broker.timeout", "10s")
	v.SetDefault("broker.binance.testnet", false)

	v.SetDefault("quotes.provider", "rest")
	v.SetDefault("quotes.stream_url", "wss://stream.binance.com:9443/stream")
	v.SetDefault("quotes.stale_after", "30s")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.poll_timeout", "10s")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}
