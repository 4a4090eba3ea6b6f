package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"propdesk/internal/models"
)

// Repository is the persistence surface shared by the intake pipeline, the
// executor, the trade monitor and the HTTP API. The gorm implementation lives
// under repository/gorm; service tests substitute in-memory stubs.
type Repository interface {
	// Signals. Insert reports whether a row was actually created, which is
	// how redelivered channel messages collapse into a no-op.
	InsertSignalIgnoreDuplicate(ctx context.Context, item *models.Signal) (bool, error)
	GetSignal(ctx context.Context, id uint64) (*models.Signal, error)
	ClaimSignal(ctx context.Context, id uint64, clientOrderID string) (bool, error)
	UpdateSignalStatus(ctx context.Context, id uint64, status string, reason string) error
	ListSignals(ctx context.Context, params ListSignalsParams) ([]models.Signal, error)
	CountSignals(ctx context.Context, params ListSignalsParams) (int64, error)
	ListSignalsByStatus(ctx context.Context, status string, limit int) ([]models.Signal, error)
	CountSignalsSince(ctx context.Context, since time.Time) (int64, error)

	// Trades. Trade and trailing state are created in one transaction so a
	// crash between the two writes cannot leave an unmonitored position.
	CreateTradeWithTrailing(ctx context.Context, trade *models.Trade, ts *models.TrailingStop) error
	GetTrade(ctx context.Context, id uint64) (*models.Trade, error)
	GetTradeByClientOrderID(ctx context.Context, clientOrderID string) (*models.Trade, error)
	ListTrades(ctx context.Context, params ListTradesParams) ([]models.Trade, error)
	CountTrades(ctx context.Context, params ListTradesParams) (int64, error)
	ListOpenTrades(ctx context.Context) ([]models.Trade, error)
	CloseTrade(ctx context.Context, params CloseTradeParams) (bool, error)
	SumOpenRisk(ctx context.Context) (decimal.Decimal, error)
	CountOpenTrades(ctx context.Context) (int64, error)
	CountTradesOpenedSince(ctx context.Context, since time.Time) (int64, error)
	TradeStatsBetween(ctx context.Context, since, until time.Time) (TradeStats, error)

	// Risk state plus its append-only audit trail.
	GetRiskState(ctx context.Context, accountID string) (*models.RiskState, error)
	SaveRiskState(ctx context.Context, item *models.RiskState) error
	AppendRiskEvent(ctx context.Context, item *models.RiskEvent) error
	ListRiskEvents(ctx context.Context, params ListRiskEventsParams) ([]models.RiskEvent, error)

	// Trailing stop state, keyed by trade.
	UpsertTrailingStop(ctx context.Context, item *models.TrailingStop) error
	GetTrailingStop(ctx context.Context, tradeID uint64) (*models.TrailingStop, error)
	DeleteTrailingStop(ctx context.Context, tradeID uint64) error

	// Source intake watermarks.
	GetSourceState(ctx context.Context, channel string) (*models.SourceState, error)
	SaveSourceState(ctx context.Context, item *models.SourceState) error

	// Runtime settings.
	GetSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	UpsertSetting(ctx context.Context, item *models.SystemSetting) error
	ListSettings(ctx context.Context) ([]models.SystemSetting, error)

	// Daily rollups.
	UpsertDailyStat(ctx context.Context, item *models.DailyStat) error
	ListDailyStats(ctx context.Context, params ListDailyStatsParams) ([]models.DailyStat, error)
}

type ListSignalsParams struct {
	Limit   int
	Offset  int
	Status  *string
	Channel *string
	Symbol  *string
	Since   *time.Time
	OrderBy string
	Asc     *bool
}

type ListTradesParams struct {
	Limit   int
	Offset  int
	Status  *string
	Symbol  *string
	Since   *time.Time
	Until   *time.Time
	OrderBy string
	Asc     *bool
}

type ListRiskEventsParams struct {
	Limit     int
	Offset    int
	AccountID *string
	EventType *string
	Since     *time.Time
	OrderBy   string
	Asc       *bool
}

type ListDailyStatsParams struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// CloseTradeParams closes one open trade. The update is conditional on the
// row still being open, so concurrent closers (monitor loop vs manual API)
// resolve to exactly one winner.
type CloseTradeParams struct {
	TradeID     uint64
	Status      string
	Detail      string
	ExitPrice   decimal.Decimal
	RealizedPnL decimal.Decimal
	ClosedAt    time.Time
}

// TradeStats summarizes trades closed inside a window. Wins and losses are
// counted on the sign of realized PnL; a flat exit counts as neither.
type TradeStats struct {
	TradesClosed int64
	WinCount     int64
	LossCount    int64
	GrossPnL     decimal.Decimal
}
