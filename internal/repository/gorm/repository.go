package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"propdesk/internal/models"
	"propdesk/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- signals -----------------------------------------------------------------

func (s *Store) InsertSignalIgnoreDuplicate(ctx context.Context, item *models.Signal) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel"}, {Name: "source_message_id"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) GetSignal(ctx context.Context, id uint64) (*models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if id == 0 {
		return nil, nil
	}
	var item models.Signal
	err := s.db.WithContext(ctx).Model(&models.Signal{}).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// ClaimSignal is the compare-and-set that makes execution at-most-once: only
// the caller that flips pending to claimed may submit the order.
func (s *Store) ClaimSignal(ctx context.Context, id uint64, clientOrderID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	if id == 0 || strings.TrimSpace(clientOrderID) == "" {
		return false, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("id = ?", id).
		Where("status = ?", models.SignalStatusPending).
		Updates(map[string]any{
			"status":          models.SignalStatusClaimed,
			"client_order_id": clientOrderID,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) UpdateSignalStatus(ctx context.Context, id uint64, status string, reason string) error {
	if s == nil || s.db == nil {
		return nil
	}
	if id == 0 || strings.TrimSpace(status) == "" {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        status,
			"status_reason": reason,
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (s *Store) signalQuery(ctx context.Context, params repository.ListSignalsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Signal{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Channel != nil && strings.TrimSpace(*params.Channel) != "" {
		query = query.Where("channel = ?", strings.TrimSpace(*params.Channel))
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.ToUpper(strings.TrimSpace(*params.Symbol)))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("received_at >= ?", *params.Since)
	}
	return query
}

func (s *Store) ListSignals(ctx context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(s.signalQuery(ctx, params), params.OrderBy, params.Asc, "received_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Signal
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSignals(ctx context.Context, params repository.ListSignalsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.signalQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListSignalsByStatus(ctx context.Context, status string, limit int) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	status = strings.TrimSpace(status)
	if status == "" {
		return nil, nil
	}
	limit = normalizeLimit(limit, 200)
	var items []models.Signal
	if err := s.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("status = ?", status).
		Order("received_at asc").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSignalsSince(ctx context.Context, since time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if since.IsZero() {
		return 0, nil
	}
	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("received_at >= ?", since.UTC()).
		Count(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// --- trades ------------------------------------------------------------------

func (s *Store) CreateTradeWithTrailing(ctx context.Context, trade *models.Trade, ts *models.TrailingStop) error {
	if s == nil || s.db == nil || trade == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(trade).Error; err != nil {
			return err
		}
		if ts == nil {
			return nil
		}
		ts.TradeID = trade.ID
		return tx.Create(ts).Error
	})
}

func (s *Store) GetTrade(ctx context.Context, id uint64) (*models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if id == 0 {
		return nil, nil
	}
	var item models.Trade
	err := s.db.WithContext(ctx).Model(&models.Trade{}).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetTradeByClientOrderID(ctx context.Context, clientOrderID string) (*models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	clientOrderID = strings.TrimSpace(clientOrderID)
	if clientOrderID == "" {
		return nil, nil
	}
	var item models.Trade
	err := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("client_order_id = ?", clientOrderID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) tradeQuery(ctx context.Context, params repository.ListTradesParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Trade{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.ToUpper(strings.TrimSpace(*params.Symbol)))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("opened_at >= ?", *params.Since)
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("opened_at < ?", *params.Until)
	}
	return query
}

func (s *Store) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(s.tradeQuery(ctx, params), params.OrderBy, params.Asc, "opened_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Trade
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountTrades(ctx context.Context, params repository.ListTradesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.tradeQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListOpenTrades(ctx context.Context) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Trade
	if err := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("status = ?", models.TradeStatusOpen).
		Order("opened_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CloseTrade(ctx context.Context, params repository.CloseTradeParams) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	if params.TradeID == 0 || strings.TrimSpace(params.Status) == "" {
		return false, nil
	}
	closedAt := params.ClosedAt
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("id = ?", params.TradeID).
		Where("status = ?", models.TradeStatusOpen).
		Updates(map[string]any{
			"status":       params.Status,
			"close_detail": params.Detail,
			"exit_price":   params.ExitPrice,
			"realized_pnl": params.RealizedPnL,
			"closed_at":    &closedAt,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) SumOpenRisk(ctx context.Context) (decimal.Decimal, error) {
	if s == nil || s.db == nil {
		return decimal.Zero, nil
	}
	var out float64
	err := s.db.WithContext(ctx).
		Table("trades").
		Select("COALESCE(SUM(risk_amount),0)").
		Where("status = ?", models.TradeStatusOpen).
		Scan(&out).Error
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(out), nil
}

func (s *Store) CountOpenTrades(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("status = ?", models.TradeStatusOpen).
		Count(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) CountTradesOpenedSince(ctx context.Context, since time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if since.IsZero() {
		return 0, nil
	}
	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("opened_at >= ?", since.UTC()).
		Count(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) TradeStatsBetween(ctx context.Context, since, until time.Time) (repository.TradeStats, error) {
	if s == nil || s.db == nil {
		return repository.TradeStats{}, nil
	}
	var row struct {
		TradesClosed int64
		WinCount     int64
		LossCount    int64
		GrossPnL     float64
	}
	query := s.db.WithContext(ctx).
		Table("trades").
		Select(`
			COUNT(*) AS trades_closed,
			COALESCE(SUM(CASE WHEN realized_pnl > 0 THEN 1 ELSE 0 END),0) AS win_count,
			COALESCE(SUM(CASE WHEN realized_pnl < 0 THEN 1 ELSE 0 END),0) AS loss_count,
			COALESCE(SUM(COALESCE(realized_pnl,0)),0) AS gross_pn_l
		`).
		Where("status <> ?", models.TradeStatusOpen).
		Where("closed_at IS NOT NULL")
	if !since.IsZero() {
		query = query.Where("closed_at >= ?", since.UTC())
	}
	if !until.IsZero() {
		query = query.Where("closed_at < ?", until.UTC())
	}
	if err := query.Scan(&row).Error; err != nil {
		return repository.TradeStats{}, err
	}
	return repository.TradeStats{
		TradesClosed: row.TradesClosed,
		WinCount:     row.WinCount,
		LossCount:    row.LossCount,
		GrossPnL:     decimal.NewFromFloat(row.GrossPnL),
	}, nil
}

// --- risk state & audit --------------------------------------------------------

func (s *Store) GetRiskState(ctx context.Context, accountID string) (*models.RiskState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, nil
	}
	var item models.RiskState
	err := s.db.WithContext(ctx).
		Model(&models.RiskState{}).
		Where("account_id = ?", accountID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveRiskState(ctx context.Context, item *models.RiskState) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.AccountID) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"initial_equity",
			"equity",
			"peak_equity",
			"daily_pnl",
			"daily_trade_count",
			"daily_loss_limit",
			"max_drawdown_limit",
			"profit_target",
			"trading_allowed",
			"halt_reason",
			"evaluation_passed",
			"evaluation_failed",
			"daily_reset_at",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) AppendRiskEvent(ctx context.Context, item *models.RiskEvent) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListRiskEvents(ctx context.Context, params repository.ListRiskEventsParams) ([]models.RiskEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.RiskEvent{})
	if params.AccountID != nil && strings.TrimSpace(*params.AccountID) != "" {
		query = query.Where("account_id = ?", strings.TrimSpace(*params.AccountID))
	}
	if params.EventType != nil && strings.TrimSpace(*params.EventType) != "" {
		query = query.Where("event_type = ?", strings.TrimSpace(*params.EventType))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.RiskEvent
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- trailing stops -------------------------------------------------------------

func (s *Store) UpsertTrailingStop(ctx context.Context, item *models.TrailingStop) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if item.TradeID == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "trade_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"phase",
			"high_water_profit_pct",
			"activation_pct",
			"trail_distance_pct",
			"fallback_profit_pct",
			"max_hold_hours",
			"activated_at",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetTrailingStop(ctx context.Context, tradeID uint64) (*models.TrailingStop, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if tradeID == 0 {
		return nil, nil
	}
	var item models.TrailingStop
	err := s.db.WithContext(ctx).
		Model(&models.TrailingStop{}).
		Where("trade_id = ?", tradeID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) DeleteTrailingStop(ctx context.Context, tradeID uint64) error {
	if s == nil || s.db == nil {
		return nil
	}
	if tradeID == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("trade_id = ?", tradeID).
		Delete(&models.TrailingStop{}).Error
}

// --- source watermarks -----------------------------------------------------------

func (s *Store) GetSourceState(ctx context.Context, channel string) (*models.SourceState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil, nil
	}
	var item models.SourceState
	err := s.db.WithContext(ctx).
		Model(&models.SourceState{}).
		Where("channel = ?", channel).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveSourceState(ctx context.Context, item *models.SourceState) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Channel) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "channel"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_message_id",
			"last_check_at",
			"last_error",
		}),
	}).Create(item).Error
}

// --- runtime settings ---------------------------------------------------------------

func (s *Store) GetSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).
		Model(&models.SystemSetting{}).
		Where("key = ?", key).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "description", "updated_at"}),
	}).Create(item).Error
}

func (s *Store) ListSettings(ctx context.Context) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.SystemSetting
	if err := s.db.WithContext(ctx).
		Model(&models.SystemSetting{}).
		Order("key asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- daily rollups ---------------------------------------------------------------------

func (s *Store) UpsertDailyStat(ctx context.Context, item *models.DailyStat) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if item.Date.IsZero() {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"signals_received",
			"trades_opened",
			"trades_closed",
			"win_count",
			"loss_count",
			"gross_pnl",
			"equity_close",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) ListDailyStats(ctx context.Context, params repository.ListDailyStatsParams) ([]models.DailyStat, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.DailyStat{})
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("date >= ?", *params.Since)
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("date < ?", *params.Until)
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.DailyStat
	if err := query.Order("date desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- helpers -----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

var _ repository.Repository = (*Store)(nil)
