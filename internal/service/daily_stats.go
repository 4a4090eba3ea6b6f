package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"propdesk/internal/models"
	"propdesk/internal/notify"
	"propdesk/internal/repository"
	"propdesk/internal/risk"
)

// DailyStats rolls the day's activity up into one row per UTC date. Rollup
// is idempotent; re-running it mid-day just overwrites the partial row with
// fresher numbers.
type DailyStats struct {
	Repo     repository.Repository
	Gate     *risk.Gate
	Notifier *notify.Notifier
	Logger   *zap.Logger
}

// Rollup recomputes today's row from the trades and signals tables.
func (s *DailyStats) Rollup(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	_, err := s.rollupDay(ctx, time.Now().UTC())
	return err
}

// Report rolls up the day that just ended and pushes the summary to the
// notifier. Called by the daily reset job, so "the day" is yesterday in UTC.
func (s *DailyStats) Report(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	stat, err := s.rollupDay(ctx, time.Now().UTC().AddDate(0, 0, -1))
	if err != nil {
		return err
	}
	var state *models.RiskState
	if s.Gate != nil {
		state, _ = s.Gate.State(ctx)
	}
	if s.Notifier != nil && stat != nil {
		s.Notifier.DailyReport(*stat, state)
	}
	return nil
}

func (s *DailyStats) rollupDay(ctx context.Context, t time.Time) (*models.DailyStat, error) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	next := day.AddDate(0, 0, 1)

	stats, err := s.Repo.TradeStatsBetween(ctx, day, next)
	if err != nil {
		return nil, err
	}
	// The counters are open-ended; subtracting the next day's count bounds
	// the window so yesterday's report never bleeds into today.
	signals, err := s.Repo.CountSignalsSince(ctx, day)
	if err != nil {
		return nil, err
	}
	signalsAfter, err := s.Repo.CountSignalsSince(ctx, next)
	if err != nil {
		return nil, err
	}
	opened, err := s.Repo.CountTradesOpenedSince(ctx, day)
	if err != nil {
		return nil, err
	}
	openedAfter, err := s.Repo.CountTradesOpenedSince(ctx, next)
	if err != nil {
		return nil, err
	}

	stat := &models.DailyStat{
		Date:            day,
		SignalsReceived: int(signals - signalsAfter),
		TradesOpened:    int(opened - openedAfter),
		TradesClosed:    int(stats.TradesClosed),
		WinCount:        int(stats.WinCount),
		LossCount:       int(stats.LossCount),
		GrossPnL:        stats.GrossPnL,
	}
	if s.Gate != nil {
		if state, err := s.Gate.State(ctx); err == nil && state != nil {
			stat.EquityClose = state.Equity
		}
	}
	if err := s.Repo.UpsertDailyStat(ctx, stat); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("daily stats rolled up",
			zap.String("date", day.Format("2006-01-02")),
			zap.Int("signals", stat.SignalsReceived),
			zap.Int("closed", stat.TradesClosed),
			zap.String("gross_pnl", stat.GrossPnL.StringFixed(2)),
		)
	}
	return stat, nil
}
