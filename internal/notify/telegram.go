package notify

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"propdesk/internal/config"
	"propdesk/internal/models"
)

// Notifier pushes operator-facing events to a Telegram chat. Everything here
// is best effort: a send failure is logged and dropped, it never blocks or
// fails the pipeline. Enabled is checked per send so the runtime kill switch
// takes effect without a restart.
type Notifier struct {
	bot     *tele.Bot
	chat    tele.ChatID
	logger  *zap.Logger
	enabled func() bool
}

// New builds a notifier, or nil when the bot token is missing; a nil
// notifier swallows every call, so callers need no guards.
func New(cfg config.TelegramConfig, enabled func() bool, logger *zap.Logger) (*Notifier, error) {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, nil
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: nil, // send-only
	})
	if err != nil {
		return nil, err
	}
	return &Notifier{
		bot:     bot,
		chat:    tele.ChatID(cfg.ChatID),
		logger:  logger,
		enabled: enabled,
	}, nil
}

func (n *Notifier) TradeOpened(trade models.Trade) {
	n.send(fmt.Sprintf("📈 Opened %s %s\nentry %s  size $%s\nstop %s  target %s",
		trade.Side, trade.Symbol,
		trade.EntryPrice.String(), trade.PositionSize.StringFixed(2),
		trade.StopLoss.String(), trade.TakeProfit.String()))
}

func (n *Notifier) TradeClosed(trade models.Trade, pnl string) {
	n.send(fmt.Sprintf("📉 Closed %s %s (%s)\npnl $%s", trade.Side, trade.Symbol, trade.Status, pnl))
}

func (n *Notifier) ComplianceHalt(reason string) {
	n.send("🛑 Trading halted\n" + reason)
}

func (n *Notifier) EvaluationPassed(equity string) {
	n.send("🏆 Evaluation passed! Equity $" + equity)
}

func (n *Notifier) EvaluationFailed(reason string) {
	n.send("❌ Evaluation FAILED\n" + reason)
}

func (n *Notifier) DailyReport(stat models.DailyStat, state *models.RiskState) {
	msg := fmt.Sprintf("📊 Daily report %s\ntrades closed %d (won %d / lost %d)\ngross pnl $%s",
		stat.Date.Format("2006-01-02"),
		stat.TradesClosed, stat.WinCount, stat.LossCount,
		stat.GrossPnL.StringFixed(2))
	if state != nil {
		msg += fmt.Sprintf("\nequity $%s  peak $%s", state.Equity.StringFixed(2), state.PeakEquity.StringFixed(2))
	}
	n.send(msg)
}

func (n *Notifier) send(text string) {
	if n == nil || n.bot == nil {
		return
	}
	if n.enabled != nil && !n.enabled() {
		return
	}
	// Sends run inline on service goroutines; keep them short.
	done := make(chan error, 1)
	go func() {
		_, err := n.bot.Send(n.chat, text)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil && n.logger != nil {
			n.logger.Warn("telegram notify failed", zap.Error(err))
		}
	case <-time.After(5 * time.Second):
		if n.logger != nil {
			n.logger.Warn("telegram notify timed out")
		}
	}
}
