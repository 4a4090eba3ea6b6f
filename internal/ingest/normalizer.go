package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"propdesk/internal/models"
	"propdesk/internal/repository"
)

// Geometry rejections. These drop the message before a row exists, same as a
// parse failure: a signal whose stop sits on its entry can never be sized.
var (
	ErrNonPositivePrice = errors.New("signal has a non-positive price field")
	ErrZeroStopDistance = errors.New("signal entry equals stop loss")
)

// RawMessage is one inbound channel message, before parsing.
type RawMessage struct {
	Channel    string
	MessageID  int64
	ReceivedAt time.Time
	Text       string
}

// Normalizer turns parsed messages into canonical signal rows. Dedup happens
// inside the insert itself (insert-or-ignore on channel plus message id), so
// two concurrent deliveries of the same message cannot race past a
// check-then-insert gap.
type Normalizer struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

// Normalize validates geometry, derives the asset class, and inserts the
// signal as pending. The bool reports whether a new row was created; false
// with a nil error is a duplicate delivery.
func (n *Normalizer) Normalize(ctx context.Context, msg RawMessage, parsed *ParsedSignal) (*models.Signal, bool, error) {
	if n == nil || n.Repo == nil || parsed == nil {
		return nil, false, nil
	}
	if !parsed.EntryPrice.IsPositive() || !parsed.StopLoss.IsPositive() || !parsed.TakeProfit.IsPositive() {
		return nil, false, ErrNonPositivePrice
	}
	if parsed.EntryPrice.Equal(parsed.StopLoss) {
		return nil, false, ErrZeroStopDistance
	}

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	raw, _ := json.Marshal(map[string]any{
		"text":   msg.Text,
		"format": parsed.Format,
	})

	item := &models.Signal{
		Channel:         msg.Channel,
		SourceMessageID: msg.MessageID,
		ReceivedAt:      receivedAt,
		Symbol:          parsed.Symbol,
		Side:            parsed.Side,
		AssetClass:      models.AssetClassFor(parsed.Symbol),
		EntryPrice:      parsed.EntryPrice,
		StopLoss:        parsed.StopLoss,
		TakeProfit:      parsed.TakeProfit,
		Status:          models.SignalStatusPending,
		Raw:             datatypes.JSON(raw),
	}

	created, err := n.Repo.InsertSignalIgnoreDuplicate(ctx, item)
	if err != nil {
		return nil, false, err
	}
	if !created {
		if n.Logger != nil {
			n.Logger.Debug("duplicate signal ignored",
				zap.String("channel", msg.Channel),
				zap.Int64("message_id", msg.MessageID),
			)
		}
		return nil, false, nil
	}
	return item, true, nil
}
