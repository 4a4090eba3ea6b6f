package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"propdesk/internal/config"
	"propdesk/internal/models"
)

// Binance trades spot markets with quote-quantity market orders, so SizeUSD
// maps directly onto the venue's notional without per-symbol lot math.
// Stops and targets are not parked at the venue; the trailing monitor owns
// exits and closes at market.
type Binance struct {
	client *binance.Client
	logger *zap.Logger
}

func NewBinance(cfg config.BinanceConfig, logger *zap.Logger) *Binance {
	if cfg.Testnet {
		binance.UseTestnet = true
	}
	return &Binance{
		client: binance.NewClient(cfg.APIKey, cfg.APISecret),
		logger: logger,
	}
}

func (b *Binance) SubmitOrder(ctx context.Context, req OrderRequest) (Fill, error) {
	if b == nil || b.client == nil {
		return Fill{}, fmt.Errorf("binance broker not configured")
	}
	side := binance.SideTypeBuy
	if req.Side == models.SideSell {
		side = binance.SideTypeSell
	}
	resp, err := b.client.NewCreateOrderService().
		Symbol(strings.ToUpper(req.Symbol)).
		Side(side).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(req.SizeUSD.StringFixed(8)).
		NewClientOrderID(req.ClientOrderID).
		Do(ctx)
	if err != nil {
		return Fill{}, wrapBinanceError(err)
	}

	price := avgFillPrice(resp.Fills)
	if price.IsZero() && resp.ExecutedQuantity != "" {
		price = cumulativeAvg(resp.CummulativeQuoteQuantity, resp.ExecutedQuantity)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return Fill{}, fmt.Errorf("order %d filled with no price data", resp.OrderID)
	}
	filledUSD, _ := decimal.NewFromString(resp.CummulativeQuoteQuantity)
	return Fill{
		OrderID:       fmt.Sprintf("%d", resp.OrderID),
		ClientOrderID: resp.ClientOrderID,
		FillPrice:     price,
		FilledUSD:     filledUSD,
		FilledAt:      time.Now().UTC(),
	}, nil
}

func (b *Binance) ClosePosition(ctx context.Context, req CloseRequest) (decimal.Decimal, error) {
	if b == nil || b.client == nil {
		return decimal.Zero, fmt.Errorf("binance broker not configured")
	}
	// Closing reverses the entry side.
	side := binance.SideTypeSell
	if req.Side == models.SideSell {
		side = binance.SideTypeBuy
	}
	resp, err := b.client.NewCreateOrderService().
		Symbol(strings.ToUpper(req.Symbol)).
		Side(side).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(req.SizeUSD.StringFixed(8)).
		Do(ctx)
	if err != nil {
		return decimal.Zero, wrapBinanceError(err)
	}
	price := avgFillPrice(resp.Fills)
	if price.IsZero() {
		price = cumulativeAvg(resp.CummulativeQuoteQuantity, resp.ExecutedQuantity)
	}
	return price, nil
}

func (b *Binance) LookupOrder(ctx context.Context, symbol, clientOrderID string) (Fill, bool, error) {
	if b == nil || b.client == nil {
		return Fill{}, false, fmt.Errorf("binance broker not configured")
	}
	order, err := b.client.NewGetOrderService().
		Symbol(strings.ToUpper(symbol)).
		OrigClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		// -2013: order does not exist. The submit never reached the book.
		if errors.As(err, &apiErr) && apiErr.Code == -2013 {
			return Fill{}, false, nil
		}
		return Fill{}, false, err
	}
	if order.Status != binance.OrderStatusTypeFilled {
		return Fill{}, false, nil
	}
	price := cumulativeAvg(order.CummulativeQuoteQuantity, order.ExecutedQuantity)
	filledUSD, _ := decimal.NewFromString(order.CummulativeQuoteQuantity)
	return Fill{
		OrderID:       fmt.Sprintf("%d", order.OrderID),
		ClientOrderID: order.ClientOrderID,
		FillPrice:     price,
		FilledUSD:     filledUSD,
		FilledAt:      time.UnixMilli(order.UpdateTime).UTC(),
	}, true, nil
}

// AccountEquity reports the spot USDT balance, free plus locked.
func (b *Binance) AccountEquity(ctx context.Context) (decimal.Decimal, error) {
	if b == nil || b.client == nil {
		return decimal.Zero, fmt.Errorf("binance broker not configured")
	}
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	for _, bal := range account.Balances {
		if !strings.EqualFold(bal.Asset, "USDT") {
			continue
		}
		free, err := decimal.NewFromString(bal.Free)
		if err != nil {
			return decimal.Zero, err
		}
		locked, err := decimal.NewFromString(bal.Locked)
		if err != nil {
			return decimal.Zero, err
		}
		return free.Add(locked), nil
	}
	return decimal.Zero, nil
}

// wrapBinanceError turns a definitive API refusal into a RejectError so the
// executor knows not to retry; transport failures pass through unchanged.
func wrapBinanceError(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return &RejectError{Reason: fmt.Sprintf("code %d: %s", apiErr.Code, apiErr.Message)}
	}
	return err
}

func avgFillPrice(fills []*binance.Fill) decimal.Decimal {
	totalQty := decimal.Zero
	totalQuote := decimal.Zero
	for _, f := range fills {
		price, err1 := decimal.NewFromString(f.Price)
		qty, err2 := decimal.NewFromString(f.Quantity)
		if err1 != nil || err2 != nil {
			continue
		}
		totalQty = totalQty.Add(qty)
		totalQuote = totalQuote.Add(price.Mul(qty))
	}
	if totalQty.IsZero() {
		return decimal.Zero
	}
	return totalQuote.Div(totalQty)
}

func cumulativeAvg(quote, qty string) decimal.Decimal {
	q, err1 := decimal.NewFromString(quote)
	n, err2 := decimal.NewFromString(qty)
	if err1 != nil || err2 != nil || n.IsZero() {
		return decimal.Zero
	}
	return q.Div(n)
}
