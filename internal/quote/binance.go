package quote

import (
	"context"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// BinanceQuoter answers quote lookups from the spot book ticker endpoint.
// An unlisted symbol is "no quote this cycle", not an error, so gold/FX
// symbols a crypto venue does not carry are skipped cleanly.
type BinanceQuoter struct {
	client *binance.Client
}

func NewBinanceQuoter(client *binance.Client) *BinanceQuoter {
	if client == nil {
		client = binance.NewClient("", "")
	}
	return &BinanceQuoter{client: client}
}

func (b *BinanceQuoter) Quote(ctx context.Context, symbol string) (Quote, bool, error) {
	if b == nil || b.client == nil {
		return Quote{}, false, nil
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	tickers, err := b.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		// Unknown symbols come back as API errors; treat them as absence
		// rather than failing the whole cycle.
		if strings.Contains(strings.ToLower(err.Error()), "invalid symbol") {
			return Quote{}, false, nil
		}
		return Quote{}, false, err
	}
	if len(tickers) == 0 {
		return Quote{}, false, nil
	}
	bid, err := decimal.NewFromString(tickers[0].BidPrice)
	if err != nil {
		return Quote{}, false, err
	}
	ask, err := decimal.NewFromString(tickers[0].AskPrice)
	if err != nil {
		return Quote{}, false, err
	}
	if bid.LessThanOrEqual(decimal.Zero) || ask.LessThanOrEqual(decimal.Zero) {
		return Quote{}, false, nil
	}
	return Quote{
		Symbol: symbol,
		Bid:    bid,
		Ask:    ask,
		At:     time.Now().UTC(),
	}, true, nil
}
