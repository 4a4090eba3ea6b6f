package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const DefaultStreamURL = "wss://stream.binance.com:9443/stream"

// SymbolProvider supplies the symbols worth watching right now, typically
// open positions plus pending signals. Re-polled on the refresh interval so
// subscriptions follow the book.
type SymbolProvider func(context.Context) ([]string, error)

// StreamCacheOptions tunes the websocket quote cache. Zero values get
// sensible defaults.
type StreamCacheOptions struct {
	URL             string
	Symbols         []string
	SymbolProvider  SymbolProvider
	RefreshInterval time.Duration
	PingInterval    time.Duration
	PingTimeout     time.Duration
	BackoffMin      time.Duration
	BackoffMax      time.Duration
	// StaleAfter bounds how old a cached quote may be before Quote reports
	// absence instead.
	StaleAfter time.Duration
	Logger     *zap.Logger
}

// StreamCache keeps the latest bookTicker per symbol fed by the combined
// stream, serving Quote lookups from memory so monitor ticks never wait on
// the network. A quote older than StaleAfter counts as absent, which makes a
// dead stream degrade into "skip this symbol" rather than trading on stale
// prices.
type StreamCache struct {
	opts StreamCacheOptions

	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewStreamCache(opts StreamCacheOptions) *StreamCache {
	if opts.URL == "" {
		opts.URL = DefaultStreamURL
	}
	if opts.RefreshInterval == 0 {
		opts.RefreshInterval = 30 * time.Second
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = 20 * time.Second
	}
	if opts.PingTimeout == 0 {
		opts.PingTimeout = 5 * time.Second
	}
	if opts.BackoffMin == 0 {
		opts.BackoffMin = 1 * time.Second
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.StaleAfter == 0 {
		opts.StaleAfter = 30 * time.Second
	}
	return &StreamCache{
		opts:   opts,
		quotes: make(map[string]Quote),
	}
}

// Quote serves the cached book ticker if it is fresh enough.
func (s *StreamCache) Quote(ctx context.Context, symbol string) (Quote, bool, error) {
	if s == nil {
		return Quote{}, false, nil
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	s.mu.RLock()
	q, ok := s.quotes[symbol]
	s.mu.RUnlock()
	if !ok {
		return Quote{}, false, nil
	}
	if s.opts.StaleAfter > 0 && time.Since(q.At) > s.opts.StaleAfter {
		return Quote{}, false, nil
	}
	return q, true, nil
}

// Run drives the connect/subscribe/read loop until the context ends,
// reconnecting with jittered exponential backoff.
func (s *StreamCache) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("stream cache is nil")
	}
	backoff := s.opts.BackoffMin
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := s.runConn(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		if s.opts.Logger != nil {
			s.opts.Logger.Warn("quote stream disconnected", zap.Error(err))
		}
		if err := sleepWithJitter(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff, s.opts.BackoffMax)
	}
}

type streamCommand struct {
	Method string   `json:"method"`
	Params []string `json:"params,omitempty"`
	ID     int64    `json:"id"`
}

type combinedMessage struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Bid    string `json:"b"`
		Ask    string `json:"a"`
	} `json:"data"`
}

func (s *StreamCache) runConn(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, s.opts.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "reconnect")
	conn.SetReadLimit(1 << 20)

	current := map[string]struct{}{}
	symbols := s.opts.Symbols
	if s.opts.SymbolProvider != nil {
		if provided, err := s.opts.SymbolProvider(ctx); err == nil && len(provided) > 0 {
			symbols = provided
		}
	}
	cmdID := int64(0)
	subscribe := func(syms []string) error {
		params := make([]string, 0, len(syms))
		for _, sym := range syms {
			sym = strings.ToLower(strings.TrimSpace(sym))
			if sym == "" {
				continue
			}
			params = append(params, sym+"@bookTicker")
		}
		if len(params) == 0 {
			return nil
		}
		cmdID++
		payload, err := json.Marshal(streamCommand{Method: "SUBSCRIBE", Params: params, ID: cmdID})
		if err != nil {
			return err
		}
		return conn.Write(ctx, websocket.MessageText, payload)
	}
	unsubscribe := func(syms []string) error {
		params := make([]string, 0, len(syms))
		for _, sym := range syms {
			params = append(params, strings.ToLower(sym)+"@bookTicker")
		}
		if len(params) == 0 {
			return nil
		}
		cmdID++
		payload, err := json.Marshal(streamCommand{Method: "UNSUBSCRIBE", Params: params, ID: cmdID})
		if err != nil {
			return err
		}
		return conn.Write(ctx, websocket.MessageText, payload)
	}

	if err := subscribe(symbols); err != nil {
		return err
	}
	for _, sym := range symbols {
		current[strings.ToUpper(strings.TrimSpace(sym))] = struct{}{}
	}
	if s.opts.Logger != nil {
		s.opts.Logger.Info("quote stream connected", zap.Int("symbols", len(current)))
	}

	loopErr := make(chan error, 2)
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(s.opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				loopErr <- loopCtx.Err()
				return
			case <-ticker.C:
				pingCtx, cancelPing := context.WithTimeout(loopCtx, s.opts.PingTimeout)
				err := conn.Ping(pingCtx)
				cancelPing()
				if err != nil {
					loopErr <- err
					return
				}
			}
		}
	}()

	if s.opts.SymbolProvider != nil {
		go func() {
			ticker := time.NewTicker(s.opts.RefreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-loopCtx.Done():
					loopErr <- loopCtx.Err()
					return
				case <-ticker.C:
					provided, err := s.opts.SymbolProvider(loopCtx)
					if err != nil {
						continue
					}
					next := map[string]struct{}{}
					for _, sym := range provided {
						next[strings.ToUpper(strings.TrimSpace(sym))] = struct{}{}
					}
					var added, removed []string
					for sym := range next {
						if _, ok := current[sym]; !ok {
							added = append(added, sym)
						}
					}
					for sym := range current {
						if _, ok := next[sym]; !ok {
							removed = append(removed, sym)
						}
					}
					if len(added) > 0 {
						_ = subscribe(added)
					}
					if len(removed) > 0 {
						_ = unsubscribe(removed)
					}
					current = next
				}
			}
		}()
	}

	for {
		select {
		case err := <-loopErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		default:
		}
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var msg combinedMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Data.Symbol == "" {
			continue
		}
		bid, err1 := decimal.NewFromString(msg.Data.Bid)
		ask, err2 := decimal.NewFromString(msg.Data.Ask)
		if err1 != nil || err2 != nil || bid.LessThanOrEqual(decimal.Zero) || ask.LessThanOrEqual(decimal.Zero) {
			continue
		}
		symbol := strings.ToUpper(msg.Data.Symbol)
		s.mu.Lock()
		s.quotes[symbol] = Quote{Symbol: symbol, Bid: bid, Ask: ask, At: time.Now().UTC()}
		s.mu.Unlock()
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, base time.Duration) error {
	if base <= 0 {
		return nil
	}
	jitter := time.Duration(rand.Int63n(int64(base/2) + 1))
	timer := time.NewTimer(base + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
