package ingest

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"propdesk/internal/models"
)

// ErrNoMatch means the message text matched none of the known signal formats.
// Callers log and drop; unparseable chatter is expected on shared channels.
var ErrNoMatch = errors.New("message matches no known signal format")

// ParsedSignal is the format-independent result of parsing one message.
// Format records which variant matched, for the audit payload.
type ParsedSignal struct {
	Format     string
	Symbol     string
	Side       string
	EntryPrice decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
}

// signalFormats are tried in order; the first match wins. Each variant maps a
// channel's house style onto the same field set: symbol-first posts with
// chatter between the labeled lines, side-first labeled blocks, the one-line
// pipe format, and the long-label block some gold channels use.
var signalFormats = []struct {
	name string
	re   *regexp.Regexp
}{
	{
		name: "symbol_first",
		re: regexp.MustCompile(`(?im)^[ \t]*(?P<symbol>[A-Z]+USDT?)[ \t]+(?P<side>buy|sell|long|short)[ \t]*\r?\n(?:.*\n)*?[ \t]*(?:entry price|entry):[ \t]*(?P<entry>[\d,.]+).*\r?\n(?:.*\n)*?[ \t]*(?:take profit|target|tp):[ \t]*(?P<tp>[\d,.]+).*\r?\n(?:.*\n)*?[ \t]*(?:stop loss|stoploss|sl):[ \t]*(?P<sl>[\d,.]+)`),
	},
	{
		name: "side_first",
		re: regexp.MustCompile(`(?im)^[ \t]*(?P<side>buy|sell|long|short)[ \t]+\$?(?P<symbol>[\w$]+)[ \t]*\r?\n[ \t]*entry:[ \t]*(?P<entry>[\d,.]+)[ \t]*\r?\n[ \t]*(?:target|tp):[ \t]*(?P<tp>[\d,.]+)[ \t]*\r?\n[ \t]*(?:stop loss|sl):[ \t]*(?P<sl>[\d,.]+)`),
	},
	{
		name: "compact_pipe",
		re: regexp.MustCompile(`(?i)(?P<side>buy|sell|long|short)\s+\$?(?P<symbol>\w+)\s*@\s*(?P<entry>[\d,.]+)\s*\|\s*tp:\s*(?P<tp>[\d,.]+)\s*\|\s*sl:\s*(?P<sl>[\d,.]+)`),
	},
	{
		name: "long_label",
		re: regexp.MustCompile(`(?im)^[ \t]*(?P<side>buy|sell|long|short)[ \t]+\$?(?P<symbol>[\w$]+)[ \t]*\r?\n[ \t]*(?:entry price|entry):[ \t]*(?P<entry>[\d,.]+)[ \t]*\r?\n[ \t]*(?:take profit|target|tp):[ \t]*(?P<tp>[\d,.]+)[ \t]*\r?\n[ \t]*(?:stop loss|sl):[ \t]*(?P<sl>[\d,.]+)`),
	},
}

// Parse extracts one trading signal from raw channel text. Pure function; it
// never touches storage or the clock.
func Parse(text string) (*ParsedSignal, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoMatch
	}
	for _, format := range signalFormats {
		m := format.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		return buildParsed(format.name, format.re, m)
	}
	return nil, ErrNoMatch
}

func buildParsed(name string, re *regexp.Regexp, match []string) (*ParsedSignal, error) {
	group := func(key string) string {
		idx := re.SubexpIndex(key)
		if idx < 0 || idx >= len(match) {
			return ""
		}
		return match[idx]
	}

	entry, err := parsePrice(group("entry"))
	if err != nil {
		return nil, err
	}
	tp, err := parsePrice(group("tp"))
	if err != nil {
		return nil, err
	}
	sl, err := parsePrice(group("sl"))
	if err != nil {
		return nil, err
	}

	symbol := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(group("symbol")), "$", ""))
	if symbol == "" {
		return nil, fmt.Errorf("parse signal: empty symbol")
	}

	return &ParsedSignal{
		Format:     name,
		Symbol:     symbol,
		Side:       normalizeSide(group("side")),
		EntryPrice: entry,
		StopLoss:   sl,
		TakeProfit: tp,
	}, nil
}

// parsePrice handles the thousands separators channels love ("45,000").
func parsePrice(raw string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	cleaned = strings.TrimSuffix(cleaned, ".")
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse price %q: %w", raw, err)
	}
	return d, nil
}

func normalizeSide(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy", "long":
		return models.SideBuy
	default:
		return models.SideSell
	}
}
