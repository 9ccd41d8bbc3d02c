package reference

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/rickgao/market-backfill/internal/api"
	"github.com/rickgao/market-backfill/internal/model"
	"github.com/rickgao/market-backfill/internal/venue"
)

// Provider lists the instruments an exchange trades, delisted ones included.
type Provider interface {
	ListInstruments(ctx context.Context, exchangeID string, class model.Class) ([]model.Instrument, error)
}

// CoinAPI symbol types per instrument class.
var symbolTypes = map[model.Class]string{
	model.ClassSpot:      "SPOT",
	model.ClassPerpetual: "PERPETUAL",
	model.ClassFuture:    "FUTURES",
	model.ClassIndex:     "INDEX",
}

// CoinAPI lists symbols from the CoinAPI metadata endpoint.
type CoinAPI struct {
	client        *api.Client
	delistedAfter time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// NewCoinAPI creates a provider. Symbols whose last trade is older than
// delistedAfter are reported as delisted at that time.
func NewCoinAPI(client *api.Client, delistedAfter time.Duration, logger *slog.Logger) *CoinAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &CoinAPI{
		client:        client,
		delistedAfter: delistedAfter,
		now:           time.Now,
		logger:        logger,
	}
}

// ListInstruments returns the exchange's instruments of one class, keyed by
// canonical ticker (duplicates collapse to the first symbol listed).
func (c *CoinAPI) ListInstruments(ctx context.Context, exchangeID string, class model.Class) ([]model.Instrument, error) {
	symbolType, ok := symbolTypes[class]
	if !ok {
		return nil, fmt.Errorf("no reference symbol type for class %q", class)
	}

	query := url.Values{}
	query.Set("filter_symbol_type", symbolType)

	body, err := c.client.Get(ctx, "/v1/symbols/"+url.PathEscape(exchangeID), query)
	if err != nil {
		return nil, fmt.Errorf("list symbols %s: %w", exchangeID, err)
	}

	doc := gjson.ParseBytes(body)
	if !doc.IsArray() {
		return nil, fmt.Errorf("list symbols %s: unexpected response %.200s", exchangeID, body)
	}

	threshold := c.now().UTC().Add(-c.delistedAfter)
	seen := make(map[string]bool)
	var out []model.Instrument

	doc.ForEach(func(_, s gjson.Result) bool {
		if s.Get("symbol_type").String() != symbolType {
			return true
		}
		base := s.Get("asset_id_base_exchange").String()
		quote := s.Get("asset_id_quote_exchange").String()
		if base == "" {
			base = s.Get("asset_id_base").String()
			quote = s.Get("asset_id_quote").String()
		}
		if base == "" {
			return true
		}

		ticker := venue.Homogenise(class, base, quote)
		if seen[ticker] {
			return true
		}
		seen[ticker] = true

		inst := model.Instrument{
			Ticker:      ticker,
			VenueSymbol: s.Get("symbol_id_exchange").String(),
			Class:       class,
			Base:        base,
			Quote:       quote,
			ListedAt:    parseTime(s.Get("data_trade_start").String()),
		}
		if end := parseTime(s.Get("data_trade_end").String()); !end.IsZero() && end.Before(threshold) {
			inst.DelistedAt = end
		}
		out = append(out, inst)
		return true
	})

	c.logger.Info("instruments listed",
		"exchange", exchangeID,
		"class", string(class),
		"count", len(out),
	)
	return out, nil
}

// CoinAPI reports dates as "2019-07-08" and times as RFC 3339.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.9999999", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Static serves a fixed symbol list, bypassing the metadata provider.
type Static struct {
	symbols []string
}

// NewStatic creates a provider over canonical tickers such as "BTC-USDT"
// or "ETH-USDT-SWAP".
func NewStatic(symbols []string) *Static {
	return &Static{symbols: symbols}
}

// ListInstruments returns one instrument per configured symbol, sorted by ticker.
func (s *Static) ListInstruments(_ context.Context, _ string, class model.Class) ([]model.Instrument, error) {
	seen := make(map[string]bool)
	var out []model.Instrument
	for _, sym := range s.symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			return nil, fmt.Errorf("malformed instrument mapping: empty symbol")
		}
		base, quote := venue.SplitTicker(strings.ToUpper(sym))
		ticker := venue.Homogenise(class, base, quote)
		if seen[ticker] {
			continue
		}
		seen[ticker] = true
		out = append(out, model.Instrument{
			Ticker: ticker,
			Class:  class,
			Base:   base,
			Quote:  quote,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}
