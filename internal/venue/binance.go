package venue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"github.com/rickgao/market-backfill/internal/config"
	"github.com/rickgao/market-backfill/internal/model"
)

// Binance reports unknown symbols as -1121 "Invalid symbol."
const binanceInvalidSymbol = -1121

var klineFields = map[string]string{
	"openTime": "startTime",
	"open":     "open",
	"high":     "high",
	"low":      "low",
	"close":    "close",
	"volume":   "volume",
	"trades":   "trades",
}

var binanceResolutions = []string{"1m", "5m", "15m", "30m", "1h", "4h", "8h", "1d"}

func init() {
	register(Capability{
		Venue:       "binance",
		Kind:        model.KindOHLCV,
		Class:       model.ClassSpot,
		PageLimit:   1000,
		Direction:   model.Backward,
		EmptyPolicy: model.EmptyMeansQuiet,
		TimeFormat:  model.TimeEpochMillis,
		Fields:      klineFields,
		Resolutions: binanceResolutions,
	})
	for _, class := range []model.Class{model.ClassPerpetual, model.ClassFuture} {
		register(Capability{
			Venue:       "binance",
			Kind:        model.KindOHLCV,
			Class:       class,
			PageLimit:   1500,
			Direction:   model.Backward,
			EmptyPolicy: model.EmptyMeansQuiet,
			TimeFormat:  model.TimeEpochMillis,
			Fields:      withContractType(klineFields),
			Resolutions: binanceResolutions,
		})
	}
	register(Capability{
		Venue:       "binance",
		Kind:        model.KindFunding,
		Class:       model.ClassPerpetual,
		PageLimit:   1000,
		Direction:   model.Backward,
		EmptyPolicy: model.EmptyMeansQuiet,
		TimeFormat:  model.TimeEpochMillis,
		Fields: map[string]string{
			"fundingTime":  "startTime",
			"fundingRate":  "rate",
			"contractType": "contractType",
		},
		Resolutions: []string{"8h"},
	})
}

func withContractType(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["contractType"] = "contractType"
	return out
}

// binanceSource serves spot klines, futures klines and futures funding through
// the go-binance SDK.
type binanceSource struct {
	cap      Capability
	interval string
	spot     *binance.Client
	futures  *futures.Client
}

func newBinanceSource(c Capability, vc config.VenueConfig, hc *http.Client, res model.Resolution) *binanceSource {
	s := &binanceSource{cap: c, interval: res.Name}
	if c.Class == model.ClassSpot {
		s.spot = binance.NewClient("", "")
		s.spot.BaseURL = strings.TrimSpace(vc.URL)
		s.spot.HTTPClient = hc
	} else {
		s.futures = futures.NewClient("", "")
		s.futures.BaseURL = strings.TrimSpace(vc.URL)
		s.futures.HTTPClient = hc
	}
	return s
}

func (s *binanceSource) FetchPage(ctx context.Context, inst model.Instrument, w model.Window, limit int) ([]model.RawRecord, error) {
	symbol := binanceSymbol(inst)
	var (
		out []model.RawRecord
		err error
	)
	switch {
	case s.cap.Kind == model.KindFunding:
		out, err = s.funding(ctx, symbol, w, limit)
	case s.spot != nil:
		out, err = s.spotKlines(ctx, symbol, w, limit)
	default:
		out, err = s.futuresKlines(ctx, symbol, w, limit)
	}
	if err != nil {
		return nil, classifyBinance(symbol, err)
	}
	return out, nil
}

func (s *binanceSource) spotKlines(ctx context.Context, symbol string, w model.Window, limit int) ([]model.RawRecord, error) {
	kls, err := s.spot.NewKlinesService().
		Symbol(symbol).
		Interval(s.interval).
		StartTime(w.Start.UnixMilli()).
		EndTime(w.End.UnixMilli()).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.RawRecord, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, model.RawRecord{
			"openTime": strconv.FormatInt(kl.OpenTime, 10),
			"open":     kl.Open,
			"high":     kl.High,
			"low":      kl.Low,
			"close":    kl.Close,
			"volume":   kl.Volume,
			"trades":   strconv.FormatInt(kl.TradeNum, 10),
		})
	}
	return out, nil
}

func (s *binanceSource) futuresKlines(ctx context.Context, symbol string, w model.Window, limit int) ([]model.RawRecord, error) {
	kls, err := s.futures.NewKlinesService().
		Symbol(symbol).
		Interval(s.interval).
		StartTime(w.Start.UnixMilli()).
		EndTime(w.End.UnixMilli()).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.RawRecord, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, model.RawRecord{
			"openTime":     strconv.FormatInt(kl.OpenTime, 10),
			"open":         kl.Open,
			"high":         kl.High,
			"low":          kl.Low,
			"close":        kl.Close,
			"volume":       kl.Volume,
			"trades":       strconv.FormatInt(kl.TradeNum, 10),
			"contractType": contractTypeFor(s.cap.Class),
		})
	}
	return out, nil
}

func (s *binanceSource) funding(ctx context.Context, symbol string, w model.Window, limit int) ([]model.RawRecord, error) {
	rates, err := s.futures.NewFundingRateService().
		Symbol(symbol).
		StartTime(w.Start.UnixMilli()).
		EndTime(w.End.UnixMilli()).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.RawRecord, 0, len(rates))
	for _, r := range rates {
		if r == nil {
			continue
		}
		out = append(out, model.RawRecord{
			"fundingTime":  strconv.FormatInt(r.FundingTime, 10),
			"fundingRate":  r.FundingRate,
			"contractType": "PERPETUAL",
		})
	}
	return out, nil
}

func contractTypeFor(class model.Class) string {
	if class == model.ClassFuture {
		return "CURRENT_QUARTER"
	}
	return "PERPETUAL"
}

func classifyBinance(symbol string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && apiErr.Code == binanceInvalidSymbol {
		return fmt.Errorf("binance %s: %w: %s", symbol, ErrSymbolNotFound, apiErr.Message)
	}
	return fmt.Errorf("binance %s: %w", symbol, err)
}
