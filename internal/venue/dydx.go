package venue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/rickgao/market-backfill/internal/api"
	"github.com/rickgao/market-backfill/internal/config"
	"github.com/rickgao/market-backfill/internal/model"
	"github.com/rickgao/market-backfill/internal/version"
)

var dydxResolutions = map[string]string{
	"1m":  "1MIN",
	"5m":  "5MINS",
	"15m": "15MINS",
	"30m": "30MINS",
	"1h":  "1HOUR",
	"4h":  "4HOURS",
	"1d":  "1DAY",
}

func init() {
	register(Capability{
		Venue:       "dydx",
		Kind:        model.KindOHLCV,
		Class:       model.ClassPerpetual,
		PageLimit:   100,
		Direction:   model.Backward,
		EmptyPolicy: model.EmptyMeansEnd,
		TimeFormat:  model.TimeISO8601,
		Fields: map[string]string{
			"startedAt":       "startTime",
			"open":            "open",
			"high":            "high",
			"low":             "low",
			"close":           "close",
			"baseTokenVolume": "volume",
			"trades":          "trades",
		},
		Resolutions: []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d"},
	})
	register(Capability{
		Venue:       "dydx",
		Kind:        model.KindFunding,
		Class:       model.ClassPerpetual,
		PageLimit:   100,
		Direction:   model.Backward,
		EmptyPolicy: model.EmptyMeansEnd,
		TimeFormat:  model.TimeISO8601,
		Fields: map[string]string{
			"effectiveAt": "startTime",
			"rate":        "rate",
			"price":       "price",
		},
		Resolutions: []string{"1h"},
	})
}

// dydxSource pages backward from the window end. Candles use toISO and
// funding uses effectiveBeforeOrAt; both return newest first.
type dydxSource struct {
	cap        Capability
	resolution string
	client     *api.Client
}

func newDYDXSource(c Capability, vc config.VenueConfig, hc *http.Client, res model.Resolution, logger *slog.Logger) *dydxSource {
	return &dydxSource{
		cap:        c,
		resolution: dydxResolutions[res.Name],
		client: api.NewClient("dydx", vc.URL, "",
			api.WithHTTPClient(hc),
			api.WithRetries(0, 0),
			api.WithLogger(logger),
			api.WithUserAgent(version.UserAgent()),
		),
	}
}

func (s *dydxSource) FetchPage(ctx context.Context, inst model.Instrument, w model.Window, limit int) ([]model.RawRecord, error) {
	market := dydxSymbol(inst)
	end := w.End.UTC().Format(time.RFC3339Nano)

	query := url.Values{}
	var path, list string
	if s.cap.Kind == model.KindFunding {
		path = "/v3/historical-funding/" + url.PathEscape(market)
		list = "historicalFunding"
		query.Set("effectiveBeforeOrAt", end)
	} else {
		path = "/v3/candles/" + url.PathEscape(market)
		list = "candles"
		query.Set("resolution", s.resolution)
		query.Set("toISO", end)
		query.Set("limit", strconv.Itoa(limit))
	}

	body, err := s.client.Get(ctx, path, query)
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusNotFound) {
			return nil, fmt.Errorf("dydx %s: %w: %s", market, ErrSymbolNotFound, apiErr.Body)
		}
		return nil, fmt.Errorf("dydx %s: %w", market, err)
	}

	var out []model.RawRecord
	gjson.GetBytes(body, list).ForEach(func(_, v gjson.Result) bool {
		rec := model.RawRecord{}
		v.ForEach(func(k, val gjson.Result) bool {
			if _, ok := s.cap.Fields[k.String()]; ok {
				rec[k.String()] = val.String()
			}
			return true
		})
		out = append(out, rec)
		return len(out) < limit
	})
	return out, nil
}
