package venue

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/rickgao/market-backfill/internal/api"
	"github.com/rickgao/market-backfill/internal/config"
	"github.com/rickgao/market-backfill/internal/model"
	"github.com/rickgao/market-backfill/internal/version"
)

const (
	okxCandlesPath      = "/api/v5/market/history-candles"
	okxIndexCandlesPath = "/api/v5/market/history-index-candles"
	okxFundingPath      = "/api/v5/public/funding-rate-history"

	// OKX business codes for an instrument that does not exist.
	okxCodeInstrumentNotFound = "51001"
	okxCodeInstrumentInvalid  = "51000"
)

// OKX bar names differ from ours for hourly and coarser resolutions.
var okxBars = map[string]string{
	"1m":  "1m",
	"5m":  "5m",
	"15m": "15m",
	"30m": "30m",
	"1h":  "1H",
	"4h":  "4H",
	"1d":  "1Dutc",
}

func init() {
	candleFields := map[string]string{
		"ts":       "startTime",
		"o":        "open",
		"h":        "high",
		"l":        "low",
		"c":        "close",
		"vol":      "volume",
		"confirm":  "status",
		"instType": "contractType",
	}
	resolutions := []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d"}

	for _, class := range []model.Class{model.ClassPerpetual, model.ClassIndex} {
		register(Capability{
			Venue:       "okx",
			Kind:        model.KindOHLCV,
			Class:       class,
			PageLimit:   100,
			Direction:   model.Backward,
			EmptyPolicy: model.EmptyMeansQuiet,
			TimeFormat:  model.TimeEpochMillis,
			Fields:      candleFields,
			Resolutions: resolutions,
		})
	}
	register(Capability{
		Venue:       "okx",
		Kind:        model.KindFunding,
		Class:       model.ClassPerpetual,
		PageLimit:   100,
		Direction:   model.Backward,
		EmptyPolicy: model.EmptyMeansEnd,
		TimeFormat:  model.TimeEpochMillis,
		Fields: map[string]string{
			"fundingTime": "startTime",
			"fundingRate": "rate",
			"instType":    "contractType",
		},
		Resolutions: []string{"8h"},
	})
}

// okxSource pages backward with the `after` cursor, which returns records
// strictly older than the given timestamp.
type okxSource struct {
	cap    Capability
	bar    string
	client *api.Client
}

func newOKXSource(c Capability, vc config.VenueConfig, hc *http.Client, res model.Resolution, logger *slog.Logger) *okxSource {
	return &okxSource{
		cap: c,
		bar: okxBars[res.Name],
		client: api.NewClient("okx", vc.URL, "",
			api.WithHTTPClient(hc),
			api.WithRetries(0, 0),
			api.WithLogger(logger),
			api.WithUserAgent(version.UserAgent()),
		),
	}
}

func (s *okxSource) FetchPage(ctx context.Context, inst model.Instrument, w model.Window, limit int) ([]model.RawRecord, error) {
	symbol := okxSymbol(inst)

	query := url.Values{}
	query.Set("instId", symbol)
	query.Set("limit", strconv.Itoa(limit))
	// `after` is exclusive; step one millisecond past the window end.
	query.Set("after", strconv.FormatInt(w.End.UnixMilli()+1, 10))

	path := okxFundingPath
	if s.cap.Kind == model.KindOHLCV {
		query.Set("bar", s.bar)
		path = okxCandlesPath
		if s.cap.Class == model.ClassIndex {
			path = okxIndexCandlesPath
		}
	}

	body, err := s.client.Get(ctx, path, query)
	if err != nil {
		return nil, fmt.Errorf("okx %s: %w", symbol, err)
	}
	return parseOKX(symbol, s.cap, body)
}

func parseOKX(symbol string, c Capability, body []byte) ([]model.RawRecord, error) {
	res := gjson.ParseBytes(body)
	switch code := res.Get("code").String(); code {
	case "0":
	case okxCodeInstrumentNotFound, okxCodeInstrumentInvalid:
		return nil, fmt.Errorf("okx %s: %w: %s", symbol, ErrSymbolNotFound, res.Get("msg").String())
	default:
		return nil, fmt.Errorf("okx %s: code %s: %s", symbol, code, res.Get("msg").String())
	}

	instType := "SWAP"
	if c.Class == model.ClassIndex {
		instType = "INDEX"
	}

	var out []model.RawRecord
	res.Get("data").ForEach(func(_, v gjson.Result) bool {
		if c.Kind == model.KindFunding {
			out = append(out, model.RawRecord{
				"fundingTime": v.Get("fundingTime").String(),
				"fundingRate": v.Get("fundingRate").String(),
				"instType":    instType,
			})
			return true
		}

		// Candles: [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm].
		// Index candles: [ts, o, h, l, c, confirm].
		arr := v.Array()
		if len(arr) < 6 {
			return true
		}
		rec := model.RawRecord{
			"ts":       arr[0].String(),
			"o":        arr[1].String(),
			"h":        arr[2].String(),
			"l":        arr[3].String(),
			"c":        arr[4].String(),
			"instType": instType,
		}
		if len(arr) >= 9 {
			rec["vol"] = arr[5].String()
			rec["confirm"] = arr[8].String()
		} else {
			rec["confirm"] = arr[len(arr)-1].String()
		}
		out = append(out, rec)
		return true
	})
	return out, nil
}
