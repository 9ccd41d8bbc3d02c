package venue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"github.com/rickgao/market-backfill/internal/config"
	"github.com/rickgao/market-backfill/internal/model"
)

const polygonMaxLimit = 50000

func init() {
	register(Capability{
		Venue:       "polygon",
		Kind:        model.KindOHLCV,
		Class:       model.ClassSpot,
		PageLimit:   polygonMaxLimit,
		Direction:   model.Forward,
		EmptyPolicy: model.EmptyMeansQuiet,
		TimeFormat:  model.TimeEpochMillis,
		Fields: map[string]string{
			"t": "startTime",
			"o": "open",
			"h": "high",
			"l": "low",
			"c": "close",
			"v": "volume",
			"n": "trades",
		},
	})
}

// aggsClient is the part of the Polygon REST client the source uses.
type aggsClient interface {
	GetAggs(ctx context.Context, params *models.GetAggsParams, opts ...models.RequestOption) (*models.GetAggsResponse, error)
}

// polygonSource walks equity aggregates forward through the Polygon SDK.
type polygonSource struct {
	client     aggsClient
	multiplier int
	timespan   models.Timespan
}

func newPolygonSource(vc config.VenueConfig, hc *http.Client, res model.Resolution) (*polygonSource, error) {
	if vc.APIKey == "" {
		return nil, fmt.Errorf("%w: polygon requires venues.polygon.api_key", ErrUnsupported)
	}
	mult, span := polygonTimespan(res)
	return &polygonSource{
		client:     polygon.NewWithClient(vc.APIKey, hc),
		multiplier: mult,
		timespan:   span,
	}, nil
}

func polygonTimespan(res model.Resolution) (int, models.Timespan) {
	switch {
	case res.Step%(24*time.Hour) == 0:
		return int(res.Step / (24 * time.Hour)), models.Day
	case res.Step%time.Hour == 0:
		return int(res.Step / time.Hour), models.Hour
	default:
		return int(res.Step / time.Minute), models.Minute
	}
}

func (s *polygonSource) FetchPage(ctx context.Context, inst model.Instrument, w model.Window, limit int) ([]model.RawRecord, error) {
	ticker := polygonSymbol(inst)
	if limit <= 0 || limit > polygonMaxLimit {
		limit = polygonMaxLimit
	}

	params := models.GetAggsParams{
		Ticker:     ticker,
		Multiplier: s.multiplier,
		Timespan:   s.timespan,
		From:       models.Millis(w.Start),
		To:         models.Millis(w.End),
	}.WithAdjusted(true).WithOrder(models.Asc).WithLimit(limit)

	res, err := s.client.GetAggs(ctx, params)
	if err != nil {
		var errRes *models.ErrorResponse
		if errors.As(err, &errRes) && errRes.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("polygon %s: %w", ticker, ErrSymbolNotFound)
		}
		return nil, fmt.Errorf("polygon %s: %w", ticker, err)
	}
	return aggsToRecords(res.Results), nil
}

func aggsToRecords(aggs []models.Agg) []model.RawRecord {
	out := make([]model.RawRecord, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, model.RawRecord{
			"t": strconv.FormatInt(time.Time(a.Timestamp).UnixMilli(), 10),
			"o": strconv.FormatFloat(a.Open, 'f', -1, 64),
			"h": strconv.FormatFloat(a.High, 'f', -1, 64),
			"l": strconv.FormatFloat(a.Low, 'f', -1, 64),
			"c": strconv.FormatFloat(a.Close, 'f', -1, 64),
			"v": strconv.FormatFloat(a.Volume, 'f', -1, 64),
			"n": strconv.FormatInt(a.Transactions, 10),
		})
	}
	return out
}
