package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/market-backfill/internal/model"
)

// ErrCheckpointUnavailable wraps failures of the checkpoint query.
var ErrCheckpointUnavailable = errors.New("checkpoint unavailable")

// Querier runs the aggregate checkpoint query for a table.
type Querier interface {
	LatestTimestamps(ctx context.Context, table string) (map[string]model.Checkpoint, error)
}

// Config holds resolver configuration.
type Config struct {
	HistoryStart  time.Time // sentinel for tickers with no stored rows
	AllowFallback bool      // continue with an empty mapping when the query fails
}

// Resolver caches the stored checkpoints of one table for a run.
type Resolver struct {
	q      Querier
	cfg    Config
	logger *slog.Logger

	table  string
	points map[string]model.Checkpoint
}

// New creates a resolver.
func New(q Querier, cfg Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HistoryStart.IsZero() {
		cfg.HistoryStart = model.DefaultHistoryStart
	}
	return &Resolver{
		q:      q,
		cfg:    cfg,
		logger: logger,
		points: map[string]model.Checkpoint{},
	}
}

// Load runs the checkpoint query once and caches the result.
func (r *Resolver) Load(ctx context.Context, table string) error {
	points, err := r.q.LatestTimestamps(ctx, table)
	if err != nil {
		if !r.cfg.AllowFallback {
			return fmt.Errorf("%w: %s: %w", ErrCheckpointUnavailable, table, err)
		}
		r.logger.Warn("checkpoint query failed, treating every ticker as new",
			"table", table,
			"err", err,
		)
		points = nil
	}

	r.table = table
	r.points = make(map[string]model.Checkpoint, len(points))
	for ticker, cp := range points {
		cp.Ticker = ticker
		cp.Found = true
		cp.Max = cp.Max.UTC()
		cp.Min = cp.Min.UTC()
		r.points[ticker] = cp
	}

	r.logger.Debug("checkpoints loaded", "table", table, "tickers", len(r.points))
	return nil
}

// Resolve returns the stored checkpoint for ticker, or the "no history"
// sentinel.
func (r *Resolver) Resolve(ticker string) model.Checkpoint {
	if cp, ok := r.points[ticker]; ok {
		return cp
	}
	return model.Checkpoint{
		Ticker: ticker,
		Max:    r.cfg.HistoryStart,
		Min:    r.cfg.HistoryStart,
	}
}

// Len returns the number of tickers with stored rows.
func (r *Resolver) Len() int {
	return len(r.points)
}

// FromTime returns the first timestamp that still needs fetching.
func FromTime(cp model.Checkpoint, res model.Resolution) time.Time {
	if !cp.Found {
		return cp.Max
	}
	return cp.Max.Add(res.Step)
}

// Fresh reports whether no new sample can exist yet.
func Fresh(cp model.Checkpoint, res model.Resolution, now time.Time) bool {
	return cp.Found && cp.Max.Add(res.Step).After(now)
}
