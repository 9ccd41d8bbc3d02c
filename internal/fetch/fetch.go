package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/rickgao/market-backfill/internal/metrics"
	"github.com/rickgao/market-backfill/internal/model"
	"github.com/rickgao/market-backfill/internal/venue"
)

// Decoder converts a raw page into canonical rows.
type Decoder interface {
	Decode(inst model.Instrument, recs []model.RawRecord) ([]model.Row, error)
}

// Config holds retry configuration.
type Config struct {
	MaxAttempts int           // Attempts per page (default: 3)
	Backoff     time.Duration // Wait between attempts (default: 1s)
	Linear      bool          // Scale the wait by the attempt number
	Limiter     *rate.Limiter // Optional request rate bound for the venue
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Backoff:     time.Second,
	}
}

// Page is one successfully fetched and decoded page.
type Page struct {
	Rows     []model.Row
	Attempts int
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Call     string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Call, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Adapter wraps one venue endpoint with bounded retries.
type Adapter struct {
	name   string
	src    venue.Source
	dec    Decoder
	cfg    Config
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates an adapter. name labels logs and metrics (e.g. "binance/ohlcv/spot").
func New(name string, src venue.Source, dec Decoder, cfg Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Adapter{
		name:   name,
		src:    src,
		dec:    dec,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Fetch requests one page, retrying transient failures. A page that fails to
// decode counts as a transient failure.
func (a *Adapter) Fetch(ctx context.Context, inst model.Instrument, w model.Window, limit int) (Page, error) {
	var lastErr error

	for attempt := 1; attempt <= a.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := a.cfg.Backoff
			if a.cfg.Linear {
				wait *= time.Duration(attempt - 1)
			}
			a.logger.Debug("retrying page",
				"endpoint", a.name,
				"ticker", inst.Ticker,
				"attempt", attempt,
				"backoff", wait,
			)
			if err := a.sleep(ctx, wait); err != nil {
				return Page{}, err
			}
		}

		if a.cfg.Limiter != nil {
			if err := a.cfg.Limiter.Wait(ctx); err != nil {
				return Page{}, err
			}
		}

		rows, err := a.once(ctx, inst, w, limit)
		if err == nil {
			metrics.FetchAttempts.WithLabelValues(a.name, "ok").Inc()
			metrics.PagesFetched.WithLabelValues(a.name).Inc()
			return Page{Rows: rows, Attempts: attempt}, nil
		}

		if errors.Is(err, venue.ErrSymbolNotFound) {
			metrics.FetchAttempts.WithLabelValues(a.name, "not_found").Inc()
			return Page{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Page{}, ctxErr
		}

		metrics.FetchAttempts.WithLabelValues(a.name, "retry").Inc()
		a.logger.Warn("page fetch failed",
			"endpoint", a.name,
			"ticker", inst.Ticker,
			"window", w.String(),
			"attempt", attempt,
			"err", err,
		)
		lastErr = err
	}

	metrics.FetchAttempts.WithLabelValues(a.name, "exhausted").Inc()
	return Page{}, &ExhaustedError{
		Call:     fmt.Sprintf("%s %s [%s]", a.name, inst.Ticker, w),
		Attempts: a.cfg.MaxAttempts,
		Err:      lastErr,
	}
}

func (a *Adapter) once(ctx context.Context, inst model.Instrument, w model.Window, limit int) ([]model.Row, error) {
	start := time.Now()
	recs, err := a.src.FetchPage(ctx, inst, w, limit)
	metrics.FetchDuration.WithLabelValues(a.name).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	rows, err := a.dec.Decode(inst, recs)
	if err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return rows, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
