package paginator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rickgao/market-backfill/internal/fetch"
	"github.com/rickgao/market-backfill/internal/metrics"
	"github.com/rickgao/market-backfill/internal/model"
	"github.com/rickgao/market-backfill/internal/venue"
)

// Reason names why a walk ended.
type Reason string

const (
	ReasonShortPage         Reason = "short_page"
	ReasonCheckpointReached Reason = "checkpoint_reached"
	ReasonNoMoreHistory     Reason = "no_more_history"
	ReasonRepeatedEmpty     Reason = "repeated_empty"
	ReasonReachedNow        Reason = "reached_now"
	ReasonFetchExhausted    Reason = "fetch_exhausted"
	ReasonSymbolNotFound    Reason = "symbol_not_found"
	ReasonCancelled         Reason = "cancelled"
	ReasonStalled           Reason = "stalled"
)

// Failed reports whether the walk ended on an error rather than on the data.
func (r Reason) Failed() bool {
	switch r {
	case ReasonFetchExhausted, ReasonSymbolNotFound, ReasonCancelled, ReasonStalled:
		return true
	}
	return false
}

// DefaultBytesPerRow is the size estimate of one buffered row.
const DefaultBytesPerRow = 100

// Fetcher fetches one decoded page.
type Fetcher interface {
	Fetch(ctx context.Context, inst model.Instrument, w model.Window, limit int) (fetch.Page, error)
}

// Flusher persists a buffer of rows mid-walk.
type Flusher interface {
	Flush(ctx context.Context, rows []model.Row) error
}

// FlusherFunc is a function adapter for Flusher.
type FlusherFunc func(ctx context.Context, rows []model.Row) error

func (f FlusherFunc) Flush(ctx context.Context, rows []model.Row) error {
	return f(ctx, rows)
}

// Config describes one venue endpoint walk.
type Config struct {
	Name                string // label for logs and metrics
	Resolution          model.Resolution
	PageLimit           int
	Direction           model.Direction
	EmptyPolicy         model.EmptyPolicy
	OverlapMultiple     int // overlap between windows, in resolution steps
	FlushThresholdBytes int // 0 disables mid-walk flushes
	BytesPerRow         int // default: DefaultBytesPerRow
}

// Result is the outcome of one instrument walk.
type Result struct {
	Rows    []model.Row // rows not yet flushed, in fetch order
	Reason  Reason
	Pages   int // non-empty pages
	Fetched int // rows returned by all pages
	Flushed int // rows handed to the flusher
	Err     error
}

// Found reports whether any page returned a row.
func (r Result) Found() bool {
	return r.Fetched > 0
}

// Paginator walks an instrument's history window by window.
type Paginator struct {
	cfg     Config
	fetcher Fetcher
	flusher Flusher
	logger  *slog.Logger
}

// New creates a paginator. flusher may be nil, in which case every row is
// returned in the result.
func New(cfg Config, fetcher Fetcher, flusher Flusher, logger *slog.Logger) *Paginator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 1
	}
	if cfg.OverlapMultiple < 0 {
		cfg.OverlapMultiple = 0
	}
	if cfg.BytesPerRow <= 0 {
		cfg.BytesPerRow = DefaultBytesPerRow
	}
	return &Paginator{
		cfg:     cfg,
		fetcher: fetcher,
		flusher: flusher,
		logger:  logger,
	}
}

// walk is the mutable state of one Run.
type walk struct {
	p       *Paginator
	inst    model.Instrument
	from    time.Time
	to      time.Time
	width   time.Duration
	overlap time.Duration
	window  model.Window
	empties int
	buf     []model.Row
	res     Result
}

// Run walks inst between from and to, both inclusive. Backward walks start
// at to; forward walks start at from.
func (p *Paginator) Run(ctx context.Context, inst model.Instrument, from, to time.Time) Result {
	step := p.cfg.Resolution.Step
	w := &walk{
		p:       p,
		inst:    inst,
		from:    from.UTC(),
		to:      to.UTC(),
		overlap: p.cfg.Resolution.Width(p.cfg.OverlapMultiple),
	}
	// A window of limit-1 steps holds exactly limit grid points.
	w.width = p.cfg.Resolution.Width(p.cfg.PageLimit - 1)
	if w.width < step {
		w.width = step
	}

	if p.cfg.Direction == model.Forward {
		w.window = model.Window{Start: w.from, End: minTime(w.from.Add(w.width), w.to)}
	} else {
		w.window = model.Window{Start: maxTime(w.from, w.to.Add(-w.width)), End: w.to}
	}

	var reason Reason
	if w.from.After(w.to) {
		reason = ReasonReachedNow
		if p.cfg.Direction == model.Backward {
			reason = ReasonCheckpointReached
		}
	}
	for reason == "" {
		reason = w.step(ctx)
	}

	w.res.Reason = reason
	w.res.Rows = w.buf
	metrics.Terminations.WithLabelValues(p.cfg.Name, string(reason)).Inc()

	log := p.logger.Info
	if reason.Failed() {
		log = p.logger.Warn
	}
	log("walk finished",
		"endpoint", p.cfg.Name,
		"ticker", inst.Ticker,
		"reason", string(reason),
		"pages", w.res.Pages,
		"fetched", w.res.Fetched,
		"flushed", w.res.Flushed,
	)
	return w.res
}

// step fetches the current window and either moves to the next one or
// returns the reason the walk ends.
func (w *walk) step(ctx context.Context) Reason {
	if err := ctx.Err(); err != nil {
		w.res.Err = err
		return ReasonCancelled
	}

	cfg := w.p.cfg
	page, err := w.p.fetcher.Fetch(ctx, w.inst, w.window, cfg.PageLimit)
	if err != nil {
		w.res.Err = err
		switch {
		case errors.Is(err, venue.ErrSymbolNotFound):
			return ReasonSymbolNotFound
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return ReasonCancelled
		default:
			return ReasonFetchExhausted
		}
	}

	w.p.logger.Debug("page fetched",
		"endpoint", cfg.Name,
		"ticker", w.inst.Ticker,
		"window", w.window.String(),
		"rows", len(page.Rows),
	)

	if len(page.Rows) == 0 {
		return w.onEmpty()
	}
	w.empties = 0
	w.res.Pages++
	w.res.Fetched += len(page.Rows)
	w.buf = append(w.buf, page.Rows...)
	w.maybeFlush(ctx)

	earliest, latest := bounds(page.Rows)
	short := len(page.Rows) < cfg.PageLimit

	if cfg.Direction == model.Forward {
		return w.advanceForward(latest, short)
	}
	return w.advanceBackward(earliest, short)
}

func (w *walk) onEmpty() Reason {
	if w.p.cfg.EmptyPolicy == model.EmptyMeansEnd {
		return ReasonNoMoreHistory
	}
	w.empties++
	if w.empties >= 2 {
		return ReasonRepeatedEmpty
	}

	step := w.p.cfg.Resolution.Step
	if w.p.cfg.Direction == model.Forward {
		return w.moveForward(w.window.End.Add(step))
	}
	return w.moveBackward(w.window.Start.Add(-step))
}

func (w *walk) advanceBackward(earliest time.Time, short bool) Reason {
	if short {
		return ReasonShortPage
	}
	if !earliest.After(w.from) {
		return ReasonCheckpointReached
	}
	upper := earliest.Add(w.overlap)
	if !upper.Before(w.window.End) {
		return ReasonStalled
	}
	return w.moveBackward(upper)
}

func (w *walk) moveBackward(upper time.Time) Reason {
	if upper.Before(w.from) {
		return ReasonCheckpointReached
	}
	w.window = model.Window{Start: maxTime(w.from, upper.Add(-w.width)), End: upper}
	return ""
}

func (w *walk) advanceForward(latest time.Time, short bool) Reason {
	if short {
		if !w.window.End.Before(w.to) {
			return ReasonShortPage
		}
		// The window was fully served; resume right after it.
		return w.moveForward(w.window.End.Add(w.p.cfg.Resolution.Step))
	}
	lower := latest.Add(-w.overlap)
	if !lower.After(w.window.Start) {
		return ReasonStalled
	}
	return w.moveForward(lower)
}

func (w *walk) moveForward(lower time.Time) Reason {
	if lower.After(w.to) {
		return ReasonReachedNow
	}
	w.window = model.Window{Start: lower, End: minTime(lower.Add(w.width), w.to)}
	return ""
}

func (w *walk) maybeFlush(ctx context.Context) {
	cfg := w.p.cfg
	if w.p.flusher == nil || cfg.FlushThresholdBytes <= 0 {
		return
	}
	if len(w.buf)*cfg.BytesPerRow < cfg.FlushThresholdBytes {
		return
	}

	if err := w.p.flusher.Flush(ctx, w.buf); err != nil {
		// Keep the buffer; it is retried at the next flush point or the end.
		w.p.logger.Warn("flush failed",
			"endpoint", cfg.Name,
			"ticker", w.inst.Ticker,
			"rows", len(w.buf),
			"err", err,
		)
		return
	}
	w.res.Flushed += len(w.buf)
	w.buf = nil
}

func bounds(rows []model.Row) (earliest, latest time.Time) {
	earliest, latest = rows[0].Time, rows[0].Time
	for _, r := range rows[1:] {
		if r.Time.Before(earliest) {
			earliest = r.Time
		}
		if r.Time.After(latest) {
			latest = r.Time
		}
	}
	return earliest, latest
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
