package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/rickgao/market-backfill/internal/checkpoint"
	"github.com/rickgao/market-backfill/internal/fetch"
	"github.com/rickgao/market-backfill/internal/metrics"
	"github.com/rickgao/market-backfill/internal/model"
	"github.com/rickgao/market-backfill/internal/normalize"
	"github.com/rickgao/market-backfill/internal/paginator"
	"github.com/rickgao/market-backfill/internal/venue"
)

// Skip reasons.
const (
	SkipFresh    = "fresh"
	SkipDelisted = "delisted"
)

// Outcome is the result of one instrument.
type Outcome struct {
	Ticker  string
	Skipped string // skip reason, empty if the instrument was walked
	Reason  paginator.Reason
	Stats   model.Stats
	Loaded  int64
	DryRun  int // rows validated but not persisted because uploads are disabled
	Err     error
}

// Report summarises one job run.
type Report struct {
	Job         string
	RunID       string
	Instruments int
	Skipped     int
	Failed      int
	RowsLoaded  int64
	Stats       model.Stats
	Outcomes    []Outcome
	Duration    time.Duration
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.Instruments++
	switch {
	case o.Skipped != "":
		r.Skipped++
	case o.Err != nil:
		r.Failed++
	}
	r.RowsLoaded += o.Loaded
	r.Stats.Add(o.Stats)
}

// Runner executes jobs against one run context.
type Runner struct {
	rc       *RunContext
	settings Settings
	logger   *slog.Logger
	now      func() time.Time
}

// NewRunner creates a runner.
func NewRunner(rc *RunContext, settings Settings, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		rc:       rc,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes one job. The returned error is a *RunError for run-fatal
// failures; per-instrument failures are reported in the Report only.
func (r *Runner) Run(ctx context.Context, job Job) (Report, error) {
	start := time.Now()
	logger := r.logger.With("job", job.ID, "run_id", r.rc.ID)
	report := Report{Job: job.ID, RunID: r.rc.ID}

	err := r.run(ctx, job, logger, &report)

	report.Duration = time.Since(start)
	metrics.JobDuration.WithLabelValues(job.ID).Observe(report.Duration.Seconds())

	if err != nil {
		metrics.JobRuns.WithLabelValues(job.ID, "failed").Inc()
		logger.Error("job failed",
			"class", string(Classify(err)),
			"instruments", report.Instruments,
			"err", err,
		)
		return report, err
	}

	metrics.JobRuns.WithLabelValues(job.ID, "ok").Inc()
	logger.Info("job finished",
		"instruments", report.Instruments,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"rows_loaded", report.RowsLoaded,
		"duplicated", report.Stats.Duplicated,
		"missing", report.Stats.Missing,
		"anomalous", report.Stats.Anomalous,
		"duration", report.Duration,
	)
	return report, nil
}

func (r *Runner) run(ctx context.Context, job Job, logger *slog.Logger, report *Report) error {
	capab, src, err := r.rc.Venues.Open(job.Venue, job.Kind, job.Class, job.Resolution)
	if err != nil {
		return runError(job.ID, ClassConfig, err)
	}

	insts, err := r.rc.instruments(ctx, job)
	if err != nil {
		return err
	}
	logger.Info("job started",
		"venue", capab.Name(),
		"resolution", job.Resolution.String(),
		"instruments", len(insts),
		"upload", r.settings.Upload,
	)

	table := job.Table(r.settings.Dataset)
	if r.settings.Upload {
		if r.rc.Store == nil {
			return runError(job.ID, ClassConfig, errors.New("upload enabled without a warehouse"))
		}
		if err := r.rc.Store.EnsureDataset(ctx, job.Schema(r.settings.Dataset)); err != nil {
			return runError(job.ID, ClassPersistence, err)
		}
		if err := r.rc.Store.EnsureTable(ctx, table, job.Kind, job.Resolution); err != nil {
			return runError(job.ID, ClassPersistence, err)
		}
	}

	var querier checkpoint.Querier = noCheckpoints{}
	if r.rc.Store != nil {
		querier = r.rc.Store
	}
	resolver := checkpoint.New(querier, checkpoint.Config{
		HistoryStart:  r.settings.HistoryStart,
		AllowFallback: r.settings.AllowCheckpointFallback,
	}, logger)
	if err := resolver.Load(ctx, table); err != nil {
		return runError(job.ID, ClassCheckpoint, err)
	}

	fcfg := r.settings.Fetch
	if vc := r.rc.Venues.Settings(capab); vc.RateLimit > 0 {
		fcfg.Limiter = rate.NewLimiter(rate.Limit(vc.RateLimit), max(vc.Burst, 1))
	}
	fetcher := fetch.New(capab.Name(), src, normalize.New(capab.Fields, capab.TimeFormat), fcfg, logger)

	for _, inst := range insts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("job %s interrupted: %w", job.ID, err)
		}
		out := r.runInstrument(ctx, job, capab, fetcher, resolver, table, inst, logger)
		report.add(out)
	}
	return nil
}

func (r *Runner) runInstrument(
	ctx context.Context,
	job Job,
	capab venue.Capability,
	fetcher paginator.Fetcher,
	resolver *checkpoint.Resolver,
	table string,
	inst model.Instrument,
	logger *slog.Logger,
) Outcome {
	res := job.Resolution
	logger = logger.With("ticker", inst.Ticker)
	out := Outcome{Ticker: inst.Ticker}

	cp := resolver.Resolve(inst.Ticker)
	now := r.now().UTC()

	switch {
	case checkpoint.Fresh(cp, res, now):
		out.Skipped = SkipFresh
	case inst.Delisted(now) && cp.Found && !cp.Max.Before(res.Floor(inst.DelistedAt)):
		out.Skipped = SkipDelisted
	}
	if out.Skipped != "" {
		metrics.InstrumentsSkipped.WithLabelValues(job.ID, out.Skipped).Inc()
		logger.Debug("instrument skipped", "reason", out.Skipped, "checkpoint", cp.Max)
		return out
	}

	from := checkpoint.FromTime(cp, res)
	if !inst.ListedAt.IsZero() {
		if listed := res.Floor(inst.ListedAt); listed.After(from) {
			from = listed
		}
	}
	to := res.Floor(now)
	if inst.Delisted(now) {
		if end := res.Floor(inst.DelistedAt); end.Before(to) {
			to = end
		}
	}

	s := &sink{
		job:     job.ID,
		table:   table,
		kind:    job.Kind,
		res:     res,
		cp:      cp,
		upload:  r.settings.Upload,
		store:   r.rc.Store,
		archive: r.rc.Archive,
		logger:  logger,
		stats:   model.Stats{Ticker: inst.Ticker},
	}

	p := paginator.New(paginator.Config{
		Name:                capab.Name(),
		Resolution:          res,
		PageLimit:           capab.PageLimit,
		Direction:           capab.Direction,
		EmptyPolicy:         capab.EmptyPolicy,
		OverlapMultiple:     r.settings.OverlapMultiple,
		FlushThresholdBytes: r.settings.FlushThresholdBytes,
	}, fetcher, s, logger)

	result := p.Run(ctx, inst, from, to)
	out.Reason = result.Reason

	if len(result.Rows) > 0 {
		// Rows already fetched are kept even if the walk was cancelled.
		if err := s.Flush(context.WithoutCancel(ctx), result.Rows); err != nil {
			out.Err = err
		}
	}
	if result.Reason.Failed() && out.Err == nil {
		out.Err = result.Err
		if out.Err == nil {
			out.Err = fmt.Errorf("walk ended: %s", result.Reason)
		}
	}

	out.Stats = s.stats
	out.Loaded = s.loaded
	out.DryRun = s.skipped

	if out.Err != nil {
		logger.Warn("instrument failed",
			"reason", string(out.Reason),
			"rows_loaded", out.Loaded,
			"err", out.Err,
		)
		return out
	}
	logger.Info("instrument done",
		"reason", string(out.Reason),
		"from", from,
		"to", to,
		"duplicated", out.Stats.Duplicated,
		"missing", out.Stats.Missing,
		"anomalous", out.Stats.Anomalous,
		"rows_loaded", out.Loaded,
	)
	return out
}

type noCheckpoints struct{}

func (noCheckpoints) LatestTimestamps(context.Context, string) (map[string]model.Checkpoint, error) {
	return nil, nil
}
