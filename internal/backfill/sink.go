package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/market-backfill/internal/metrics"
	"github.com/rickgao/market-backfill/internal/model"
	"github.com/rickgao/market-backfill/internal/validate"
	"github.com/rickgao/market-backfill/internal/warehouse"
)

// sink validates and persists the buffers one instrument walk flushes.
//
// Successive flushes of a walk cover one contiguous span (windows overlap),
// so rows inside the span already persisted are overlap duplicates.
type sink struct {
	job     string
	table   string
	kind    model.Kind
	res     model.Resolution
	cp      model.Checkpoint
	upload  bool
	store   warehouse.Loader
	archive Archiver
	logger  *slog.Logger

	lo, hi  time.Time // persisted span, zero until the first flush
	stats   model.Stats
	loaded  int64
	skipped int // rows not persisted in dry-run mode
}

// Flush implements paginator.Flusher. On error nothing is recorded, so the
// same rows can be flushed again.
func (s *sink) Flush(ctx context.Context, rows []model.Row) error {
	series, st := validate.ValidateSeries(rows, s.res)

	fresh := make([]model.Row, 0, len(series))
	overlap := 0
	for _, row := range series {
		if s.cp.Found && !row.Time.After(s.cp.Max) {
			continue
		}
		if s.covered(row.Time) {
			overlap++
			continue
		}
		fresh = append(fresh, row)
	}
	st.Duplicated += overlap

	if len(fresh) > 0 {
		if err := s.persist(ctx, fresh); err != nil {
			return err
		}
		s.extend(fresh[0].Time, fresh[len(fresh)-1].Time)
	}

	s.stats.Add(st)
	metrics.ValidationRows.WithLabelValues(s.job, "duplicated").Add(float64(st.Duplicated))
	metrics.ValidationRows.WithLabelValues(s.job, "missing").Add(float64(st.Missing))
	metrics.ValidationRows.WithLabelValues(s.job, "anomalous").Add(float64(st.Anomalous))
	return nil
}

func (s *sink) persist(ctx context.Context, rows []model.Row) error {
	if !s.upload {
		s.skipped += len(rows)
		s.logger.Info("upload disabled, skipping load",
			"table", s.table,
			"rows", len(rows),
			"first", rows[0].Time,
			"last", rows[len(rows)-1].Time,
		)
		return nil
	}

	res, err := s.store.Load(ctx, s.table, rows)
	if err != nil {
		metrics.LoadErrors.WithLabelValues(s.job).Inc()
		return fmt.Errorf("load %s: %w", s.table, err)
	}
	if res.ErrorResult != nil {
		metrics.LoadErrors.WithLabelValues(s.job).Inc()
		return fmt.Errorf("load %s rejected: %w", s.table, res.ErrorResult)
	}
	s.loaded += res.RowsLoaded
	metrics.RowsLoaded.WithLabelValues(s.job).Add(float64(res.RowsLoaded))

	if s.archive != nil {
		if _, err := s.archive.Put(ctx, s.table, s.kind, rows); err != nil {
			s.logger.Warn("chunk archive failed", "table", s.table, "err", err)
		}
	}
	return nil
}

func (s *sink) covered(t time.Time) bool {
	return !s.lo.IsZero() && !t.Before(s.lo) && !t.After(s.hi)
}

func (s *sink) extend(first, last time.Time) {
	if s.lo.IsZero() || first.Before(s.lo) {
		s.lo = first
	}
	if last.After(s.hi) {
		s.hi = last
	}
}
