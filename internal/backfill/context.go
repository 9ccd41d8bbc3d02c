package backfill

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rickgao/market-backfill/internal/api"
	"github.com/rickgao/market-backfill/internal/archive"
	"github.com/rickgao/market-backfill/internal/config"
	"github.com/rickgao/market-backfill/internal/database"
	"github.com/rickgao/market-backfill/internal/model"
	"github.com/rickgao/market-backfill/internal/reference"
	"github.com/rickgao/market-backfill/internal/venue"
	"github.com/rickgao/market-backfill/internal/version"
	"github.com/rickgao/market-backfill/internal/warehouse"
)

// Venues opens venue sources for jobs.
type Venues interface {
	Open(venue string, kind model.Kind, class model.Class, res model.Resolution) (venue.Capability, venue.Source, error)
	Settings(c venue.Capability) config.VenueConfig
}

// Archiver keeps a copy of every persisted chunk.
type Archiver interface {
	Put(ctx context.Context, table string, kind model.Kind, rows []model.Row) (string, error)
}

// RunContext holds the clients of one run. It is built once per run and
// closed when the run ends.
type RunContext struct {
	ID        string
	Store     warehouse.Store    // nil when uploads are disabled
	Reference reference.Provider // nil when no reference key is configured
	Venues    Venues
	Archive   Archiver // nil when archiving is disabled

	closers []func()
}

// Open builds a run context from configuration.
func Open(ctx context.Context, cfg *config.BackfillerConfig, logger *slog.Logger) (*RunContext, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rc := &RunContext{
		ID:     uuid.NewString(),
		Venues: venue.NewRegistry(cfg.Venues, logger),
	}

	if cfg.Backfill.UploadEnabled() {
		pool, err := database.Connect(ctx, cfg.Warehouse.DB)
		if err != nil {
			return nil, runError("", ClassPersistence, err)
		}
		rc.closers = append(rc.closers, pool.Close)
		rc.Store = warehouse.New(pool, logger)
	}

	if cfg.Reference.APIKey != "" {
		client := api.NewClient("coinapi", cfg.Reference.URL, cfg.Reference.APIKey,
			api.WithAPIKeyHeader("X-CoinAPI-Key"),
			api.WithTimeout(cfg.Reference.Timeout),
			api.WithLogger(logger),
			api.WithUserAgent(version.UserAgent()),
		)
		rc.Reference = reference.NewCoinAPI(client, cfg.Backfill.DelistedAfter, logger)
	}

	if cfg.Archive.Enabled {
		a, err := archive.New(cfg.Archive, logger)
		if err != nil {
			rc.Close()
			return nil, runError("", ClassConfig, err)
		}
		if err := a.EnsureBucket(ctx); err != nil {
			rc.Close()
			return nil, runError("", ClassPersistence, err)
		}
		rc.Archive = a
	}

	logger.Debug("run context opened",
		"run_id", rc.ID,
		"upload", rc.Store != nil,
		"reference", rc.Reference != nil,
		"archive", rc.Archive != nil,
	)
	return rc, nil
}

// Close releases the run's connections.
func (rc *RunContext) Close() {
	for i := len(rc.closers) - 1; i >= 0; i-- {
		rc.closers[i]()
	}
	rc.closers = nil
}

func (rc *RunContext) instruments(ctx context.Context, job Job) ([]model.Instrument, error) {
	var (
		insts []model.Instrument
		err   error
	)
	if len(job.Symbols) > 0 {
		insts, err = reference.NewStatic(job.Symbols).ListInstruments(ctx, job.ExchangeID, job.Class)
		if err != nil {
			return nil, runError(job.ID, ClassConfig, err)
		}
	} else {
		if rc.Reference == nil {
			return nil, runError(job.ID, ClassConfig, errors.New("job has no symbols and no reference provider is configured"))
		}
		insts, err = rc.Reference.ListInstruments(ctx, job.ExchangeID, job.Class)
		if err != nil {
			return nil, runError(job.ID, ClassReference, err)
		}
	}

	for i := range insts {
		insts[i].Venue = job.Venue
	}
	return insts, nil
}
