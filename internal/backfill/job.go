package backfill

import (
	"fmt"
	"strings"
	"time"

	"github.com/rickgao/market-backfill/internal/config"
	"github.com/rickgao/market-backfill/internal/fetch"
	"github.com/rickgao/market-backfill/internal/model"
	"github.com/rickgao/market-backfill/internal/venue"
	"github.com/rickgao/market-backfill/internal/warehouse"
)

// Job is one (venue, class, kind, resolution) series family.
type Job struct {
	ID         string
	Venue      string
	ExchangeID string // reference provider exchange id
	Class      model.Class
	Kind       model.Kind
	Resolution model.Resolution
	Symbols    []string // static instrument list; empty means use the reference provider
}

// NewJob resolves a job definition. Unknown venues, unsupported resolutions,
// combinations a venue does not serve and an overlap that leaves a full page
// no room to advance are configuration errors.
func NewJob(jc config.JobConfig, overlapMultiple int) (Job, error) {
	class, err := model.ParseClass(jc.Class)
	if err != nil {
		return Job{}, runError(jc.ID, ClassConfig, err)
	}
	kind, err := model.ParseKind(jc.Kind)
	if err != nil {
		return Job{}, runError(jc.ID, ClassConfig, err)
	}
	res, err := model.ParseResolution(jc.Resolution)
	if err != nil {
		return Job{}, runError(jc.ID, ClassConfig, err)
	}
	name := strings.ToLower(strings.TrimSpace(jc.Venue))
	capab, err := venue.Lookup(name, kind, class, res)
	if err != nil {
		return Job{}, runError(jc.ID, ClassConfig, err)
	}
	if overlapMultiple >= capab.PageLimit-1 {
		return Job{}, runError(jc.ID, ClassConfig, fmt.Errorf(
			"backfill.overlap_multiple %d must be below %s page limit %d minus 1",
			overlapMultiple, capab.Name(), capab.PageLimit))
	}

	exchangeID := jc.ExchangeID
	if exchangeID == "" {
		exchangeID = strings.ToUpper(name)
	}
	return Job{
		ID:         jc.ID,
		Venue:      name,
		ExchangeID: exchangeID,
		Class:      class,
		Kind:       kind,
		Resolution: res,
		Symbols:    jc.Symbols,
	}, nil
}

// JobsFromConfig resolves every configured job, failing on the first error.
func JobsFromConfig(cfg *config.BackfillerConfig) ([]Job, error) {
	out := make([]Job, 0, len(cfg.Jobs))
	for _, jc := range cfg.Jobs {
		j, err := NewJob(jc, cfg.Backfill.Overlap())
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// Table returns the warehouse table for the job.
func (j Job) Table(dataset string) string {
	return warehouse.TableName(dataset, j.Venue, j.Kind, j.Class, j.Resolution)
}

// Schema returns the warehouse schema for the job.
func (j Job) Schema(dataset string) string {
	return warehouse.DatasetName(dataset, j.Venue)
}

func (j Job) String() string {
	return fmt.Sprintf("%s (%s %s %s %s)", j.ID, j.Venue, j.Kind, j.Class, j.Resolution)
}

// Settings tunes pagination, retries and persistence for every job.
type Settings struct {
	Dataset                 string
	OverlapMultiple         int
	FlushThresholdBytes     int
	Fetch                   fetch.Config
	HistoryStart            time.Time
	AllowCheckpointFallback bool
	Upload                  bool
}

// SettingsFromConfig extracts job settings from the loaded configuration.
func SettingsFromConfig(cfg *config.BackfillerConfig) Settings {
	return Settings{
		Dataset:             cfg.Warehouse.Dataset,
		OverlapMultiple:     cfg.Backfill.Overlap(),
		FlushThresholdBytes: cfg.Backfill.FlushThresholdBytes,
		Fetch: fetch.Config{
			MaxAttempts: cfg.Backfill.MaxAttempts,
			Backoff:     cfg.Backfill.RetryBackoff,
			Linear:      cfg.Backfill.LinearBackoff,
		},
		HistoryStart:            cfg.Backfill.HistoryStart,
		AllowCheckpointFallback: cfg.Backfill.AllowCheckpointFallback,
		Upload:                  cfg.Backfill.UploadEnabled(),
	}
}
