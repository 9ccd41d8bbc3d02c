package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rickgao/market-backfill/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *BackfillerConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}

	if c.Backfill.UploadEnabled() {
		if err := c.Warehouse.DB.validate("warehouse.db"); err != nil {
			return err
		}
	}

	if c.Backfill.Overlap() < 0 {
		return errors.New("backfill.overlap_multiple must be >= 0")
	}
	if c.Backfill.FlushThresholdBytes < 1 {
		return errors.New("backfill.flush_threshold_bytes must be >= 1")
	}
	if c.Backfill.MaxAttempts < 1 {
		return errors.New("backfill.max_attempts must be >= 1")
	}
	if c.Backfill.RetryBackoff < 0 {
		return errors.New("backfill.retry_backoff must be >= 0")
	}

	if len(c.Jobs) == 0 {
		return errors.New("jobs must contain at least one job")
	}
	seen := make(map[string]bool, len(c.Jobs))
	for i, job := range c.Jobs {
		prefix := fmt.Sprintf("jobs[%d]", i)
		if err := job.validate(prefix); err != nil {
			return err
		}
		if seen[job.ID] {
			return fmt.Errorf("%s.id %q is duplicated", prefix, job.ID)
		}
		seen[job.ID] = true
		if len(job.Symbols) == 0 && c.Reference.APIKey == "" {
			return fmt.Errorf("%s needs symbols or reference.api_key", prefix)
		}
	}

	if hour := c.Schedule.TriggerHour(); hour < 0 || hour > 23 {
		return fmt.Errorf("schedule.hour must be between 0 and 23, got %d", hour)
	}
	if c.Schedule.MaxConcurrentJobs < 1 {
		return errors.New("schedule.max_concurrent_jobs must be >= 1")
	}

	if c.Archive.Enabled {
		if c.Archive.Endpoint == "" {
			return errors.New("archive.endpoint is required")
		}
		if c.Archive.Bucket == "" {
			return errors.New("archive.bucket is required")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (j *JobConfig) validate(prefix string) error {
	if j.ID == "" {
		return fmt.Errorf("%s.id is required", prefix)
	}
	if j.Venue == "" {
		return fmt.Errorf("%s.venue is required", prefix)
	}
	if _, err := model.ParseClass(j.Class); err != nil {
		return fmt.Errorf("%s.class: %w", prefix, err)
	}
	if _, err := model.ParseKind(j.Kind); err != nil {
		return fmt.Errorf("%s.kind: %w", prefix, err)
	}
	if _, err := model.ParseResolution(j.Resolution); err != nil {
		return fmt.Errorf("%s.resolution: %w", prefix, err)
	}
	for k, sym := range j.Symbols {
		if strings.TrimSpace(sym) == "" {
			return fmt.Errorf("%s.symbols[%d] is empty", prefix, k)
		}
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
