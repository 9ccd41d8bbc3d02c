package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rickgao/market-backfill/internal/model"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-backfiller
warehouse:
  db:
    host: localhost
    port: 5432
    name: warehouse
    user: testuser
    password: testpass
  dataset: crypto
jobs:
  - id: binance-1h-spot
    venue: binance
    exchange_id: BINANCE
    class: spot
    kind: ohlcv
    resolution: 1h
backfill:
  history_start: 2015-06-01T00:00:00Z
  retry_backoff: 2s
  linear_backoff: true
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-backfiller" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-backfiller")
	}
	if cfg.Warehouse.Dataset != "crypto" {
		t.Errorf("Warehouse.Dataset = %q, want %q", cfg.Warehouse.Dataset, "crypto")
	}
	if len(cfg.Jobs) != 1 || cfg.Jobs[0].ExchangeID != "BINANCE" {
		t.Fatalf("Jobs = %+v, want one BINANCE job", cfg.Jobs)
	}
	if cfg.Backfill.RetryBackoff != 2*time.Second {
		t.Errorf("Backfill.RetryBackoff = %v, want 2s", cfg.Backfill.RetryBackoff)
	}
	if !cfg.Backfill.LinearBackoff {
		t.Error("Backfill.LinearBackoff = false, want true")
	}
	want := time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC)
	if !cfg.Backfill.HistoryStart.Equal(want) {
		t.Errorf("Backfill.HistoryStart = %v, want %v", cfg.Backfill.HistoryStart, want)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")
	t.Setenv("TEST_WEBHOOK", "https://discord.example/hook")

	yaml := `
instance:
  id: test-backfiller
warehouse:
  db:
    host: localhost
    name: warehouse
    user: testuser
    password: ${TEST_DB_PASSWORD}
notifier:
  webhook_url: ${TEST_WEBHOOK}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Warehouse.DB.Password != "secret123" {
		t.Errorf("Warehouse.DB.Password = %q, want %q", cfg.Warehouse.DB.Password, "secret123")
	}
	if cfg.Notifier.WebhookURL != "https://discord.example/hook" {
		t.Errorf("Notifier.WebhookURL = %q", cfg.Notifier.WebhookURL)
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("BACKFILL_TEST_KEY=from-dotenv\n"), 0644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("BACKFILL_TEST_KEY") })

	if err := LoadEnv(path); err != nil {
		t.Fatalf("LoadEnv failed: %v", err)
	}
	if got := os.Getenv("BACKFILL_TEST_KEY"); got != "from-dotenv" {
		t.Errorf("BACKFILL_TEST_KEY = %q, want %q", got, "from-dotenv")
	}

	if err := LoadEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("LoadEnv on missing file = %v, want nil", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-backfiller
warehouse:
  db:
    host: localhost
    name: warehouse
    user: testuser
    password: testpass
jobs:
  - id: dydx-funding
    venue: dydx
    class: perpetual
    kind: funding
    resolution: 1h
    symbols: [BTC-USD]
  - id: okx-1h
    venue: okx
    class: perpetual
    resolution: 1h
    symbols: [BTC-USDT-SWAP]
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Warehouse.DB.Port != DefaultDBPort {
		t.Errorf("Warehouse.DB.Port = %d, want default %d", cfg.Warehouse.DB.Port, DefaultDBPort)
	}
	if cfg.Backfill.Overlap() != DefaultOverlapMultiple {
		t.Errorf("Backfill.Overlap() = %d, want default %d", cfg.Backfill.Overlap(), DefaultOverlapMultiple)
	}
	if cfg.Backfill.FlushThresholdBytes != DefaultFlushThresholdBytes {
		t.Errorf("Backfill.FlushThresholdBytes = %d, want default %d", cfg.Backfill.FlushThresholdBytes, DefaultFlushThresholdBytes)
	}
	if cfg.Backfill.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("Backfill.MaxAttempts = %d, want default %d", cfg.Backfill.MaxAttempts, DefaultMaxAttempts)
	}
	if !cfg.Backfill.HistoryStart.Equal(model.DefaultHistoryStart) {
		t.Errorf("Backfill.HistoryStart = %v, want %v", cfg.Backfill.HistoryStart, model.DefaultHistoryStart)
	}
	if !cfg.Backfill.UploadEnabled() {
		t.Error("Backfill.UploadEnabled() = false, want true by default")
	}
	if cfg.Schedule.TriggerHour() != DefaultScheduleHour {
		t.Errorf("Schedule.TriggerHour() = %d, want default %d", cfg.Schedule.TriggerHour(), DefaultScheduleHour)
	}
	if cfg.Jobs[1].Kind != string(model.KindOHLCV) {
		t.Errorf("Jobs[1].Kind = %q, want %q", cfg.Jobs[1].Kind, model.KindOHLCV)
	}
	if cfg.Venues.OKX.URL != "https://www.okx.com" {
		t.Errorf("Venues.OKX.URL = %q, want default", cfg.Venues.OKX.URL)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestScheduleHourZero(t *testing.T) {
	yaml := `
schedule:
  hour: 0
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if cfg.Schedule.TriggerHour() != 0 {
		t.Errorf("Schedule.TriggerHour() = %d, want 0", cfg.Schedule.TriggerHour())
	}
}

func TestOverlapZeroIsKept(t *testing.T) {
	yaml := `
backfill:
  overlap_multiple: 0
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if cfg.Backfill.Overlap() != 0 {
		t.Errorf("Backfill.Overlap() = %d, want explicit 0", cfg.Backfill.Overlap())
	}
}

func TestValidate(t *testing.T) {
	db := DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 10, MinConns: 2}
	job := JobConfig{ID: "binance-1h", Venue: "binance", Class: "spot", Kind: "ohlcv", Resolution: "1h", Symbols: []string{"BTC-USDT"}}
	base := func() BackfillerConfig {
		cfg := BackfillerConfig{
			Instance:  InstanceConfig{ID: "test"},
			Warehouse: WarehouseConfig{DB: db},
			Jobs:      []JobConfig{job},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*BackfillerConfig)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *BackfillerConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing warehouse host",
			mutate:  func(c *BackfillerConfig) { c.Warehouse.DB.Host = "" },
			wantErr: "warehouse.db.host is required",
		},
		{
			name: "warehouse not required without upload",
			mutate: func(c *BackfillerConfig) {
				upload := false
				c.Backfill.Upload = &upload
				c.Warehouse.DB = DBConfig{}
			},
			wantErr: "",
		},
		{
			name:    "min_conns exceeds max_conns",
			mutate:  func(c *BackfillerConfig) { c.Warehouse.DB.MinConns = 20 },
			wantErr: "warehouse.db.min_conns (20) cannot exceed max_conns (10)",
		},
		{
			name:    "no jobs",
			mutate:  func(c *BackfillerConfig) { c.Jobs = nil },
			wantErr: "jobs must contain at least one job",
		},
		{
			name:    "unsupported resolution",
			mutate:  func(c *BackfillerConfig) { c.Jobs[0].Resolution = "2h" },
			wantErr: `jobs[0].resolution: unsupported resolution: "2h"`,
		},
		{
			name:    "unknown class",
			mutate:  func(c *BackfillerConfig) { c.Jobs[0].Class = "option" },
			wantErr: `jobs[0].class: unknown instrument class "option"`,
		},
		{
			name: "negative overlap",
			mutate: func(c *BackfillerConfig) {
				overlap := -1
				c.Backfill.OverlapMultiple = &overlap
			},
			wantErr: "backfill.overlap_multiple must be >= 0",
		},
		{
			name: "duplicate job id",
			mutate: func(c *BackfillerConfig) {
				c.Jobs = append(c.Jobs, c.Jobs[0])
			},
			wantErr: `jobs[1].id "binance-1h" is duplicated`,
		},
		{
			name:    "no symbols and no reference key",
			mutate:  func(c *BackfillerConfig) { c.Jobs[0].Symbols = nil },
			wantErr: "jobs[0] needs symbols or reference.api_key",
		},
		{
			name: "bad schedule hour",
			mutate: func(c *BackfillerConfig) {
				hour := 24
				c.Schedule.Hour = &hour
			},
			wantErr: "schedule.hour must be between 0 and 23, got 24",
		},
		{
			name:    "archive without bucket",
			mutate:  func(c *BackfillerConfig) { c.Archive = ArchiveConfig{Enabled: true, Endpoint: "localhost:9000"} },
			wantErr: "archive.bucket is required",
		},
		{
			name:    "valid config",
			mutate:  func(c *BackfillerConfig) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			cfg.Jobs = append([]JobConfig(nil), cfg.Jobs...)
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
