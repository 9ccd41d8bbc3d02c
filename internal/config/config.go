package config

import "time"

// BackfillerConfig is the top-level configuration for the backfiller binary.
type BackfillerConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Log       LogConfig       `yaml:"log"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Reference ReferenceConfig `yaml:"reference"`
	Venues    VenuesConfig    `yaml:"venues"`
	Backfill  BackfillConfig  `yaml:"backfill"`
	Jobs      []JobConfig     `yaml:"jobs"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InstanceConfig identifies this deployment.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// LogConfig controls the slog handler built in main.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// WarehouseConfig holds the analytical store connection and dataset naming.
type WarehouseConfig struct {
	DB      DBConfig `yaml:"db"`
	Dataset string   `yaml:"dataset"` // schema prefix; venue name is appended
}

// DBConfig holds connection parameters for a single database.
type DBConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Name           string        `yaml:"name"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	SSLMode        string        `yaml:"sslmode"`
	MaxConns       int           `yaml:"max_conns"`
	MinConns       int           `yaml:"min_conns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// ReferenceConfig points at the instrument metadata provider.
type ReferenceConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// VenuesConfig holds per-venue connection settings.
type VenuesConfig struct {
	Binance        VenueConfig `yaml:"binance"`
	BinanceFutures VenueConfig `yaml:"binance_futures"`
	OKX            VenueConfig `yaml:"okx"`
	DYDX           VenueConfig `yaml:"dydx"`
	Polygon        VenueConfig `yaml:"polygon"`
}

// VenueConfig holds connection settings for one venue.
type VenueConfig struct {
	URL       string        `yaml:"url"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst     int           `yaml:"burst"`
}

// BackfillConfig tunes the pagination and retry behavior shared by all jobs.
type BackfillConfig struct {
	OverlapMultiple         *int          `yaml:"overlap_multiple"` // 0 disables overlap
	FlushThresholdBytes     int           `yaml:"flush_threshold_bytes"`
	MaxAttempts             int           `yaml:"max_attempts"`
	RetryBackoff            time.Duration `yaml:"retry_backoff"`
	LinearBackoff           bool          `yaml:"linear_backoff"`
	HistoryStart            time.Time     `yaml:"history_start"`
	AllowCheckpointFallback bool          `yaml:"allow_checkpoint_fallback"`
	DelistedAfter           time.Duration `yaml:"delisted_after"`
	Upload                  *bool         `yaml:"upload"`
}

// Overlap returns the window overlap in resolution steps. An explicit 0 is
// kept; only an unset value falls back to the default.
func (b BackfillConfig) Overlap() int {
	if b.OverlapMultiple == nil {
		return DefaultOverlapMultiple
	}
	return *b.OverlapMultiple
}

// UploadEnabled reports whether loads go to the warehouse (default true).
func (b BackfillConfig) UploadEnabled() bool {
	return b.Upload == nil || *b.Upload
}

// JobConfig describes one scheduled backfill job.
type JobConfig struct {
	ID         string   `yaml:"id"`
	Venue      string   `yaml:"venue"`
	ExchangeID string   `yaml:"exchange_id"` // reference provider exchange id
	Class      string   `yaml:"class"`
	Kind       string   `yaml:"kind"`
	Resolution string   `yaml:"resolution"`
	Symbols    []string `yaml:"symbols"` // static list; bypasses the reference provider
}

// ScheduleConfig controls the daily trigger.
type ScheduleConfig struct {
	Hour              *int `yaml:"hour"` // UTC hour of day, 0-23
	MaxConcurrentJobs int  `yaml:"max_concurrent_jobs"`
	RunOnStart        bool `yaml:"run_on_start"`
}

// TriggerHour returns the configured hour, or the default when unset.
func (s ScheduleConfig) TriggerHour() int {
	if s.Hour == nil {
		return DefaultScheduleHour
	}
	return *s.Hour
}

// NotifierConfig holds the webhook notification sink settings.
type NotifierConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	AppName    string        `yaml:"app_name"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ArchiveConfig holds object storage settings for chunk archives.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	Prefix    string `yaml:"prefix"`
}

// MetricsConfig holds the Prometheus and health endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// Venue returns the settings block for a venue name, if any.
func (v VenuesConfig) Venue(name string) (VenueConfig, bool) {
	switch name {
	case "binance":
		return v.Binance, true
	case "binance_futures":
		return v.BinanceFutures, true
	case "okx":
		return v.OKX, true
	case "dydx":
		return v.DYDX, true
	case "polygon":
		return v.Polygon, true
	}
	return VenueConfig{}, false
}
