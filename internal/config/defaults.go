package config

import (
	"time"

	"github.com/rickgao/market-backfill/internal/model"
)

// Default values for optional configuration fields.
const (
	DefaultLogLevel            = "info"
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 10
	DefaultMinConns            = 2
	DefaultDataset             = "market"
	DefaultReferenceURL        = "https://rest.coinapi.io"
	DefaultReferenceTimeout    = 30 * time.Second
	DefaultVenueTimeout        = 30 * time.Second
	DefaultOverlapMultiple     = 5
	DefaultFlushThresholdBytes = 200_000
	DefaultMaxAttempts         = 3
	DefaultRetryBackoff        = 1 * time.Second
	DefaultDelistedAfter       = 14 * 24 * time.Hour
	DefaultScheduleHour        = 12
	DefaultMaxConcurrentJobs   = 1
	DefaultNotifierAppName     = "market-backfill"
	DefaultNotifierTimeout     = 10 * time.Second
	DefaultArchivePrefix       = "chunks"
	DefaultMetricsPort         = 9090
	DefaultMetricsPath         = "/metrics"
)

// Default venue endpoints.
var defaultVenueURLs = map[string]string{
	"binance":         "https://api.binance.com",
	"binance_futures": "https://fapi.binance.com",
	"okx":             "https://www.okx.com",
	"dydx":            "https://api.dydx.exchange",
	"polygon":         "https://api.polygon.io",
}

func (c *BackfillerConfig) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	// Warehouse defaults
	applyDBDefaults(&c.Warehouse.DB)
	if c.Warehouse.Dataset == "" {
		c.Warehouse.Dataset = DefaultDataset
	}

	// Reference defaults
	if c.Reference.URL == "" {
		c.Reference.URL = DefaultReferenceURL
	}
	if c.Reference.Timeout == 0 {
		c.Reference.Timeout = DefaultReferenceTimeout
	}

	// Venue defaults
	applyVenueDefaults(&c.Venues.Binance, defaultVenueURLs["binance"])
	applyVenueDefaults(&c.Venues.BinanceFutures, defaultVenueURLs["binance_futures"])
	applyVenueDefaults(&c.Venues.OKX, defaultVenueURLs["okx"])
	applyVenueDefaults(&c.Venues.DYDX, defaultVenueURLs["dydx"])
	applyVenueDefaults(&c.Venues.Polygon, defaultVenueURLs["polygon"])

	// Backfill defaults
	if c.Backfill.OverlapMultiple == nil {
		overlap := DefaultOverlapMultiple
		c.Backfill.OverlapMultiple = &overlap
	}
	if c.Backfill.FlushThresholdBytes == 0 {
		c.Backfill.FlushThresholdBytes = DefaultFlushThresholdBytes
	}
	if c.Backfill.MaxAttempts == 0 {
		c.Backfill.MaxAttempts = DefaultMaxAttempts
	}
	if c.Backfill.RetryBackoff == 0 {
		c.Backfill.RetryBackoff = DefaultRetryBackoff
	}
	if c.Backfill.HistoryStart.IsZero() {
		c.Backfill.HistoryStart = model.DefaultHistoryStart
	}
	if c.Backfill.DelistedAfter == 0 {
		c.Backfill.DelistedAfter = DefaultDelistedAfter
	}

	// Jobs default to candles
	for i := range c.Jobs {
		if c.Jobs[i].Kind == "" {
			c.Jobs[i].Kind = string(model.KindOHLCV)
		}
	}

	// Schedule defaults
	if c.Schedule.Hour == nil {
		hour := DefaultScheduleHour
		c.Schedule.Hour = &hour
	}
	if c.Schedule.MaxConcurrentJobs == 0 {
		c.Schedule.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}

	// Notifier defaults
	if c.Notifier.AppName == "" {
		c.Notifier.AppName = DefaultNotifierAppName
	}
	if c.Notifier.Timeout == 0 {
		c.Notifier.Timeout = DefaultNotifierTimeout
	}

	// Archive defaults
	if c.Archive.Prefix == "" {
		c.Archive.Prefix = DefaultArchivePrefix
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

func applyVenueDefaults(v *VenueConfig, url string) {
	if v.URL == "" {
		v.URL = url
	}
	if v.Timeout == 0 {
		v.Timeout = DefaultVenueTimeout
	}
	if v.RateLimit > 0 && v.Burst == 0 {
		v.Burst = 1
	}
}
