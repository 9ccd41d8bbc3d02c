// Package model defines shared data types used across the backfill engine.
//
// Conventions:
//   - Timestamps: time.Time in UTC, truncated to the series resolution
//   - Tickers: canonical BASE-QUOTE form, with a -SWAP suffix for perpetuals
//   - Numeric fields: *float64, nil meaning the tick was missing at the venue
//   - Raw venue records: string maps keyed by the venue's own field names
package model
