// Package checkpoint resolves, per ticker, where the stored series ends.
//
// The checkpoint query runs once per table per run. Tickers with no stored
// rows resolve to a sentinel whose Max is the configured history start.
package checkpoint
