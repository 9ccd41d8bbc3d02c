// Package normalize turns raw venue records into canonical rows.
//
// For each record, in order:
//   - venue field names are renamed through the endpoint's field map
//   - the timestamp is parsed from epoch milliseconds, epoch seconds or ISO-8601 into UTC
//   - numerics become float64, trade counts int64, status and contract type bounded enums
//   - the instrument ticker is attached
//
// A single bad value fails the page with a *RowError.
package normalize
