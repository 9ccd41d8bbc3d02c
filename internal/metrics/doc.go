// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Page fetch attempts, retries and latencies per venue endpoint
//   - Paginator termination reasons
//   - Validator repairs (duplicated, missing, anomalous rows)
//   - Rows loaded and load failures per job
//   - Job durations, outcomes and skipped instruments
package metrics
