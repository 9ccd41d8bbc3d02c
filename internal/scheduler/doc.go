// Package scheduler runs backfill jobs once a day.
//
// The Scheduler:
//   - Fires every job at a fixed UTC hour (optionally also at start)
//   - Runs distinct jobs concurrently up to a limit, never one job twice at once
//   - Isolates jobs: an error or panic in one does not affect the others
//   - Reports every finished job to a notifier, successful or not
package scheduler
