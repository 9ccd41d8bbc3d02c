// Package backfill runs one job: list instruments, resolve checkpoints, walk
// each instrument's history and persist the validated series.
//
// Instruments run sequentially. A failure inside one instrument (fetch,
// decode, load) is logged and the job moves on; only configuration,
// reference-listing, checkpoint-query and schema failures end the run, as a
// *RunError carrying the failure class.
//
// Rows at or before the stored checkpoint are never persisted again, and
// overlapping windows are deduplicated across flushes, so re-running a job
// over the same data loads nothing new.
package backfill
