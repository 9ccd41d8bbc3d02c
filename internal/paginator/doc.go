// Package paginator implements the windowed history walk for one instrument.
//
// Backward walks start at "now" and move the window end to the earliest
// timestamp seen plus a small overlap. Forward walks start at the checkpoint
// and move the window start to the latest timestamp seen minus the overlap.
// Every walk ends with a named Reason:
//
//	short_page          the venue returned fewer rows than the page limit
//	checkpoint_reached  the walk reached the stored checkpoint
//	no_more_history     an empty page on a venue where empty means "before listing"
//	repeated_empty      two empty pages in a row
//	reached_now         a forward walk passed the upper bound
//	fetch_exhausted     a page failed every attempt
//	symbol_not_found    the venue does not know the symbol
//	cancelled           the context ended between windows
//	stalled             the next window would not make progress
//
// Rows are buffered in fetch order and handed to a Flusher whenever the
// buffer's estimated size crosses the configured threshold.
package paginator
