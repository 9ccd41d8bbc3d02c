// Package fetch wraps a single venue page request with bounded retries.
//
// Errors are classified as:
//   - symbol not found: returned at once, never retried
//   - context cancelled: returned at once
//   - anything else, including a page that fails to decode: retried up to
//     MaxAttempts, then reported as *ExhaustedError
package fetch
