// Package api provides the shared REST client used to talk to venues that
// have no SDK in the stack, the reference metadata provider and the webhook
// notifier.
//
// Conventions:
//   - Non-2xx responses are returned as *APIError
//   - 5xx and 429 are retried with jittered exponential backoff
//   - POST requests are sent once
package api
