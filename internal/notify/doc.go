// Package notify reports job outcomes to a chat webhook.
//
// A Sink is told about every finished job, successful or not. Delivery is
// fire-and-forget: failures are logged and never reach the caller.
package notify
