// Package runner implements the top-level dispatch loop of the sandbox:
// it drains inbound control messages from the host, routes them to the
// plugin-lifecycle handlers, and drives each entry's state machine.
//
// Concurrency model: one reader goroutine drains the channel. Correlated
// http_response frames (and ack/error) are resolved inline by the reader —
// fulfillment is non-blocking — while lifecycle commands are handed to a
// single dispatcher goroutine over an ordered queue. Lifecycle messages are
// therefore processed strictly one at a time in arrival order, yet a
// dispatch suspended on a proxied call still sees its response arrive.
//
// The entry table, the timer table, and coordinator listener invocations
// are owned exclusively by the dispatcher goroutine; they need no locks.
//
// Failure policy: every plugin-originated failure is caught at the
// dispatch boundary and converted to a typed reply message. Only a
// malformed frame is fatal — it terminates the loop and closes the
// channel, since the framing invariant is violated and no further message
// can be trusted.
package runner
