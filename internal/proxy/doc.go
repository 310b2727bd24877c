// Package proxy lets plugin code issue outbound HTTP calls that are
// actually executed by the supervising host, behind a synchronous-looking
// call interface.
//
// An issued call generates a fresh correlation ID, registers a pending call
// with a deadline, sends an http_request frame, and suspends until one of:
//   - a matching http_response fulfills the call (exactly once; duplicate
//     responses for a resolved ID are logged and ignored)
//   - the deadline elapses (ErrTimeout)
//   - the channel closes (ErrChannelClosed fails every pending call)
//
// Response bodies are normalized to bytes whether they arrived as byte
// arrays or text, and decode to UTF-8 on demand with replacement of invalid
// sequences.
package proxy
