// Package protocol defines the control messages exchanged between the
// sandbox runner and its supervising host.
//
// The wire format is newline-delimited UTF-8 JSON: one message object per
// line, discriminated by a "type" field. Every message is self-contained —
// there is no implicit session state beyond the identifiers a message
// carries.
//
// Message Types (sandbox → host):
//   - ready: sandbox initialized and ready for commands
//   - setup_complete / setup_failed: entry setup outcome
//   - unload_complete: entry unload finished
//   - schedule_update / cancel_timer: periodic timer registration
//   - update_complete: coordinator refresh outcome
//   - http_request: proxied outbound network call
//   - entity_register / state_update: entity side-channel
//
// Message Types (host → sandbox):
//   - setup_integration / unload_integration: entry lifecycle commands
//   - trigger_update: a registered timer fired
//   - http_response: result of a proxied call, matched by request_id
//   - shutdown: stop after the current dispatch
//   - ack / error: acknowledgment and host-side errors
package protocol
