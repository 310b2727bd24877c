package proxy

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hearthd/sandboxd/internal/logging"
	"github.com/hearthd/sandboxd/internal/protocol"
)

// ErrTimeout reports that a pending call's deadline elapsed before a
// matching response arrived.
var ErrTimeout = errors.New("proxy: request timed out")

// ErrChannelClosed reports that the channel closed while the call was
// pending. Every outstanding call fails with it at teardown.
var ErrChannelClosed = errors.New("proxy: channel closed")

// ErrHostRejected reports a host-side execution failure carried in the
// response frame (DNS failure, connection refused, and similar).
type ErrHostRejected struct {
	Reason string
}

func (e *ErrHostRejected) Error() string {
	return "proxy: host failed to execute request: " + e.Reason
}

// outcome is the single-fulfillment result slot of a pending call.
type outcome struct {
	resp *Response
	err  error
}

// pending is one outstanding correlated call. Owned exclusively by the
// table between the outbound send and its resolution.
type pending struct {
	id       string
	done     chan outcome // buffered, capacity 1
	deadline time.Time
}

// Table maps request IDs to pending calls awaiting a single matching
// response.
type Table struct {
	mu     sync.Mutex
	calls  map[string]*pending
	closed bool
	log    *logging.Logger
}

// NewTable creates an empty correlation table.
func NewTable(log *logging.Logger) *Table {
	if log == nil {
		log = logging.NewNop()
	}
	return &Table{
		calls: make(map[string]*pending),
		log:   log.Named("correlation"),
	}
}

// register creates a pending call for the given request ID. It fails with
// ErrChannelClosed once the table is torn down.
func (t *Table) register(requestID string, deadline time.Time) (<-chan outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrChannelClosed
	}
	if _, exists := t.calls[requestID]; exists {
		// The ID space makes this unreachable in practice; refuse rather
		// than silently replace the waiter.
		return nil, errors.New("proxy: request ID already pending")
	}

	p := &pending{
		id:       requestID,
		done:     make(chan outcome, 1),
		deadline: deadline,
	}
	t.calls[requestID] = p
	return p.done, nil
}

// Fulfill resolves the pending call matching the response's request ID.
// A response with no matching waiter — stale after timeout, or a duplicate —
// is logged and dropped; it never fulfills twice.
func (t *Table) Fulfill(msg *protocol.Message) {
	t.mu.Lock()
	p, ok := t.calls[msg.RequestID]
	if ok {
		delete(t.calls, msg.RequestID)
	}
	t.mu.Unlock()

	if !ok {
		t.log.Debug("dropping unmatched response",
			zap.String("request_id", msg.RequestID))
		return
	}

	if msg.Error != "" {
		p.done <- outcome{err: &ErrHostRejected{Reason: msg.Error}}
		return
	}
	p.done <- outcome{resp: &Response{
		Status:  msg.Status,
		Headers: msg.Headers,
		body:    []byte(msg.Body),
	}}
}

// remove drops a pending call without resolving it, used by the issuing
// side after a timeout or send failure.
func (t *Table) remove(requestID string) {
	t.mu.Lock()
	delete(t.calls, requestID)
	t.mu.Unlock()
}

// Close cancels every still-pending call with ErrChannelClosed without
// waiting for resolution, and rejects future registrations.
func (t *Table) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	calls := t.calls
	t.calls = make(map[string]*pending)
	t.mu.Unlock()

	for _, p := range calls {
		p.done <- outcome{err: ErrChannelClosed}
	}
	if len(calls) > 0 {
		t.log.Info("cancelled pending calls on close", zap.Int("count", len(calls)))
	}
}

// Len reports the number of outstanding calls.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
