// Package transport frames and parses newline-delimited protocol messages
// over a byte-stream channel. It owns no protocol semantics.
//
// Framing rule: each message occupies exactly one line of UTF-8 JSON
// terminated by a single newline. JSON string escaping guarantees a
// serialized message never contains a raw newline. A zero-length read is a
// normal end-of-channel signal; a non-parseable line is a fatal protocol
// error for the channel — there is no partial-message recovery.
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/hearthd/sandboxd/internal/logging"
	"github.com/hearthd/sandboxd/internal/protocol"
)

// ErrClosed signals normal end-of-channel. Callers treat it as graceful
// termination, not a failure.
var ErrClosed = errors.New("transport: channel closed")

// ProtocolError reports a malformed frame. The channel's framing invariant
// is violated and no further message from it can be trusted.
type ProtocolError struct {
	Line []byte
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("transport: malformed frame: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Transport frames messages over one bidirectional byte stream. Receive is
// single-consumer; Send is safe for concurrent callers — writes are
// serialized so frames never interleave.
type Transport struct {
	writeMu sync.Mutex
	w       io.Writer
	r       *bufio.Reader
	c       io.Closer

	closeOnce sync.Once
	closeErr  error

	log *logging.Logger
}

// New creates a transport over a connected channel.
func New(rw io.ReadWriteCloser, log *logging.Logger) *Transport {
	if log == nil {
		log = logging.NewNop()
	}
	return &Transport{
		w:   rw,
		r:   bufio.NewReader(rw),
		c:   rw,
		log: log.Named("transport"),
	}
}

// Send serializes one message and writes it as a single frame. The frame is
// written in one call under the write lock, so concurrent senders never
// interleave partial frames.
func (t *Transport) Send(msg *protocol.Message) error {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}

	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, data...)
	frame = append(frame, '\n')

	t.log.Debug("send", zap.String("wire", string(data)))

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.w.Write(frame); err != nil {
		if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF) {
			return ErrClosed
		}
		return fmt.Errorf("transport: write frame: %w", err)
	}
	return nil
}

// Receive blocks until one complete frame is available, parses it, and
// returns the message. It returns ErrClosed on clean end-of-channel and a
// *ProtocolError on a malformed frame.
func (t *Transport) Receive() (*protocol.Message, error) {
	line, err := t.r.ReadBytes('\n')
	if err != nil {
		if len(line) == 0 && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe)) {
			return nil, ErrClosed
		}
		if errors.Is(err, io.EOF) {
			// Bytes followed by EOF without a terminating newline: a
			// truncated frame, not a clean close.
			return nil, &ProtocolError{Line: line, Err: errors.New("truncated frame at end of channel")}
		}
		return nil, fmt.Errorf("transport: read frame: %w", err)
	}

	line = line[:len(line)-1]
	t.log.Debug("recv", zap.String("wire", string(line)))

	msg, err := protocol.Unmarshal(line)
	if err != nil {
		return nil, &ProtocolError{Line: line, Err: err}
	}
	return msg, nil
}

// Close closes the underlying channel. Safe to call more than once.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.c.Close()
	})
	return t.closeErr
}
