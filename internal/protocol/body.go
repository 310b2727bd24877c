package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

// ByteBody carries an HTTP body over the wire. The host serializes bodies
// as JSON arrays of byte values; some peers send text bodies as JSON
// strings. Both forms decode to the same byte sequence.
type ByteBody []byte

// MarshalJSON encodes the body as an array of byte values.
func (b ByteBody) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}

	var sb strings.Builder
	sb.Grow(len(b)*4 + 2)
	sb.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(int(v)))
	}
	sb.WriteByte(']')
	return []byte(sb.String()), nil
}

// UnmarshalJSON decodes either an array of byte values or a JSON string.
func (b *ByteBody) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*b = nil
		return nil
	}

	if strings.HasPrefix(trimmed, "\"") {
		var s string
		if err := sonic.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode body string: %w", err)
		}
		*b = ByteBody(s)
		return nil
	}

	var values []int
	if err := sonic.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("decode body bytes: %w", err)
	}
	out := make(ByteBody, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return fmt.Errorf("decode body bytes: value %d out of range at index %d", v, i)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// Text decodes the body as UTF-8, replacing invalid sequences with the
// replacement rune rather than failing.
func (b ByteBody) Text() string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}
