package protocol

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Marshal serializes a message to a single JSON object with no trailing
// newline. JSON string escaping guarantees the output itself contains no
// raw newline, which the framing layer depends on.
func Marshal(msg *Message) ([]byte, error) {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s message: %w", msg.Type, err)
	}
	return data, nil
}

// Unmarshal parses one JSON object into a message. Unknown fields are
// ignored for forward compatibility; an unknown type discriminant is the
// caller's concern, not a parse error.
func Unmarshal(data []byte) (*Message, error) {
	var msg Message
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &msg, nil
}
