package entity

import (
	"context"
	"encoding/json"
	"fmt"
)

// Frame is one decoded event from the streaming socket.
// Type is empty when the payload carried no type tag.
type Frame struct {
	Type string
	Raw  json.RawMessage
}

// ParseFrame decodes a raw JSON payload into a frame.
func ParseFrame(data []byte) (Frame, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Frame{}, fmt.Errorf("decoding frame: %w", err)
	}
	return Frame{Type: head.Type, Raw: json.RawMessage(data)}, nil
}

// Decode unmarshals the frame payload into v.
func (f Frame) Decode(v any) error {
	if len(f.Raw) == 0 {
		return fmt.Errorf("frame %q has no payload", f.Type)
	}
	return json.Unmarshal(f.Raw, v)
}

// FrameHandler observes frames of one event type.
type FrameHandler func(ctx context.Context, frame Frame) error
