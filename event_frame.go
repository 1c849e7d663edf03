package pharos

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// eventFrame is the wire envelope of an event:
//
//	{"event": "chat:send", "args": ["lobby", {"text": "hi"}]}
type eventFrame struct {
	Event string `json:"event"`
	Args  []any  `json:"args"`
}

// decodeEventFrame parses an event envelope. Numbers decode as float64 and
// objects as map[string]any.
func decodeEventFrame(data []byte) (eventFrame, error) {
	if !gjson.ValidBytes(data) {
		return eventFrame{}, fmt.Errorf("%w: not valid JSON", ErrInvalidEventFrame)
	}
	result := gjson.ParseBytes(data)
	if !result.IsObject() {
		return eventFrame{}, fmt.Errorf("%w: not an object", ErrInvalidEventFrame)
	}

	event := result.Get("event")
	if event.Type != gjson.String || event.Str == "" {
		return eventFrame{}, fmt.Errorf("%w: missing event name", ErrInvalidEventFrame)
	}

	frame := eventFrame{Event: event.Str}
	args := result.Get("args")
	if !args.Exists() || args.Type == gjson.Null {
		return frame, nil
	}
	if !args.IsArray() {
		return eventFrame{}, fmt.Errorf("%w: args must be an array", ErrInvalidEventFrame)
	}
	for _, arg := range args.Array() {
		frame.Args = append(frame.Args, arg.Value())
	}
	return frame, nil
}

func encodeEventFrame(event string, args []any) ([]byte, error) {
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(eventFrame{Event: event, Args: args})
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %q: %w", event, err)
	}
	return data, nil
}
