package types

import "encoding/json"

// DecodedMessage is the closed sum type the Stream Decoder emits for each
// line of CLI child output (spec §4.3, §9 "dynamic dispatch by string type
// field" translation). Every concrete type below implements it.
type DecodedMessage interface {
	DecodedType() string
}

type PartialMessage struct {
	Content string `json:"content"`
}

func (PartialMessage) DecodedType() string { return "partial" }

type ResponseMessage struct {
	Content string `json:"content"`
}

func (ResponseMessage) DecodedType() string { return "response" }

type ErrorMessage struct {
	Error string `json:"error"`
}

func (ErrorMessage) DecodedType() string { return "error" }

type NotificationMessage struct {
	Data map[string]any `json:"-"`
}

func (NotificationMessage) DecodedType() string { return "notification" }

type MetricMessage struct {
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	CostUSD      float64 `json:"costUSD"`
}

func (MetricMessage) DecodedType() string { return "metric" }

type DebugMessage struct {
	Data map[string]any `json:"-"`
}

func (DebugMessage) DecodedType() string { return "debug" }

type StatusMessage struct {
	Status string `json:"status"`
}

func (StatusMessage) DecodedType() string { return "status" }

type CheckpointRequestMessage struct {
	Label string `json:"label,omitempty"`
}

func (CheckpointRequestMessage) DecodedType() string { return "checkpoint" }

// UnknownMessage carries a well-formed JSON object with an unrecognized
// or missing `type` field.
type UnknownMessage struct {
	Raw map[string]any
}

func (UnknownMessage) DecodedType() string { return "unknown" }

// ParseErrorMessage carries a line that failed to parse as JSON with
// balanced brackets (so it is not a candidate for partial-line
// reassembly), or a partial-line buffer that exceeded the flush
// threshold.
type ParseErrorMessage struct {
	Line  string `json:"line"`
	Error string `json:"error"`
}

func (ParseErrorMessage) DecodedType() string { return "parse_error" }

// PlainTextMessage carries a non-JSON line, appended to the session's
// pending-response buffer as a fallback (spec §4.3).
type PlainTextMessage struct {
	Text string
}

func (PlainTextMessage) DecodedType() string { return "text" }

// rawTyped is used to sniff the `type` discriminator before unmarshaling
// into a concrete DecodedMessage, mirroring pkg/types' RawPart approach
// for Part.
type rawTyped struct {
	Type string `json:"type"`
}

// DecodeLine parses one well-formed JSON object line into its typed
// DecodedMessage. Callers must have already established the line is
// valid JSON; DecodeLine only classifies by `type`.
func DecodeLine(data []byte) (DecodedMessage, error) {
	var raw rawTyped
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	switch raw.Type {
	case "partial":
		var m PartialMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "response":
		var m ResponseMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "error":
		var m ErrorMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "notification":
		var generic map[string]any
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil, err
		}
		return NotificationMessage{Data: generic}, nil
	case "metric":
		var m MetricMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "debug":
		var generic map[string]any
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil, err
		}
		return DebugMessage{Data: generic}, nil
	case "status":
		var m StatusMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "checkpoint":
		var m CheckpointRequestMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		var generic map[string]any
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil, err
		}
		return UnknownMessage{Raw: generic}, nil
	}
}
