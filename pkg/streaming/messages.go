package streaming

import (
	"encoding/json"
	"time"
)

// Inbound message types
const (
	MessageStartStreaming = "start_streaming"
	MessageStopStreaming  = "stop_streaming"
	MessageCustom         = "custom_message"
)

// InboundMessage is a client control frame
type InboundMessage struct {
	Type string `json:"type"`

	// Interval in seconds, optional on start_streaming
	Interval float64 `json:"interval,omitempty"`

	// Data carried by custom_message frames, echoed back verbatim
	Data json.RawMessage `json:"data,omitempty"`
}

// Snapshot is one outbound sentiment sample
type Snapshot struct {
	Type      string    `json:"type"`
	CallID    string    `json:"call_id"`
	Sentiment float64   `json:"sentiment"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

// ErrorFrame reports a per-connection problem without closing the session
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// EchoFrame answers a custom_message
type EchoFrame struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func newErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: "error", Message: message}
}
