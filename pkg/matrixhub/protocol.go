package matrixhub

import "time"

// Frame is the wire shape of every WebSocket message exchanged with the
// hub (spec §4.5). Not every field is populated for every type.
type Frame struct {
	Type          string         `json:"type"`
	MatrixID      string         `json:"matrix_id,omitempty"`
	OnlineMatrices []string      `json:"online_matrices,omitempty"`
	Status        string         `json:"status,omitempty"`
	From          string         `json:"from,omitempty"`
	To            string         `json:"to,omitempty"`
	Content       string         `json:"content,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Timestamp     time.Time      `json:"timestamp,omitempty"`
	Code          string         `json:"code,omitempty"`
	Message       string         `json:"message,omitempty"`
}

// Frame type constants named in spec §4.5.
const (
	FrameRegistered FrameType = "registered"
	FramePing       FrameType = "ping"
	FramePong       FrameType = "pong"
	FramePresence   FrameType = "presence"
	FrameMessage    FrameType = "message"
	FrameError      FrameType = "error"
)

// FrameType is an alias of string, not a distinct type: the constants above
// and the wire field are all plain strings.
type FrameType = string

// ErrDeliveryFailed is the error code sent back to a sender whose direct
// message target isn't connected (spec §4.5).
const ErrDeliveryFailed = "DELIVERY_FAILED"

// ErrInvalidMessage is the error code sent back for malformed input over
// the WebSocket connection: unparseable JSON or an unrecognized frame
// type (spec §4.5, §9 "Validation").
const ErrInvalidMessage = "INVALID_MESSAGE"
