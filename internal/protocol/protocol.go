package protocol

import "encoding/json"

const Version = "1.0"

// Message types. ASPECT_SYNC travels as a binary frame; the rest are JSON.
const (
	TypeHello         = "HELLO"
	TypeWelcome       = "WELCOME"
	TypeAspectSync    = "ASPECT_SYNC"
	TypeDensityQuery  = "DENSITY_QUERY"
	TypeDensityReport = "DENSITY_REPORT"
	TypeError         = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
