package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ClientName      string            `json:"client_name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	// LegacySync asks for the name mapping only, without aspect records.
	LegacySync bool `json:"legacy_sync,omitempty"`
	MaxQueue   int  `json:"max_queue,omitempty"`
}

// WELCOME (server -> client). An ASPECT_SYNC binary frame follows.
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	WorldID         string `json:"world_id"`
	TickRateHz      int    `json:"tick_rate_hz"`
	Tick            uint64 `json:"tick"`
	RulesDigest     string `json:"rules_digest"`
	AspectCount     int    `json:"aspect_count"`
}

// DENSITY_QUERY (client -> server)
type DensityQueryMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Pos             [3]int `json:"pos"`
}

// DENSITY_REPORT (server -> client). Status is 1 on success, 0 when the
// position has no region.
type DensityReportMsg struct {
	Type            string             `json:"type"`
	ProtocolVersion string             `json:"protocol_version"`
	ReqID           string             `json:"req_id"`
	Status          int                `json:"status"`
	Tick            uint64             `json:"tick"`
	Pos             [3]int             `json:"pos"`
	Region          string             `json:"region,omitempty"`
	Structures      []string           `json:"structures,omitempty"`
	DeadZone        bool               `json:"dead_zone,omitempty"`
	Base            map[string]float64 `json:"base,omitempty"`
	Deltas          map[string]float64 `json:"deltas,omitempty"`
	Final           map[string]float64 `json:"final,omitempty"`
	Corruption      float64            `json:"corruption"`
	OtherTotal      float64            `json:"other_total"`
	Corrupted       bool               `json:"corrupted"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

func NewError(reqID, code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, ReqID: reqID, Code: code, Message: msg}
}
