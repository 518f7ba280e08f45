package aether

const (
	EventNodeSpawned    = "NODE_SPAWNED"
	EventNodeTerminated = "NODE_TERMINATED"
	EventExplosion      = "EXPLOSION"
	EventConversion     = "CONVERSION"
	EventMutations      = "MUTATIONS"
)

type Event struct {
	Kind     string  `json:"kind"`
	NodeID   string  `json:"node_id,omitempty"`
	NodeType string  `json:"node_type,omitempty"`
	Pos      [3]int  `json:"pos,omitempty"`
	Reason   string  `json:"reason,omitempty"`
	Amount   float64 `json:"amount,omitempty"`
	Count    int     `json:"count,omitempty"`
}

type TickLogEntry struct {
	Tick         uint64  `json:"tick"`
	RulesVersion uint64  `json:"rules_version"`
	NodesAlive   int     `json:"nodes_alive"`
	Events       []Event `json:"events,omitempty"`
}

type AuditEntry struct {
	Tick   uint64  `json:"tick"`
	Actor  string  `json:"actor"`
	Action string  `json:"action"` // e.g. "INJECT_CORRUPTION"
	Pos    [3]int  `json:"pos,omitempty"`
	Region string  `json:"region,omitempty"`
	Amount float64 `json:"amount,omitempty"`
	Detail string  `json:"detail,omitempty"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}
