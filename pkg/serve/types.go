package serve

import (
	"encoding/json"
)

// Request represents an incoming NDJSON request.
type Request struct {
	Type    string          `json:"type"` // "scan" | "reload" | "status" | "close"
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ScanPayload is the payload for "scan" requests. Content carries the raw
// binary payload base64-encoded on the wire (encoding/json's []byte
// convention). RuleSet optionally names an alternate ruleset.
type ScanPayload struct {
	Content []byte `json:"content"`
	RuleSet string `json:"ruleset,omitempty"`
}

// Response represents an outgoing NDJSON response.
type Response struct {
	Success bool            `json:"success"`
	Type    string          `json:"type"` // "ready" | "scan" | "reload" | "status" | "error"
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ReadyData is the data field for "ready" responses.
type ReadyData struct {
	Version string `json:"version"`
}

// ReloadData is the data field for "reload" responses.
type ReloadData struct {
	Generation uint64 `json:"generation"`
}

// RulesetStatus describes one loaded ruleset.
type RulesetStatus struct {
	ID         string `json:"id"`
	Signatures int    `json:"signatures"`
	CompiledAt int64  `json:"compiled_at"` // unix seconds
}

// StatusData is the data field for "status" responses.
type StatusData struct {
	Generation uint64                   `json:"generation"`
	Current    RulesetStatus            `json:"current"`
	Alternates map[string]RulesetStatus `json:"alternates,omitempty"`
}
