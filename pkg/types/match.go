package types

import (
	"strconv"
	"time"
)

// StringMatch is a single string hit within a matching signature.
// Offset is always a decimal string: downstream sinks index records from
// many scanners, and mixing integer and symbolic offsets in one field
// corrupts a shared schema.
type StringMatch struct {
	Identifier string `json:"identifier"` // string identifier within the rule, e.g. "$a"
	Offset     string `json:"offset"`
	Value      []byte `json:"value"`
}

// MatchRecord is the normalized result of one signature matching within a
// payload. A record is only produced when at least one string hit exists,
// so Matches is never empty.
type MatchRecord struct {
	SignatureID string            `json:"signature_id"`
	Matches     []StringMatch     `json:"matches"`
	Tags        []string          `json:"tags,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// FormatOffset renders a byte offset in the uniform textual form used by
// StringMatch.Offset.
func FormatOffset(off uint64) string {
	return strconv.FormatUint(off, 10)
}

// ScanState tracks a scan through its lifecycle. Terminal states are
// StateCompleted, StateTimedOut and StateFailed.
type ScanState int

const (
	StatePending ScanState = iota
	StateRuleSetResolved
	StateMatching
	StateCompleted
	StateTimedOut
	StateFailed
)

// String returns the string representation of ScanState.
func (s ScanState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRuleSetResolved:
		return "ruleset_resolved"
	case StateMatching:
		return "matching"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ScanResult is the ordered sequence of match records for one payload.
// Records is empty but non-nil when the scan executed and found nothing;
// an absent (nil) ScanResult means no scan was performed at all.
type ScanResult struct {
	Records    []MatchRecord `json:"records"`
	State      ScanState     `json:"-"`
	RuleSetID  string        `json:"ruleset_id,omitempty"`
	Generation uint64        `json:"generation,omitempty"`
	Duration   time.Duration `json:"-"`
}
