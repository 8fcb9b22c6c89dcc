// Package matcher executes timeout-bounded matching of payloads against a
// compiled ruleset and normalizes the engine's raw hits into match records.
package matcher

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hillu/go-yara/v4"
	"github.com/scanforge/sigscan/pkg/ruleset"
	"github.com/scanforge/sigscan/pkg/types"
)

// DefaultTimeout bounds a single match invocation unless overridden.
const DefaultTimeout = 60 * time.Second

// Matcher runs payloads through the external matching engine.
type Matcher struct {
	timeout time.Duration
}

// New creates a Matcher with the given per-invocation timeout. A zero or
// negative timeout selects DefaultTimeout.
func New(timeout time.Duration) *Matcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Matcher{timeout: timeout}
}

// Timeout returns the configured per-invocation timeout.
func (m *Matcher) Timeout() time.Duration { return m.timeout }

// Match scans payload against rs and returns normalized match records.
//
// Matching is deterministic: identical (ruleset, payload) pairs yield
// identically-ordered output. A scan that exceeds the timeout is aborted
// by the engine and reported as *types.TimeoutError, never as partial
// results. Other engine failures surface as *types.EngineError. Zero
// matches yield an empty, non-nil slice.
func (m *Matcher) Match(rs *ruleset.RuleSet, payload []byte) ([]types.MatchRecord, error) {
	var hits yara.MatchRules
	err := rs.Rules().ScanMem(payload, 0, m.timeout, &hits)
	if err != nil {
		var engineErr yara.Error
		if errors.As(err, &engineErr) && engineErr.Code == yara.ERROR_SCAN_TIMEOUT {
			return nil, &types.TimeoutError{RuleSetID: rs.ID(), Timeout: m.timeout}
		}
		return nil, &types.EngineError{Err: err}
	}

	return normalize(hits), nil
}

// normalize shapes raw engine hits into ordered match records. Offsets are
// coerced to their uniform textual form here so heterogeneous matches
// serialize identically downstream. Rules that matched without any string
// hit produce no record: a record's matches are never empty.
func normalize(hits yara.MatchRules) []types.MatchRecord {
	records := make([]types.MatchRecord, 0, len(hits))
	for _, hit := range hits {
		if len(hit.Strings) == 0 {
			continue
		}

		rec := types.MatchRecord{
			SignatureID: hit.Rule,
			Matches:     make([]types.StringMatch, 0, len(hit.Strings)),
			Tags:        hit.Tags,
		}
		if len(hit.Metas) > 0 {
			rec.Meta = make(map[string]string, len(hit.Metas))
			for _, meta := range hit.Metas {
				rec.Meta[meta.Identifier] = metaString(meta.Value)
			}
		}
		for _, s := range hit.Strings {
			rec.Matches = append(rec.Matches, types.StringMatch{
				Identifier: s.Name,
				Offset:     types.FormatOffset(s.Offset),
				Value:      s.Data,
			})
		}
		records = append(records, rec)
	}

	// Engine callback order is already stable for a fixed input, but sort
	// by signature so the ordering contract survives engine upgrades.
	// String hits within a record keep engine (offset) order.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SignatureID < records[j].SignatureID
	})
	return records
}

// metaString flattens a rule metadata value (string, integer or boolean in
// the engine's rule language) to a string.
func metaString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
