package types

// Signature is a named pattern description used to detect content of
// interest in a payload. Signatures are immutable once compiled into a
// ruleset.
type Signature struct {
	Identifier string            // rule identifier, e.g. "EICAR"
	Pattern    string            // pattern source text; empty when recovered from a precompiled ruleset
	Tags       []string          // classification tags
	Meta       map[string]string // string metadata attached to the rule
}
