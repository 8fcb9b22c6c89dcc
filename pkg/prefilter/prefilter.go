// Package prefilter gates full engine scans with Aho-Corasick keyword
// matching. Signatures may declare literal keywords in the ruleset
// manifest; a payload containing none of them cannot match any keyworded
// signature, so when every signature is keyworded the engine scan can be
// skipped outright.
package prefilter

import (
	"github.com/cloudflare/ahocorasick"
)

// Prefilter decides whether a payload can skip the full engine scan.
type Prefilter struct {
	matcher  *ahocorasick.Matcher
	keywords []string
	ungated  int // signatures without keywords; these always require a scan
}

// New builds a prefilter from per-signature keyword lists. keywordsBySig
// maps signature identifiers to their declared keywords; totalSignatures
// is the size of the ruleset the filter gates. Signatures absent from the
// map are treated as keywordless and always scanned.
func New(keywordsBySig map[string][]string, totalSignatures int) *Prefilter {
	pf := &Prefilter{
		ungated: totalSignatures - len(keywordsBySig),
	}

	seen := make(map[string]bool)
	for _, kws := range keywordsBySig {
		if len(kws) == 0 {
			// Declared but empty keyword list gates nothing.
			pf.ungated++
			continue
		}
		for _, kw := range kws {
			if !seen[kw] {
				seen[kw] = true
				pf.keywords = append(pf.keywords, kw)
			}
		}
	}

	if len(pf.keywords) > 0 {
		pf.matcher = ahocorasick.NewStringMatcher(pf.keywords)
	}
	return pf
}

// CanSkip reports whether the payload provably matches no signature, in
// which case the full engine scan may be skipped. Conservative: any
// keywordless signature forces a scan.
func (pf *Prefilter) CanSkip(payload []byte) bool {
	if pf.ungated > 0 || pf.matcher == nil {
		return false
	}
	return len(pf.matcher.Match(payload)) == 0
}
