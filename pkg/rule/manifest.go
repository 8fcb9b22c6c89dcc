// Package rule loads ruleset manifests: YAML files naming the default rule
// source, alternate rule sets for one-off scans, and optional inline
// signatures rendered into the engine's rule language.
package rule

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scanforge/sigscan/pkg/ruleset"
	"github.com/scanforge/sigscan/pkg/types"
)

// DefaultName is the manifest entry that becomes the store's current
// ruleset; every other entry is registered as a named alternate.
const DefaultName = "default"

// InlineName is the ruleset name under which inline signatures compile.
// It is reserved: manifest ruleset entries may not use it.
const InlineName = "manifest"

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Manifest describes a scanning configuration: where rule sources live and
// which inline signatures to compile.
type Manifest struct {
	rulesets   []yamlRuleset
	signatures []yamlSignature
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates manifest bytes.
func Parse(data []byte) (*Manifest, error) {
	var yf yamlManifest
	if err := yaml.Unmarshal(data, &yf); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	seen := make(map[string]bool)
	for _, rs := range yf.Rulesets {
		if rs.Name == "" {
			return nil, fmt.Errorf("ruleset entry missing name")
		}
		if rs.Name == InlineName {
			return nil, fmt.Errorf("ruleset name %q is reserved for inline signatures", InlineName)
		}
		if rs.Path == "" {
			return nil, fmt.Errorf("ruleset %q missing path", rs.Name)
		}
		if seen[rs.Name] {
			return nil, fmt.Errorf("duplicate ruleset %q", rs.Name)
		}
		seen[rs.Name] = true
	}

	sigSeen := make(map[string]bool)
	for _, sig := range yf.Signatures {
		if !identifierRe.MatchString(sig.ID) {
			return nil, fmt.Errorf("invalid signature identifier %q", sig.ID)
		}
		if sig.Pattern == "" {
			return nil, fmt.Errorf("signature %q missing pattern", sig.ID)
		}
		if sigSeen[sig.ID] {
			return nil, fmt.Errorf("duplicate signature %q", sig.ID)
		}
		sigSeen[sig.ID] = true
	}

	if len(yf.Rulesets) == 0 && len(yf.Signatures) == 0 {
		return nil, fmt.Errorf("manifest defines no rulesets and no signatures")
	}

	return &Manifest{rulesets: yf.Rulesets, signatures: yf.Signatures}, nil
}

// Default returns the source for the store's current ruleset: the manifest
// entry named "default" when present, otherwise the inline signatures.
func (m *Manifest) Default() (ruleset.Source, error) {
	for _, rs := range m.rulesets {
		if rs.Name == DefaultName {
			return ruleset.Source{Name: rs.Name, Path: rs.Path, Compiled: rs.Compiled}, nil
		}
	}
	if len(m.signatures) > 0 {
		return ruleset.Source{Name: InlineName, Text: m.Render()}, nil
	}
	return ruleset.Source{}, fmt.Errorf("manifest has no %q ruleset and no inline signatures", DefaultName)
}

// Alternates returns the named alternate sources, keyed by name. When a
// "default" path entry displaces the inline signatures, the rendered
// inline set is included under InlineName so declared signatures stay
// scannable rather than silently dropped.
func (m *Manifest) Alternates() map[string]ruleset.Source {
	alts := make(map[string]ruleset.Source)
	hasDefault := false
	for _, rs := range m.rulesets {
		if rs.Name == DefaultName {
			hasDefault = true
			continue
		}
		alts[rs.Name] = ruleset.Source{Name: rs.Name, Path: rs.Path, Compiled: rs.Compiled}
	}
	if hasDefault && len(m.signatures) > 0 {
		alts[InlineName] = ruleset.Source{Name: InlineName, Text: m.Render()}
	}
	return alts
}

// Keywords returns the per-signature keyword lists declared inline, for
// prefilter construction.
func (m *Manifest) Keywords() map[string][]string {
	if len(m.signatures) == 0 {
		return nil
	}
	kws := make(map[string][]string)
	for _, sig := range m.signatures {
		if len(sig.Keywords) > 0 {
			kws[sig.ID] = sig.Keywords
		}
	}
	return kws
}

// Signatures returns the inline signature definitions as model types.
func (m *Manifest) Signatures() []types.Signature {
	sigs := make([]types.Signature, 0, len(m.signatures))
	for _, ys := range m.signatures {
		sigs = append(sigs, types.Signature{
			Identifier: ys.ID,
			Pattern:    ys.Pattern,
			Tags:       ys.Tags,
			Meta:       ys.Meta,
		})
	}
	return sigs
}

// Render translates the inline signatures into engine rule source. Each
// signature becomes a single-string rule whose string is named "$a".
func (m *Manifest) Render() string {
	var b strings.Builder
	for i, sig := range m.signatures {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("rule ")
		b.WriteString(sig.ID)
		if len(sig.Tags) > 0 {
			b.WriteString(" : ")
			b.WriteString(strings.Join(sig.Tags, " "))
		}
		b.WriteString("\n{\n")
		if len(sig.Meta) > 0 {
			b.WriteString("    meta:\n")
			keys := make([]string, 0, len(sig.Meta))
			for k := range sig.Meta {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "        %s = %s\n", k, quote(sig.Meta[k]))
			}
		}
		b.WriteString("    strings:\n")
		fmt.Fprintf(&b, "        $a = %s\n", quote(sig.Pattern))
		b.WriteString("    condition:\n        $a\n}\n")
	}
	return b.String()
}

// quote renders s as a double-quoted engine string literal. Backslashes
// and quotes are escaped; bytes outside printable ASCII become \xHH.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' || c == '"':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c < 0x20 || c > 0x7e:
			fmt.Fprintf(&b, "\\x%02x", c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
