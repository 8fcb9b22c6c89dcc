package rule

// yamlRuleset is the intermediate struct for one ruleset entry in a
// manifest file.
type yamlRuleset struct {
	Name     string `yaml:"name"`
	Path     string `yaml:"path"`
	Compiled bool   `yaml:"compiled,omitempty"`
}

// yamlSignature is the intermediate struct for an inline signature
// definition. Pattern is a literal byte sequence; it is rendered into the
// engine's rule language verbatim, with escaping handled by the renderer.
type yamlSignature struct {
	ID       string            `yaml:"id"`
	Pattern  string            `yaml:"pattern"`
	Tags     []string          `yaml:"tags,omitempty"`
	Meta     map[string]string `yaml:"meta,omitempty"`
	Keywords []string          `yaml:"keywords,omitempty"`
}

// yamlManifest represents the top-level structure of a manifest file.
type yamlManifest struct {
	Rulesets   []yamlRuleset   `yaml:"rulesets,omitempty"`
	Signatures []yamlSignature `yaml:"signatures,omitempty"`
}
