// Package ruleset compiles signature rule sets and owns the hot-reloadable
// store of active rule sets.
//
// A RuleSet is an immutable compiled collection of signatures. It is shared
// by reference: a reload installs a fresh RuleSet in the Store without
// touching rule sets that in-flight scans already hold. The engine handle
// behind a dropped RuleSet is released by the runtime once the last scan
// referencing it returns.
package ruleset

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hillu/go-yara/v4"
	"github.com/scanforge/sigscan/pkg/types"
)

// Source describes where a ruleset comes from. Exactly one of Text or Path
// must be set. Compiled selects the engine's precompiled binary form for
// Path; source text and the compiled form are distinct load paths, never
// guessed from content.
type Source struct {
	Name     string // logical identifier; defaults to Path
	Text     string // inline rule source text
	Path     string // rule source file or directory, or compiled blob when Compiled
	Compiled bool
}

func (s Source) id() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Path
}

// RuleSet is an immutable compiled collection of signatures.
type RuleSet struct {
	id         string
	compiledAt time.Time
	generation uint64
	signatures []types.Signature
	rules      *yara.Rules
}

// ID returns the source path or logical name the ruleset was built from.
func (rs *RuleSet) ID() string { return rs.id }

// CompiledAt returns the compilation timestamp.
func (rs *RuleSet) CompiledAt() time.Time { return rs.compiledAt }

// Generation returns the store generation this ruleset was installed at,
// or 0 for rule sets never installed as the current one.
func (rs *RuleSet) Generation() uint64 { return rs.generation }

// Signatures returns the signatures compiled into the ruleset, in engine
// order. The returned slice must not be modified.
func (rs *RuleSet) Signatures() []types.Signature { return rs.signatures }

// Len returns the number of signatures in the ruleset.
func (rs *RuleSet) Len() int { return len(rs.signatures) }

// Rules exposes the compiled engine handle for matching.
func (rs *RuleSet) Rules() *yara.Rules { return rs.rules }

// Save writes the engine's compiled binary form to path. A saved ruleset
// loads back via a Source with Compiled set, skipping recompilation.
func (rs *RuleSet) Save(path string) error {
	if err := rs.rules.Save(path); err != nil {
		return fmt.Errorf("saving compiled ruleset %s: %w", rs.id, err)
	}
	return nil
}

// Load builds a RuleSet from src. Text compiles inline source, Path
// compiles a rule file or every rule file in a directory, and Compiled
// loads the engine's precompiled binary form. Compilation failures are
// reported as *types.CompilationError; the caller decides any fallback.
func Load(src Source) (*RuleSet, error) {
	switch {
	case src.Text != "":
		return compileText(src.Text, src.id())
	case src.Compiled:
		return loadCompiled(src.Path, src.id())
	case src.Path != "":
		return compilePath(src.Path, src.id())
	default:
		return nil, &types.CompilationError{Source: src.id(), Err: fmt.Errorf("empty source")}
	}
}

func compileText(text, id string) (*RuleSet, error) {
	compiler, err := yara.NewCompiler()
	if err != nil {
		return nil, &types.EngineError{Err: err}
	}
	if err := compiler.AddString(text, ""); err != nil {
		return nil, &types.CompilationError{Source: id, Err: err}
	}
	return finish(compiler, id)
}

func compilePath(path, id string) (*RuleSet, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &types.CompilationError{Source: id, Err: err}
	}

	files := []string{path}
	if info.IsDir() {
		files, err = ruleFiles(path)
		if err != nil {
			return nil, &types.CompilationError{Source: id, Err: err}
		}
		if len(files) == 0 {
			return nil, &types.CompilationError{Source: id, Err: fmt.Errorf("no rule files in %s", path)}
		}
	}

	compiler, err := yara.NewCompiler()
	if err != nil {
		return nil, &types.EngineError{Err: err}
	}
	for _, rf := range files {
		f, err := os.Open(rf)
		if err != nil {
			return nil, &types.CompilationError{Source: id, Err: err}
		}
		err = compiler.AddFile(f, "")
		f.Close()
		if err != nil {
			return nil, &types.CompilationError{Source: id, Err: fmt.Errorf("%s: %w", rf, err)}
		}
	}
	return finish(compiler, id)
}

func loadCompiled(path, id string) (*RuleSet, error) {
	rules, err := yara.LoadRules(path)
	if err != nil {
		return nil, &types.CompilationError{Source: id, Err: err}
	}
	return newRuleSet(rules, id), nil
}

func finish(compiler *yara.Compiler, id string) (*RuleSet, error) {
	rules, err := compiler.GetRules()
	if err != nil {
		return nil, &types.CompilationError{Source: id, Err: err}
	}
	return newRuleSet(rules, id), nil
}

func newRuleSet(rules *yara.Rules, id string) *RuleSet {
	return &RuleSet{
		id:         id,
		compiledAt: time.Now(),
		signatures: signaturesOf(rules),
		rules:      rules,
	}
}

// ruleFiles collects rule source files under dir, recursively.
func ruleFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yar", ".yara":
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// signaturesOf recovers signature identifiers and metadata from a compiled
// ruleset. Pattern text is not recoverable from the compiled form and is
// left empty.
func signaturesOf(rules *yara.Rules) []types.Signature {
	compiled := rules.GetRules()
	sigs := make([]types.Signature, 0, len(compiled))
	for _, r := range compiled {
		sig := types.Signature{
			Identifier: r.Identifier(),
			Tags:       r.Tags(),
		}
		if metas := r.Metas(); len(metas) > 0 {
			sig.Meta = make(map[string]string, len(metas))
			for _, m := range metas {
				sig.Meta[m.Identifier] = fmt.Sprintf("%v", m.Value)
			}
		}
		sigs = append(sigs, sig)
	}
	return sigs
}
