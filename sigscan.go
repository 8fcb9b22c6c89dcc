// Package sigscan provides a concurrent rule-based content scanning
// service: it compiles signature rule sets, matches binary payloads
// against them with bounded execution time, and hot-reloads rule sets
// without interrupting in-flight scans.
//
// # Basic Usage
//
// Create a scanner from a rule source and scan content:
//
//	scanner, err := sigscan.NewScanner("rules/")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer scanner.Close()
//
//	result, err := scanner.Scan(payload)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, rec := range result.Records {
//	    fmt.Printf("%s matched at offset %s\n", rec.SignatureID, rec.Matches[0].Offset)
//	}
//
// # Hot Reload
//
// Enable hot reload to pick up rule source edits without restarting:
//
//	scanner, err := sigscan.NewScanner("rules/", sigscan.WithHotReload())
//
// A scan already in flight when a reload completes keeps matching against
// the ruleset it acquired at start.
package sigscan

import (
	"fmt"
	"time"

	"github.com/scanforge/sigscan/pkg/logging"
	"github.com/scanforge/sigscan/pkg/prefilter"
	"github.com/scanforge/sigscan/pkg/rule"
	"github.com/scanforge/sigscan/pkg/ruleset"
	"github.com/scanforge/sigscan/pkg/scan"
	"github.com/scanforge/sigscan/pkg/types"
	"github.com/scanforge/sigscan/pkg/watch"
)

// Re-export commonly used types so callers can import just
// "github.com/scanforge/sigscan" without subpackages.
type (
	// Signature is a named pattern description within a ruleset.
	Signature = types.Signature

	// StringMatch is a single string hit within a matching signature.
	StringMatch = types.StringMatch

	// MatchRecord is the normalized result of one signature matching.
	MatchRecord = types.MatchRecord

	// ScanResult is the ordered sequence of match records for one payload.
	ScanResult = types.ScanResult

	// ScanState tracks a scan through its lifecycle.
	ScanState = types.ScanState
)

// Re-export scan state constants.
const (
	StateCompleted = types.StateCompleted
	StateTimedOut  = types.StateTimedOut
	StateFailed    = types.StateFailed
)

// Scanner bundles a ruleset store, scan service and optional reload
// watcher behind one handle.
type Scanner struct {
	store   *ruleset.Store
	svc     *scan.Service
	watcher *watch.Watcher
}

// scannerConfig holds construction options.
type scannerConfig struct {
	timeout    time.Duration
	compiled   bool
	hotReload  bool
	alternates map[string]ruleset.Source
}

// Option configures a Scanner.
type Option func(*scannerConfig)

// WithTimeout sets the per-scan matching timeout. Default is 60s.
func WithTimeout(d time.Duration) Option {
	return func(c *scannerConfig) { c.timeout = d }
}

// WithCompiled treats the rule source path as the engine's precompiled
// binary form instead of rule source text.
func WithCompiled() Option {
	return func(c *scannerConfig) { c.compiled = true }
}

// WithHotReload watches the rule source location and reloads the ruleset
// when it changes. Failed reloads are logged and leave the previous
// ruleset active.
func WithHotReload() Option {
	return func(c *scannerConfig) { c.hotReload = true }
}

// WithAlternate registers a named alternate ruleset compiled from path,
// selectable per scan via ScanRuleset.
func WithAlternate(name, path string) Option {
	return func(c *scannerConfig) {
		if c.alternates == nil {
			c.alternates = make(map[string]ruleset.Source)
		}
		c.alternates[name] = ruleset.Source{Name: name, Path: path}
	}
}

// NewScanner compiles the rule source at rulesPath (file or directory) and
// returns a ready Scanner. Compilation failure here is fatal: with no
// prior ruleset to fall back to, no Scanner is created.
func NewScanner(rulesPath string, opts ...Option) (*Scanner, error) {
	cfg := applyOptions(opts)
	src := ruleset.Source{Path: rulesPath, Compiled: cfg.compiled}
	return build(src, nil, cfg)
}

// NewScannerFromManifest builds a Scanner from a ruleset manifest: the
// manifest's default source becomes the current ruleset, its other entries
// become named alternates, and inline signature keywords feed the scan
// prefilter.
func NewScannerFromManifest(manifestPath string, opts ...Option) (*Scanner, error) {
	cfg := applyOptions(opts)

	m, err := rule.Load(manifestPath)
	if err != nil {
		return nil, err
	}
	src, err := m.Default()
	if err != nil {
		return nil, err
	}
	for name, alt := range m.Alternates() {
		if cfg.alternates == nil {
			cfg.alternates = make(map[string]ruleset.Source)
		}
		cfg.alternates[name] = alt
	}

	// Keywords describe only the inline signatures, so the prefilter is
	// built solely when they are the scanned set. A manifest whose default
	// ruleset comes from a path must never have its scans gated by
	// keywords of signatures it does not contain.
	var pf *prefilter.Prefilter
	if src.Text != "" {
		if kws := m.Keywords(); len(kws) > 0 {
			pf = prefilter.New(kws, len(m.Signatures()))
		}
	}
	return build(src, pf, cfg)
}

func applyOptions(opts []Option) *scannerConfig {
	cfg := &scannerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func build(src ruleset.Source, pf *prefilter.Prefilter, cfg *scannerConfig) (*Scanner, error) {
	store, err := ruleset.NewStore(src)
	if err != nil {
		return nil, err
	}
	for name, alt := range cfg.alternates {
		if err := store.LoadNamed(name, alt); err != nil {
			return nil, fmt.Errorf("loading alternate %q: %w", name, err)
		}
	}

	var svcOpts []scan.Option
	if pf != nil {
		svcOpts = append(svcOpts, scan.WithPrefilter(pf))
	}
	svc := scan.New(store, cfg.timeout, svcOpts...)

	s := &Scanner{store: store, svc: svc}

	if cfg.hotReload && src.Path != "" {
		log := logging.Component("sigscan")
		s.watcher, err = watch.New(src.Path, func() {
			if rerr := store.Reload(); rerr != nil {
				log.Error().Err(rerr).Msg("reload failed, previous ruleset stays active")
				return
			}
			log.Info().Uint64("generation", store.Generation()).Msg("ruleset reloaded")
		})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Scan matches payload against the current ruleset.
func (s *Scanner) Scan(payload []byte) (*ScanResult, error) {
	return s.svc.Scan(payload)
}

// ScanRuleset matches payload against a named alternate ruleset.
func (s *Scanner) ScanRuleset(name string, payload []byte) (*ScanResult, error) {
	return s.svc.ScanRuleset(name, payload)
}

// Reload recompiles the rule source and swaps it in. On failure the
// previous ruleset stays active and the error is returned.
func (s *Scanner) Reload() error {
	return s.store.Reload()
}

// Generation returns the monotonic reload counter.
func (s *Scanner) Generation() uint64 {
	return s.store.Generation()
}

// Signatures returns the signatures in the current ruleset.
func (s *Scanner) Signatures() []Signature {
	return s.store.Current().Signatures()
}

// Store exposes the underlying ruleset store for advanced wiring.
func (s *Scanner) Store() *ruleset.Store {
	return s.store
}

// Service exposes the underlying scan service, e.g. for the streaming
// server.
func (s *Scanner) Service() *scan.Service {
	return s.svc
}

// Close stops the reload watcher, if any. Safe to call more than once.
func (s *Scanner) Close() error {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	return nil
}
