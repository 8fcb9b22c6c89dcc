// Package scan provides the public scanning entry point, wiring the
// ruleset store, prefilter and matcher together.
package scan

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/scanforge/sigscan/pkg/logging"
	"github.com/scanforge/sigscan/pkg/matcher"
	"github.com/scanforge/sigscan/pkg/prefilter"
	"github.com/scanforge/sigscan/pkg/ruleset"
	"github.com/scanforge/sigscan/pkg/types"
)

// Matcher executes timeout-bounded payload matching against a compiled
// ruleset. Satisfied by *matcher.Matcher.
type Matcher interface {
	Match(rs *ruleset.RuleSet, payload []byte) ([]types.MatchRecord, error)
}

// Service accepts payloads, resolves the ruleset to scan with, and returns
// normalized scan results.
//
// Scan blocks for up to the configured timeout; run it off any
// latency-sensitive goroutine. There is no external cancellation, the
// engine's timeout is the only bound.
type Service struct {
	store   *ruleset.Store
	matcher Matcher
	pre     *prefilter.Prefilter
	log     zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPrefilter installs a keyword prefilter that lets provably-clean
// payloads skip the engine scan. The prefilter must describe the current
// ruleset's signatures; scans against named alternates are never gated,
// since a skip decision is only sound for the set the keywords came from.
func WithPrefilter(pf *prefilter.Prefilter) Option {
	return func(s *Service) { s.pre = pf }
}

// WithMatcher overrides the engine-backed matcher.
func WithMatcher(m Matcher) Option {
	return func(s *Service) { s.matcher = m }
}

// WithLogger overrides the service logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// New creates a Service scanning against store with the given default
// timeout per scan (zero selects matcher.DefaultTimeout).
func New(store *ruleset.Store, timeout time.Duration, opts ...Option) *Service {
	s := &Service{
		store:   store,
		matcher: matcher.New(timeout),
		log:     logging.Component("scan"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying ruleset store, e.g. for reload wiring.
func (s *Service) Store() *ruleset.Store { return s.store }

// Scan matches payload against the current ruleset. The ruleset is
// acquired once at scan start: a reload completing mid-scan does not
// change what this scan matches against.
//
// Zero matches yield a non-nil result with an empty record list, so the
// caller knows the scan executed. Matching failures return a nil result
// and a *types.ScanError wrapping the cause; they are never retried, since
// a timeout or engine error is a property of this payload/ruleset pair.
func (s *Service) Scan(payload []byte) (*types.ScanResult, error) {
	s.log.Debug().Stringer("state", types.StatePending).Msg("scan")
	return s.run(s.store.Current(), payload, true)
}

// ScanRuleset matches payload against the named alternate ruleset. The
// prefilter never applies here: its keywords describe the current ruleset,
// not the alternate.
func (s *Service) ScanRuleset(name string, payload []byte) (*types.ScanResult, error) {
	s.log.Debug().Stringer("state", types.StatePending).Msg("scan")
	rs, err := s.store.Named(name)
	if err != nil {
		return nil, &types.ScanError{RuleSetID: name, State: types.StateFailed, Err: err}
	}
	return s.run(rs, payload, false)
}

// run drives one scan through its states:
// Pending -> RuleSetResolved -> Matching -> {Completed | TimedOut | Failed}.
// gated selects whether the prefilter may skip the engine scan.
func (s *Service) run(rs *ruleset.RuleSet, payload []byte, gated bool) (*types.ScanResult, error) {
	if rs == nil {
		// No ruleset to scan with: the scan is skipped, which is an
		// absent result, not an empty one.
		return nil, &types.ScanError{State: types.StateFailed, Err: errors.New("no ruleset loaded")}
	}

	log := s.log.With().Str("ruleset", rs.ID()).Logger()
	log.Debug().Stringer("state", types.StateRuleSetResolved).Msg("scan")

	start := time.Now()

	if gated && s.pre != nil && s.pre.CanSkip(payload) {
		log.Debug().Stringer("state", types.StateCompleted).Msg("scan skipped by prefilter")
		return &types.ScanResult{
			Records:    []types.MatchRecord{},
			State:      types.StateCompleted,
			RuleSetID:  rs.ID(),
			Generation: rs.Generation(),
			Duration:   time.Since(start),
		}, nil
	}

	log.Debug().Stringer("state", types.StateMatching).Msg("scan")
	records, err := s.matcher.Match(rs, payload)
	if err != nil {
		state := types.StateFailed
		var timeoutErr *types.TimeoutError
		if errors.As(err, &timeoutErr) {
			state = types.StateTimedOut
		}
		log.Warn().Err(err).Stringer("state", state).Msg("scan failed")
		return nil, &types.ScanError{RuleSetID: rs.ID(), State: state, Err: err}
	}

	log.Debug().Stringer("state", types.StateCompleted).
		Dur("duration", time.Since(start)).Int("records", len(records)).Msg("scan")
	return &types.ScanResult{
		Records:    records,
		State:      types.StateCompleted,
		RuleSetID:  rs.ID(),
		Generation: rs.Generation(),
		Duration:   time.Since(start),
	}, nil
}
