package ruleset

import (
	"sync"
	"sync/atomic"

	"github.com/scanforge/sigscan/pkg/types"
)

// Store holds the currently active RuleSet plus optional named alternates.
//
// The current ruleset sits behind an atomic pointer: readers never block
// and never observe a partially-updated ruleset. Reloads are serialized
// against each other by a mutex that readers never take. Replacing the
// current ruleset is a single pointer swap inside that critical section.
type Store struct {
	mu         sync.Mutex // serializes the write path only
	source     Source
	generation atomic.Uint64
	current    atomic.Pointer[RuleSet]

	altMu      sync.RWMutex
	alternates map[string]*RuleSet
}

// NewStore compiles src and installs it as the current ruleset. Unlike
// later reloads, a failure here is fatal: there is no prior ruleset to
// fall back to, so the error is returned and no Store is created.
func NewStore(src Source) (*Store, error) {
	rs, err := Load(src)
	if err != nil {
		return nil, err
	}

	s := &Store{
		source:     src,
		alternates: make(map[string]*RuleSet),
	}
	s.generation.Store(1)
	rs.generation = 1
	s.current.Store(rs)
	return s, nil
}

// Current returns the active ruleset. The returned ruleset never mutates;
// a concurrent reload installs a replacement without invalidating it.
func (s *Store) Current() *RuleSet {
	return s.current.Load()
}

// Generation returns the monotonic reload counter. It increments only on
// successful reloads.
func (s *Store) Generation() uint64 {
	return s.generation.Load()
}

// Reload recompiles the store's source and atomically swaps it in as the
// current ruleset. On compilation failure the existing ruleset stays
// active, the generation does not advance, and the error is returned.
func (s *Store) Reload() error {
	return s.ReloadFrom(s.source)
}

// ReloadFrom behaves like Reload but compiles from src, which also becomes
// the source for subsequent Reload calls on success.
func (s *Store) ReloadFrom(src Source) error {
	// Compile outside the critical section; concurrent reloads race to
	// compile but install serially.
	rs, err := Load(src)
	if err != nil {
		return err
	}

	s.mu.Lock()
	rs.generation = s.generation.Add(1)
	s.source = src
	s.current.Store(rs)
	s.mu.Unlock()
	return nil
}

// Named returns the alternate ruleset registered under name.
func (s *Store) Named(name string) (*RuleSet, error) {
	s.altMu.RLock()
	rs, ok := s.alternates[name]
	s.altMu.RUnlock()
	if !ok {
		return nil, &types.NotFoundError{Name: name}
	}
	return rs, nil
}

// LoadNamed compiles src and registers it as an independently-owned
// alternate ruleset for one-off scans, replacing any previous alternate
// under the same name.
func (s *Store) LoadNamed(name string, src Source) error {
	if src.Name == "" {
		src.Name = name
	}
	rs, err := Load(src)
	if err != nil {
		return err
	}

	s.altMu.Lock()
	s.alternates[name] = rs
	s.altMu.Unlock()
	return nil
}

// Alternates returns the names of registered alternate rule sets.
func (s *Store) Alternates() []string {
	s.altMu.RLock()
	defer s.altMu.RUnlock()

	names := make([]string, 0, len(s.alternates))
	for name := range s.alternates {
		names = append(names, name)
	}
	return names
}
