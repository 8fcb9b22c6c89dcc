package types

import (
	"fmt"
	"time"
)

// CompilationError indicates malformed rule source. Fatal at startup,
// recoverable at reload (the previous ruleset stays active).
type CompilationError struct {
	Source string // source path or logical name
	Err    error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("compiling ruleset %s: %v", e.Source, e.Err)
}

func (e *CompilationError) Unwrap() error { return e.Err }

// NotFoundError indicates an unknown alternate ruleset was requested.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ruleset %q not found", e.Name)
}

// TimeoutError indicates matching exceeded its bound. It is distinct from
// EngineError so callers can tell "no matches" from "matching aborted".
type TimeoutError struct {
	RuleSetID string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("matching against ruleset %s exceeded %v", e.RuleSetID, e.Timeout)
}

// EngineError indicates an underlying matching engine failure unrelated to
// the timeout bound.
type EngineError struct {
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("matching engine: %v", e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// ScanError wraps any lower-level failure for the top-level scan caller.
// State records the terminal state the scan reached (StateTimedOut for
// timeouts, StateFailed otherwise).
type ScanError struct {
	RuleSetID string
	State     ScanState
	Err       error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan against ruleset %s: %v", e.RuleSetID, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }
