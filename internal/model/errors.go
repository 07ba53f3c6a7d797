package model

import "fmt"

// The error taxonomy of spec.md §7. Each is a distinct type so callers can
// use errors.As to decide whether a failure is scope-degrading (continue)
// or ecosystem-fatal (abort this ecosystem, let others continue).

// UnresolvableLockfileError means C1 could parse neither the primary
// lockfile nor its fallback manifest. Fatal to this ecosystem's analysis.
type UnresolvableLockfileError struct {
	Ecosystem Ecosystem
	Dir       string
	Primary   string
	Fallback  string
	Cause     error
}

func (e *UnresolvableLockfileError) Error() string {
	return fmt.Sprintf("unresolvable lockfile for %s in %s (tried %s, %s): %v",
		e.Ecosystem, e.Dir, e.Primary, e.Fallback, e.Cause)
}

func (e *UnresolvableLockfileError) Unwrap() error { return e.Cause }

// MissingSourceError means C2 could not locate a package's source tree.
// The package degrades to an opaque sink; analysis continues.
type MissingSourceError struct {
	Package PackageId
}

func (e *MissingSourceError) Error() string {
	return fmt.Sprintf("missing source for %s", e.Package)
}

// ParseFailureError means C3 failed on one file. That file contributes
// zero symbols/edges; analysis continues within the package.
type ParseFailureError struct {
	File  string
	Cause error
}

func (e *ParseFailureError) Error() string {
	return fmt.Sprintf("parse failure in %s: %v", e.File, e.Cause)
}

func (e *ParseFailureError) Unwrap() error { return e.Cause }

// NoEntrypointsError means C7 found zero seeds. Fatal to this ecosystem's
// traversal; an empty report is emitted for it.
type NoEntrypointsError struct {
	Ecosystem Ecosystem
	Dir       string
}

func (e *NoEntrypointsError) Error() string {
	return fmt.Sprintf("no entrypoints discovered for %s analysis of %s", e.Ecosystem, e.Dir)
}

// UnresolvedReferenceError describes an ExternalRef that C6 could not
// resolve. C6 does not construct it: it emits an edge to a synthetic sink,
// keeps the reason on that SinkNode, and analysis continues.
type UnresolvedReferenceError struct {
	Binding ImportBinding
	Callee  string
	Reason  string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("unresolved reference %s.%s: %s", e.Binding.TargetModule, e.Callee, e.Reason)
}

// DepthCapError describes a traversal that exceeded the configured depth
// cap. C8 does not construct it: it sets Truncated on its report instead.
type DepthCapError struct {
	DepthCap int
}

func (e *DepthCapError) Error() string {
	return fmt.Sprintf("depth cap of %d hit during traversal", e.DepthCap)
}

// CancelledError / TimedOutError describe cooperative cancellation at a
// phase boundary. Nothing in this module constructs them, and no component
// sets ReachabilityReport.Partial.
type CancelledError struct{ Phase string }

func (e *CancelledError) Error() string { return fmt.Sprintf("cancelled during %s", e.Phase) }

type TimedOutError struct{ Phase string }

func (e *TimedOutError) Error() string { return fmt.Sprintf("timed out during %s", e.Phase) }
