// Package inspect captures call stacks of a foreign Python process.
//
// The capture is driven through an external debugger (LLDB with the py-bt
// extension) held in a persistent interactive subprocess. One inspection is
// slow (tens to hundreds of milliseconds); callers must treat every Sample
// call as blocking and never assume a particular latency.
package inspect

import (
	"context"
	"errors"
)

// Sentinel errors reported by a Source.
var (
	// ErrTargetUnavailable means the target process no longer exists.
	// The sampling loop treats this as terminal for the session.
	ErrTargetUnavailable = errors.New("target process unavailable")

	// ErrSampleTimeout means a single inspection exceeded its deadline.
	// Transient: the tick is skipped, sampling continues.
	ErrSampleTimeout = errors.New("stack sample timed out")

	// ErrSample covers other transient inspection failures.
	ErrSample = errors.New("stack sample failed")
)

// Source answers "which of these named functions currently appear on the
// call stack of the target process?".
//
// Implementations must tolerate being called repeatedly at the sampling
// interval, but are never called concurrently for the same target.
type Source interface {
	// Attach prepares the source for sampling (e.g. spawns the debugger
	// and attaches it to the target pid).
	Attach(ctx context.Context) error

	// Sample inspects the target's current call stack and returns the
	// subset of names found on it.
	Sample(ctx context.Context, names []string) (map[string]struct{}, error)

	// Detach releases the target and tears down debugger resources.
	Detach() error
}
