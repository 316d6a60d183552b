package profiler

import "errors"

// State-machine and validation errors surfaced to the control surface.
// Operator-facing code prints these as messages; they never terminate the
// process.
var (
	// ErrAlreadyRunning is returned by Start while a session is active.
	ErrAlreadyRunning = errors.New("profiler is already running")

	// ErrNotRunning is returned by operations that require an active
	// session (add, remove, interval).
	ErrNotRunning = errors.New("profiler is not running")

	// ErrNoSession is returned by results/status queries before any
	// session has ever been started.
	ErrNoSession = errors.New("no profiling session has been started")

	// ErrInvalidArgument marks bad pids, names, or intervals. Such
	// requests are rejected before any state change.
	ErrInvalidArgument = errors.New("invalid argument")
)
