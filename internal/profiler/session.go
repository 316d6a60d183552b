// Package profiler implements the sampling engine and its concurrent
// control plane: the tracked-function registry, the online statistics
// aggregator, the sampling loop, and the session state machine that ties
// them together.
package profiler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	xerrors "github.com/stackwatch/stackwatch/internal/errors"
	"github.com/stackwatch/stackwatch/internal/inspect"
	"github.com/stackwatch/stackwatch/internal/sys/proc"
)

// State is the session lifecycle state.
type State int

const (
	// StateIdle means no session has been started yet.
	StateIdle State = iota
	// StateRunning means a target is attached and the sampler is active.
	StateRunning
	// StateStopped means the session ended; statistics remain queryable
	// until the next Start.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StopReasonTargetExited is the stop reason recorded when the sampler
// detects that the target process is gone.
const StopReasonTargetExited = "target exited"

// Options configures a Session.
type Options struct {
	// SampleTimeout bounds one stack inspection.
	SampleTimeout time.Duration
	// FailureThreshold is the consecutive transient-failure count after
	// which the target is declared unavailable (default 5).
	FailureThreshold int
	// NewSource builds the stack sample source for a target pid. Defaults
	// to an LLDB-backed source; tests substitute fakes here.
	NewSource func(pid int32) inspect.Source
	// DebuggerPath is the lldb binary used by the default source.
	DebuggerPath string
	// AttachRetries is the attach attempt count for the default source.
	AttachRetries int

	Logger zerolog.Logger
}

// Result is one row of a results query.
type Result struct {
	Name     string
	Estimate Estimate
}

// Status describes the session as seen by a status query.
type Status struct {
	State       State
	ID          string
	PID         int32
	TargetAlive bool
	Interval    time.Duration
	Functions   []string
	StartedAt   time.Time
	StopReason  string
}

// Session is the profiling session state machine. Exactly one exists per
// stackwatch run; the control surface drives it while the sampling loop
// runs concurrently. All exported methods are safe for concurrent use.
type Session struct {
	opts   Options
	logger zerolog.Logger

	mu sync.Mutex
	// starting guards the validate/attach window of Start, which runs
	// without the lock held and can last seconds; a concurrent Start must
	// see ErrAlreadyRunning during it, not a state that is still Idle.
	starting   bool
	state      State
	id         string
	pid        int32
	startedAt  time.Time
	stopReason string
	registry   *Registry
	agg        *Aggregator
	// requested holds every name the operator ever asked for in the
	// current session, including names removed later. Results always
	// lists all of them.
	requested map[string]struct{}
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSession creates an idle session.
func NewSession(opts Options) *Session {
	if opts.FailureThreshold < 1 {
		opts.FailureThreshold = 5
	}
	logger := opts.Logger.With().Str("component", "session").Logger()

	if opts.NewSource == nil {
		opts.NewSource = func(pid int32) inspect.Source {
			return inspect.NewLLDB(pid, inspect.LLDBOptions{
				Path:          opts.DebuggerPath,
				SampleTimeout: opts.SampleTimeout,
				AttachRetries: opts.AttachRetries,
				Logger:        logger,
			})
		}
	}

	return &Session{
		opts:   opts,
		logger: logger,
		state:  StateIdle,
	}
}

// Start validates the request, attaches to the target, resets all session
// state, and launches the sampling loop. Returns ErrAlreadyRunning while a
// session is active; validation failures are ErrInvalidArgument and leave
// existing state untouched.
func (s *Session) Start(ctx context.Context, pid int32, names []string, interval time.Duration) error {
	s.mu.Lock()
	if s.state == StateRunning || s.starting {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.starting = true
	prevDone := s.done
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
	}()

	// A prior loop may still be winding down its final tick; never let
	// two loops write into a fresh registry concurrently.
	if prevDone != nil {
		<-prevDone
	}

	// Validate before any state change.
	if len(names) == 0 {
		return fmt.Errorf("%w: at least one function name is required", ErrInvalidArgument)
	}
	for _, name := range names {
		if name == "" {
			return fmt.Errorf("%w: empty function name", ErrInvalidArgument)
		}
	}
	if interval <= 0 {
		return fmt.Errorf("%w: sampling interval must be positive, got %s", ErrInvalidArgument, interval)
	}
	if !proc.Alive(pid) {
		return fmt.Errorf("%w: process %d not found", ErrInvalidArgument, pid)
	}

	source := s.opts.NewSource(pid)

	loopCtx, cancel := context.WithCancel(context.Background())
	if err := source.Attach(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to attach to process %d: %w", pid, err)
	}

	registry := NewRegistry(names, interval)
	agg := NewAggregator()
	requested := make(map[string]struct{}, len(names))
	for _, name := range names {
		agg.Reset(name)
		requested[name] = struct{}{}
	}

	done := make(chan struct{})

	s.mu.Lock()
	s.state = StateRunning
	s.id = uuid.NewString()
	s.pid = pid
	s.startedAt = time.Now()
	s.stopReason = ""
	s.registry = registry
	s.agg = agg
	s.requested = requested
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.logger.Info().
		Str("session_id", s.id).
		Int32("pid", pid).
		Strs("functions", registry.Members()).
		Dur("interval", interval).
		Msg("Profiling session started")

	go s.run(loopCtx, source, done)

	return nil
}

// run hosts the sampling loop for one session and performs the implicit
// Running -> Stopped transition when the loop ends on its own.
func (s *Session) run(ctx context.Context, source inspect.Source, done chan struct{}) {
	// Detach runs before done closes, so Stop keeps waiting until the
	// target is released.
	defer close(done)
	defer xerrors.DeferDetach(s.logger, source, "Failed to detach from target")

	sampler := NewSampler(source, s.registry, s.agg, s.opts.FailureThreshold, s.logger)
	err := sampler.Run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return
	}
	s.state = StateStopped
	if errors.Is(err, inspect.ErrTargetUnavailable) {
		s.stopReason = StopReasonTargetExited
		s.logger.Info().
			Str("session_id", s.id).
			Int32("pid", s.pid).
			Msg("Session stopped: target process exited")
		return
	}
	s.logger.Debug().Str("session_id", s.id).Msg("Sampling loop finished")
}

// Stop signals the sampling loop to cancel and waits for it to terminate.
// Idempotent: stopping an idle or already-stopped session is a silent
// no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		s.state = StateStopped
	}
	s.logger.Info().Str("session_id", s.id).Msg("Profiling session stopped")
}

// Add starts tracking the given names on a running session. Statistics of
// names already tracked are not reset; names re-added after removal start
// from zero.
func (s *Session) Add(names []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return nil, ErrNotRunning
	}
	for _, name := range names {
		if name == "" {
			return nil, fmt.Errorf("%w: empty function name", ErrInvalidArgument)
		}
	}

	added := s.registry.Add(names)
	for _, name := range added {
		s.agg.Reset(name)
	}
	for _, name := range names {
		s.requested[name] = struct{}{}
	}

	s.logger.Debug().Strs("added", added).Msg("Functions added to tracking")
	return s.registry.Members(), nil
}

// Remove stops tracking the given names and discards their statistics.
// Removing an untracked name is a no-op.
func (s *Session) Remove(names []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return nil, ErrNotRunning
	}

	removed := s.registry.Remove(names)
	for _, name := range removed {
		s.agg.Remove(name)
	}

	s.logger.Debug().Strs("removed", removed).Msg("Functions removed from tracking")
	return s.registry.Members(), nil
}

// SetInterval changes the sampling interval of a running session. Takes
// effect on the next tick; snapshots computed afterwards use the new
// interval.
func (s *Session) SetInterval(interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return ErrNotRunning
	}
	if interval <= 0 {
		return fmt.Errorf("%w: sampling interval must be positive, got %s", ErrInvalidArgument, interval)
	}

	s.registry.SetInterval(interval)
	s.logger.Debug().Dur("interval", interval).Msg("Sampling interval changed")
	return nil
}

// Results returns one row per name the operator ever requested in this
// session, sorted by name. Names with zero observations, including names
// removed after tracking, report no data. Legal in any state once a
// session has existed; reflects every observation recorded before the
// call began.
func (s *Session) Results() ([]Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.agg == nil {
		return nil, ErrNoSession
	}

	snap := s.agg.Snapshot(s.registry.Interval())

	names := make([]string, 0, len(s.requested))
	for name := range s.requested {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]Result, 0, len(names))
	for _, name := range names {
		results = append(results, Result{
			Name:     name,
			Estimate: snap[name], // zero Estimate when absent: no data
		})
	}
	return results, nil
}

// CurrentStatus reports the session state, target, tracked set, and
// interval. The target-alive flag is a live check, so an exited target
// shows up here even before the sampler notices.
func (s *Session) CurrentStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:      s.state,
		ID:         s.id,
		PID:        s.pid,
		StartedAt:  s.startedAt,
		StopReason: s.stopReason,
	}
	if s.registry != nil {
		st.Functions = s.registry.Members()
		st.Interval = s.registry.Interval()
	}
	if s.pid != 0 {
		st.TargetAlive = proc.Alive(s.pid)
	}
	return st
}
