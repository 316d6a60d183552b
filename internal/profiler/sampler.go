package profiler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stackwatch/stackwatch/internal/inspect"
)

// Sampler runs the inspect-and-record loop for one session. Each tick
// takes a registry snapshot, queries the stack source once for the whole
// set, feeds the aggregator, and sleeps until the next tick.
type Sampler struct {
	source   inspect.Source
	registry *Registry
	agg      *Aggregator

	// failureThreshold is the number of consecutive transient sample
	// failures after which the target is declared unavailable.
	failureThreshold int
	logger           zerolog.Logger
}

// NewSampler creates a sampler. failureThreshold must be at least 1.
func NewSampler(source inspect.Source, registry *Registry, agg *Aggregator, failureThreshold int, logger zerolog.Logger) *Sampler {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	return &Sampler{
		source:           source,
		registry:         registry,
		agg:              agg,
		failureThreshold: failureThreshold,
		logger:           logger.With().Str("component", "sampler").Logger(),
	}
}

// Run executes the sampling loop until the context is canceled or the
// target becomes unavailable. Returns ctx.Err() on cancellation and an
// error wrapping inspect.ErrTargetUnavailable when the target is gone.
//
// Cancellation is checked both before the blocking stack query and
// immediately after it returns, so stop latency is bounded by one
// sample's duration.
func (s *Sampler) Run(ctx context.Context) error {
	failures := 0

	for {
		names, interval := s.registry.Snapshot()

		// Nothing tracked: idle until the next tick.
		if len(names) == 0 {
			if err := sleep(ctx, interval); err != nil {
				return err
			}
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		present, err := s.source.Sample(ctx, names)

		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		switch {
		case err == nil:
			failures = 0
			s.record(names, present)

		case errors.Is(err, inspect.ErrTargetUnavailable):
			s.logger.Info().Err(err).Msg("Target process is gone, stopping sampler")
			return err

		default:
			// Transient failure: the tick is skipped entirely, counting
			// neither presence nor absence.
			failures++
			s.logger.Warn().
				Err(err).
				Int("consecutive_failures", failures).
				Msg("Stack sample failed, skipping tick")

			if failures >= s.failureThreshold {
				return fmt.Errorf("%d consecutive sample failures: %w",
					failures, inspect.ErrTargetUnavailable)
			}
		}

		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
}

// record writes one observation per name from the tick's snapshot. Names
// removed while the sample was in flight are dropped silently rather than
// misattributed; the aggregator has no entry for them anymore.
func (s *Sampler) record(names []string, present map[string]struct{}) {
	for _, name := range names {
		_, found := present[name]
		s.agg.Record(name, found)
	}
}

// sleep waits for the inter-tick interval, respecting cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
