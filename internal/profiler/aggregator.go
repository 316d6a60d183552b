package profiler

import (
	"math"
	"sync"
	"time"
)

// Estimate is the derived busy-time estimate for one tracked function.
//
// With n positive observations at sampling interval Δt, the estimate is
// n*Δt with an error margin of sqrt(n)*Δt: each positive sample is worth
// one interval of busy time, and the uncertainty grows with the square
// root of the number of periods observed as active.
type Estimate struct {
	// Positive is the number of ticks the function was found on the stack.
	Positive uint64
	// Total is the number of ticks the function was observed at all.
	Total uint64
	// Mean is the estimated busy time in seconds.
	Mean float64
	// Margin is the statistical error bound in seconds.
	Margin float64
}

// HasData reports whether the function was observed at least once.
func (e Estimate) HasData() bool {
	return e.Total > 0
}

// Aggregator turns the sampler's stream of boolean presence observations
// into per-function counters. Counters are the whole state: memory stays
// bounded no matter how long a session runs, and the sampler's hot path
// is O(1) per tick.
type Aggregator struct {
	mu       sync.Mutex
	counters map[string]*counterPair
}

// counterPair is always read and written as a unit under the Aggregator
// lock, so a snapshot can never observe positive > total.
type counterPair struct {
	positive uint64
	total    uint64
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		counters: make(map[string]*counterPair),
	}
}

// Reset zeroes the counters for one function, creating the entry if it
// does not exist. Other functions are not disturbed.
func (a *Aggregator) Reset(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters[name] = &counterPair{}
}

// Record adds one observation for a function. Observations for functions
// without an entry are dropped; this covers the window where a function is
// removed between the stack query and the record step.
// Returns whether the observation was recorded.
func (a *Aggregator) Record(name string, present bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	pair, ok := a.counters[name]
	if !ok {
		return false
	}

	pair.total++
	if present {
		pair.positive++
	}
	return true
}

// Remove deletes a function's entry; its statistics are discarded.
func (a *Aggregator) Remove(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.counters, name)
}

// Snapshot returns the current estimate for every tracked function, given
// the sampling interval. Safe to call while Record runs concurrently;
// each function's counter pair is read atomically as a unit.
func (a *Aggregator) Snapshot(interval time.Duration) map[string]Estimate {
	dt := interval.Seconds()

	a.mu.Lock()
	defer a.mu.Unlock()

	snap := make(map[string]Estimate, len(a.counters))
	for name, pair := range a.counters {
		snap[name] = Estimate{
			Positive: pair.positive,
			Total:    pair.total,
			Mean:     float64(pair.positive) * dt,
			Margin:   math.Sqrt(float64(pair.positive)) * dt,
		}
	}
	return snap
}
