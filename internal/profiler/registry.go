package profiler

import (
	"sort"
	"sync"
	"time"
)

// Registry is the live set of function names being profiled plus the
// sampling interval. The control surface mutates membership while the
// sampling loop reads it; every read is a copy taken under a short lock,
// never a live view, so a tick always sees a consistent set and the slow
// stack inspection happens with no lock held.
type Registry struct {
	mu       sync.RWMutex
	members  map[string]struct{}
	interval time.Duration
}

// NewRegistry creates a registry with an initial member set and interval.
func NewRegistry(names []string, interval time.Duration) *Registry {
	members := make(map[string]struct{}, len(names))
	for _, name := range names {
		members[name] = struct{}{}
	}
	return &Registry{
		members:  members,
		interval: interval,
	}
}

// Add inserts names into the tracked set and returns the names that were
// not already present. Adding a tracked name is a membership no-op.
func (r *Registry) Add(names []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var added []string
	for _, name := range names {
		if _, ok := r.members[name]; ok {
			continue
		}
		r.members[name] = struct{}{}
		added = append(added, name)
	}
	return added
}

// Remove deletes names from the tracked set and returns the names that
// were actually tracked. Removing an untracked name is a no-op.
func (r *Registry) Remove(names []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for _, name := range names {
		if _, ok := r.members[name]; !ok {
			continue
		}
		delete(r.members, name)
		removed = append(removed, name)
	}
	return removed
}

// Members returns a sorted copy of the tracked set.
func (r *Registry) Members() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.membersLocked()
}

// Interval returns the current sampling interval.
func (r *Registry) Interval() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.interval
}

// SetInterval changes the sampling interval. Takes effect on the next tick.
func (r *Registry) SetInterval(interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interval = interval
}

// Snapshot returns the member set and interval as one consistent read.
// The sampling loop uses this at the top of every tick.
func (r *Registry) Snapshot() ([]string, time.Duration) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.membersLocked(), r.interval
}

func (r *Registry) membersLocked() []string {
	names := make([]string, 0, len(r.members))
	for name := range r.members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
