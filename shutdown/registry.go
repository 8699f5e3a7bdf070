package shutdown

import (
	"context"
	"sort"
	"sync"
)

// Func is a cleanup step executed during shutdown. The context carries the
// remaining shutdown deadline.
type Func func(ctx context.Context) error

type registryEntry struct {
	name     string
	fn       Func
	priority int // lower runs first
}

// Registry holds named cleanup functions and runs them in priority order.
// Lower priorities run first: flush-style cleanup (history writes) goes
// before connection teardown, which goes before the final logger sync.
type Registry struct {
	mu      sync.Mutex
	entries []registryEntry
	closed  bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a cleanup function. Registration after Shutdown is a no-op.
func (r *Registry) Register(name string, priority int, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.entries = append(r.entries, registryEntry{name: name, fn: fn, priority: priority})
}

// Shutdown runs every registered function in priority order, even when
// earlier ones fail, and returns the collected errors. The registry is
// closed afterwards; calling Shutdown again returns nil.
func (r *Registry) Shutdown(ctx context.Context) []error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sorted := make([]registryEntry, len(r.entries))
	copy(sorted, r.entries)
	r.mu.Unlock()

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].priority < sorted[j].priority
	})

	var errs []error
	for _, entry := range sorted {
		if err := entry.fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Names returns the registered names in execution order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := make([]registryEntry, len(r.entries))
	copy(sorted, r.entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].priority < sorted[j].priority
	})

	names := make([]string, len(sorted))
	for i, entry := range sorted {
		names[i] = entry.name
	}
	return names
}

// Count returns the number of registered functions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
