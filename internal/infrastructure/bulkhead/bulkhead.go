// Package bulkhead implements planner.BulkheadAdmitter with a per-limit-key
// weighted semaphore, giving the stage fan-out planner's admission hook a
// real, non-blocking try-acquire backend.
package bulkhead

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// LimiterRegistry lazily creates one semaphore.Weighted per limit key,
// sized the first time that key is seen with a given maxInFlight. A key's
// capacity is fixed at first use for the life of the registry — per-request
// limits.moduleConcurrency.maxInFlight values for a key are expected to be
// stable across requests in one process.
type LimiterRegistry struct {
	mu       sync.Mutex
	limiters map[string]*semaphore.Weighted
}

// NewLimiterRegistry constructs an empty registry.
func NewLimiterRegistry() *LimiterRegistry {
	return &LimiterRegistry{limiters: make(map[string]*semaphore.Weighted)}
}

// TryAcquire attempts a non-blocking admission for limitKey. ok is false
// when the key is already at maxInFlight; release must be called exactly
// once when the caller is done, including on failure/cancellation.
func (r *LimiterRegistry) TryAcquire(limitKey string, maxInFlight uint32) (release func(), ok bool) {
	if limitKey == "" || maxInFlight == 0 {
		return func() {}, true
	}
	sem := r.limiterFor(limitKey, maxInFlight)
	if !sem.TryAcquire(1) {
		return nil, false
	}
	return func() { sem.Release(1) }, true
}

func (r *LimiterRegistry) limiterFor(limitKey string, maxInFlight uint32) *semaphore.Weighted {
	r.mu.Lock()
	defer r.mu.Unlock()
	sem, ok := r.limiters[limitKey]
	if !ok {
		sem = semaphore.NewWeighted(int64(maxInFlight))
		r.limiters[limitKey] = sem
	}
	return sem
}
