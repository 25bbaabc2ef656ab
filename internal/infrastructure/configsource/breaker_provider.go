package configsource

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/rockestra/rockestra/internal/rockestra/ports"
)

// BreakerProvider wraps an inner ConfigSnapshotProvider in a
// github.com/sony/gobreaker circuit breaker: repeated inner failures open
// the circuit, and GetSnapshot fails fast (without hammering the backend)
// until the breaker's reset timeout elapses — letting a flapping backend
// degrade straight to the PersistedLKG fallback path instead of retrying on
// every request.
type BreakerProvider struct {
	inner   ports.ConfigSnapshotProvider
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerProvider wraps inner with a breaker named for its source,
// opening after 5 consecutive failures and resetting after 30s.
func NewBreakerProvider(name string, inner ports.ConfigSnapshotProvider) *BreakerProvider {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &BreakerProvider{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (p *BreakerProvider) GetSnapshot(ctx context.Context) (ports.Snapshot, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.inner.GetSnapshot(ctx)
	})
	if err != nil {
		return ports.Snapshot{}, err
	}
	return result.(ports.Snapshot), nil
}

var _ ports.ConfigSnapshotProvider = (*BreakerProvider)(nil)
