// Package config implements the ConfigSnapshot provider chain: a Static
// provider plus a PersistedLKG decorator that falls back to an
// LkgSnapshotStore when the inner provider fails or produces an invalid
// candidate.
package config

import (
	"context"

	"github.com/rockestra/rockestra/internal/rockestra/ports"
	"github.com/rockestra/rockestra/pkg/rockestraerr"
)

// StaticProvider always returns the same snapshot, unmodified.
type StaticProvider struct {
	snapshot ports.Snapshot
}

// NewStaticProvider wraps a fixed snapshot as a provider.
func NewStaticProvider(snapshot ports.Snapshot) *StaticProvider {
	return &StaticProvider{snapshot: snapshot}
}

func (p *StaticProvider) GetSnapshot(ctx context.Context) (ports.Snapshot, error) {
	return p.snapshot, nil
}

var _ ports.ConfigSnapshotProvider = (*StaticProvider)(nil)

// PersistedLKG wraps an inner provider and a LkgSnapshotStore, implementing
// a three-step fallback policy: try the inner provider, fall back to the
// last-known-good snapshot on failure or invalidity, else rethrow.
type PersistedLKG struct {
	inner     ports.ConfigSnapshotProvider
	store     ports.LkgSnapshotStore
	validator ports.Validator
	explain   func(ctx context.Context, fallback bool)
}

// NewPersistedLKG constructs the decorator. explainSink, if non-nil, is
// invoked with fallback=true whenever the store's snapshot is returned
// instead of the inner provider's, so a caller can thread
// config_lkg_fallback into the request's ExecExplain.
func NewPersistedLKG(inner ports.ConfigSnapshotProvider, store ports.LkgSnapshotStore, validator ports.Validator, explainSink func(ctx context.Context, fallback bool)) *PersistedLKG {
	return &PersistedLKG{inner: inner, store: store, validator: validator, explain: explainSink}
}

func (p *PersistedLKG) GetSnapshot(ctx context.Context) (ports.Snapshot, error) {
	candidate, innerErr := p.inner.GetSnapshot(ctx)
	if innerErr != nil {
		return p.fallbackOrRethrow(ctx, innerErr)
	}

	report := p.validator.ValidatePatchJSON(candidate.PatchJSON)
	if !report.IsValid {
		invalidErr := rockestraerr.New(
			rockestraerr.TierConfiguration,
			rockestraerr.CodeConfigSnapshotInvalid,
			"config snapshot candidate failed validation",
		)
		return p.fallbackOrRethrow(ctx, invalidErr)
	}

	// Best-effort persistence: a store failure never fails the request, and a
	// previously stored LKG is never overwritten by an invalid candidate
	// because we only ever reach this line with a validated candidate.
	p.store.TryStore(ctx, candidate)
	return candidate, nil
}

func (p *PersistedLKG) fallbackOrRethrow(ctx context.Context, originalErr error) (ports.Snapshot, error) {
	status, loaded, loadErr := p.store.TryLoad(ctx)
	if loadErr != nil || status != ports.LkgLoaded {
		p.notifyFallback(ctx, false)
		return ports.Snapshot{}, originalErr
	}

	report := p.validator.ValidatePatchJSON(loaded.PatchJSON)
	if !report.IsValid {
		p.notifyFallback(ctx, false)
		return ports.Snapshot{}, originalErr
	}

	loaded.Source = "lkg"
	loaded.LkgFallback = true
	p.notifyFallback(ctx, true)
	return loaded, nil
}

func (p *PersistedLKG) notifyFallback(ctx context.Context, fallback bool) {
	if p.explain != nil {
		p.explain(ctx, fallback)
	}
}

var _ ports.ConfigSnapshotProvider = (*PersistedLKG)(nil)

// FetchForFlowContext runs provider.GetSnapshot exactly once per
// flowctx.FlowContext, caching the result for the life of the context.
// Subsequent calls on the same context return the cached snapshot even if
// the underlying provider's state has since changed.
func FetchForFlowContext(ctx context.Context, fc snapshotCacher, provider ports.ConfigSnapshotProvider) (ports.Snapshot, error) {
	v, err := fc.CacheSnapshot(func() (any, error) {
		return provider.GetSnapshot(ctx)
	})
	if err != nil {
		return ports.Snapshot{}, err
	}
	return v.(ports.Snapshot), nil
}

// snapshotCacher is the subset of *flowctx.FlowContext this package needs;
// declared here to avoid a direct import cycle concern if flowctx ever grows
// a dependency back on config.
type snapshotCacher interface {
	CacheSnapshot(fetch func() (any, error)) (any, error)
}
