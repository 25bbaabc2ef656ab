// Package selector implements a registry of named predicates
// over the flow context, looked up by the gate evaluator's Selector gate.
package selector

import (
	"sync"

	"github.com/rockestra/rockestra/internal/rockestra/flowctx"
	"github.com/rockestra/rockestra/pkg/rockestraerr"
)

// Predicate is a named selector's boolean test over a request's flow context.
type Predicate func(ctx *flowctx.FlowContext) bool

// Registry holds named predicates. Names are case-sensitive and must be
// non-empty. Lookup failures never panic — callers (the gate evaluator) turn
// a missing selector into a GATE_FALSE decision, not an exception.
type Registry struct {
	mu         sync.RWMutex
	predicates map[string]Predicate
	readOnly   bool
}

// New constructs an empty, writable registry.
func New() *Registry {
	return &Registry{predicates: make(map[string]Predicate)}
}

// Empty returns a read-only registry with no selectors registered, matching
// the read-only `Empty` singleton.
func Empty() *Registry {
	return &Registry{predicates: make(map[string]Predicate), readOnly: true}
}

// Register adds a named predicate. Fails if name is empty, already
// registered, or the registry is read-only.
func (r *Registry) Register(name string, p Predicate) error {
	if name == "" {
		return rockestraerr.New(rockestraerr.TierDesignTime, rockestraerr.CodeMissingFlowName, "selector name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readOnly {
		return rockestraerr.New(rockestraerr.TierDesignTime, rockestraerr.CodeSelectorRegistryReadOnly, "selector registry is read-only")
	}
	if _, exists := r.predicates[name]; exists {
		return rockestraerr.New(rockestraerr.TierDesignTime, rockestraerr.CodeSelectorAlreadyExists, "selector already registered: "+name)
	}
	r.predicates[name] = p
	return nil
}

// Lookup returns the named predicate and whether it was found.
func (r *Registry) Lookup(name string) (Predicate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.predicates[name]
	return p, ok
}

// Freeze marks a previously writable registry read-only, mirroring the
// bootstrap-then-freeze discipline applied to the module catalog.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readOnly = true
}
