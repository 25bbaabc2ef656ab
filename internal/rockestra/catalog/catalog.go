// Package catalog implements the module registry: a map from
// module-type-name to factory/lifetime/thread-safety, with lazy singleton
// memoization and a single-permit concurrency gate for Singleton+NotThreadSafe
// descriptors.
package catalog

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/rockestra/rockestra/internal/rockestra/ports"
	"github.com/rockestra/rockestra/pkg/rockestraerr"
)

// Lifetime controls how often a module's factory is invoked.
type Lifetime string

const (
	Transient Lifetime = "Transient"
	Singleton Lifetime = "Singleton"
)

// ThreadSafety is the descriptor's declared concurrency contract.
type ThreadSafety string

const (
	ThreadSafe    ThreadSafety = "ThreadSafe"
	NotThreadSafe ThreadSafety = "NotThreadSafe"
)

// Factory constructs a Module instance.
type Factory func() (ports.Module, error)

// ArgsValidator validates a module's deserialized args before Execute runs.
type ArgsValidator func(args any) error

// Descriptor is the catalog's record for one registered module type.
type Descriptor struct {
	TypeName       string
	ArgsType       reflect.Type
	OutputType     reflect.Type
	Factory        Factory
	Lifetime       Lifetime
	ThreadSafety   ThreadSafety
	ArgsValidator  ArgsValidator
	ConcurrencyKey string

	once     sync.Once
	instance ports.Module
	instErr  error
	permit   int32 // 0 = free, 1 = held; only meaningful for Singleton+NotThreadSafe
}

// Catalog is the process-owned, bootstrap-populated module registry. It is
// read-only once request serving begins; Register calls after that point
// are undefined behavior, so Catalog exposes no locking around Register
// beyond what is needed to make bootstrap-time registration itself safe.
type Catalog struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
	readOnly    atomic.Bool
}

// New constructs an empty catalog.
func New() *Catalog {
	return &Catalog{descriptors: make(map[string]*Descriptor)}
}

// Register adds a module type. Fails with DUPLICATE_MODULE_TYPE if the type
// name is already registered.
func (c *Catalog) Register(d Descriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.descriptors[d.TypeName]; exists {
		return rockestraerr.New(
			rockestraerr.TierDesignTime,
			rockestraerr.CodeDuplicateModuleType,
			"module type already registered: "+d.TypeName,
		)
	}
	cp := d
	c.descriptors[d.TypeName] = &cp
	return nil
}

// Resolve returns the descriptor for typeName, or MODULE_TYPE_NOT_REGISTERED.
func (c *Catalog) Resolve(typeName string) (*Descriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.descriptors[typeName]
	if !ok {
		return nil, rockestraerr.New(
			rockestraerr.TierRequest,
			rockestraerr.CodeModuleTypeNotRegistered,
			"module type not registered: "+typeName,
		)
	}
	return d, nil
}

// Freeze marks the catalog read-only, matching the IsReadOnly flag
// convention used by registries constructed at bootstrap.
func (c *Catalog) Freeze() { c.readOnly.Store(true) }

// IsReadOnly reports whether Freeze has been called.
func (c *Catalog) IsReadOnly() bool { return c.readOnly.Load() }

// Release is returned by Acquire and must be called exactly once when the
// module invocation completes, including on failure or cancellation.
type Release func()

var noopRelease Release = func() {}

// Acquire obtains a module instance for d: lazily memoized for Singleton,
// freshly constructed for Transient. For Singleton+NotThreadSafe it also
// claims the single-permit gate; if the permit is already held, Acquire
// fails the whole request with MODULE_CONCURRENCY_VIOLATION rather than
// waiting for the permit to free up.
func (d *Descriptor) Acquire(moduleID string) (ports.Module, Release, error) {
	switch d.Lifetime {
	case Singleton:
		d.once.Do(func() {
			d.instance, d.instErr = d.Factory()
		})
		if d.instErr != nil {
			return nil, nil, d.instErr
		}
		if d.ThreadSafety == NotThreadSafe {
			if !atomic.CompareAndSwapInt32(&d.permit, 0, 1) {
				return nil, nil, rockestraerr.New(
					rockestraerr.TierContractViolation,
					rockestraerr.CodeModuleConcurrencyViolation,
					"singleton module entered concurrently",
				).WithContext(map[string]interface{}{
					"module_id":   moduleID,
					"module_type": d.TypeName,
				})
			}
			release := func() { atomic.StoreInt32(&d.permit, 0) }
			return d.instance, release, nil
		}
		return d.instance, noopRelease, nil
	default: // Transient
		m, err := d.Factory()
		if err != nil {
			return nil, nil, err
		}
		return m, noopRelease, nil
	}
}
