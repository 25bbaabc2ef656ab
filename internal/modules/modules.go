package modules

import (
	"reflect"

	"github.com/rockestra/rockestra/internal/rockestra/catalog"
	"github.com/rockestra/rockestra/internal/rockestra/ports"
)

// Register adds every built-in module type to cat. It is called once from
// bootstrap, before catalog.Catalog.Freeze — matching the catalog package
// doc's "concrete adapters are wired at bootstrap" contract. All four are
// registered Singleton+ThreadSafe: none holds mutable state between calls.
// Boost and Filter are registered with the fixed node-name wiring the demo
// "rank" flow in internal/bootstrap/flows.go uses (fetch -> boost -> filter);
// a deployment wiring a different blueprint shape would register its own
// Boost/Filter instances under different type names instead of reusing these.
func Register(cat *catalog.Catalog) error {
	descriptors := []catalog.Descriptor{
		{
			TypeName:     "source",
			OutputType:   reflect.TypeOf([]Candidate{}),
			Factory:      func() (ports.Module, error) { return New(), nil },
			Lifetime:     catalog.Singleton,
			ThreadSafety: catalog.ThreadSafe,
		},
		{
			TypeName:     "boost",
			OutputType:   reflect.TypeOf([]Candidate{}),
			Factory:      func() (ports.Module, error) { return NewBoost("fetch", "", 1.5), nil },
			Lifetime:     catalog.Singleton,
			ThreadSafety: catalog.ThreadSafe,
		},
		{
			TypeName:     "filter",
			OutputType:   reflect.TypeOf([]Candidate{}),
			Factory:      func() (ports.Module, error) { return NewFilter("boost", 0), nil },
			Lifetime:     catalog.Singleton,
			ThreadSafety: catalog.ThreadSafe,
		},
		{
			TypeName:     "annotate",
			ArgsType:     reflect.TypeOf(AnnotateArgs{}),
			OutputType:   reflect.TypeOf(""),
			Factory:      func() (ports.Module, error) { return NewAnnotate(), nil },
			Lifetime:     catalog.Singleton,
			ThreadSafety: catalog.ThreadSafe,
		},
	}

	for _, d := range descriptors {
		if err := cat.Register(d); err != nil {
			return err
		}
	}
	return nil
}
