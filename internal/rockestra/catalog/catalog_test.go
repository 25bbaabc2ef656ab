package catalog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockestra/rockestra/internal/rockestra/flowctx"
	"github.com/rockestra/rockestra/internal/rockestra/outcome"
	"github.com/rockestra/rockestra/internal/rockestra/ports"
	"github.com/rockestra/rockestra/pkg/rockestraerr"
)

type fakeModule struct{}

func (fakeModule) Execute(*ports.ModuleContext) flowctx.BoxedOutcome {
	return flowctx.Box(outcome.Ok("done"))
}

func TestRegisterRejectsDuplicateType(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(Descriptor{TypeName: "echo", Factory: func() (ports.Module, error) { return fakeModule{}, nil }}))
	err := c.Register(Descriptor{TypeName: "echo", Factory: func() (ports.Module, error) { return fakeModule{}, nil }})
	require.Error(t, err)
	var rerr *rockestraerr.RockestraError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, rockestraerr.CodeDuplicateModuleType, rerr.Code)
}

func TestResolveUnknownType(t *testing.T) {
	c := New()
	_, err := c.Resolve("missing")
	require.Error(t, err)
	var rerr *rockestraerr.RockestraError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, rockestraerr.CodeModuleTypeNotRegistered, rerr.Code)
}

func TestSingletonIsMemoized(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	c := New()
	require.NoError(t, c.Register(Descriptor{
		TypeName: "singleton",
		Lifetime: Singleton,
		Factory: func() (ports.Module, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			return fakeModule{}, nil
		},
	}))
	d, err := c.Resolve("singleton")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, release, err := d.Acquire("m1")
		require.NoError(t, err)
		release()
	}
	assert.Equal(t, 1, calls)
}

func TestTransientInvokesFactoryEveryTime(t *testing.T) {
	calls := 0
	c := New()
	require.NoError(t, c.Register(Descriptor{
		TypeName: "transient",
		Lifetime: Transient,
		Factory: func() (ports.Module, error) {
			calls++
			return fakeModule{}, nil
		},
	}))
	d, err := c.Resolve("transient")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, release, err := d.Acquire("m1")
		require.NoError(t, err)
		release()
	}
	assert.Equal(t, 3, calls)
}

func TestSingletonNotThreadSafeRejectsConcurrentAcquire(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(Descriptor{
		TypeName:     "exclusive",
		Lifetime:     Singleton,
		ThreadSafety: NotThreadSafe,
		Factory:      func() (ports.Module, error) { return fakeModule{}, nil },
	}))
	d, err := c.Resolve("exclusive")
	require.NoError(t, err)

	_, release, err := d.Acquire("first")
	require.NoError(t, err)

	_, _, err = d.Acquire("second")
	require.Error(t, err)
	var rerr *rockestraerr.RockestraError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, rockestraerr.CodeModuleConcurrencyViolation, rerr.Code)

	release()

	_, release2, err := d.Acquire("third")
	require.NoError(t, err)
	release2()
}
