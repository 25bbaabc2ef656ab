package flowhost

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockestra/rockestra/internal/rockestra/blueprint"
	"github.com/rockestra/rockestra/internal/rockestra/catalog"
	"github.com/rockestra/rockestra/internal/rockestra/config"
	"github.com/rockestra/rockestra/internal/rockestra/engine"
	"github.com/rockestra/rockestra/internal/rockestra/flowctx"
	"github.com/rockestra/rockestra/internal/rockestra/outcome"
	"github.com/rockestra/rockestra/internal/rockestra/ports"
	"github.com/rockestra/rockestra/internal/rockestra/selector"
	"github.com/rockestra/rockestra/pkg/rockestraerr"
)

type echoModule struct{}

func (echoModule) Execute(mctx *ports.ModuleContext) flowctx.BoxedOutcome {
	return flowctx.Box(outcome.Ok(mctx.ModuleID))
}

func newHost(t *testing.T, patchJSON string) *Host {
	t.Helper()
	cat := catalog.New()
	require.NoError(t, cat.Register(catalog.Descriptor{TypeName: "echo", Factory: func() (ports.Module, error) { return echoModule{}, nil }}))
	eng := engine.New(cat, selector.Empty(), nil, nil, nil)

	template, err := blueprint.NewBuilder("rank").Step("a", "echo").Build()
	require.NoError(t, err)

	provider := config.NewStaticProvider(ports.Snapshot{ConfigVersion: 1, PatchJSON: patchJSON})
	host := New(eng, provider, nil, nil)
	host.Register("rank", FlowDefinition{Template: template})
	return host
}

func newFlowContext(t *testing.T) *flowctx.FlowContext {
	t.Helper()
	fc, err := flowctx.New(context.Background(), time.Now().Add(time.Minute))
	require.NoError(t, err)
	return fc
}

func TestRunExecutesRegisteredFlow(t *testing.T) {
	host := newHost(t, `{"schemaVersion":"v1","flows":{"rank":{"params":{"topK":10}}}}`)
	fc := newFlowContext(t)

	out, err := host.Run(context.Background(), "rank", fc)
	require.NoError(t, err)
	assert.Equal(t, outcome.KindOk, out.Kind)
	assert.Equal(t, "Full", fc.Explain.QosTier)
	assert.Equal(t, uint64(1), fc.Explain.ConfigVersion)
	assert.False(t, fc.Explain.ConfigLKGFallback)
}

func TestRunUnregisteredFlowFails(t *testing.T) {
	host := newHost(t, `{"schemaVersion":"v1","flows":{}}`)
	fc := newFlowContext(t)

	_, err := host.Run(context.Background(), "missing", fc)
	require.Error(t, err)
	var rerr *rockestraerr.RockestraError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, rockestraerr.CodeFlowNotRegistered, rerr.Code)
}

func TestRunMalformedPatchJSONFails(t *testing.T) {
	host := newHost(t, `not json`)
	fc := newFlowContext(t)

	_, err := host.Run(context.Background(), "rank", fc)
	require.Error(t, err)
	var rerr *rockestraerr.RockestraError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, rockestraerr.CodeConfigSnapshotInvalid, rerr.Code)
}
