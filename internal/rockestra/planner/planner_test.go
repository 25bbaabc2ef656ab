package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockestra/rockestra/internal/rockestra/blueprint"
	"github.com/rockestra/rockestra/internal/rockestra/flowctx"
	"github.com/rockestra/rockestra/internal/rockestra/gate"
	"github.com/rockestra/rockestra/internal/rockestra/patch"
	"github.com/rockestra/rockestra/internal/rockestra/selector"
)

func newFlowContext(t *testing.T) *flowctx.FlowContext {
	t.Helper()
	fc, err := flowctx.New(context.Background(), time.Now().Add(time.Minute))
	require.NoError(t, err)
	fc.Explain = flowctx.NewExecExplain(0)
	return fc
}

func mod(id string, priority int) patch.EffectiveModule {
	return patch.EffectiveModule{ID: id, Use: "t", Enabled: true, Priority: priority}
}

func TestDynamicModulesForbiddenSkipsEverything(t *testing.T) {
	fc := newFlowContext(t)
	contract := blueprint.DefaultStageContract()
	result := Plan("f", "s", []patch.EffectiveModule{mod("m1", 0)}, 10, contract, fc, selector.Empty(), nil, nil)
	assert.Empty(t, result.Primary)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, ReasonDynamicModulesForbidden, result.Skipped[0].ReasonCode)
}

func TestGateSelectorSkip(t *testing.T) {
	fc := newFlowContext(t)
	contract := blueprint.DefaultStageContract()
	contract.AllowDynamicModules = true

	reg := selector.New()
	require.NoError(t, reg.Register("is_eligible", func(*flowctx.FlowContext) bool { return false }))

	m := mod("m1", 0)
	m.Gate = &gate.Selector{Name: "is_eligible"}
	result := Plan("f", "s", []patch.EffectiveModule{m}, 10, contract, fc, reg, nil, nil)

	assert.Empty(t, result.Primary)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, ReasonGateFalse, result.Skipped[0].ReasonCode)

	decisions := fc.Explain.StageModules["s"]
	require.Len(t, decisions, 1)
	assert.Equal(t, "is_eligible", decisions[0].SelectorName)
	assert.False(t, decisions[0].Allowed)
}

func TestDisabledModuleSkipped(t *testing.T) {
	fc := newFlowContext(t)
	contract := blueprint.DefaultStageContract()
	contract.AllowDynamicModules = true
	m := mod("m1", 0)
	m.Enabled = false
	result := Plan("f", "s", []patch.EffectiveModule{m}, 10, contract, fc, selector.Empty(), nil, nil)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, ReasonDisabled, result.Skipped[0].ReasonCode)
}

func TestFanoutPriorityTrim(t *testing.T) {
	fc := newFlowContext(t)
	contract := blueprint.DefaultStageContract()
	contract.AllowDynamicModules = true

	modules := []patch.EffectiveModule{
		mod("low", 1),
		mod("high", 10),
		mod("mid", 5),
	}
	result := Plan("f", "s", modules, 2, contract, fc, selector.Empty(), nil, nil)

	require.Len(t, result.Primary, 2)
	assert.Equal(t, "high", result.Primary[0].ID)
	assert.Equal(t, "mid", result.Primary[1].ID)

	var trimmed []string
	for _, s := range result.Skipped {
		if s.ReasonCode == ReasonFanoutTrim {
			trimmed = append(trimmed, s.ModuleID)
		}
	}
	assert.Equal(t, []string{"low"}, trimmed)
}

func TestModuleTypeAllowlist(t *testing.T) {
	fc := newFlowContext(t)
	contract := blueprint.DefaultStageContract()
	contract.AllowDynamicModules = true
	contract.AllowedModuleTypes = map[string]struct{}{"good": {}}

	modules := []patch.EffectiveModule{
		{ID: "m1", Use: "good", Enabled: true},
		{ID: "m2", Use: "bad", Enabled: true},
	}
	result := Plan("f", "s", modules, 10, contract, fc, selector.Empty(), nil, nil)
	require.Len(t, result.Primary, 1)
	assert.Equal(t, "m1", result.Primary[0].ID)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, ReasonModuleTypeForbidden, result.Skipped[0].ReasonCode)
}

func TestShadowSamplingAlwaysKeepsFullBps(t *testing.T) {
	fc := newFlowContext(t)
	contract := blueprint.DefaultStageContract()
	contract.AllowDynamicModules = true
	contract.AllowShadow = true

	m := mod("shadow1", 0)
	m.ShadowSampleBps = 10000
	result := Plan("f", "s", []patch.EffectiveModule{m}, 10, contract, fc, selector.Empty(), nil, nil)
	require.Len(t, result.Shadow, 1)
	assert.Empty(t, result.Skipped)
}

func TestShadowZeroBpsNeverSampled(t *testing.T) {
	fc := newFlowContext(t)
	contract := blueprint.DefaultStageContract()
	contract.AllowDynamicModules = true
	contract.AllowShadow = true
	contract.MaxShadowSampleBps = 0

	m := mod("shadow1", 0)
	m.ShadowSampleBps = 5000 // clamped to the contract's 0 bps
	result := Plan("f", "s", []patch.EffectiveModule{m}, 10, contract, fc, selector.Empty(), nil, nil)
	assert.Empty(t, result.Shadow)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, ReasonShadowNotSampled, result.Skipped[0].ReasonCode)
}

func TestShadowForbiddenByContract(t *testing.T) {
	fc := newFlowContext(t)
	contract := blueprint.DefaultStageContract()
	contract.AllowDynamicModules = true
	contract.AllowShadow = false

	m := mod("shadow1", 0)
	m.ShadowSampleBps = 5000
	result := Plan("f", "s", []patch.EffectiveModule{m}, 10, contract, fc, selector.Empty(), nil, nil)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, ReasonShadowForbidden, result.Skipped[0].ReasonCode)
}

func TestHardModuleCapTrimsLowestPriorityFirst(t *testing.T) {
	fc := newFlowContext(t)
	contract := blueprint.DefaultStageContract()
	contract.AllowDynamicModules = true
	contract.MaxModulesHard = 2

	modules := []patch.EffectiveModule{mod("a", 1), mod("b", 2), mod("c", 3)}
	result := Plan("f", "s", modules, 10, contract, fc, selector.Empty(), nil, nil)
	require.Len(t, result.Primary, 2)

	var capped []string
	for _, s := range result.Skipped {
		if s.ReasonCode == ReasonMaxModulesHardExceeded {
			capped = append(capped, s.ModuleID)
		}
	}
	assert.Equal(t, []string{"a"}, capped)
}

func TestSampleDrawIsDeterministic(t *testing.T) {
	a := sampleDraw("flow", "mod", "user")
	b := sampleDraw("flow", "mod", "user")
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a, 0)
	assert.Less(t, a, 10000)
}
