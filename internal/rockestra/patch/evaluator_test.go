package patch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockestra/rockestra/internal/rockestra/gate"
)

func mustDoc(t *testing.T, raw string) *Document {
	t.Helper()
	doc, err := ParseDocument(raw)
	require.NoError(t, err)
	return doc
}

func TestOverlayOrderBaseThenExperimentThenQosThenEmergency(t *testing.T) {
	doc := mustDoc(t, `{
		"schemaVersion": "v1",
		"flows": {
			"rank": {
				"params": {"topK": 10},
				"experiments": [{"layer": "ranking", "variant": "treatment", "patch": {"params": {"topK": 20}}}],
				"qos": {"tiers": {"Conserve": {"patch": {"params": {"topK": 5}}}}},
				"emergency": {"reason": "incident", "operator": "oncall", "ttlMinutes": 30, "patch": {"params": {"topK": 1}}}
			}
		}
	}`)

	flow := doc.Flows["rank"]
	eval, err := Evaluate(flow, nil, RequestOptions{Variants: map[string]string{"ranking": "treatment"}}, "Conserve")
	require.NoError(t, err)

	assert.Equal(t, float64(1), eval.Params["topK"])
	assert.Equal(t, LayerEmergency, eval.ParamsSourceByPath["topK"])

	wantLayers := []string{LayerBase, LayerExperiment, LayerQoS, LayerEmergency}
	var gotLayers []string
	for _, o := range eval.OverlaysApplied {
		gotLayers = append(gotLayers, o.Layer)
	}
	assert.Equal(t, wantLayers, gotLayers)
}

func TestExperimentSkippedWhenVariantMismatch(t *testing.T) {
	doc := mustDoc(t, `{
		"schemaVersion": "v1",
		"flows": {
			"rank": {
				"params": {"topK": 10},
				"experiments": [{"layer": "ranking", "variant": "treatment", "patch": {"params": {"topK": 20}}}]
			}
		}
	}`)
	flow := doc.Flows["rank"]
	eval, err := Evaluate(flow, nil, RequestOptions{Variants: map[string]string{"ranking": "control"}}, "Full")
	require.NoError(t, err)
	assert.Equal(t, float64(10), eval.Params["topK"])
	for _, o := range eval.OverlaysApplied {
		assert.NotEqual(t, LayerExperiment, o.Layer)
	}
}

func TestQosSkippedWhenTierFull(t *testing.T) {
	doc := mustDoc(t, `{
		"schemaVersion": "v1",
		"flows": {"rank": {"params": {"topK": 10}, "qos": {"tiers": {"Conserve": {"patch": {"params": {"topK": 1}}}}}}}
	}`)
	flow := doc.Flows["rank"]
	eval, err := Evaluate(flow, nil, RequestOptions{}, "Full")
	require.NoError(t, err)
	assert.Equal(t, float64(10), eval.Params["topK"])
}

func TestModulePatchUpdatesExistingAndAppendsNew(t *testing.T) {
	doc := mustDoc(t, `{
		"schemaVersion": "v1",
		"flows": {
			"rank": {
				"stages": {
					"candidates": {
						"fanoutMax": 5,
						"modules": [
							{"id": "m1", "use": "typeA", "with": {"x": 1}, "enabled": true, "priority": 1},
							{"id": "m2", "use": "typeB", "with": {}, "enabled": true, "priority": 2}
						]
					}
				},
				"experiments": [{"layer": "x", "variant": "v", "patch": {"stages": {"candidates": {"modules": [{"id": "m1", "priority": 9}]}}}}]
			}
		}
	}`)
	flow := doc.Flows["rank"]
	eval, err := Evaluate(flow, nil, RequestOptions{Variants: map[string]string{"x": "v"}}, "Full")
	require.NoError(t, err)

	stage := eval.Stages["candidates"]
	require.Len(t, stage.Modules, 2)
	require.NotNil(t, stage.FanoutMax)
	assert.Equal(t, 5, *stage.FanoutMax)

	var m1, m2 EffectiveModule
	for _, m := range stage.Modules {
		switch m.ID {
		case "m1":
			m1 = m
		case "m2":
			m2 = m
		}
	}
	assert.Equal(t, "typeA", m1.Use)
	assert.Equal(t, 9, m1.Priority, "experiment overlay updates only the fields it carries")
	assert.Equal(t, "typeB", m2.Use)
	assert.Equal(t, 2, m2.Priority)
}

func TestShadowSampleRoundsToBasisPoints(t *testing.T) {
	doc := mustDoc(t, `{
		"schemaVersion": "v1",
		"flows": {"rank": {"stages": {"s": {"modules": [{"id": "m1", "use": "t", "with": {}, "shadow": {"sample": 0.5}}]}}}}
	}`)
	flow := doc.Flows["rank"]
	eval, err := Evaluate(flow, nil, RequestOptions{}, "Full")
	require.NoError(t, err)
	assert.Equal(t, 5000, eval.Stages["s"].Modules[0].ShadowSampleBps)
}

func TestParamsHashIndependentOfKeyOrder(t *testing.T) {
	a := mustDoc(t, `{"schemaVersion":"v1","flows":{"f":{"params":{"a":1,"b":2}}}}`)
	b := mustDoc(t, `{"schemaVersion":"v1","flows":{"f":{"params":{"b":2,"a":1}}}}`)

	ea, err := Evaluate(a.Flows["f"], nil, RequestOptions{}, "Full")
	require.NoError(t, err)
	eb, err := Evaluate(b.Flows["f"], nil, RequestOptions{}, "Full")
	require.NoError(t, err)
	assert.Equal(t, ea.ParamsHash, eb.ParamsHash)
}

func TestResetSemanticsDropDescendantAttributionsOnOverwrite(t *testing.T) {
	flow := FlowPatch{
		Params: map[string]any{"obj": map[string]any{"a": 1, "b": 2}},
	}
	eval, err := Evaluate(flow, nil, RequestOptions{}, "Full")
	require.NoError(t, err)
	assert.Equal(t, LayerBase, eval.ParamsSourceByPath["obj.a"])

	emergency := FlowPatch{
		Emergency: &EmergencyPatch{
			Reason: "r", Operator: "o", TTLMinutes: 1,
			Patch: InnerPatch{Params: map[string]any{"obj": "scalar-now"}},
		},
	}
	eval2, err := Evaluate(emergency, nil, RequestOptions{}, "Full")
	require.NoError(t, err)
	assert.Equal(t, "scalar-now", eval2.Params["obj"])
	_, stillThere := eval2.ParamsSourceByPath["obj.a"]
	assert.False(t, stillThere, "descendant attribution must be dropped when a non-object replaces an object")
}

func TestGateDecodeRoundTrip(t *testing.T) {
	raw := json.RawMessage(`{"type":"all","children":[{"type":"rollout","percent":50,"salt":"s"},{"type":"not","child":{"type":"requestAttr","field":"country","in":["US"]}}]}`)
	g, err := decodeGate(raw)
	require.NoError(t, err)
	require.NotNil(t, g)
	all, ok := g.(*gate.All)
	require.True(t, ok)
	require.Len(t, all.Children, 2)

	rollout, ok := all.Children[0].(*gate.Rollout)
	require.True(t, ok)
	assert.Equal(t, 50, rollout.Percent)

	not, ok := all.Children[1].(*gate.Not)
	require.True(t, ok)
	attr, ok := not.Child.(*gate.RequestAttr)
	require.True(t, ok)
	assert.Equal(t, "country", attr.Field)
}

func TestModulePatchGateFieldIsDecoded(t *testing.T) {
	doc := mustDoc(t, `{
		"schemaVersion": "v1",
		"flows": {"rank": {"stages": {"s": {"modules": [
			{"id": "m1", "use": "t", "with": {}, "gate": {"type": "selector", "name": "is_premium"}}
		]}}}}
	}`)
	eval, err := Evaluate(doc.Flows["rank"], nil, RequestOptions{}, "Full")
	require.NoError(t, err)
	sel, ok := eval.Stages["s"].Modules[0].Gate.(*gate.Selector)
	require.True(t, ok)
	assert.Equal(t, "is_premium", sel.Name)
}
