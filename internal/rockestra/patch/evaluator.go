package patch

import (
	"github.com/rockestra/rockestra/internal/rockestra/gate"
)

// Layer names used in overlays_applied entries.
const (
	LayerDefault    = "default"
	LayerBase       = "base"
	LayerExperiment = "experiment"
	LayerQoS        = "qos"
	LayerEmergency  = "emergency"
)

// OverlayRecord is one ordered entry of the overlays_applied trace.
type OverlayRecord struct {
	Layer             string
	ExperimentLayer   string
	ExperimentVariant string
}

// EffectiveModule is one stage's resolved module entry after every layer has
// been applied.
type EffectiveModule struct {
	ID              string
	Use             string
	With            []byte
	Enabled         bool
	Priority        int
	Gate            gate.Gate
	ShadowSampleBps int
	LimitKey        string
}

// StageEvaluation is one stage's resolved fanoutMax and ordered module list.
type StageEvaluation struct {
	FanoutMax *int
	Modules   []EffectiveModule
}

// Evaluation is the PatchEvaluator's output for one (flow, request) pair.
type Evaluation struct {
	Params             map[string]any
	ParamsSourceByPath map[string]string
	ParamsHash         uint64
	Stages             map[string]StageEvaluation
	OverlaysApplied    []OverlayRecord
}

// RequestOptions carries the per-request inputs that select which
// experiment/qos overlays apply.
type RequestOptions struct {
	Variants          map[string]string
	UserID            *string
	RequestAttributes map[string]any
}

// Evaluate resolves flow's patch through the default < base < experiment <
// qos < emergency overlay chain. defaultParams is the flow's
// compile-time default params object, or nil if it registered none.
func Evaluate(flow FlowPatch, defaultParams map[string]any, opts RequestOptions, qosTier string) (*Evaluation, error) {
	eval := &Evaluation{
		Params:             map[string]any{},
		ParamsSourceByPath: map[string]string{},
		Stages:             map[string]StageEvaluation{},
	}

	if defaultParams != nil {
		eval.Params = mergeParams(eval.Params, defaultParams, LayerDefault, "", eval.ParamsSourceByPath)
		eval.OverlaysApplied = append(eval.OverlaysApplied, OverlayRecord{Layer: LayerDefault})
	}

	if err := applyLayer(eval, flow.Params, flow.Stages, LayerBase, "", ""); err != nil {
		return nil, err
	}
	eval.OverlaysApplied = append(eval.OverlaysApplied, OverlayRecord{Layer: LayerBase})

	for _, exp := range flow.Experiments {
		variant, ok := opts.Variants[exp.Layer]
		if !ok || variant != exp.Variant {
			continue
		}
		if err := applyLayer(eval, exp.Patch.Params, exp.Patch.Stages, LayerExperiment, exp.Layer, exp.Variant); err != nil {
			return nil, err
		}
		eval.OverlaysApplied = append(eval.OverlaysApplied, OverlayRecord{
			Layer:             LayerExperiment,
			ExperimentLayer:   exp.Layer,
			ExperimentVariant: exp.Variant,
		})
	}

	if qosTier != "Full" && flow.QoS != nil {
		if tier, ok := flow.QoS.Tiers[qosTier]; ok {
			if err := applyLayer(eval, tier.Patch.Params, tier.Patch.Stages, LayerQoS, "", ""); err != nil {
				return nil, err
			}
			eval.OverlaysApplied = append(eval.OverlaysApplied, OverlayRecord{Layer: LayerQoS})
		}
	}

	if flow.Emergency != nil {
		if err := applyLayer(eval, flow.Emergency.Patch.Params, flow.Emergency.Patch.Stages, LayerEmergency, "", ""); err != nil {
			return nil, err
		}
		eval.OverlaysApplied = append(eval.OverlaysApplied, OverlayRecord{Layer: LayerEmergency})
	}

	eval.ParamsHash = paramsHash(eval.Params)
	return eval, nil
}

func applyLayer(eval *Evaluation, params map[string]any, stages map[string]StagePatch, layer, expLayer, expVariant string) error {
	if params != nil {
		eval.Params = mergeParams(eval.Params, params, layer, "", eval.ParamsSourceByPath)
	}
	for stageName, sp := range stages {
		se := eval.Stages[stageName]
		if sp.FanoutMax != nil {
			v := *sp.FanoutMax
			se.FanoutMax = &v
		}
		for _, mp := range sp.Modules {
			if err := applyModulePatch(&se, mp); err != nil {
				return err
			}
		}
		eval.Stages[stageName] = se
	}
	_ = expLayer
	_ = expVariant
	return nil
}

func applyModulePatch(se *StageEvaluation, mp ModulePatch) error {
	idx := -1
	for i, m := range se.Modules {
		if m.ID == mp.ID {
			idx = i
			break
		}
	}

	var g gate.Gate
	var gateSet bool
	if len(mp.Gate) > 0 {
		decoded, err := decodeGate(mp.Gate)
		if err != nil {
			return err
		}
		g = decoded
		gateSet = true
	}

	if idx == -1 {
		m := EffectiveModule{ID: mp.ID, Enabled: true}
		if mp.Use != nil {
			m.Use = *mp.Use
		}
		if mp.With != nil {
			m.With = []byte(mp.With)
		}
		if mp.Enabled != nil {
			m.Enabled = *mp.Enabled
		}
		if mp.Priority != nil {
			m.Priority = *mp.Priority
		}
		if gateSet {
			m.Gate = g
		}
		if mp.Shadow != nil && mp.Shadow.Sample != nil {
			m.ShadowSampleBps = sampleToBps(*mp.Shadow.Sample)
		}
		if mp.LimitKey != nil {
			m.LimitKey = *mp.LimitKey
		}
		se.Modules = append(se.Modules, m)
		return nil
	}

	m := se.Modules[idx]
	if mp.Use != nil {
		m.Use = *mp.Use
	}
	if mp.With != nil {
		m.With = []byte(mp.With)
	}
	if mp.Enabled != nil {
		m.Enabled = *mp.Enabled
	}
	if mp.Priority != nil {
		m.Priority = *mp.Priority
	}
	if gateSet {
		m.Gate = g
	}
	if mp.Shadow != nil && mp.Shadow.Sample != nil {
		m.ShadowSampleBps = sampleToBps(*mp.Shadow.Sample)
	}
	if mp.LimitKey != nil {
		m.LimitKey = *mp.LimitKey
	}
	se.Modules[idx] = m
	return nil
}
