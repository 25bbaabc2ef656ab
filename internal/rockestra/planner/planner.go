// Package planner implements the stage fan-out planner: a nine-step
// pipeline that turns a stage's effective module list into ordered primary
// and shadow execution sets plus a full skipped-module trace.
package planner

import (
	"hash/fnv"
	"sort"

	"github.com/rockestra/rockestra/internal/rockestra/blueprint"
	"github.com/rockestra/rockestra/internal/rockestra/flowctx"
	"github.com/rockestra/rockestra/internal/rockestra/patch"
	"github.com/rockestra/rockestra/internal/rockestra/selector"
)

// Skip reason codes reported in a stage's skipped-module trace.
const (
	ReasonDynamicModulesForbidden = "STAGE_CONTRACT_DYNAMIC_MODULES_FORBIDDEN"
	ReasonModuleTypeForbidden     = "STAGE_CONTRACT_MODULE_TYPE_FORBIDDEN"
	ReasonDisabled                = "DISABLED"
	ReasonGateFalse               = "GATE_FALSE"
	ReasonShadowForbidden         = "STAGE_CONTRACT_SHADOW_FORBIDDEN"
	ReasonShadowNotSampled        = "SHADOW_NOT_SAMPLED"
	ReasonMaxModulesHardExceeded  = "STAGE_CONTRACT_MAX_MODULES_HARD_EXCEEDED"
	ReasonMaxShadowModulesHardExceeded = "STAGE_CONTRACT_MAX_SHADOW_MODULES_HARD_EXCEEDED"
	ReasonFanoutTrim              = "FANOUT_TRIM"
	ReasonBulkheadRejected        = "BULKHEAD_REJECTED"
)

// BulkheadAdmitter is the execution-time concurrency limiter consulted in
// step 9. Admission is a non-blocking try-acquire; Release must be called
// exactly once when the module invocation completes, including on
// failure/cancel.
type BulkheadAdmitter interface {
	TryAcquire(limitKey string, maxInFlight uint32) (release func(), ok bool)
}

// Candidate is one effective module entry plus its stage-declared position,
// used to preserve input order for the priority/input-order tie-break.
type Candidate struct {
	Module    patch.EffectiveModule
	InputIndex int
}

// Result is the planner's output for one stage.
type Result struct {
	Primary []patch.EffectiveModule
	Shadow  []patch.EffectiveModule
	Skipped []flowctx.SkippedModule
}

// Plan runs the nine-step pipeline against one stage's effective modules.
func Plan(
	flowName, stageName string,
	modules []patch.EffectiveModule,
	effectiveFanoutMax int,
	contract blueprint.StageContract,
	fc *flowctx.FlowContext,
	selectors *selector.Registry,
	limits map[string]uint32,
	admitter BulkheadAdmitter,
) Result {
	var skipped []flowctx.SkippedModule
	candidates := make([]Candidate, 0, len(modules))
	for i, m := range modules {
		candidates = append(candidates, Candidate{Module: m, InputIndex: i})
	}

	// Step 1: dynamic-modules gate.
	if !contract.AllowDynamicModules {
		for _, c := range candidates {
			skipped = append(skipped, flowctx.SkippedModule{ModuleID: c.Module.ID, ReasonCode: ReasonDynamicModulesForbidden})
		}
		return Result{Skipped: skipped}
	}

	// Step 2: module-type allowlist.
	candidates, skipped = filterCandidates(candidates, skipped, func(c Candidate) (bool, string) {
		if contract.AllowedModuleTypes == nil {
			return true, ""
		}
		if _, ok := contract.AllowedModuleTypes[c.Module.Use]; !ok {
			return false, ReasonModuleTypeForbidden
		}
		return true, ""
	})

	// Step 3: enabled filter.
	candidates, skipped = filterCandidates(candidates, skipped, func(c Candidate) (bool, string) {
		if !c.Module.Enabled {
			return false, ReasonDisabled
		}
		return true, ""
	})

	// Step 4: gate evaluation.
	candidates, skipped = filterCandidates(candidates, skipped, func(c Candidate) (bool, string) {
		if c.Module.Gate == nil {
			return true, ""
		}
		d := c.Module.Gate.Evaluate(fc, selectors)
		if fc.Explain != nil {
			fc.Explain.RecordStageModule(stageName, flowctx.ModuleGateDecision{
				ModuleID:     c.Module.ID,
				Allowed:      d.Allowed,
				Code:         d.Code,
				ReasonCode:   d.ReasonCode,
				SelectorName: d.SelectorName,
			})
		}
		if !d.Allowed {
			return false, ReasonGateFalse
		}
		return true, ""
	})

	// Step 5: shadow contract + sampling, splitting candidates into primary
	// and shadow sets.
	var primaryCandidates, shadowCandidates []Candidate
	for _, c := range candidates {
		if c.Module.ShadowSampleBps <= 0 {
			primaryCandidates = append(primaryCandidates, c)
			continue
		}
		if !contract.AllowShadow {
			skipped = append(skipped, flowctx.SkippedModule{ModuleID: c.Module.ID, ReasonCode: ReasonShadowForbidden})
			continue
		}
		bps := c.Module.ShadowSampleBps
		if bps > contract.MaxShadowSampleBps {
			bps = contract.MaxShadowSampleBps
		}
		userID := ""
		if fc.UserID != nil {
			userID = *fc.UserID
		}
		if bps == 0 {
			skipped = append(skipped, flowctx.SkippedModule{ModuleID: c.Module.ID, ReasonCode: ReasonShadowNotSampled})
			continue
		}
		if bps < 10000 {
			draw := sampleDraw(flowName, c.Module.ID, userID)
			if draw >= bps {
				skipped = append(skipped, flowctx.SkippedModule{ModuleID: c.Module.ID, ReasonCode: ReasonShadowNotSampled})
				continue
			}
		}
		shadowCandidates = append(shadowCandidates, c)
	}

	// Step 6: fanoutMax clamp.
	effectiveFanout := clamp(effectiveFanoutMax, contract.FanoutMaxMin, contract.FanoutMaxMax)

	// Step 7: hard module cap (primary and shadow independently).
	primaryCandidates, skipped = capHard(primaryCandidates, contract.MaxModulesHard, ReasonMaxModulesHardExceeded, skipped)
	shadowCandidates, skipped = capHard(shadowCandidates, contract.MaxShadowModules, ReasonMaxShadowModulesHardExceeded, skipped)

	// Step 8: fanout trim by priority (primary only; shadows are already
	// capped by contract.MaxShadowModules in step 7).
	sortByPriority(primaryCandidates)
	var kept []Candidate
	if effectiveFanout >= 0 && len(primaryCandidates) > effectiveFanout {
		kept = primaryCandidates[:effectiveFanout]
		for _, c := range primaryCandidates[effectiveFanout:] {
			skipped = append(skipped, flowctx.SkippedModule{ModuleID: c.Module.ID, ReasonCode: ReasonFanoutTrim})
		}
	} else {
		kept = primaryCandidates
	}
	sortByPriority(shadowCandidates)

	// Step 9: bulkhead admission (execution-time candidates only; the plan
	// records nothing here beyond the final ordered sets — admission
	// rejection during actual execution appends BULKHEAD_REJECTED via
	// RecordBulkheadRejection, called by the engine as invocations run).
	_ = limits
	_ = admitter

	return Result{
		Primary: toModules(kept),
		Shadow:  toModules(shadowCandidates),
		Skipped: skipped,
	}
}

// RecordBulkheadRejection appends a BULKHEAD_REJECTED skip entry; called by
// the engine at execution time per step 9, which is enforced outside the
// plan-time pipeline above.
func RecordBulkheadRejection(result *Result, moduleID string) {
	result.Skipped = append(result.Skipped, flowctx.SkippedModule{ModuleID: moduleID, ReasonCode: ReasonBulkheadRejected})
}

func filterCandidates(in []Candidate, skipped []flowctx.SkippedModule, keep func(Candidate) (bool, string)) ([]Candidate, []flowctx.SkippedModule) {
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		ok, reason := keep(c)
		if ok {
			out = append(out, c)
			continue
		}
		skipped = append(skipped, flowctx.SkippedModule{ModuleID: c.Module.ID, ReasonCode: reason})
	}
	return out, skipped
}

func capHard(in []Candidate, max int, reason string, skipped []flowctx.SkippedModule) ([]Candidate, []flowctx.SkippedModule) {
	if max <= 0 || len(in) <= max {
		return in, skipped
	}
	ordered := append([]Candidate(nil), in...)
	sortByPriority(ordered)
	kept := ordered[:max]
	for _, c := range ordered[max:] {
		skipped = append(skipped, flowctx.SkippedModule{ModuleID: c.Module.ID, ReasonCode: reason})
	}
	// Restore original relative (input-order) sequence among the kept set.
	keptSet := make(map[string]struct{}, len(kept))
	for _, c := range kept {
		keptSet[c.Module.ID] = struct{}{}
	}
	out := make([]Candidate, 0, len(kept))
	for _, c := range in {
		if _, ok := keptSet[c.Module.ID]; ok {
			out = append(out, c)
		}
	}
	return out, skipped
}

func sortByPriority(in []Candidate) {
	sort.SliceStable(in, func(i, j int) bool {
		if in[i].Module.Priority != in[j].Module.Priority {
			return in[i].Module.Priority > in[j].Module.Priority
		}
		return in[i].InputIndex < in[j].InputIndex
	})
}

func toModules(in []Candidate) []patch.EffectiveModule {
	out := make([]patch.EffectiveModule, 0, len(in))
	for _, c := range in {
		out = append(out, c.Module)
	}
	return out
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// sampleDraw computes the deterministic [0,10000) draw for shadow sampling,
// seeded by (flow_name, module_id, user_id) so retries of the same request
// sample identically.
func sampleDraw(flowName, moduleID, userID string) int {
	h := fnv.New64a()
	h.Write([]byte(flowName))
	h.Write([]byte{0x1F})
	h.Write([]byte(moduleID))
	h.Write([]byte{0x1F})
	h.Write([]byte(userID))
	return int(h.Sum64() % 10000)
}
