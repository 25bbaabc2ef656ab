// Package engine implements the execution engine: it walks a
// PlanTemplate's nodes in declared order, running non-stage Step nodes
// directly, driving the stage fan-out planner for stage nodes, and invoking
// Join delegates once their stage's fan-out has fully completed.
package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rockestra/rockestra/internal/rockestra/blueprint"
	"github.com/rockestra/rockestra/internal/rockestra/catalog"
	"github.com/rockestra/rockestra/internal/rockestra/flowctx"
	"github.com/rockestra/rockestra/internal/rockestra/outcome"
	"github.com/rockestra/rockestra/internal/rockestra/patch"
	"github.com/rockestra/rockestra/internal/rockestra/planner"
	"github.com/rockestra/rockestra/internal/rockestra/ports"
	"github.com/rockestra/rockestra/internal/rockestra/selector"
	"github.com/rockestra/rockestra/pkg/rockestraerr"
)

// Engine is the process-owned execution engine. It is stateless across
// requests; every call to Execute receives its own FlowContext.
type Engine struct {
	Catalog   *catalog.Catalog
	Selectors *selector.Registry
	Metrics   ports.MetricsCollector
	Tracer    ports.Tracer
	Admitter  planner.BulkheadAdmitter
}

// New constructs an Engine from its wired collaborators.
func New(cat *catalog.Catalog, selectors *selector.Registry, metrics ports.MetricsCollector, tracer ports.Tracer, admitter planner.BulkheadAdmitter) *Engine {
	return &Engine{Catalog: cat, Selectors: selectors, Metrics: metrics, Tracer: tracer, Admitter: admitter}
}

// Execute runs template against fc. The returned BoxedOutcome is the flow's
// outcome: the final node's outcome, or — if cancellation was observed at
// any point — an outcome reflecting the cancellation/timeout kind. The
// returned error is non-nil only for errors of the contract-violation tier
// (e.g. MODULE_CONCURRENCY_VIOLATION) or the design-time tier, the classes
// that classify lets escape Execute.
func (e *Engine) Execute(ctx context.Context, template *blueprint.PlanTemplate, fc *flowctx.FlowContext, eval *patch.Evaluation, limits map[string]uint32) (flowctx.BoxedOutcome, error) {
	fc.Explain = flowctx.NewExecExplain(len(template.Nodes))
	fc.Explain.PlanHash = template.Hash
	for _, o := range eval.OverlaysApplied {
		fc.Explain.RecordOverlay(flowctx.OverlayRecord{
			Layer:             o.Layer,
			ExperimentLayer:   o.ExperimentLayer,
			ExperimentVariant: o.ExperimentVariant,
		})
	}
	fc.Explain.Variants = make(map[string]string, len(fc.Variants))
	for k, v := range fc.Variants {
		fc.Explain.Variants[k] = v
	}

	processedStages := make(map[string]bool, len(template.StageOrder))
	var last flowctx.BoxedOutcome

	for i := 0; i < len(template.Nodes); i++ {
		node := template.Nodes[i]

		if ctx.Err() != nil {
			e.prefillRemaining(template, i, fc)
			return cancellationOutcome(ctx), nil
		}

		if node.StageName != "" {
			if processedStages[node.StageName] {
				continue
			}
			processedStages[node.StageName] = true
			out, err := e.executeStage(ctx, template, node.StageName, i, fc, eval, limits)
			if err != nil {
				return flowctx.BoxedOutcome{}, err
			}
			last = out
			continue
		}

		out, err := e.executeStep(ctx, node, i, fc)
		if err != nil {
			return flowctx.BoxedOutcome{}, err
		}
		last = out
	}

	return last, nil
}

func cancellationOutcome(ctx context.Context) flowctx.BoxedOutcome {
	if ctx.Err() == context.DeadlineExceeded {
		return flowctx.BoxRaw(outcome.KindTimeout, "DEADLINE_EXCEEDED")
	}
	return flowctx.BoxRaw(outcome.KindCanceled, "UPSTREAM_CANCELED")
}

// prefillRemaining marks every node from i onward as Unspecified in the
// explain buffer and, for Step/Join nodes, in node_outcomes — this is the
// cancellation pre-fill rule. Dynamic stage modules have no identifiers to
// pre-fill since they are never chosen once cancellation is observed.
func (e *Engine) prefillRemaining(template *blueprint.PlanTemplate, from int, fc *flowctx.FlowContext) {
	for j := from; j < len(template.Nodes); j++ {
		node := template.Nodes[j]
		fc.Explain.RecordNode(j, flowctx.NodeExplain{Name: node.Name, OutcomeKind: outcome.KindUnspecified})
		if node.StageName == "" {
			_ = fc.RecordNodeOutcome(node.Name, flowctx.BoxRaw(outcome.KindUnspecified, ""))
		}
	}
}

func (e *Engine) executeStep(ctx context.Context, node blueprint.BlueprintNode, idx int, fc *flowctx.FlowContext) (flowctx.BoxedOutcome, error) {
	start := time.Now()

	if node.Kind == blueprint.NodeJoin {
		out := e.invokeJoin(node, fc)
		if err := fc.RecordNodeOutcome(node.Name, out); err != nil {
			return flowctx.BoxedOutcome{}, err
		}
		e.recordNode(idx, node.Name, fc, start, out)
		return out, nil
	}

	descriptor, resolveErr := e.Catalog.Resolve(node.ModuleType)
	if resolveErr != nil {
		out, propagate := classify(resolveErr)
		if propagate != nil {
			return flowctx.BoxedOutcome{}, propagate
		}
		_ = fc.RecordNodeOutcome(node.Name, out)
		e.recordNode(idx, node.Name, fc, start, out)
		return out, nil
	}

	module, release, acquireErr := descriptor.Acquire(node.Name)
	if acquireErr != nil {
		out, propagate := classify(acquireErr)
		if propagate != nil {
			return flowctx.BoxedOutcome{}, propagate
		}
		_ = fc.RecordNodeOutcome(node.Name, out)
		e.recordNode(idx, node.Name, fc, start, out)
		return out, nil
	}
	defer release()

	mctx := &ports.ModuleContext{
		Ctx:      ctx,
		Flow:     fc,
		Deadline: fc.Deadline,
		ModuleID: node.Name,
		TypeName: node.ModuleType,
		ExecPath: "",
	}
	out := invokeModule(ctx, module, mctx)
	if err := fc.RecordNodeOutcome(node.Name, out); err != nil {
		return flowctx.BoxedOutcome{}, err
	}
	e.recordNode(idx, node.Name, fc, start, out)
	return out, nil
}

func (e *Engine) invokeJoin(node blueprint.BlueprintNode, fc *flowctx.FlowContext) (out flowctx.BoxedOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = flowctx.BoxRaw(outcome.KindError, "UNHANDLED_EXCEPTION")
		}
	}()
	out = node.JoinDelegate(fc)
	return out
}

func (e *Engine) recordNode(idx int, name string, fc *flowctx.FlowContext, start time.Time, out flowctx.BoxedOutcome) {
	end := time.Now()
	fc.Explain.RecordNode(idx, flowctx.NodeExplain{
		Name:        name,
		StartTicks:  start.UnixNano(),
		EndTicks:    end.UnixNano(),
		OutcomeKind: out.Kind,
		OutcomeCode: out.Code,
	})
}

// executeStage drives the StageFanoutPlanner for stageName, launches its
// primary modules concurrently, then runs its shadow modules concurrently
// once every primary has returned, and records a StageFanoutSnapshot. The
// stage does not complete until every shadow has returned as well, so a slow
// shadow delays the stage; shadow outcomes go only into the snapshot. The node
// explain slot for every blueprint-declared node in this stage receives the
// same start/end ticks, since the stage runs as one unit.
func (e *Engine) executeStage(ctx context.Context, template *blueprint.PlanTemplate, stageName string, firstIdx int, fc *flowctx.FlowContext, eval *patch.Evaluation, limits map[string]uint32) (flowctx.BoxedOutcome, error) {
	start := time.Now()
	contract := template.StageContracts[stageName]
	stageEval := eval.Stages[stageName]
	fanoutMax := contract.FanoutMaxMax
	if stageEval.FanoutMax != nil {
		fanoutMax = *stageEval.FanoutMax
	}

	result := planner.Plan(template.FlowName, stageName, stageEval.Modules, fanoutMax, contract, fc, e.Selectors, limits, e.Admitter)

	var mu sync.Mutex
	primaryOutcomes := make(map[string]flowctx.BoxedOutcome, len(result.Primary))
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range result.Primary {
		m := m
		g.Go(func() error {
			out, admitted, propagate := e.invokeFanoutModule(gctx, m, "primary", limits)
			if propagate != nil {
				return propagate
			}
			if !admitted {
				mu.Lock()
				planner.RecordBulkheadRejection(&result, m.ID)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			primaryOutcomes[m.ID] = out
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return flowctx.BoxedOutcome{}, err
	}

	var shadowWG sync.WaitGroup
	shadowOutcomes := make(map[string]flowctx.BoxedOutcome, len(result.Shadow))
	var shadowMu sync.Mutex
	var shadowErr error
	for _, m := range result.Shadow {
		m := m
		shadowWG.Add(1)
		go func() {
			defer shadowWG.Done()
			out, admitted, propagate := e.invokeFanoutModule(ctx, m, "shadow", limits)
			shadowMu.Lock()
			defer shadowMu.Unlock()
			switch {
			case propagate != nil:
				if shadowErr == nil {
					shadowErr = propagate
				}
			case !admitted:
				planner.RecordBulkheadRejection(&result, m.ID)
			default:
				shadowOutcomes[m.ID] = out
			}
		}()
	}
	shadowWG.Wait()
	if shadowErr != nil {
		return flowctx.BoxedOutcome{}, shadowErr
	}

	var lastOutcome flowctx.BoxedOutcome
	for _, m := range result.Primary {
		if o, ok := primaryOutcomes[m.ID]; ok {
			if err := fc.RecordNodeOutcome(m.ID, o); err != nil {
				return flowctx.BoxedOutcome{}, err
			}
			lastOutcome = o
		}
	}

	enabledIDs := make([]string, 0, len(result.Primary))
	for _, m := range result.Primary {
		enabledIDs = append(enabledIDs, m.ID)
	}
	shadowIDs := make([]string, 0, len(result.Shadow))
	for _, m := range result.Shadow {
		shadowIDs = append(shadowIDs, m.ID)
	}
	fc.SetStageSnapshot(stageName, flowctx.StageFanoutSnapshot{
		EnabledModuleIDs: enabledIDs,
		ShadowModuleIDs:  shadowIDs,
		SkippedModules:   result.Skipped,
		ShadowOutcomes:   shadowOutcomes,
	})

	end := time.Now()
	for j := firstIdx; j < len(template.Nodes) && template.Nodes[j].StageName == stageName; j++ {
		fc.Explain.RecordNode(j, flowctx.NodeExplain{
			Name:        template.Nodes[j].Name,
			StartTicks:  start.UnixNano(),
			EndTicks:    end.UnixNano(),
			OutcomeKind: lastOutcome.Kind,
			OutcomeCode: lastOutcome.Code,
		})
	}

	return lastOutcome, nil
}

// invokeFanoutModule resolves, admits (bulkhead), and invokes one planned
// stage module, tagged with its execution path for tracing. A non-nil
// propagate return means a contract-violation-tier error (e.g. a
// Singleton+NotThreadSafe double-occupancy) must abort the whole request —
// the engine must not silently serialize or discard it.
func (e *Engine) invokeFanoutModule(ctx context.Context, m patch.EffectiveModule, execPath string, limits map[string]uint32) (out flowctx.BoxedOutcome, admitted bool, propagate error) {
	if m.LimitKey != "" && e.Admitter != nil {
		maxInFlight, ok := limits[m.LimitKey]
		if ok {
			release, ok := e.Admitter.TryAcquire(m.LimitKey, maxInFlight)
			if !ok {
				return flowctx.BoxedOutcome{}, false, nil
			}
			defer release()
		}
	}

	descriptor, err := e.Catalog.Resolve(m.Use)
	if err != nil {
		return flowctx.BoxRaw(outcome.KindError, "UNHANDLED_EXCEPTION"), true, nil
	}
	module, release, err := descriptor.Acquire(m.ID)
	if err != nil {
		boxed, propagateErr := classify(err)
		if propagateErr != nil {
			return flowctx.BoxedOutcome{}, true, propagateErr
		}
		return boxed, true, nil
	}
	defer release()

	var args any
	if len(m.With) > 0 {
		args = json.RawMessage(m.With)
	}

	mctx := &ports.ModuleContext{
		Ctx:      ctx,
		ModuleID: m.ID,
		TypeName: m.Use,
		Args:     args,
		ExecPath: execPath,
	}
	return invokeModule(ctx, module, mctx), true, nil
}

func invokeModule(ctx context.Context, module ports.Module, mctx *ports.ModuleContext) (out flowctx.BoxedOutcome) {
	defer func() {
		if r := recover(); r != nil {
			switch {
			case ctx.Err() == context.DeadlineExceeded:
				out = flowctx.BoxRaw(outcome.KindTimeout, "DEADLINE_EXCEEDED")
			case ctx.Err() == context.Canceled:
				out = flowctx.BoxRaw(outcome.KindCanceled, "UPSTREAM_CANCELED")
			default:
				out = flowctx.BoxRaw(outcome.KindError, "UNHANDLED_EXCEPTION")
			}
		}
	}()
	out = module.Execute(mctx)
	return out
}

// classify turns a catalog/resolve error into either a request-time
// BoxedOutcome (nil propagate error) or signals that the error must
// propagate out of Execute (non-nil propagate error), per the tier rule:
// only design-time and contract-violation errors escape.
func classify(err error) (flowctx.BoxedOutcome, error) {
	var rerr *rockestraerr.RockestraError
	if asRockestraErr(err, &rerr) && rerr.Propagates() {
		return flowctx.BoxedOutcome{}, err
	}
	code := "UNHANDLED_EXCEPTION"
	if rerr != nil {
		code = string(rerr.Code)
	}
	return flowctx.BoxRaw(outcome.KindError, code), nil
}

func asRockestraErr(err error, target **rockestraerr.RockestraError) bool {
	if re, ok := err.(*rockestraerr.RockestraError); ok {
		*target = re
		return true
	}
	return false
}
