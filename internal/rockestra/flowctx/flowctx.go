// Package flowctx holds the per-request mutable state a flow execution
// threads through: node outcomes, stage fan-out snapshots, and the
// structured execution-explain trace. It sits below both blueprint and
// engine so neither needs to import the other to share this state.
package flowctx

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/rockestra/rockestra/internal/rockestra/outcome"
	"github.com/rockestra/rockestra/pkg/rockestraerr"
)

// BoxedOutcome stores an Outcome[T] behind a non-generic envelope so
// heterogeneous node outcomes can live in one map. The type fingerprint is
// captured at write time and checked against the type requested at read time.
type BoxedOutcome struct {
	Kind        outcome.Kind
	Code        string
	TypeFingerprint string
	HasValue    bool
	Value       any
}

func typeFingerprint[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return fmt.Sprintf("%T", zero)
	}
	return t.String()
}

// Box converts a typed Outcome into its boxed form for storage.
func Box[T any](o outcome.Outcome[T]) BoxedOutcome {
	b := BoxedOutcome{
		Kind:            o.Kind(),
		Code:            o.Code(),
		TypeFingerprint: typeFingerprint[T](),
		HasValue:        o.HasValue(),
	}
	if v, err := o.Value(); err == nil {
		b.Value = v
	}
	return b
}

// Unbox recovers a typed Outcome from its boxed form, failing with
// NODE_TYPE_MISMATCH if the requested type differs from the one written.
// The fingerprint is only checked for value-carrying kinds (Ok, Fallback):
// a non-value outcome — e.g. one the engine synthesizes for
// UNHANDLED_EXCEPTION or a cancellation pre-fill before the node's module
// ever ran and established a fingerprint — carries no value whose type could
// mismatch, so it unboxes into any requested T.
func Unbox[T any](b BoxedOutcome) (outcome.Outcome[T], error) {
	if b.HasValue {
		want := typeFingerprint[T]()
		if b.TypeFingerprint != want {
			var zero outcome.Outcome[T]
			return zero, rockestraerr.New(
				rockestraerr.TierContractViolation,
				rockestraerr.CodeNodeTypeMismatch,
				fmt.Sprintf("node outcome written as %q, read as %q", b.TypeFingerprint, want),
			)
		}
	}
	switch b.Kind {
	case outcome.KindOk:
		return outcome.Ok(b.Value.(T)), nil
	case outcome.KindFallback:
		return outcome.Fallback[T](b.Code, b.Value.(T)), nil
	case outcome.KindError:
		return outcome.Error[T](b.Code), nil
	case outcome.KindTimeout:
		return outcome.Timeout[T](b.Code), nil
	case outcome.KindSkipped:
		return outcome.Skipped[T](b.Code), nil
	case outcome.KindCanceled:
		return outcome.Canceled[T](b.Code), nil
	default:
		return outcome.Unspecified[T](), nil
	}
}

// BoxRaw constructs a non-value-carrying BoxedOutcome directly, for engine
// code that synthesizes an outcome (UNHANDLED_EXCEPTION, a cancellation
// pre-fill, DEADLINE_EXCEEDED) without going through a Module's typed Execute
// call, and therefore without a T to fingerprint.
func BoxRaw(kind outcome.Kind, code string) BoxedOutcome {
	return BoxedOutcome{Kind: kind, Code: code}
}

// SkippedModule records a module that a stage's fan-out planner decided not
// to run, with the reason code that explains why.
type SkippedModule struct {
	ModuleID   string
	ReasonCode string
}

// StageFanoutSnapshot is the per-stage record a StageFanoutPlanner run emits.
// ShadowOutcomes holds shadow invocation results for the explain sink only —
// they are never written to node_outcomes, so join delegates cannot observe
// them.
type StageFanoutSnapshot struct {
	EnabledModuleIDs []string
	ShadowModuleIDs  []string
	SkippedModules   []SkippedModule
	ShadowOutcomes   map[string]BoxedOutcome
}

// ModuleGateDecision records why a module's gate allowed or denied it, for
// the explain sink.
type ModuleGateDecision struct {
	ModuleID     string
	Allowed      bool
	Code         string
	ReasonCode   string
	SelectorName string
}

// NodeExplain is the per-node entry of an ExecExplain.
type NodeExplain struct {
	Name             string
	StartTicks       int64
	EndTicks         int64
	OutcomeKind      outcome.Kind
	OutcomeCode      string
}

// DurationTicks returns EndTicks - StartTicks.
func (n NodeExplain) DurationTicks() int64 { return n.EndTicks - n.StartTicks }

// OverlayRecord is one entry of the overlays_applied trace.
type OverlayRecord struct {
	Layer             string
	ExperimentLayer   string
	ExperimentVariant string
}

// ExecExplain is the structured per-request execution trace.
type ExecExplain struct {
	mu               sync.Mutex
	Nodes            []NodeExplain
	StageModules     map[string][]ModuleGateDecision
	OverlaysApplied  []OverlayRecord
	Variants         map[string]string
	QosTier          string
	ConfigLKGFallback bool
	ConfigVersion    uint64
	PlanHash         uint64
}

// NewExecExplain allocates a fresh explain buffer sized for nodeCount nodes,
// since every Execute call must start from a clean trace.
func NewExecExplain(nodeCount int) *ExecExplain {
	return &ExecExplain{
		Nodes:        make([]NodeExplain, nodeCount),
		StageModules: make(map[string][]ModuleGateDecision),
	}
}

// RecordNode stores the explain entry for node index i.
func (e *ExecExplain) RecordNode(i int, n NodeExplain) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Nodes[i] = n
}

// RecordOverlay appends one overlays_applied entry, preserving application order.
func (e *ExecExplain) RecordOverlay(r OverlayRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.OverlaysApplied = append(e.OverlaysApplied, r)
}

// RecordStageModule appends a gate decision for a stage's module.
func (e *ExecExplain) RecordStageModule(stage string, d ModuleGateDecision) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.StageModules[stage] = append(e.StageModules[stage], d)
}

// FlowContext is the per-request mutable state threaded through one
// engine.Execute call.
type FlowContext struct {
	Services          map[string]any
	Cancellation      context.Context
	Deadline          time.Time
	Variants          map[string]string
	UserID            *string
	RequestAttributes map[string]any

	mu             sync.RWMutex
	nodeOutcomes   map[string]BoxedOutcome
	stageSnapshots map[string]StageFanoutSnapshot

	Explain *ExecExplain

	snapshotOnce   sync.Once
	cachedSnapshot any
	cachedErr      error
}

// New constructs a FlowContext. Deadline must be a specific future instant;
// the zero value is rejected.
func New(ctx context.Context, deadline time.Time) (*FlowContext, error) {
	if deadline.IsZero() {
		return nil, rockestraerr.New(
			rockestraerr.TierDesignTime,
			rockestraerr.CodeInvalidDeadline,
			"flow context deadline must not be the zero value",
		)
	}
	return &FlowContext{
		Services:          make(map[string]any),
		Cancellation:      ctx,
		Deadline:          deadline,
		Variants:          make(map[string]string),
		RequestAttributes: make(map[string]any),
		nodeOutcomes:      make(map[string]BoxedOutcome),
		stageSnapshots:    make(map[string]StageFanoutSnapshot),
	}, nil
}

// RecordNodeOutcome stores the boxed outcome under name. A name may be
// written at most once.
func (c *FlowContext) RecordNodeOutcome(name string, b BoxedOutcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.nodeOutcomes[name]; exists {
		return rockestraerr.New(
			rockestraerr.TierContractViolation,
			rockestraerr.CodeNodeAlreadyRecorded,
			fmt.Sprintf("node %q already has a recorded outcome", name),
		)
	}
	c.nodeOutcomes[name] = b
	return nil
}

// NodeOutcome returns the boxed outcome recorded for name, if any.
func (c *FlowContext) NodeOutcome(name string) (BoxedOutcome, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.nodeOutcomes[name]
	return b, ok
}

// NodeOutcomeTyped is the typed accessor join delegates use.
func NodeOutcomeTyped[T any](c *FlowContext, name string) (outcome.Outcome[T], error) {
	b, ok := c.NodeOutcome(name)
	if !ok {
		var zero outcome.Outcome[T]
		return zero, rockestraerr.New(
			rockestraerr.TierRequest,
			rockestraerr.CodeNodeTypeMismatch,
			fmt.Sprintf("no outcome recorded for node %q", name),
		)
	}
	return Unbox[T](b)
}

// SetStageSnapshot records the fan-out snapshot for a stage.
func (c *FlowContext) SetStageSnapshot(stage string, s StageFanoutSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stageSnapshots[stage] = s
}

// StageSnapshot returns the fan-out snapshot recorded for a stage.
func (c *FlowContext) StageSnapshot(stage string) (StageFanoutSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.stageSnapshots[stage]
	return s, ok
}

// CacheSnapshot stores the result of the first ConfigSnapshot fetch for the
// life of this context. Subsequent calls short-circuit to the cached value.
func (c *FlowContext) CacheSnapshot(fetch func() (any, error)) (any, error) {
	c.snapshotOnce.Do(func() {
		c.cachedSnapshot, c.cachedErr = fetch()
	})
	return c.cachedSnapshot, c.cachedErr
}
