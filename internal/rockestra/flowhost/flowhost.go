// Package flowhost is the thin composition root that turns a registered flow
// name and an inbound request into one engine.Execute call: it resolves the
// flow's blueprint, fetches the request's ConfigSnapshot, evaluates the
// patch overlay chain against the selected QoS tier, and hands the result to
// the execution engine.
package flowhost

import (
	"context"

	"github.com/rockestra/rockestra/internal/rockestra/blueprint"
	"github.com/rockestra/rockestra/internal/rockestra/config"
	"github.com/rockestra/rockestra/internal/rockestra/engine"
	"github.com/rockestra/rockestra/internal/rockestra/flowctx"
	"github.com/rockestra/rockestra/internal/rockestra/patch"
	"github.com/rockestra/rockestra/internal/rockestra/ports"
	"github.com/rockestra/rockestra/pkg/rockestraerr"
)

// FlowDefinition is one registered flow: its compiled blueprint plus the
// compile-time default params object it registered, if any.
type FlowDefinition struct {
	Template      *blueprint.PlanTemplate
	DefaultParams map[string]any
}

// fullTierProvider always selects the Full QoS tier; the zero-value default
// when a Host is constructed without an explicit QoSProvider.
type fullTierProvider struct{}

func (fullTierProvider) SelectTier(context.Context, *flowctx.FlowContext) string { return "Full" }

// Host composes every collaborator a flow execution needs. It holds no
// per-request state; every field is shared, read-only infrastructure wired
// once at bootstrap.
type Host struct {
	Flows    map[string]FlowDefinition
	Engine   *engine.Engine
	Provider ports.ConfigSnapshotProvider
	QoS      ports.QoSProvider
	Logger   ports.Logger
}

// New constructs a Host. qos may be nil, in which case every request runs
// under the Full tier.
func New(eng *engine.Engine, provider ports.ConfigSnapshotProvider, qos ports.QoSProvider, logger ports.Logger) *Host {
	if qos == nil {
		qos = fullTierProvider{}
	}
	return &Host{
		Flows:    make(map[string]FlowDefinition),
		Engine:   eng,
		Provider: provider,
		QoS:      qos,
		Logger:   logger,
	}
}

// Register adds a flow's compiled blueprint to the host.
func (h *Host) Register(name string, def FlowDefinition) {
	h.Flows[name] = def
}

// Run resolves flowName, fetches this request's ConfigSnapshot, evaluates
// the patch overlay chain, and executes the blueprint. The returned error is
// non-nil only when the flow is unregistered, the config snapshot cannot be
// obtained, its patch JSON is malformed, patch.Evaluate fails (e.g. a module
// gate tree cannot be decoded), or engine.Execute itself returns a
// propagating (design-time / contract-violation tier) error.
func (h *Host) Run(ctx context.Context, flowName string, fc *flowctx.FlowContext) (flowctx.BoxedOutcome, error) {
	def, ok := h.Flows[flowName]
	if !ok {
		return flowctx.BoxedOutcome{}, rockestraerr.New(
			rockestraerr.TierDesignTime,
			rockestraerr.CodeFlowNotRegistered,
			"flow not registered: "+flowName,
		)
	}

	if h.Logger != nil {
		h.Logger.Info(ctx, "running flow", "flow_name", flowName)
	}

	snapshot, err := config.FetchForFlowContext(ctx, fc, h.Provider)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error(ctx, "config snapshot fetch failed", "flow_name", flowName, "error", err)
		}
		return flowctx.BoxedOutcome{}, err
	}

	doc, err := patch.ParseDocument(snapshot.PatchJSON)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error(ctx, "patch document malformed", "flow_name", flowName, "error", err)
		}
		return flowctx.BoxedOutcome{}, err
	}

	tier := h.QoS.SelectTier(ctx, fc)
	eval, err := patch.Evaluate(doc.Flows[flowName], def.DefaultParams, patch.RequestOptions{
		Variants:          fc.Variants,
		UserID:            fc.UserID,
		RequestAttributes: fc.RequestAttributes,
	}, tier)
	if err != nil {
		return flowctx.BoxedOutcome{}, err
	}

	var limits map[string]uint32
	if doc.Limits != nil {
		limits = doc.Limits.ModuleConcurrency.MaxInFlight
	}

	out, err := h.Engine.Execute(ctx, def.Template, fc, eval, limits)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error(ctx, "flow execution failed", "flow_name", flowName, "error", err)
		}
		return out, err
	}

	fc.Explain.QosTier = tier
	fc.Explain.ConfigVersion = snapshot.ConfigVersion
	fc.Explain.ConfigLKGFallback = snapshot.LkgFallback

	if h.Logger != nil {
		h.Logger.Info(ctx, "flow completed", "flow_name", flowName, "outcome_kind", string(out.Kind), "outcome_code", out.Code)
	}
	return out, nil
}
