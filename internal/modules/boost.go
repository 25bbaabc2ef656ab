package modules

import (
	"github.com/rockestra/rockestra/internal/rockestra/flowctx"
	"github.com/rockestra/rockestra/internal/rockestra/outcome"
	"github.com/rockestra/rockestra/internal/rockestra/ports"
)

// Boost is a Step-node module; it reads a sibling node's recorded outcome
// through mctx.Flow, so it must be wired downstream of a Source node rather
// than run as a stage fan-out primary (fan-out invocations carry no
// FlowContext — see ports.ModuleContext's ExecPath comment). Its behavior —
// which upstream node to read, which tag to scope the boost to, and the
// multiplier — is fixed at construction time, the same way a Step node's
// catalog-registered type is fixed at blueprint build time rather than
// reconfigured per request.
type Boost struct {
	Source     string
	Tag        string
	Multiplier float64
}

// NewBoost constructs a Boost module reading candidates from the node named
// source, multiplying the score of every candidate carrying tag (or every
// candidate, if tag is empty) by multiplier.
func NewBoost(source, tag string, multiplier float64) ports.Module {
	return &Boost{Source: source, Tag: tag, Multiplier: multiplier}
}

var _ ports.Module = (*Boost)(nil)

func (b *Boost) Execute(mctx *ports.ModuleContext) flowctx.BoxedOutcome {
	if mctx.Flow == nil || b.Source == "" {
		return flowctx.Box(outcome.Error[[]Candidate]("BOOST_REQUIRES_FLOW_SOURCE"))
	}

	upstream, err := flowctx.NodeOutcomeTyped[[]Candidate](mctx.Flow, b.Source)
	if err != nil {
		return flowctx.Box(outcome.Error[[]Candidate]("SOURCE_NODE_NOT_FOUND"))
	}
	if !upstream.IsOk() {
		return flowctx.Box(outcome.Skipped[[]Candidate]("SOURCE_NOT_OK"))
	}
	candidates, _ := upstream.Value()

	boosted := make([]Candidate, len(candidates))
	for i, c := range candidates {
		boosted[i] = c
		if hasTag(c, b.Tag) {
			boosted[i].Score = c.Score * b.Multiplier
		}
	}
	return flowctx.Box(outcome.Ok(boosted))
}
