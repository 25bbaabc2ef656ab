package modules

import (
	"github.com/rockestra/rockestra/internal/rockestra/flowctx"
	"github.com/rockestra/rockestra/internal/rockestra/outcome"
	"github.com/rockestra/rockestra/internal/rockestra/ports"
)

// CandidatesRequestAttribute is the FlowContext.RequestAttributes key Source
// reads its seed candidate list from. Step-node modules receive no per-node
// Args (only stage fan-out modules do — see ports.ModuleContext's Args
// comment), so a Step-node "input" has to arrive through the FlowContext
// instead, the same bag gate selectors already read.
const CandidatesRequestAttribute = "candidates"

// Source is a Step-node module that publishes the request's seed candidate
// list as its node outcome, grounded on the teacher's shell-command plugin
// shape: a struct with no fields, a New() constructor, and an Execute method
// that reads only what the caller handed it rather than reaching into global
// state.
type Source struct{}

// New constructs a Source module instance.
func New() ports.Module { return &Source{} }

var _ ports.Module = (*Source)(nil)

func (s *Source) Execute(mctx *ports.ModuleContext) flowctx.BoxedOutcome {
	if mctx.Flow == nil {
		return flowctx.Box(outcome.Error[[]Candidate]("SOURCE_REQUIRES_FLOW"))
	}
	raw, ok := mctx.Flow.RequestAttributes[CandidatesRequestAttribute]
	if !ok {
		return flowctx.Box(outcome.Ok([]Candidate{}))
	}
	candidates, ok := raw.([]Candidate)
	if !ok {
		return flowctx.Box(outcome.Error[[]Candidate]("MALFORMED_CANDIDATES_ATTRIBUTE"))
	}
	return flowctx.Box(outcome.Ok(candidates))
}
