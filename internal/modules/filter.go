package modules

import (
	"github.com/rockestra/rockestra/internal/rockestra/flowctx"
	"github.com/rockestra/rockestra/internal/rockestra/outcome"
	"github.com/rockestra/rockestra/internal/rockestra/ports"
)

// Filter is a Step-node module, wired downstream of a Source or Boost node
// the same way Boost is; its source node name and score floor are fixed at
// construction time.
type Filter struct {
	Source   string
	MinScore float64
}

// NewFilter constructs a Filter module reading candidates from the node
// named source and dropping every candidate scoring below minScore.
func NewFilter(source string, minScore float64) ports.Module {
	return &Filter{Source: source, MinScore: minScore}
}

var _ ports.Module = (*Filter)(nil)

func (f *Filter) Execute(mctx *ports.ModuleContext) flowctx.BoxedOutcome {
	if mctx.Flow == nil || f.Source == "" {
		return flowctx.Box(outcome.Error[[]Candidate]("FILTER_REQUIRES_FLOW_SOURCE"))
	}

	upstream, err := flowctx.NodeOutcomeTyped[[]Candidate](mctx.Flow, f.Source)
	if err != nil {
		return flowctx.Box(outcome.Error[[]Candidate]("SOURCE_NODE_NOT_FOUND"))
	}
	if !upstream.IsOk() {
		return flowctx.Box(outcome.Skipped[[]Candidate]("SOURCE_NOT_OK"))
	}
	candidates, _ := upstream.Value()

	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Score >= f.MinScore {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return flowctx.Box(outcome.Fallback("ALL_CANDIDATES_FILTERED", kept))
	}
	return flowctx.Box(outcome.Ok(kept))
}
