package bootstrap

import (
	"github.com/rockestra/rockestra/internal/rockestra/blueprint"
	"github.com/rockestra/rockestra/internal/rockestra/flowhost"
)

// registerDemoFlows wires the "rank" flow: a Source node publishing the
// request's candidate set, a Boost node applying a score multiplier to
// every candidate, and a Filter node pruning anything below a floor score —
// exercising the full Step-node chain the example modules in
// internal/modules are built for. Panics on a build error since the
// blueprint is a fixed, compile-time-known shape: a failure here is a
// programming error in this function, not a runtime condition.
func registerDemoFlows(host *flowhost.Host) {
	template, err := blueprint.NewBuilder("rank").
		Step("fetch", "source").
		Step("boost", "boost").
		Step("filter", "filter").
		Build()
	if err != nil {
		panic("bootstrap: build demo rank flow: " + err.Error())
	}

	host.Register("rank", flowhost.FlowDefinition{
		Template: template,
		DefaultParams: map[string]any{
			"topK": 10,
		},
	})
}
