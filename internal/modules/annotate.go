package modules

import (
	"github.com/rockestra/rockestra/internal/rockestra/flowctx"
	"github.com/rockestra/rockestra/internal/rockestra/outcome"
	"github.com/rockestra/rockestra/internal/rockestra/ports"
)

// AnnotateArgs configures an Annotate module: a free-form label it reports
// back as its own outcome, with no dependence on any other node's output.
type AnnotateArgs struct {
	Label string `json:"label"`
}

// Annotate is a self-contained module safe to run as either a Step node or a
// stage fan-out primary/shadow — unlike Boost and Filter it reads only its
// own bound args, never mctx.Flow, so it tolerates the fan-out invocation
// path where no FlowContext is attached.
type Annotate struct{}

// NewAnnotate constructs an Annotate module instance.
func NewAnnotate() ports.Module { return &Annotate{} }

var _ ports.Module = (*Annotate)(nil)

func (a *Annotate) Execute(mctx *ports.ModuleContext) flowctx.BoxedOutcome {
	var args AnnotateArgs
	if err := decodeArgs(mctx.Args, &args); err != nil {
		return flowctx.Box(outcome.Error[string]("MALFORMED_MODULE_ARGS"))
	}
	if args.Label == "" {
		args.Label = mctx.ModuleID
	}
	return flowctx.Box(outcome.Ok(args.Label))
}
