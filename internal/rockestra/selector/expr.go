package selector

import (
	"fmt"

	"github.com/itchyny/gojq"

	"github.com/rockestra/rockestra/internal/rockestra/flowctx"
)

// ExprSelector compiles a jq boolean expression against a JSON-ish view of
// the FlowContext (variants, user_id, request_attributes) and exposes it as
// a Predicate, enriching SelectorRegistry beyond hand-written Go predicates.
// Bootstrap compiles one built-in expression ("high_score"); no process
// configuration field supplies further expressions.
type ExprSelector struct {
	name  string
	query *gojq.Query
}

// CompileExprSelector parses src as a jq expression. The expression is
// expected to produce a truthy/falsy result when run against
// {"variants":{...},"user_id":"...","request_attributes":{...}}.
func CompileExprSelector(name, src string) (*ExprSelector, error) {
	q, err := gojq.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("compile selector expression %q: %w", name, err)
	}
	return &ExprSelector{name: name, query: q}, nil
}

// Predicate adapts the compiled expression to the selector.Predicate shape.
func (e *ExprSelector) Predicate() Predicate {
	return func(ctx *flowctx.FlowContext) bool {
		input := map[string]any{
			"variants":           toAnyMap(ctx.Variants),
			"request_attributes": ctx.RequestAttributes,
		}
		if ctx.UserID != nil {
			input["user_id"] = *ctx.UserID
		} else {
			input["user_id"] = nil
		}

		iter := e.query.Run(input)
		v, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		return truthy(v)
	}
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	default:
		return true
	}
}
