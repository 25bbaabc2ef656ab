// Package gate implements a sum-type predicate tree evaluated per candidate
// module to decide inclusion in a stage's fan-out. Evaluation is pure and
// side-effect-free; lookup failures surface as denying decisions, never panics.
package gate

import (
	"unicode/utf16"

	"github.com/rockestra/rockestra/internal/rockestra/flowctx"
	"github.com/rockestra/rockestra/internal/rockestra/selector"
)

// Decision is the result of evaluating a gate.
type Decision struct {
	Allowed      bool
	Code         string // "GATE_TRUE" | "GATE_FALSE"
	ReasonCode   string
	SelectorName string // set only for Selector gates, for the explain sink
}

func allow(reason string) Decision { return Decision{Allowed: true, Code: "GATE_TRUE", ReasonCode: reason} }
func deny(reason string) Decision  { return Decision{Allowed: false, Code: "GATE_FALSE", ReasonCode: reason} }

// Gate is the sum type's common interface; each variant below implements it.
type Gate interface {
	Evaluate(fc *flowctx.FlowContext, selectors *selector.Registry) Decision
}

// MaxNestingDepth bounds how deeply a gate tree may nest; trees deeper than
// this are a validator-time rejection and should never reach Evaluate, but
// Depth is exposed so bootstrap code can defensively assert it.
const MaxNestingDepth = 10

// Depth returns the gate tree's nesting depth (a leaf gate has depth 1).
func Depth(g Gate) int {
	switch t := g.(type) {
	case *All:
		return 1 + maxChildDepth(t.Children)
	case *Any:
		return 1 + maxChildDepth(t.Children)
	case *Not:
		return 1 + Depth(t.Child)
	default:
		return 1
	}
}

func maxChildDepth(children []Gate) int {
	max := 0
	for _, c := range children {
		if d := Depth(c); d > max {
			max = d
		}
	}
	return max
}

// Experiment allows iff variants[Layer] exists and is one of In.
type Experiment struct {
	Layer string
	In    []string
}

func (e *Experiment) Evaluate(fc *flowctx.FlowContext, _ *selector.Registry) Decision {
	variant, ok := fc.Variants[e.Layer]
	if !ok {
		return deny("MISSING_VARIANT")
	}
	for _, v := range e.In {
		if v == variant {
			return allow("VARIANT_MATCH")
		}
	}
	return deny("VARIANT_MISMATCH")
}

// All requires every child to allow; short-circuits on the first deny.
// An All with zero children returns the zero Decision (not allowed, empty
// codes); neither the gate decoder nor the patch validator rejects one.
type All struct {
	Children []Gate
}

func (a *All) Evaluate(fc *flowctx.FlowContext, selectors *selector.Registry) Decision {
	var last Decision
	for _, c := range a.Children {
		last = c.Evaluate(fc, selectors)
		if !last.Allowed {
			return last
		}
	}
	return last
}

// Any allows iff at least one child allows; short-circuits on the first allow.
type Any struct {
	Children []Gate
}

func (a *Any) Evaluate(fc *flowctx.FlowContext, selectors *selector.Registry) Decision {
	var last Decision
	for _, c := range a.Children {
		last = c.Evaluate(fc, selectors)
		if last.Allowed {
			return last
		}
	}
	return last
}

// Not inverts its child's decision and its GATE_TRUE/GATE_FALSE code; the
// child's ReasonCode is passed through unchanged.
type Not struct {
	Child Gate
}

func (n *Not) Evaluate(fc *flowctx.FlowContext, selectors *selector.Registry) Decision {
	d := n.Child.Evaluate(fc, selectors)
	inverted := Decision{Allowed: !d.Allowed, ReasonCode: d.ReasonCode}
	if inverted.Allowed {
		inverted.Code = "GATE_TRUE"
	} else {
		inverted.Code = "GATE_FALSE"
	}
	return inverted
}

// rolloutOffsetBasis64 / rolloutPrime64 are the bit-exact FNV-1a constants
// the rollout bucketing contract requires (they happen to equal the standard
// FNV-1a 64 constants).
const (
	rolloutOffsetBasis64 uint64 = 14695981039346656037
	rolloutPrime64       uint64 = 1099511628211
)

// fnv1aUTF16 hashes s as a sequence of UTF-16 code units, each contributed
// low byte then high byte, matching the bit-exact rollout bucketing contract.
func fnv1aUTF16(s string) uint64 {
	h := rolloutOffsetBasis64
	for _, u := range utf16.Encode([]rune(s)) {
		lo := byte(u & 0xFF)
		hi := byte(u >> 8)
		h ^= uint64(lo)
		h *= rolloutPrime64
		h ^= uint64(hi)
		h *= rolloutPrime64
	}
	return h
}

// RolloutBucket computes the deterministic [0,100) bucket for a user/salt
// pair, exposed so the planner's shadow-sampling step can reuse the identical
// hashing primitive with a different input shape.
func RolloutBucket(userID, salt string) int {
	h := fnv1aUTF16(userID + "\x00" + salt)
	return int(h % 100)
}

// Rollout allows iff the deterministic bucket for user_id+salt is < Percent.
type Rollout struct {
	Percent int
	Salt    string
}

func (r *Rollout) Evaluate(fc *flowctx.FlowContext, _ *selector.Registry) Decision {
	if fc.UserID == nil {
		return deny("MISSING_USER_ID")
	}
	bucket := RolloutBucket(*fc.UserID, r.Salt)
	if bucket < r.Percent {
		return allow("ROLLOUT_IN")
	}
	return deny("ROLLOUT_OUT")
}

// RequestAttr allows iff request_attributes[Field] is one of In.
type RequestAttr struct {
	Field string
	In    []string
}

func (r *RequestAttr) Evaluate(fc *flowctx.FlowContext, _ *selector.Registry) Decision {
	raw, ok := fc.RequestAttributes[r.Field]
	if !ok {
		return deny("MISSING_REQUEST_ATTR")
	}
	value, ok := raw.(string)
	if !ok {
		return deny("REQUEST_ATTR_MISMATCH")
	}
	for _, v := range r.In {
		if v == value {
			return allow("REQUEST_ATTR_MATCH")
		}
	}
	return deny("REQUEST_ATTR_MISMATCH")
}

// Selector looks up Name in the SelectorRegistry and invokes it.
type Selector struct {
	Name string
}

func (s *Selector) Evaluate(fc *flowctx.FlowContext, selectors *selector.Registry) Decision {
	if selectors == nil {
		d := deny("SELECTOR_NOT_REGISTERED")
		d.SelectorName = s.Name
		return d
	}
	pred, ok := selectors.Lookup(s.Name)
	if !ok {
		d := deny("SELECTOR_NOT_REGISTERED")
		d.SelectorName = s.Name
		return d
	}
	if pred(fc) {
		d := allow("SELECTOR_TRUE")
		d.SelectorName = s.Name
		return d
	}
	d := deny("SELECTOR_FALSE")
	d.SelectorName = s.Name
	return d
}
