// Package modules holds a handful of ports.Module implementations used as a
// demonstration catalog for the bootstrap demo flow, grounded on the
// shape of the teacher's shell-command plugin
// (internal/plugins/command/command.go): a New() constructor returning the
// interface type and a var _ interface-satisfaction assertion. Only Annotate
// decodes per-module Args; the others read no Args.
package modules

// Candidate is the shared recommendation-item shape the example rerank
// modules (Boost, Filter) operate over. It is deliberately minimal: an
// identifier, a score the stage's modules adjust, and a free-form tag set
// selectors can gate on.
type Candidate struct {
	ID    string   `json:"id"`
	Score float64  `json:"score"`
	Tags  []string `json:"tags,omitempty"`
}

func hasTag(c Candidate, tag string) bool {
	if tag == "" {
		return true
	}
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
