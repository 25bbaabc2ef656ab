// Package validation implements ports.Validator, the static patch-JSON
// checker the engine requires to have marked a snapshot valid before any
// module runs, grounded on the teacher's internal/config validator
// singleton pattern (github.com/go-playground/validator/v10).
package validation

import (
	"encoding/json"
	"fmt"

	"github.com/rockestra/rockestra/internal/rockestra/patch"
	"github.com/rockestra/rockestra/internal/rockestra/ports"
)

// PatchValidator implements ports.Validator by parsing a candidate patch
// document and checking its structural invariants: schema version, a
// non-negative fanoutMax, a non-empty module id, module-id uniqueness per
// stage, priority range (warning only), and gate tree nesting depth.
type PatchValidator struct{}

// New constructs a PatchValidator.
func New() *PatchValidator { return &PatchValidator{} }

func (PatchValidator) ValidatePatchJSON(patchJSON string) ports.ValidationReport {
	var findings []ports.ValidationFinding

	doc, err := patch.ParseDocument(patchJSON)
	if err != nil {
		return ports.ValidationReport{
			IsValid: false,
			Findings: []ports.ValidationFinding{{
				Severity: ports.SeverityError,
				Code:     "MALFORMED_JSON",
				Path:     "$",
				Message:  err.Error(),
			}},
		}
	}

	if doc.SchemaVersion != "v1" {
		findings = append(findings, ports.ValidationFinding{
			Severity: ports.SeverityError,
			Code:     "UNSUPPORTED_SCHEMA_VERSION",
			Path:     "$.schemaVersion",
			Message:  fmt.Sprintf("unsupported schemaVersion %q, expected \"v1\"", doc.SchemaVersion),
		})
	}

	for flowName, flow := range doc.Flows {
		for stageName, stage := range flow.Stages {
			seen := make(map[string]bool)
			path := fmt.Sprintf("$.flows.%s.stages.%s", flowName, stageName)

			if stage.FanoutMax != nil && *stage.FanoutMax < 0 {
				findings = append(findings, ports.ValidationFinding{
					Severity: ports.SeverityError,
					Code:     "NEGATIVE_FANOUT_MAX",
					Path:     path + ".fanoutMax",
					Message:  "fanoutMax must not be negative",
				})
			}

			for i, m := range stage.Modules {
				modPath := fmt.Sprintf("%s.modules[%d]", path, i)
				if m.ID == "" {
					findings = append(findings, ports.ValidationFinding{
						Severity: ports.SeverityError,
						Code:     "MISSING_MODULE_ID",
						Path:     modPath + ".id",
						Message:  "module patch entries must carry an id",
					})
					continue
				}
				if seen[m.ID] {
					findings = append(findings, ports.ValidationFinding{
						Severity: ports.SeverityError,
						Code:     "DUPLICATE_MODULE_ID",
						Path:     modPath + ".id",
						Message:  fmt.Sprintf("module id %q repeated within stage %q", m.ID, stageName),
					})
				}
				seen[m.ID] = true

				if m.Priority != nil && (*m.Priority < 0 || *m.Priority > 1000) {
					findings = append(findings, ports.ValidationFinding{
						Severity: ports.SeverityWarn,
						Code:     "PRIORITY_OUT_OF_RANGE",
						Path:     modPath + ".priority",
						Message:  "priority is conventionally within [0,1000]",
					})
				}

				if depth := gateDepth(m.Gate, 0); depth > 10 {
					findings = append(findings, ports.ValidationFinding{
						Severity: ports.SeverityError,
						Code:     "GATE_NESTING_TOO_DEEP",
						Path:     modPath + ".gate",
						Message:  fmt.Sprintf("gate tree nests %d levels deep, maximum is 10", depth),
					})
				}
			}
		}
	}

	isValid := true
	for _, f := range findings {
		if f.Severity == ports.SeverityError {
			isValid = false
			break
		}
	}
	return ports.ValidationReport{IsValid: isValid, Findings: findings}
}

// gateEnvelope mirrors the discriminated-union shape enough to walk nesting
// depth without needing the full typed gate decoder.
type gateEnvelope struct {
	Children []json.RawMessage `json:"children,omitempty"`
	Child    json.RawMessage   `json:"child,omitempty"`
}

func gateDepth(raw json.RawMessage, current int) int {
	if len(raw) == 0 {
		return current
	}
	var env gateEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return current
	}
	deepest := current + 1
	if len(env.Child) > 0 {
		if d := gateDepth(env.Child, current+1); d > deepest {
			deepest = d
		}
	}
	for _, child := range env.Children {
		if d := gateDepth(child, current+1); d > deepest {
			deepest = d
		}
	}
	return deepest
}

var _ ports.Validator = (*PatchValidator)(nil)
